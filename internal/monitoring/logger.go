package monitoring

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger provides structured logging helpers for the procurement pipeline
type Logger struct {
	*slog.Logger
}

// NewLogger creates a JSON logger on stdout at the given level
func NewLogger(level slog.Level) *Logger {
	return NewLoggerTo(os.Stdout, level)
}

// NewLoggerTo creates a JSON logger writing to w
func NewLoggerTo(w io.Writer, level slog.Level) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{
					Key:   "timestamp",
					Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
				}
			}
			return a
		},
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// RequestLogger logs HTTP request details
func (l *Logger) RequestLogger(method, path, ip, userAgent string, statusCode int, duration time.Duration) {
	l.Info("HTTP Request",
		"method", method,
		"path", path,
		"ip", ip,
		"user_agent", userAgent,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
	)
}

// AnomalyLogger logs the verdict for one bid. Neutral verdicts are logged at
// warn level with their error code.
func (l *Logger) AnomalyLogger(bidID int64, score float64, suspicious bool, errorCode string, duration time.Duration) {
	level := slog.LevelInfo
	if errorCode != "" || suspicious {
		level = slog.LevelWarn
	}

	l.Log(context.Background(), level, "Bid Analyzed",
		"bid_id", bidID,
		"anomaly_score", score,
		"is_suspicious", suspicious,
		"error_code", errorCode,
		"duration_ms", duration.Milliseconds(),
	)
}

// TrainingLogger logs the outcome of a training run
func (l *Logger) TrainingLogger(modelID string, samples, outliers int, synthetic, saved bool, duration time.Duration, errMsg string) {
	if errMsg != "" {
		l.Error("Model Training Failed",
			"error", errMsg,
			"used_synthetic_data", synthetic,
			"duration_ms", duration.Milliseconds(),
		)
		return
	}

	l.Info("Model Training Completed",
		"model_id", modelID,
		"n_samples", samples,
		"n_outliers_detected", outliers,
		"used_synthetic_data", synthetic,
		"model_saved", saved,
		"duration_ms", duration.Milliseconds(),
	)
}

// APIErrorLogger logs API errors with context
func (l *Logger) APIErrorLogger(err error, method, path, ip string, statusCode int) {
	l.Error("API Error",
		"error", err.Error(),
		"method", method,
		"path", path,
		"ip", ip,
		"status_code", statusCode,
	)
}

// ExternalAPILogger logs outbound calls such as alert webhook deliveries
func (l *Logger) ExternalAPILogger(apiName, method, endpoint string, statusCode int, duration time.Duration, success bool) {
	level := slog.LevelInfo
	if !success {
		level = slog.LevelWarn
	}

	l.Log(context.Background(), level, "External API Call",
		"api_name", apiName,
		"method", method,
		"endpoint", endpoint,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
		"success", success,
	)
}

// SystemLogger logs system-level events
func (l *Logger) SystemLogger(event, details string) {
	l.Info("System Event",
		"event", event,
		"details", details,
		"uptime", time.Since(startTime).String(),
	)
}

// SecurityLogger logs security-related events
func (l *Logger) SecurityLogger(event, ip, userAgent string, details map[string]interface{}) {
	attrs := []any{
		"event", event,
		"ip", ip,
		"user_agent", userAgent,
	}

	for key, value := range details {
		attrs = append(attrs, key, value)
	}

	l.Warn("Security Event", attrs...)
}

// PerformanceLogger logs performance metrics
func (l *Logger) PerformanceLogger(metric string, value float64, unit string) {
	l.Info("Performance Metric",
		"metric", metric,
		"value", value,
		"unit", unit,
	)
}

var startTime = time.Now()

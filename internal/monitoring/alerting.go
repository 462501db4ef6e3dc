package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ZanzyTHEbar/tender-guard/internal/errors"
	"github.com/ZanzyTHEbar/tender-guard/internal/resilience"
)

// BidAlert is the notification sent when a bid is flagged as suspicious
type BidAlert struct {
	AlertID      int64     `json:"alert_id"`
	BidID        int64     `json:"bid_id"`
	TenderID     int64     `json:"tender_id"`
	CompanyName  string    `json:"company_name"`
	BidAmount    float64   `json:"bid_amount"`
	AnomalyScore float64   `json:"anomaly_score"`
	Severity     string    `json:"severity"`
	Message      string    `json:"message"`
	RaisedAt     time.Time `json:"raised_at"`
}

// AlertNotifier delivers bid alerts outside the service
type AlertNotifier interface {
	Notify(ctx context.Context, alert BidAlert) error
}

// LogNotifier only logs alerts. It is used when no webhook is configured.
type LogNotifier struct {
	logger *Logger
}

// NewLogNotifier creates a notifier that writes alerts to logger
func NewLogNotifier(logger *Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the alert
func (n *LogNotifier) Notify(ctx context.Context, alert BidAlert) error {
	n.logger.Warn("Suspicious bid alert",
		"alert_id", alert.AlertID,
		"bid_id", alert.BidID,
		"anomaly_score", alert.AnomalyScore,
		"severity", alert.Severity,
	)
	return nil
}

// WebhookNotifier posts alerts as JSON to a webhook URL, retrying transient
// failures behind a circuit breaker.
type WebhookNotifier struct {
	WebhookURL string

	client  *http.Client
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
	metrics *Metrics
	logger  *Logger
}

// NewWebhookNotifier creates a webhook notifier. metrics may be nil.
func NewWebhookNotifier(webhookURL string, metrics *Metrics, logger *Logger) *WebhookNotifier {
	return &WebhookNotifier{
		WebhookURL: webhookURL,
		client:     resilience.NewHTTPClient(resilience.DefaultTransportConfig()),
		retry:      resilience.DefaultRetryConfig(),
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  time.Minute,
			OnStateChange: func(from, to resilience.CircuitBreakerState) {
				logger.SystemLogger("alert_webhook_circuit", fmt.Sprintf("%s -> %s", from, to))
			},
		}),
		metrics: metrics,
		logger:  logger,
	}
}

// Breaker exposes the circuit breaker guarding the webhook
func (w *WebhookNotifier) Breaker() *resilience.CircuitBreaker {
	return w.breaker
}

// Notify delivers one alert
func (w *WebhookNotifier) Notify(ctx context.Context, alert BidAlert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	start := time.Now()
	statusCode := 0

	err = w.breaker.Call(func() error {
		resp, err := resilience.RetryHTTP(ctx, w.retry, func() (*http.Response, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.WebhookURL, bytes.NewReader(payload))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := w.client.Do(req)
			if err != nil {
				return nil, errors.NewNetworkError("alert webhook unreachable", err)
			}
			return resp, nil
		})
		if resp != nil {
			statusCode = resp.StatusCode
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		return err
	})

	success := err == nil
	if w.metrics != nil {
		w.metrics.RecordWebhookDelivery(success)
	}
	w.logger.ExternalAPILogger("alert-webhook", http.MethodPost, w.WebhookURL, statusCode, time.Since(start), success)

	if err != nil {
		return errors.NewExternalAPIError("alert webhook", err)
	}
	return nil
}

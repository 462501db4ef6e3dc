package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/tender-guard/internal/analysis"
)

var _ analysis.Recorder = (*Metrics)(nil)

func TestMetrics_ModelCounters(t *testing.T) {
	m := NewMetrics()

	m.RecordAnalysis(true, "")
	m.RecordAnalysis(false, "")
	m.RecordAnalysis(false, string(analysis.CodeNotFound))
	m.RecordAnalysis(false, string(analysis.CodeNotFound))
	m.RecordTraining(true, 120*time.Millisecond)
	m.RecordTraining(false, 30*time.Millisecond)
	m.RecordProposalScored()

	stats := m.GetModelStats()
	assert.Equal(t, int64(4), stats["bids_analyzed"])
	assert.Equal(t, int64(1), stats["suspicious_bids"])
	assert.Equal(t, map[string]int64{"not_found": 2}, stats["neutral_results"])
	assert.Equal(t, int64(2), stats["training_runs"])
	assert.Equal(t, int64(1), stats["training_failures"])
	assert.Equal(t, int64(30), stats["last_training_ms"])
	assert.Equal(t, int64(1), stats["proposals_scored"])
}

func TestMetrics_Percentiles(t *testing.T) {
	m := NewMetrics()
	assert.Zero(t, m.GetPercentileResponseTime(95))

	for i := 1; i <= 100; i++ {
		m.RecordResponseTime(time.Duration(i) * time.Millisecond)
	}

	assert.Equal(t, 50*time.Millisecond, m.GetPercentileResponseTime(50))
	assert.Equal(t, 100*time.Millisecond, m.GetPercentileResponseTime(100))
}

func TestMonitoringMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	m := NewMetrics()
	logger := NewLoggerTo(io.Discard, slog.LevelInfo)

	r := gin.New()
	r.Use(MonitoringMiddleware(m, logger))
	r.GET("/api/tenders", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/bids/:id/anomaly", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	for _, path := range []string{"/api/tenders", "/api/tenders", "/api/bids/9/anomaly"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	stats := m.GetStats()
	assert.Equal(t, int64(3), stats["total_requests"])
	assert.Equal(t, int64(1), stats["error_count"])
	assert.Equal(t, map[int]int64{200: 2, 404: 1}, m.GetStatusCodeDistribution())
}

func TestSecurityMonitoringMiddleware_LogsProbes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, slog.LevelInfo)

	r := gin.New()
	r.Use(SecurityMonitoringMiddleware(logger))
	r.GET("/api/bids", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/bids?tender_id=1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, buf.String())

	req := httptest.NewRequest(http.MethodGet, "/api/bids?tender_id=1%20UNION%20SELECT%20*", nil)
	req.Header.Set("User-Agent", "sqlmap/1.7")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, buf.String(), "suspicious_activity_detected")
}

func TestWebhookNotifier(t *testing.T) {
	var received BidAlert
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	m := NewMetrics()
	n := NewWebhookNotifier(srv.URL, m, NewLoggerTo(io.Discard, slog.LevelInfo))
	n.retry.InitialDelay = time.Millisecond

	alert := BidAlert{AlertID: 3, BidID: 11, AnomalyScore: 0.12, Severity: "high"}
	require.NoError(t, n.Notify(context.Background(), alert))

	assert.Equal(t, int64(11), received.BidID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Equal(t, int64(1), m.GetModelStats()["webhook_deliveries"])
}

func TestWebhookNotifier_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	m := NewMetrics()
	n := NewWebhookNotifier(srv.URL, m, NewLoggerTo(io.Discard, slog.LevelInfo))

	err := n.Notify(context.Background(), BidAlert{BidID: 1})
	require.Error(t, err)
	assert.Equal(t, int64(1), m.GetModelStats()["webhook_failures"])
	assert.Equal(t, 1, n.Breaker().Failures())
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var seenHeader, seenCtx, seenGin string
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/health", func(c *gin.Context) {
		seenHeader = c.Request.Header.Get(RequestIDHeader)
		seenCtx = RequestIDFromContext(c.Request.Context())
		seenGin = GetRequestID(c)
		c.Status(http.StatusOK)
	})

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generated when missing", "", false},
		{"kept when valid", "0b8f7d0e-8c0e-4c7a-9a57-3f1f6c1d2e10", true},
		{"replaced when malformed", "abc; drop", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get(RequestIDHeader)
			require.NotEmpty(t, got)
			if tt.keep {
				assert.Equal(t, tt.incoming, got)
			} else {
				assert.NotEqual(t, tt.incoming, got)
			}
			assert.Equal(t, got, seenHeader)
			assert.Equal(t, got, seenCtx)
			assert.Equal(t, got, seenGin)
		})
	}
}

func TestRuntimeMonitor_Sample(t *testing.T) {
	rm := NewRuntimeMonitor(time.Hour, 0, NewLoggerTo(io.Discard, slog.LevelInfo))
	rm.maxHistory = 3

	for i := 0; i < 5; i++ {
		s := rm.Sample()
		assert.Positive(t, s.HeapAlloc)
		assert.Positive(t, s.NumGoroutine)
	}

	assert.Len(t, rm.History(), 3)
	stats := rm.GetStats()
	assert.Equal(t, 3, stats["samples"])
	assert.Equal(t, uint64(0), stats["soft_limit_mb"])
}

func TestRuntimeMonitor_SoftLimitWarning(t *testing.T) {
	var buf bytes.Buffer
	rm := NewRuntimeMonitor(time.Hour, 1, NewLoggerTo(&buf, slog.LevelInfo))

	rm.Sample()
	assert.Contains(t, buf.String(), "heap_over_soft_limit")
	assert.Contains(t, buf.String(), "runtime_pressure")
}

func TestRuntimeMonitor_StartStop(t *testing.T) {
	rm := NewRuntimeMonitor(10*time.Millisecond, 0, NewLoggerTo(io.Discard, slog.LevelInfo))
	rm.Start()
	time.Sleep(35 * time.Millisecond)
	rm.Stop()
	rm.Stop()

	assert.GreaterOrEqual(t, len(rm.History()), 2)
}

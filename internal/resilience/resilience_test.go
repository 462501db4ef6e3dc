package resilience

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/tender-guard/internal/errors"
)

func fastConfig() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	return cfg
}

func TestRetryWithConfig(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		err       error
		wantCalls int32
		wantErr   bool
	}{
		{"succeeds first time", 0, nil, 1, false},
		{"recovers from network errors", 2, errors.NewNetworkError("webhook down", nil), 3, false},
		{"gives up after max attempts", 5, errors.NewNetworkError("webhook down", nil), 3, true},
		{"does not retry validation errors", 5, errors.NewValidationError("bad payload"), 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			err := RetryWithConfig(context.Background(), fastConfig(), func() error {
				if atomic.AddInt32(&calls, 1) <= int32(tt.failures) {
					return tt.err
				}
				return nil
			})

			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRetryWithConfig_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryWithConfig(ctx, fastConfig(), func() error {
		t.Fatal("fn must not run on a cancelled context")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateDelay(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2}

	assert.Equal(t, 100*time.Millisecond, calculateDelay(cfg, 0))
	assert.Equal(t, 400*time.Millisecond, calculateDelay(cfg, 2))
	assert.Equal(t, time.Second, calculateDelay(cfg, 10))

	cfg.JitterEnabled = true
	d := calculateDelay(cfg, 0)
	assert.GreaterOrEqual(t, d, 100*time.Millisecond)
	assert.Less(t, d, 110*time.Millisecond)

	cfg.InitialDelay = 0
	assert.NotPanics(t, func() { calculateDelay(cfg, 0) })
}

func TestRetryHTTP(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	resp, err := RetryHTTP(context.Background(), fastConfig(), func() (*http.Response, error) {
		return http.Post(srv.URL, "application/json", nil)
	})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestRetryHTTP_NonRetryableStatus(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	resp, err := RetryHTTP(context.Background(), fastConfig(), func() (*http.Response, error) {
		return http.Post(srv.URL, "application/json", nil)
	})
	require.Error(t, err)
	defer resp.Body.Close()

	var httpErr *HTTPError
	require.True(t, stderrors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestCircuitBreaker(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
		OnStateChange: func(from, to CircuitBreakerState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }

	boom := stderrors.New("boom")
	assert.ErrorIs(t, cb.Call(func() error { return boom }), boom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Call(func() error { return boom }), boom)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Call(func() error { called = true; return nil })
	var cbErr *CircuitBreakerError
	require.True(t, stderrors.As(err, &cbErr))
	assert.False(t, called)

	// after the recovery timeout one probe is let through
	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())

	assert.Equal(t, []string{"closed->open", "open->half_open", "half_open->closed"}, transitions)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Second})
	now := time.Now()
	cb.now = func() time.Time { return now }

	_ = cb.Call(func() error { return stderrors.New("down") })
	require.Equal(t, StateOpen, cb.State())

	now = now.Add(2 * time.Second)
	_ = cb.Call(func() error { return stderrors.New("still down") })
	assert.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
}

func TestNewHTTPClient(t *testing.T) {
	tests := []struct {
		name        string
		cfg         TransportConfig
		wantIdle    int
		wantPerHost int
	}{
		{"defaults", DefaultTransportConfig(), 4, 4},
		{"zero values fall back", TransportConfig{}, 4, 4},
		{"per host follows idle", TransportConfig{MaxIdle: 8}, 8, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewHTTPClient(tt.cfg)
			transport, ok := client.Transport.(*http.Transport)
			require.True(t, ok)
			assert.Equal(t, tt.wantIdle, transport.MaxIdleConns)
			assert.Equal(t, tt.wantPerHost, transport.MaxConnsPerHost)
			assert.Equal(t, tt.cfg.RequestTimeout, client.Timeout)
		})
	}

	t.Run("serves requests", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		resp, err := NewHTTPClient(DefaultTransportConfig()).Get(srv.URL)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})
}

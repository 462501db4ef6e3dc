package main

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/tender-guard/internal/monitoring"
	"github.com/ZanzyTHEbar/tender-guard/internal/resilience"
)

func TestHealthEndpoint_Integration(t *testing.T) {
	_, r := newTestApp(t, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get(monitoring.RequestIDHeader))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, resilience.StatusOK, response["status"])
	assert.Equal(t, true, response["model_loaded"])
	assert.Equal(t, version, response["version"])
	assert.Len(t, response["dependencies"], 2)
}

func TestHealthEndpoint_MethodNotAllowed(t *testing.T) {
	_, r := newTestApp(t, nil)

	methods := []string{"POST", "PUT", "DELETE", "PATCH"}

	for _, method := range methods {
		t.Run("method_"+method+"_not_allowed", func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(method, "/health", nil)
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusNotFound, w.Code)
		})
	}
}

func TestHealthEndpoint_DependencyLevels(t *testing.T) {
	tests := []struct {
		name       string
		failing    string
		wantStatus int
		wantBody   string
	}{
		{"required dependency down", "database", http.StatusServiceUnavailable, resilience.StatusUnavailable},
		{"model missing", "model", http.StatusServiceUnavailable, resilience.StatusUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, r := newTestApp(t, nil)
			a.health.Record(tt.failing, stderrors.New("unreachable"))

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			var response map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tt.wantBody, response["status"])
		})
	}

	t.Run("optional dependency degrades", func(t *testing.T) {
		a, r := newTestApp(t, nil)
		a.health.Register("alert_webhook", false, nil)
		a.health.Record("alert_webhook", stderrors.New("circuit open"))

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var response map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, resilience.StatusDegraded, response["status"])
	})
}

func TestHealthEndpoint_ConcurrentRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, r := newTestApp(t, nil)

	// Test concurrent access to health endpoint
	done := make(chan bool, 10)

	for i := 0; i < 10; i++ {
		go func() {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/health", nil)
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)

			var response map[string]interface{}
			json.Unmarshal(w.Body.Bytes(), &response)
			assert.Equal(t, "ok", response["status"])

			done <- true
		}()
	}

	// Wait for all goroutines to complete
	for i := 0; i < 10; i++ {
		<-done
	}
}

package errors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name     string
		err      *AppError
		category ErrorCategory
		status   int
	}{
		{"validation", NewValidationError("bid_amount must be positive"), CategoryValidation, http.StatusBadRequest},
		{"not found", NewNotFoundError("tender", 7), CategoryNotFound, http.StatusNotFound},
		{"unauthorized", NewUnauthorizedError("operator token required"), CategoryUnauthorized, http.StatusUnauthorized},
		{"rate limit", NewRateLimitError("60s"), CategoryRateLimit, http.StatusTooManyRequests},
		{"storage", NewStorageError("create bid", cause), CategoryStorage, http.StatusServiceUnavailable},
		{"webhook", NewExternalAPIError("alert webhook", cause), CategoryExternalAPI, http.StatusBadGateway},
		{"configuration", NewConfigurationError("bad PORT", nil), CategoryConfiguration, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.category, tt.err.Category)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
			assert.False(t, tt.err.Timestamp.IsZero())
		})
	}
}

func TestAppError_MessageAndUnwrap(t *testing.T) {
	err := NewNotFoundError("tender", 7)
	assert.Equal(t, "[NOT_FOUND] tender 7 not found", err.Error())

	cause := errors.New("disk full")
	storageErr := NewStorageError("save artifacts", cause)
	assert.ErrorIs(t, storageErr, cause)
}

func TestToAppError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category ErrorCategory
	}{
		{"passthrough", NewValidationError("bad"), CategoryValidation},
		{"wrapped app error", fmt.Errorf("submit: %w", NewNotFoundError("tender", 1)), CategoryNotFound},
		{"no rows", fmt.Errorf("get tender: %w", sql.ErrNoRows), CategoryNotFound},
		{"canceled", context.Canceled, CategoryTimeout},
		{"deadline", context.DeadlineExceeded, CategoryTimeout},
		{"locked", errors.New("database is locked"), CategoryStorage},
		{"refused", errors.New("dial tcp: connection refused"), CategoryNetwork},
		{"other", errors.New("unexpected"), CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.category, ToAppError(tt.err).Category)
		})
	}

	assert.Nil(t, ToAppError(nil))
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(NewNetworkError("down", nil)))
	assert.True(t, IsRetryableError(NewStorageError("ping", nil)))
	assert.False(t, IsRetryableError(NewValidationError("bad")))
	assert.False(t, IsRetryableError(NewNotFoundError("bid", 3)))
}

type countingCloser struct {
	calls int
	err   error
}

func (c *countingCloser) Close() error {
	c.calls++
	return c.err
}

func TestSafeClose(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"clean close", nil},
		{"close error is swallowed", errors.New("database is locked")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			closer := &countingCloser{err: tt.err}
			SafeClose(closer, "database")
			assert.Equal(t, 1, closer.calls)
		})
	}

	assert.NotPanics(t, func() { SafeClose(nil, "redis") })
}

func TestErrorHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/tenders/:id", func(c *gin.Context) {
		_ = c.Error(NewNotFoundError("tender", c.Param("id")))
	})
	r.GET("/ok", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tenders/42", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRecoveryHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RecoveryHandler())
	r.GET("/panic", func(c *gin.Context) {
		panic("scorer exploded")
	})

	w := httptest.NewRecorder()
	require.NotPanics(t, func() {
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

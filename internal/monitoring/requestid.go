package monitoring

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader carries the request correlation ID in both directions
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

type requestIDContextKey struct{}

// RequestIDMiddleware assigns each request a correlation ID. A well-formed
// incoming X-Request-ID is kept so callers can stitch logs across services.
// The ID is written back to the request header, where the error handler
// picks it up, and echoed on the response.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}

		c.Request.Header.Set(RequestIDHeader, id)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), requestIDContextKey{}, id))
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}

// RequestIDFromContext returns the correlation ID set by RequestIDMiddleware
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}

// GetRequestID returns the correlation ID stored on the gin context
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

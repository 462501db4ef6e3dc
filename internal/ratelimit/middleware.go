package ratelimit

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/tender-guard/internal/errors"
)

// OperatorKey is the gin context key under which the authenticated operator is stored
const OperatorKey = "operator"

func setHeaders(c *gin.Context, prefix string, result *Result) {
	c.Header(prefix+"-Limit", strconv.Itoa(result.Limit))
	c.Header(prefix+"-Remaining", strconv.Itoa(result.Remaining))
	c.Header(prefix+"-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(d.Seconds())
	if d > 0 && secs == 0 {
		secs = 1
	}
	return secs
}

// reject aborts the chain and leaves the 429 body to errors.ErrorHandler
func reject(c *gin.Context, retryAfter time.Duration) {
	secs := strconv.Itoa(retryAfterSeconds(retryAfter))
	c.Header("Retry-After", secs)
	_ = c.Error(errors.NewRateLimitError(secs + "s"))
	c.Abort()
}

// IPRateLimitMiddleware limits every request per client IP
func (rl *RateLimiter) IPRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		result, err := rl.AllowIP(c.Request.Context(), ip)
		if err != nil {
			// never block on limiter failure
			slog.Error("Rate limit check failed", "ip", ip, "error", err)
			c.Next()
			return
		}

		setHeaders(c, "X-RateLimit", result)

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitIPBlock()
			}

			reject(c, result.RetryAfter)
			return
		}

		c.Next()
	}
}

// TrainingRateLimitMiddleware limits model training runs per operator, or
// per IP when no operator is authenticated.
func (rl *RateLimiter) TrainingRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := c.GetString(OperatorKey)
		if subject == "" {
			subject = "ip:" + c.ClientIP()
		}

		result, err := rl.AllowTraining(c.Request.Context(), subject)
		if err != nil {
			slog.Error("Training rate limit check failed", "subject", subject, "error", err)
			c.Next()
			return
		}

		setHeaders(c, "X-RateLimit-Train", result)

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitRoute(c.FullPath())
			}

			reject(c, result.RetryAfter)
			return
		}

		c.Next()
	}
}

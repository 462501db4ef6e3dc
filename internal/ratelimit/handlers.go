package ratelimit

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HandleRateLimitStatus reports the limits that apply to the caller
func (rl *RateLimiter) HandleRateLimitStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := gin.H{
			"ip": c.ClientIP(),
			"limits": gin.H{
				"ip_per_minute": gin.H{
					"limit":  rl.config.IPLimit,
					"period": "1 minute",
				},
				"training_per_hour": gin.H{
					"limit":  rl.config.TrainLimit,
					"period": "1 hour",
				},
			},
			"limiter":   rl.GetStats(),
			"timestamp": time.Now().Format(time.RFC3339),
		}

		if operator := c.GetString(OperatorKey); operator != "" {
			status["operator"] = operator
		}
		if rl.metrics != nil {
			status["metrics"] = rl.metrics.GetRateLimitStats()
		}

		c.JSON(http.StatusOK, status)
	}
}

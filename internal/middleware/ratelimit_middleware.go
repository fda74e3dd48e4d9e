package middleware

import (
	"context"
	"net/http"
	"strconv"

	"agora-chat/internal/metrics"
	"agora-chat/internal/redis"
	"agora-chat/internal/services"
	"agora-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

// MessageLimiter is satisfied by redis.RateLimiter.
type MessageLimiter interface {
	AllowMessage(ctx context.Context, userID string) (*redis.RateLimitResult, error)
}

// MessageRateLimitMiddleware must run after AuthMiddleware. A nil limiter
// disables the check.
func MessageRateLimitMiddleware(limiter MessageLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		userID, ok := services.UserIDFromContext(c.Request.Context())
		if !ok {
			c.Next()
			return
		}

		result, err := limiter.AllowMessage(c.Request.Context(), userID.String())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse("rate limit unavailable", "SERVICE_UNAVAILABLE"))
			return
		}

		setRateLimitHeaders(c, result)

		if !result.Allowed {
			metrics.RateLimitHits.WithLabelValues("messages").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, httpdto.NewErrorResponse("message rate limit exceeded", "RATE_LIMITED"))
			return
		}

		c.Next()
	}
}

func setRateLimitHeaders(c *gin.Context, result *redis.RateLimitResult) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(result.ResetIn.Seconds()), 10))
}

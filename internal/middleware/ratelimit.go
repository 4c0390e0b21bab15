package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/arkana-app/access-api/internal/config"
	"github.com/arkana-app/access-api/internal/metrics"
	"github.com/arkana-app/access-api/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RateLimit guards one endpoint with its configured rule. Requests are
// keyed by rule name + client IP (ClientIP resolves X-Forwarded-For and
// friends). When the limiter itself fails, the rule's fail mode decides:
// "closed" denies - capacity-limited endpoints must not admit unmetered
// traffic - while "open" lets general traffic through.
func RateLimit(rule config.RateLimitRule, limiter ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("%s:%s", rule.Name, c.ClientIP())

		decision, err := limiter.Check(c.Request.Context(), key)
		if err != nil {
			log.Error().Err(err).Str("rule", rule.Name).Msg("rate limit check failed")

			if rule.FailMode == "closed" {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"error": "Service temporarily unavailable. Please try again.",
				})
				c.Abort()
				return
			}

			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.Limit()))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", decision.Remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", decision.ResetAt.Unix()))

		if !decision.Allowed {
			metrics.RateLimitDenialsTotal.WithLabelValues(rule.Name).Inc()

			retryAfter := int((decision.RetryAfter + time.Second - 1) / time.Second)
			if retryAfter < 0 {
				retryAfter = 0
			}

			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": retryAfter,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

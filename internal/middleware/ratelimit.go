package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/qlozet/stylefeed/pkg/models"
)

type RateLimiter interface {
	IsAllowed(ctx context.Context, callerID, userTier string) (bool, *models.RateLimitInfo, error)
}

// RateLimit runs after Auth so callers are keyed by identity rather than IP
// whenever credentials are present. Limiter errors let the request through.
func RateLimit(limiter RateLimiter, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		callerID, tier := CallerFromContext(c)

		allowed, info, err := limiter.IsAllowed(c.Request.Context(), callerID, tier)
		if err != nil || info == nil {
			logger.WithError(err).WithField("caller_id", callerID).Error("Rate limit check failed")
			c.Next()
			return
		}

		h := c.Writer.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime, 10))

		if allowed {
			c.Next()
			return
		}

		retryAfter := max(info.ResetTime-time.Now().Unix(), 1)
		h.Set("Retry-After", strconv.FormatInt(retryAfter, 10))
		logger.WithFields(logrus.Fields{
			"caller_id": callerID,
			"user_tier": tier,
			"limit":     info.Limit,
		}).Warn("Rate limit exceeded")

		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": gin.H{
				"code":    "RATE_LIMIT_EXCEEDED",
				"message": "Too many requests, retry after " + strconv.FormatInt(retryAfter, 10) + "s",
			},
		})
	}
}

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/qlozet/stylefeed/pkg/models"
)

const (
	ctxCallerID = "caller_id"
	ctxUserID   = "user_id"
	ctxUserTier = "user_tier"
)

// Authenticator validates bearer JWTs and static API keys.
type Authenticator interface {
	ValidateToken(ctx context.Context, tokenString string) (*models.JWTClaims, error)
	ValidateAPIKey(apiKey string) (string, error)
}

func Auth(authService Authenticator, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWithError(c, http.StatusUnauthorized, "MISSING_AUTHORIZATION", "Authorization header is required")
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			abortWithError(c, http.StatusUnauthorized, "INVALID_AUTHORIZATION_FORMAT",
				"Authorization header must be in format 'Bearer <token>'")
			return
		}

		tokenString := tokenParts[1]

		// JWTs always carry dots; API keys never do.
		if !strings.Contains(tokenString, ".") {
			userTier, err := authService.ValidateAPIKey(tokenString)
			if err != nil {
				logger.WithError(err).Warn("Invalid API key")
				abortWithError(c, http.StatusUnauthorized, "INVALID_API_KEY", "Invalid API key")
				return
			}

			// Partner backends act on behalf of a user named in X-User-ID.
			callerID := "key:" + keyFingerprint(tokenString)
			if userID := c.GetHeader("X-User-ID"); userID != "" {
				c.Set(ctxUserID, userID)
				callerID = userID
			}
			c.Set(ctxCallerID, callerID)
			c.Set(ctxUserTier, userTier)
			c.Next()
			return
		}

		claims, err := authService.ValidateToken(c.Request.Context(), tokenString)
		if err != nil {
			logger.WithError(err).Warn("Invalid JWT token")
			abortWithError(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
			return
		}

		c.Set(ctxCallerID, claims.UserID)
		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxUserTier, claims.UserTier)
		c.Next()
	}
}

// CallerFromContext returns the rate-limit identity and tier set by Auth.
// Unauthenticated requests are identified by client IP on the default tier.
func CallerFromContext(c *gin.Context) (string, string) {
	callerID := c.GetString(ctxCallerID)
	if callerID == "" {
		callerID = "ip:" + c.ClientIP()
	}
	tier := c.GetString(ctxUserTier)
	if tier == "" {
		tier = "default"
	}
	return callerID, tier
}

// AuthenticatedUser returns the user id bound to the request credentials, if any.
func AuthenticatedUser(c *gin.Context) (string, bool) {
	userID := c.GetString(ctxUserID)
	return userID, userID != ""
}

func keyFingerprint(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8]
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

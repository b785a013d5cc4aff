package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/qlozet/stylefeed/internal/config"
)

var exposedHeaders = []string{
	RequestIDHeader,
	"X-RateLimit-Limit",
	"X-RateLimit-Remaining",
	"X-RateLimit-Reset",
	"Retry-After",
}

// CORS lets the storefront call the feed API from the browser. A wildcard or
// empty origin list allows any origin, in which case credentials are off.
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:  cfg.AllowedMethods,
		AllowHeaders:  append([]string{"Authorization", "Content-Type", "X-User-ID", RequestIDHeader}, cfg.AllowedHeaders...),
		ExposeHeaders: exposedHeaders,
		MaxAge:        12 * time.Hour,
	}
	if len(c.AllowMethods) == 0 {
		c.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	}

	wildcard := len(cfg.AllowedOrigins) == 0
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			wildcard = true
		}
	}
	if wildcard {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.AllowedOrigins
		c.AllowCredentials = true
	}

	return cors.New(c)
}

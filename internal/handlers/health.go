package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/qlozet/stylefeed/internal/services"
)

type healthChecker interface {
	CheckHealth(ctx context.Context) *services.HealthStatus
}

type HealthHandler struct {
	logger        *logrus.Logger
	healthService healthChecker
}

func NewHealthHandler(logger *logrus.Logger, healthService healthChecker) *HealthHandler {
	return &HealthHandler{
		logger:        logger,
		healthService: healthService,
	}
}

// Check answers 200 while the feed can serve, degraded included, and 503
// once a critical store is down.
func (h *HealthHandler) Check(c *gin.Context) {
	status := h.healthService.CheckHealth(c.Request.Context())

	code := http.StatusOK
	if status.Status == services.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

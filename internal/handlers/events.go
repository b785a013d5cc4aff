package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/qlozet/stylefeed/internal/services"
	"github.com/qlozet/stylefeed/pkg/models"
)

type EventHandler struct {
	events services.EventServiceInterface
	logger *logrus.Logger
}

func NewEventHandler(events services.EventServiceInterface, logger *logrus.Logger) *EventHandler {
	return &EventHandler{
		events: events,
		logger: logger,
	}
}

// Record expects the body to have passed the feed-event schema already.
func (h *EventHandler) Record(c *gin.Context) {
	var event models.Event
	if err := c.ShouldBindJSON(&event); err != nil {
		bindingError(c, err)
		return
	}

	stored, err := h.events.LogEvent(c.Request.Context(), &event)
	if err != nil {
		serviceError(c, h.logger, err, "EVENT_LOG_FAILED", "Failed to record event")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"data":    stored,
		"message": "Event recorded successfully",
	})
}

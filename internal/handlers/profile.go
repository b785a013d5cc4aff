package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/qlozet/stylefeed/internal/services"
)

type ProfileHandler struct {
	profiles services.ProfileRecomputer
	logger   *logrus.Logger
}

func NewProfileHandler(profiles services.ProfileRecomputer, logger *logrus.Logger) *ProfileHandler {
	return &ProfileHandler{
		profiles: profiles,
		logger:   logger,
	}
}

// Recompute rebuilds the user's style profile synchronously. A user without
// usable signals gets updated=false and no profile.
func (h *ProfileHandler) Recompute(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userId"))
	if userID == "" {
		errorResponse(c, http.StatusBadRequest, "MISSING_USER_ID", "userId is required")
		return
	}

	embedding, err := h.profiles.ComputeUserStyleVector(c.Request.Context(), userID)
	if err != nil {
		serviceError(c, h.logger, err, "PROFILE_RECOMPUTE_FAILED", "Failed to recompute profile")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":  userID,
		"updated": embedding != nil,
		"profile": embedding,
	})
}

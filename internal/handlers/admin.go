package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/qlozet/stylefeed/internal/services"
)

const defaultBackfillLimit = 500

type catalogBackfiller interface {
	Backfill(ctx context.Context, limit int) (*services.BackfillResult, error)
}

type sessionIssuer interface {
	IssueToken(ctx context.Context, userID, tier string) (string, error)
	RevokeToken(ctx context.Context, userID string) error
}

// AdminHandler exposes maintenance operations on the catalog and lets
// partner backends mint shopper sessions.
type AdminHandler struct {
	backfiller catalogBackfiller
	sessions   sessionIssuer
	logger     *logrus.Logger
}

func NewAdminHandler(backfiller catalogBackfiller, sessions sessionIssuer, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		backfiller: backfiller,
		sessions:   sessions,
		logger:     logger,
	}
}

type issueSessionRequest struct {
	UserID string `json:"userId" binding:"required,max=128"`
	Tier   string `json:"tier" binding:"omitempty,oneof=default premium"`
}

// IssueSession signs a bearer token for a shopper.
func (h *AdminHandler) IssueSession(c *gin.Context) {
	var req issueSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingError(c, err)
		return
	}
	if req.Tier == "" {
		req.Tier = "default"
	}

	token, err := h.sessions.IssueToken(c.Request.Context(), req.UserID, req.Tier)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", req.UserID).Error("Failed to issue session")
		errorResponse(c, http.StatusServiceUnavailable, "SESSION_UNAVAILABLE", "Sessions cannot be issued")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": gin.H{"token": token, "tokenType": "Bearer"}})
}

// RevokeSession ends the shopper's current session.
func (h *AdminHandler) RevokeSession(c *gin.Context) {
	userID := c.Param("userId")
	if err := h.sessions.RevokeToken(c.Request.Context(), userID); err != nil {
		serviceError(c, h.logger, err, "SESSION_REVOKE_FAILED", "Failed to revoke session")
		return
	}
	c.Status(http.StatusNoContent)
}

// BackfillEmbeddings embeds catalog items that have no style vector yet.
func (h *AdminHandler) BackfillEmbeddings(c *gin.Context) {
	limit := defaultBackfillLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			errorResponse(c, http.StatusBadRequest, "INVALID_PARAMETER", "limit must be a positive integer")
			return
		}
		limit = n
	}

	result, err := h.backfiller.Backfill(c.Request.Context(), limit)
	if errors.Is(err, services.ErrEmbeddingsDisabled) {
		errorResponse(c, http.StatusServiceUnavailable, "EMBEDDINGS_DISABLED", "No embedding provider is configured")
		return
	}
	if err != nil {
		serviceError(c, h.logger, err, "BACKFILL_FAILED", "Failed to backfill catalog embeddings")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

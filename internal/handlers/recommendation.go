package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/qlozet/stylefeed/internal/services"
	"github.com/qlozet/stylefeed/pkg/models"
)

const maxRelatedItemIDs = 20

type RecommendationHandler struct {
	orchestrator services.FeedOrchestratorInterface
	evaluator    services.EvaluatorInterface
	logger       *logrus.Logger
}

func NewRecommendationHandler(
	orchestrator services.FeedOrchestratorInterface,
	evaluator services.EvaluatorInterface,
	logger *logrus.Logger,
) *RecommendationHandler {
	return &RecommendationHandler{
		orchestrator: orchestrator,
		evaluator:    evaluator,
		logger:       logger,
	}
}

// feedParams holds the query parameters shared by the feed endpoints.
type feedParams struct {
	userID         string
	sessionID      string
	limit          int
	budgetMax      *float64
	deadlineDays   *int
	category       string
	gender         string
	deliveryRegion string
	includeOOS     bool
}

func parseFeedParams(c *gin.Context) (feedParams, error) {
	p := feedParams{
		userID:         strings.TrimSpace(c.Query("userId")),
		sessionID:      strings.TrimSpace(c.Query("sessionId")),
		category:       c.Query("category"),
		gender:         c.Query("gender"),
		deliveryRegion: c.Query("deliveryRegion"),
	}

	var err error
	if p.limit, err = queryPositiveInt(c, "limit"); err != nil {
		return p, err
	}
	if p.budgetMax, err = queryFloat(c, "budgetMax"); err != nil {
		return p, err
	}
	if v, ok := c.GetQuery("deadlineDays"); ok && v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 0 {
			return p, fmt.Errorf("deadlineDays must be a non-negative integer")
		}
		p.deadlineDays = &days
	}
	if v, ok := c.GetQuery("includeOOS"); ok && v != "" {
		if p.includeOOS, err = strconv.ParseBool(v); err != nil {
			return p, fmt.Errorf("includeOOS must be a boolean")
		}
	}
	return p, nil
}

func (p feedParams) feedRequest() services.FeedRequest {
	return services.FeedRequest{
		UserID:         p.userID,
		SessionID:      p.sessionID,
		Limit:          p.limit,
		BudgetMax:      p.budgetMax,
		DeadlineDays:   p.deadlineDays,
		Category:       p.category,
		Gender:         p.gender,
		DeliveryRegion: p.deliveryRegion,
		IncludeOOS:     p.includeOOS,
	}
}

// queryPositiveInt returns 0 when the parameter is absent.
func queryPositiveInt(c *gin.Context, name string) (int, error) {
	v, ok := c.GetQuery(name)
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return n, nil
}

func queryFloat(c *gin.Context, name string) (*float64, error) {
	v, ok := c.GetQuery(name)
	if !ok || v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return nil, fmt.Errorf("%s must be a non-negative number", name)
	}
	return &f, nil
}

// queryItemIDs accepts both repeated and comma-separated ids.
func queryItemIDs(c *gin.Context, names ...string) []string {
	var ids []string
	seen := make(map[string]struct{})
	for _, name := range names {
		for _, raw := range c.QueryArray(name) {
			for _, id := range strings.Split(raw, ",") {
				id = strings.TrimSpace(id)
				if id == "" {
					continue
				}
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func (h *RecommendationHandler) invalidParam(c *gin.Context, err error) {
	errorResponse(c, http.StatusBadRequest, "INVALID_PARAMETER", err.Error())
}

func (h *RecommendationHandler) Feed(c *gin.Context) {
	params, err := parseFeedParams(c)
	if err != nil {
		h.invalidParam(c, err)
		return
	}

	resp, err := h.orchestrator.HomeFeed(c.Request.Context(), params.feedRequest())
	if err != nil {
		serviceError(c, h.logger, err, "FEED_GENERATION_FAILED", "Failed to generate feed")
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *RecommendationHandler) Vendors(c *gin.Context) {
	params, err := parseFeedParams(c)
	if err != nil {
		h.invalidParam(c, err)
		return
	}
	perVendor, err := queryPositiveInt(c, "productsPerVendor")
	if err != nil {
		h.invalidParam(c, err)
		return
	}

	resp, err := h.orchestrator.VendorFeed(c.Request.Context(), services.VendorFeedRequest{
		UserID:            params.userID,
		SessionID:         params.sessionID,
		Limit:             params.limit,
		ProductsPerVendor: perVendor,
		BudgetMax:         params.budgetMax,
	})
	if err != nil {
		serviceError(c, h.logger, err, "FEED_GENERATION_FAILED", "Failed to generate vendor feed")
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *RecommendationHandler) Trending(c *gin.Context) {
	params, err := parseFeedParams(c)
	if err != nil {
		h.invalidParam(c, err)
		return
	}

	resp, err := h.orchestrator.Trending(c.Request.Context(), params.feedRequest())
	if err != nil {
		serviceError(c, h.logger, err, "FEED_GENERATION_FAILED", "Failed to generate trending feed")
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *RecommendationHandler) NewArrivals(c *gin.Context) {
	params, err := parseFeedParams(c)
	if err != nil {
		h.invalidParam(c, err)
		return
	}
	days, err := queryPositiveInt(c, "days")
	if err != nil {
		h.invalidParam(c, err)
		return
	}

	resp, err := h.orchestrator.NewArrivals(c.Request.Context(), services.NewArrivalsRequest{
		Limit:     params.limit,
		Days:      days,
		Category:  params.category,
		BudgetMax: params.budgetMax,
	})
	if err != nil {
		serviceError(c, h.logger, err, "FEED_GENERATION_FAILED", "Failed to generate new arrivals")
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *RecommendationHandler) BoughtTogether(c *gin.Context) {
	h.related(c, h.orchestrator.BoughtTogether, "Failed to generate bought-together items")
}

func (h *RecommendationHandler) CompleteTheLook(c *gin.Context) {
	h.related(c, h.orchestrator.CompleteTheLook, "Failed to complete the look")
}

func (h *RecommendationHandler) related(
	c *gin.Context,
	pipeline func(ctx context.Context, req services.RelatedRequest) (*models.FeedResponse, error),
	failure string,
) {
	params, err := parseFeedParams(c)
	if err != nil {
		h.invalidParam(c, err)
		return
	}

	ids := queryItemIDs(c, "itemIds", "itemId")
	if len(ids) == 0 {
		errorResponse(c, http.StatusBadRequest, "MISSING_ITEM_IDS", "itemIds is required")
		return
	}
	if len(ids) > maxRelatedItemIDs {
		h.invalidParam(c, fmt.Errorf("at most %d itemIds are allowed", maxRelatedItemIDs))
		return
	}

	resp, err := pipeline(c.Request.Context(), services.RelatedRequest{
		ItemIDs:   ids,
		UserID:    params.userID,
		Limit:     params.limit,
		BudgetMax: params.budgetMax,
	})
	if err != nil {
		serviceError(c, h.logger, err, "FEED_GENERATION_FAILED", failure)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *RecommendationHandler) Evaluate(c *gin.Context) {
	var req models.EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingError(c, err)
		return
	}

	metrics, err := h.evaluator.EvaluateUser(c.Request.Context(), req)
	if err != nil {
		serviceError(c, h.logger, err, "EVALUATION_FAILED", "Failed to evaluate recommendations")
		return
	}
	c.JSON(http.StatusOK, metrics)
}

package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/qlozet/stylefeed/pkg/models"
)

const evaluationEventLimit = 1000

// ComputeMetrics scores the top k recommendations against held-out events.
// ctrAtK is the share of the user's clicks that landed on a top-k item, not
// precision; conversionAtK does the same over add-to-cart and purchase events.
func ComputeMetrics(recommendations []models.CatalogItem, groundTruth []models.Event, k int) models.EvaluationMetrics {
	if k <= 0 || k > len(recommendations) {
		k = len(recommendations)
	}
	top := recommendations[:k]

	inTop := make(map[string]struct{}, k)
	vendors := make(map[string]struct{})
	types := make(map[models.ItemType]struct{})
	for i := range top {
		inTop[top[i].ItemID] = struct{}{}
		if top[i].VendorID != "" {
			vendors[top[i].VendorID] = struct{}{}
		}
		if top[i].Type != "" {
			types[top[i].Type] = struct{}{}
		}
	}

	var clicks, clickHits, conversions, conversionHits int
	for i := range groundTruth {
		_, hit := inTop[groundTruth[i].ItemID]
		switch groundTruth[i].EventType {
		case models.EventClickItem:
			clicks++
			if hit {
				clickHits++
			}
		case models.EventAddToCart, models.EventPurchase:
			conversions++
			if hit {
				conversionHits++
			}
		}
	}

	return models.EvaluationMetrics{
		K:             k,
		CTRAtK:        ratio(clickHits, clicks),
		ConversionAtK: ratio(conversionHits, conversions),
		Diversity: models.DiversityMetrics{
			UniqueVendors:    len(vendors),
			UniqueCategories: len(types),
		},
	}
}

func ratio(hits, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Evaluator loads a recommendation list and the user's subsequent events
// from the stores and computes offline metrics.
type Evaluator struct {
	catalog CatalogRepository
	events  EventLog
	logger  *logrus.Logger
}

// NewEvaluator reads recommendations from the catalog and outcomes from the event log.
func NewEvaluator(catalog CatalogRepository, events EventLog, logger *logrus.Logger) *Evaluator {
	return &Evaluator{
		catalog: catalog,
		events:  events,
		logger:  logger,
	}
}

func (e *Evaluator) EvaluateUser(ctx context.Context, req models.EvaluateRequest) (*models.EvaluationMetrics, error) {
	if req.UserID == "" || len(req.ItemIDs) == 0 {
		return nil, fmt.Errorf("%w: userId and itemIds are required", ErrInvalidRequest)
	}

	found, err := e.catalog.FindByIDs(ctx, req.ItemIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load recommended items: %w", err)
	}

	// Unknown ids keep their slot so k still refers to the served positions.
	recommendations := make([]models.CatalogItem, 0, len(req.ItemIDs))
	for _, id := range req.ItemIDs {
		item, ok := found[id]
		if !ok {
			item = models.CatalogItem{ItemID: id}
		}
		recommendations = append(recommendations, item)
	}

	events, err := e.events.GetRecentEvents(ctx, req.UserID, evaluationEventLimit, req.Since)
	if err != nil {
		return nil, fmt.Errorf("failed to load ground truth events: %w", err)
	}

	metrics := ComputeMetrics(recommendations, events, req.K)

	e.logger.WithFields(logrus.Fields{
		"user_id":         req.UserID,
		"k":               metrics.K,
		"ctr_at_k":        metrics.CTRAtK,
		"conversion_at_k": metrics.ConversionAtK,
	}).Debug("Evaluated recommendations")

	return &metrics, nil
}

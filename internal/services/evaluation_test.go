package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qlozet/stylefeed/pkg/models"
)

func TestComputeMetrics(t *testing.T) {
	recommendations := []models.CatalogItem{
		{ItemID: "g1", VendorID: "v1", Type: models.ItemTypeGarment},
		{ItemID: "a1", VendorID: "v2", Type: models.ItemTypeAccessory},
		{ItemID: "g2", VendorID: "v1", Type: models.ItemTypeGarment},
		{ItemID: "f1", VendorID: "v3", Type: models.ItemTypeFabric},
	}
	events := []models.Event{
		{ItemID: "g1", EventType: models.EventClickItem},
		{ItemID: "f1", EventType: models.EventClickItem},
		{ItemID: "a1", EventType: models.EventPurchase},
		{ItemID: "zz", EventType: models.EventAddToCart},
		{ItemID: "g2", EventType: models.EventViewItem},
	}

	t.Run("top two", func(t *testing.T) {
		metrics := ComputeMetrics(recommendations, events, 2)
		assert.Equal(t, 2, metrics.K)
		assert.InDelta(t, 0.5, metrics.CTRAtK, 1e-9)
		assert.InDelta(t, 0.5, metrics.ConversionAtK, 1e-9)
		assert.Equal(t, models.DiversityMetrics{UniqueVendors: 2, UniqueCategories: 2}, metrics.Diversity)
	})

	t.Run("k beyond the list uses the whole list", func(t *testing.T) {
		metrics := ComputeMetrics(recommendations, events, 50)
		assert.Equal(t, 4, metrics.K)
		assert.InDelta(t, 1.0, metrics.CTRAtK, 1e-9)
		assert.Equal(t, 3, metrics.Diversity.UniqueVendors)
		assert.Equal(t, 3, metrics.Diversity.UniqueCategories)
	})

	t.Run("no ground truth", func(t *testing.T) {
		metrics := ComputeMetrics(recommendations, nil, 0)
		assert.Equal(t, 4, metrics.K)
		assert.Zero(t, metrics.CTRAtK)
		assert.Zero(t, metrics.ConversionAtK)
	})
}

func TestComputeMetrics_TopThree(t *testing.T) {
	recommendations := []models.CatalogItem{
		{ItemID: "g1", VendorID: "v1", Type: models.ItemTypeGarment},
		{ItemID: "g2", VendorID: "v1", Type: models.ItemTypeGarment},
		{ItemID: "a1", VendorID: "v2", Type: models.ItemTypeAccessory},
	}
	events := []models.Event{
		{ItemID: "g2", EventType: models.EventClickItem},
		{ItemID: "elsewhere", EventType: models.EventClickItem},
		{ItemID: "a1", EventType: models.EventAddToCart},
	}

	metrics := ComputeMetrics(recommendations, events, 3)
	assert.InDelta(t, 0.5, metrics.CTRAtK, 1e-9)
	assert.InDelta(t, 1.0, metrics.ConversionAtK, 1e-9)
	assert.Equal(t, 2, metrics.Diversity.UniqueVendors)
	assert.Equal(t, 2, metrics.Diversity.UniqueCategories)
}

func TestEvaluator_EvaluateUser(t *testing.T) {
	catalog := newFakeCatalog(
		models.CatalogItem{ItemID: "g1", VendorID: "v1", Type: models.ItemTypeGarment},
		models.CatalogItem{ItemID: "g2", VendorID: "v2", Type: models.ItemTypeGarment},
	)
	events := &fakeEventLog{events: []models.Event{
		{UserID: "u1", ItemID: "g2", EventType: models.EventClickItem},
		{UserID: "u1", ItemID: "missing", EventType: models.EventClickItem},
		{UserID: "u2", ItemID: "g1", EventType: models.EventClickItem},
	}}
	evaluator := NewEvaluator(catalog, events, quietLogger())

	t.Run("unknown ids keep their slot", func(t *testing.T) {
		metrics, err := evaluator.EvaluateUser(context.Background(), models.EvaluateRequest{
			UserID:  "u1",
			ItemIDs: []string{"missing", "g2", "g1"},
			K:       2,
		})
		require.NoError(t, err)
		assert.Equal(t, 2, metrics.K)
		assert.InDelta(t, 1.0, metrics.CTRAtK, 1e-9)
		assert.Equal(t, 1, metrics.Diversity.UniqueVendors)
	})

	t.Run("requires user and items", func(t *testing.T) {
		_, err := evaluator.EvaluateUser(context.Background(), models.EvaluateRequest{UserID: "u1"})
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("event store failure", func(t *testing.T) {
		failing := NewEvaluator(catalog, &fakeEventLog{err: errors.New("db down")}, quietLogger())
		_, err := failing.EvaluateUser(context.Background(), models.EvaluateRequest{UserID: "u1", ItemIDs: []string{"g1"}})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrInvalidRequest)
	})
}

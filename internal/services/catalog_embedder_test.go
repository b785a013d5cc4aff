package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qlozet/stylefeed/pkg/models"
)

// selectiveEmbedder fails for the listed texts.
type selectiveEmbedder struct {
	fail map[string]bool
}

func (s *selectiveEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if s.fail[text] {
		return nil, errors.New("provider rejected input")
	}
	return []float32{0.6, 0.8}, nil
}

type recordingIndexer struct {
	upserted []string
}

func (r *recordingIndexer) Upsert(_ context.Context, item models.CatalogItem) (bool, error) {
	r.upserted = append(r.upserted, item.ItemID)
	return item.StyleVector() != nil, nil
}

func TestItemText(t *testing.T) {
	assert.Equal(t, "Wrap dress, boho, linen, A-line", ItemText(models.CatalogItem{
		Title:   " Wrap dress ",
		Tags:    []string{"boho", "linen"},
		Garment: &models.GarmentAttributes{Silhouette: "A-line"},
	}))
	assert.Equal(t, "Beaded clutch, glass, hand", ItemText(models.CatalogItem{
		Title:     "Beaded clutch",
		Accessory: &models.AccessoryAttributes{Material: "glass", Slot: "hand"},
	}))
	assert.Equal(t, "silk", ItemText(models.CatalogItem{Fabric: &models.FabricAttributes{Material: "silk"}}))
	assert.Empty(t, ItemText(models.CatalogItem{Tags: []string{" "}}))
}

func TestCatalogEmbedder_Backfill(t *testing.T) {
	catalog := newFakeCatalog(
		models.CatalogItem{ItemID: "done", Title: "Embedded", Embeddings: &models.ItemEmbeddings{EStyle: []float32{1, 0}}},
		models.CatalogItem{ItemID: "blank"},
		models.CatalogItem{ItemID: "bad", Title: "Rejected"},
		models.CatalogItem{ItemID: "new", Title: "Kaftan", Tags: []string{"resort"}},
	)
	indexer := &recordingIndexer{}
	embedder := NewCatalogEmbedder(catalog, &selectiveEmbedder{fail: map[string]bool{"Rejected": true}}, indexer, quietLogger())

	result, err := embedder.Backfill(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, &BackfillResult{Scanned: 4, Embedded: 1, Skipped: 2, Failed: 1}, result)
	require.Contains(t, catalog.patches, "new")
	assert.Equal(t, []float32{0.6, 0.8}, catalog.patches["new"].Embeddings.EStyle)
	assert.Equal(t, []string{"new"}, indexer.upserted)
}

func TestCatalogEmbedder_BackfillErrors(t *testing.T) {
	t.Run("no provider", func(t *testing.T) {
		_, err := NewCatalogEmbedder(newFakeCatalog(), nil, nil, quietLogger()).Backfill(context.Background(), 10)
		assert.ErrorIs(t, err, ErrEmbeddingsDisabled)
	})

	t.Run("bad limit", func(t *testing.T) {
		_, err := NewCatalogEmbedder(newFakeCatalog(), &selectiveEmbedder{}, nil, quietLogger()).Backfill(context.Background(), 0)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("catalog failure", func(t *testing.T) {
		catalog := newFakeCatalog()
		catalog.err = errors.New("db down")
		_, err := NewCatalogEmbedder(catalog, &selectiveEmbedder{}, nil, quietLogger()).Backfill(context.Background(), 10)
		assert.Error(t, err)
	})

	t.Run("cancelled context stops early", func(t *testing.T) {
		catalog := newFakeCatalog(models.CatalogItem{ItemID: "new", Title: "Kaftan"})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result, err := NewCatalogEmbedder(catalog, &selectiveEmbedder{}, nil, quietLogger()).Backfill(ctx, 10)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, result.Embedded)
	})
}

package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/qlozet/stylefeed/pkg/models"
)

// ItemIndexer receives items whose embeddings changed. The in-process
// search index implements it.
type ItemIndexer interface {
	Upsert(ctx context.Context, item models.CatalogItem) (bool, error)
}

// BackfillResult counts what one backfill run did.
type BackfillResult struct {
	Scanned  int `json:"scanned"`
	Embedded int `json:"embedded"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// CatalogEmbedder fills in missing style embeddings from item text.
type CatalogEmbedder struct {
	catalog  CatalogRepository
	embedder EmbeddingProvider
	indexer  ItemIndexer
	logger   *logrus.Logger
}

// NewCatalogEmbedder writes embeddings back to the catalog and, when indexer
// is non-nil, to the local index.
func NewCatalogEmbedder(catalog CatalogRepository, embedder EmbeddingProvider, indexer ItemIndexer, logger *logrus.Logger) *CatalogEmbedder {
	return &CatalogEmbedder{
		catalog:  catalog,
		embedder: embedder,
		indexer:  indexer,
		logger:   logger,
	}
}

// ItemText is the text embedded for an item: title, tags and the variant's
// descriptive attributes.
func ItemText(item models.CatalogItem) string {
	parts := []string{strings.TrimSpace(item.Title)}
	parts = append(parts, item.Tags...)
	switch {
	case item.Garment != nil:
		parts = append(parts, item.Garment.Silhouette)
	case item.Fabric != nil:
		parts = append(parts, item.Fabric.Material)
	case item.Accessory != nil:
		parts = append(parts, item.Accessory.Material, item.Accessory.Slot)
	}

	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

// Backfill embeds up to limit catalog items that have no style embedding.
// Individual failures are counted and skipped.
func (e *CatalogEmbedder) Backfill(ctx context.Context, limit int) (*BackfillResult, error) {
	if e.embedder == nil {
		return nil, ErrEmbeddingsDisabled
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidRequest)
	}

	items, err := e.catalog.FindAll(ctx, limit)
	if err != nil {
		return nil, err
	}

	result := &BackfillResult{Scanned: len(items)}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if item.Embeddings != nil && len(item.Embeddings.EStyle) > 0 {
			result.Skipped++
			continue
		}
		text := ItemText(item)
		if text == "" {
			result.Skipped++
			continue
		}

		vector, err := e.embedder.Embed(ctx, text)
		if err != nil {
			result.Failed++
			e.logger.WithError(err).WithField("item_id", item.ItemID).Warn("Failed to embed catalog item")
			continue
		}

		embeddings := &models.ItemEmbeddings{EStyle: vector}
		if err := e.catalog.Update(ctx, item.ItemID, models.CatalogPatch{Embeddings: embeddings}); err != nil {
			result.Failed++
			e.logger.WithError(err).WithField("item_id", item.ItemID).Warn("Failed to store catalog embedding")
			continue
		}
		result.Embedded++

		if e.indexer != nil {
			item.Embeddings = embeddings
			if _, err := e.indexer.Upsert(ctx, item); err != nil {
				e.logger.WithError(err).WithField("item_id", item.ItemID).Debug("Failed to refresh local index")
			}
		}
	}

	e.logger.WithFields(logrus.Fields{
		"scanned":  result.Scanned,
		"embedded": result.Embedded,
		"failed":   result.Failed,
	}).Info("Catalog embedding backfill finished")

	return result, nil
}

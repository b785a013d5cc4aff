package search

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/vecgo"
	"gonum.org/v1/gonum/floats"

	"github.com/qlozet/stylefeed/pkg/models"
)

// ItemLoader supplies the catalog snapshot a LocalIndex is warmed from.
type ItemLoader interface {
	FindAll(ctx context.Context, limit int) ([]models.CatalogItem, error)
}

type indexedItem struct {
	id     uint64
	item   models.CatalogItem
	vector []float64
}

// LocalIndex is an exact in-process cosine index over item style embeddings.
// Items without an embedding of the index dimension are skipped.
type LocalIndex struct {
	mu        sync.RWMutex
	db        *vecgo.Vecgo[string]
	dimension int
	items     map[string]*indexedItem
}

func NewLocalIndex(dimension int) (*LocalIndex, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid index dimension %d", dimension)
	}
	db, err := vecgo.Flat[string](dimension).Cosine().SyncWrite(true).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build local index: %w", err)
	}
	return &LocalIndex{
		db:        db,
		dimension: dimension,
		items:     make(map[string]*indexedItem),
	}, nil
}

// Warm loads up to limit catalog items and returns how many were indexed.
func (l *LocalIndex) Warm(ctx context.Context, loader ItemLoader, limit int) (int, error) {
	items, err := loader.FindAll(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to load catalog for local index: %w", err)
	}

	indexed := 0
	for _, item := range items {
		ok, err := l.Upsert(ctx, item)
		if err != nil {
			return indexed, err
		}
		if ok {
			indexed++
		}
	}
	return indexed, nil
}

// Upsert adds or replaces an item. It reports false when the item has no
// usable style embedding.
func (l *LocalIndex) Upsert(ctx context.Context, item models.CatalogItem) (bool, error) {
	if item.Embeddings == nil || len(item.Embeddings.EStyle) != l.dimension {
		return false, nil
	}
	unit := unitVector(item.Embeddings.EStyle)
	if unit == nil {
		return false, nil
	}
	entry := vecgo.VectorWithData[string]{
		Vector: toFloat32(unit),
		Data:   item.ItemID,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.items[item.ItemID]; ok {
		if err := l.db.Update(ctx, existing.id, entry); err != nil {
			return false, fmt.Errorf("failed to update %s in local index: %w", item.ItemID, err)
		}
		existing.item = item
		existing.vector = unit
		return true, nil
	}

	id, err := l.db.Insert(ctx, entry)
	if err != nil {
		return false, fmt.Errorf("failed to insert %s into local index: %w", item.ItemID, err)
	}
	l.items[item.ItemID] = &indexedItem{id: id, item: item, vector: unit}
	return true, nil
}

func (l *LocalIndex) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Search ranks by cosine similarity recomputed from the stored vectors, so
// scores match the pgvector backend regardless of the index distance scale.
func (l *LocalIndex) Search(ctx context.Context, vector []float32, limit, numCandidates int) ([]models.Candidate, error) {
	if len(vector) != l.dimension {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(vector), l.dimension)
	}
	query := unitVector(vector)
	if query == nil || limit <= 0 {
		return nil, nil
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	k := numCandidates
	if k < limit {
		k = limit
	}
	if k > len(l.items) {
		k = len(l.items)
	}
	if k == 0 {
		return nil, nil
	}

	hits, err := l.db.KNNSearch(ctx, toFloat32(query), k)
	if err != nil {
		return nil, fmt.Errorf("local index search failed: %w", err)
	}

	results := make([]models.Candidate, 0, len(hits))
	for _, hit := range hits {
		entry, ok := l.items[hit.Data]
		if !ok {
			continue
		}
		similarity := floats.Dot(query, entry.vector)
		results = append(results, models.Candidate{
			Item:       entry.item,
			Similarity: &similarity,
			Source:     models.SourceVector,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if *results[i].Similarity != *results[j].Similarity {
			return *results[i].Similarity > *results[j].Similarity
		}
		return results[i].Item.ItemID < results[j].Item.ItemID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (l *LocalIndex) Close() error {
	return l.db.Close()
}

func unitVector(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	norm := floats.Norm(out, 2)
	if norm == 0 {
		return nil
	}
	floats.Scale(1/norm, out)
	return out
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

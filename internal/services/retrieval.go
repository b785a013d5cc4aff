package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/qlozet/stylefeed/internal/config"
	"github.com/qlozet/stylefeed/pkg/models"
)

// candidateSet keeps the first copy of each item id in insertion order.
type candidateSet struct {
	order []string
	byID  map[string]models.Candidate
}

func newCandidateSet(capacity int) *candidateSet {
	return &candidateSet{
		order: make([]string, 0, capacity),
		byID:  make(map[string]models.Candidate, capacity),
	}
}

func (s *candidateSet) add(c models.Candidate) bool {
	id := c.Item.ItemID
	if id == "" {
		return false
	}
	if _, exists := s.byID[id]; exists {
		return false
	}
	s.order = append(s.order, id)
	s.byID[id] = c
	return true
}

func (s *candidateSet) len() int {
	return len(s.order)
}

func (s *candidateSet) list(limit int) []models.Candidate {
	n := len(s.order)
	if limit >= 0 && limit < n {
		n = limit
	}
	out := make([]models.Candidate, 0, n)
	for _, id := range s.order[:n] {
		out = append(out, s.byID[id])
	}
	return out
}

// Retriever generates candidates from a nearest-neighbour search seeded by a
// style vector and fills the remainder with trending items.
type Retriever struct {
	searcher VectorSearcher
	catalog  CatalogRepository
	cache    *redis.Client
	config   config.RetrievalConfig
	cacheTTL time.Duration
	metrics  *FeedMetrics
	logger   *logrus.Logger
}

// NewRetriever fills unset retrieval settings with their defaults. A nil
// cache disables caching of the trending pool.
func NewRetriever(
	searcher VectorSearcher,
	catalog CatalogRepository,
	cache *redis.Client,
	cfg config.RetrievalConfig,
	cacheTTL time.Duration,
	metrics *FeedMetrics,
	logger *logrus.Logger,
) *Retriever {
	if cfg.TrendingCap <= 0 {
		cfg.TrendingCap = 100
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = 800 * time.Millisecond
	}
	if cfg.NumCandidates <= 0 {
		cfg.NumCandidates = 200
	}

	return &Retriever{
		searcher: searcher,
		catalog:  catalog,
		cache:    cache,
		config:   cfg,
		cacheTTL: cacheTTL,
		metrics:  metrics,
		logger:   logger,
	}
}

// RetrieveCandidates never fails: search errors are logged and the result
// degrades to trending items, or to nothing.
func (r *Retriever) RetrieveCandidates(ctx context.Context, styleVector []float32, limit, numCandidates int) []models.Candidate {
	if limit <= 0 {
		return []models.Candidate{}
	}
	if numCandidates < limit {
		numCandidates = max(limit, r.config.NumCandidates)
	}

	set := newCandidateSet(limit)

	if styleVector != nil && r.searcher != nil {
		for _, c := range r.search(ctx, styleVector, limit, numCandidates) {
			set.add(c)
		}
	}

	if set.len() < limit {
		before := set.len()
		for _, item := range r.Trending(ctx) {
			if set.len() >= limit {
				break
			}
			set.add(models.Candidate{Item: item, Source: models.SourceTrending})
		}
		if styleVector != nil {
			r.metrics.RecordTrendingFill(set.len() - before)
		}
	}

	return set.list(limit)
}

func (r *Retriever) search(ctx context.Context, vector []float32, limit, numCandidates int) []models.Candidate {
	searchCtx, cancel := context.WithTimeout(ctx, r.config.SearchTimeout)
	defer cancel()

	start := time.Now()
	results, err := r.searcher.Search(searchCtx, vector, limit, numCandidates)
	r.metrics.ObserveSearch(time.Since(start), err)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"limit":          limit,
			"num_candidates": numCandidates,
		}).Warn("Vector search failed, falling back to trending")
		return nil
	}

	for i := range results {
		if results[i].Source == "" {
			results[i].Source = models.SourceVector
		}
	}
	return results
}

// Trending returns the most recent catalog items, served from the warm
// cache when possible. Failures yield an empty list.
func (r *Retriever) Trending(ctx context.Context) []models.CatalogItem {
	cacheKey := fmt.Sprintf("feed:trending:%d", r.config.TrendingCap)

	if r.cache != nil {
		if cached := r.cache.Get(ctx, cacheKey).Val(); cached != "" {
			var items []models.CatalogItem
			if err := json.Unmarshal([]byte(cached), &items); err == nil {
				return items
			}
		}
	}

	if r.catalog == nil {
		return nil
	}

	items, err := r.catalog.FindRecent(ctx, r.config.TrendingCap)
	if err != nil {
		r.logger.WithError(err).Warn("Failed to load trending items")
		return nil
	}

	if r.cache != nil && r.cacheTTL > 0 {
		if data, err := json.Marshal(items); err == nil {
			r.cache.Set(ctx, cacheKey, data, r.cacheTTL)
		}
	}

	return items
}

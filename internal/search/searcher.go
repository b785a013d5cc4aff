// Package search provides the nearest-neighbour backends behind candidate
// retrieval: pgvector queries against the catalog table, an in-process vecgo
// index, and a circuit breaker that wraps either.
package search

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/qlozet/stylefeed/internal/config"
	"github.com/qlozet/stylefeed/pkg/models"
)

const (
	BackendPGVector = "pgvector"
	BackendLocal    = "local"
)

// Searcher returns up to limit nearest items to vector, considering
// numCandidates items before the final cut.
type Searcher interface {
	Search(ctx context.Context, vector []float32, limit, numCandidates int) ([]models.Candidate, error)
}

// StyleSearcher is the catalog query the pgvector backend delegates to.
type StyleSearcher interface {
	SearchByStyle(ctx context.Context, vector []float32, limit, numCandidates int) ([]models.Candidate, error)
}

type PGVectorSearcher struct {
	catalog StyleSearcher
}

func NewPGVectorSearcher(catalog StyleSearcher) *PGVectorSearcher {
	return &PGVectorSearcher{catalog: catalog}
}

func (s *PGVectorSearcher) Search(ctx context.Context, vector []float32, limit, numCandidates int) ([]models.Candidate, error) {
	if numCandidates < limit {
		numCandidates = limit
	}
	return s.catalog.SearchByStyle(ctx, vector, limit, numCandidates)
}

// StateObserver is told about breaker transitions: 0 closed, 1 half-open,
// 2 open.
type StateObserver interface {
	SetBreakerState(state int)
}

// BreakerSearcher stops calling a failing backend until the breaker timeout
// passes. Calls rejected by an open breaker return gobreaker.ErrOpenState.
type BreakerSearcher struct {
	next    Searcher
	breaker *gobreaker.CircuitBreaker[[]models.Candidate]
}

func NewBreakerSearcher(next Searcher, cfg config.BreakerConfig, observer StateObserver, logger *logrus.Logger) *BreakerSearcher {
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}

	settings := gobreaker.Settings{
		Name:        "vector-search",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Vector search circuit breaker changed state")
			if observer != nil {
				observer.SetBreakerState(int(to))
			}
		},
	}

	return &BreakerSearcher{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[[]models.Candidate](settings),
	}
}

func (s *BreakerSearcher) Search(ctx context.Context, vector []float32, limit, numCandidates int) ([]models.Candidate, error) {
	return s.breaker.Execute(func() ([]models.Candidate, error) {
		return s.next.Search(ctx, vector, limit, numCandidates)
	})
}

func (s *BreakerSearcher) State() gobreaker.State {
	return s.breaker.State()
}

// New builds the configured backend wrapped in a circuit breaker. The local
// backend is returned empty; call Warm on it before serving.
func New(cfg config.RetrievalConfig, catalog StyleSearcher, dimension int, observer StateObserver, logger *logrus.Logger) (*BreakerSearcher, *LocalIndex, error) {
	switch cfg.Backend {
	case "", BackendPGVector:
		return NewBreakerSearcher(NewPGVectorSearcher(catalog), cfg.Breaker, observer, logger), nil, nil
	case BackendLocal:
		index, err := NewLocalIndex(dimension)
		if err != nil {
			return nil, nil, err
		}
		return NewBreakerSearcher(index, cfg.Breaker, observer, logger), index, nil
	default:
		return nil, nil, fmt.Errorf("unknown retrieval backend %q", cfg.Backend)
	}
}

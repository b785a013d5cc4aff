package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qlozet/stylefeed/internal/config"
	"github.com/qlozet/stylefeed/pkg/models"
)

type stubCatalog struct {
	calls         int
	err           error
	gotLimit      int
	gotCandidates int
	items         []models.CatalogItem
}

func (s *stubCatalog) SearchByStyle(ctx context.Context, vector []float32, limit, numCandidates int) ([]models.Candidate, error) {
	s.calls++
	s.gotLimit = limit
	s.gotCandidates = numCandidates
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.Candidate, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, models.Candidate{Item: item, Source: models.SourceVector})
	}
	return out, nil
}

func (s *stubCatalog) FindAll(ctx context.Context, limit int) ([]models.CatalogItem, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit < len(s.items) {
		return s.items[:limit], nil
	}
	return s.items, nil
}

type recordingObserver struct {
	states []int
}

func (r *recordingObserver) SetBreakerState(state int) {
	r.states = append(r.states, state)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func styled(id string, vec ...float32) models.CatalogItem {
	return models.CatalogItem{
		ItemID:     id,
		Type:       models.ItemTypeGarment,
		Embeddings: &models.ItemEmbeddings{EStyle: vec},
	}
}

func TestPGVectorSearcher_RaisesCandidatesToLimit(t *testing.T) {
	catalog := &stubCatalog{}
	searcher := NewPGVectorSearcher(catalog)

	_, err := searcher.Search(context.Background(), []float32{1, 0}, 40, 10)
	require.NoError(t, err)
	assert.Equal(t, 40, catalog.gotLimit)
	assert.Equal(t, 40, catalog.gotCandidates)
}

func TestBreakerSearcher_OpensAfterConsecutiveFailures(t *testing.T) {
	catalog := &stubCatalog{err: errors.New("connection refused")}
	observer := &recordingObserver{}
	searcher := NewBreakerSearcher(NewPGVectorSearcher(catalog), config.BreakerConfig{
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             time.Minute,
		ConsecutiveFailures: 2,
	}, observer, quietLogger())

	for i := 0; i < 2; i++ {
		_, err := searcher.Search(context.Background(), []float32{1}, 5, 10)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, searcher.State())
	assert.Equal(t, []int{int(gobreaker.StateOpen)}, observer.states)

	_, err := searcher.Search(context.Background(), []float32{1}, 5, 10)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, catalog.calls)
}

func TestNew_Backends(t *testing.T) {
	catalog := &stubCatalog{}

	searcher, index, err := New(config.RetrievalConfig{Backend: BackendPGVector}, catalog, 3, nil, quietLogger())
	require.NoError(t, err)
	assert.NotNil(t, searcher)
	assert.Nil(t, index)

	searcher, index, err = New(config.RetrievalConfig{Backend: BackendLocal}, catalog, 3, nil, quietLogger())
	require.NoError(t, err)
	assert.NotNil(t, searcher)
	require.NotNil(t, index)
	defer index.Close()

	_, _, err = New(config.RetrievalConfig{Backend: "faiss"}, catalog, 3, nil, quietLogger())
	assert.Error(t, err)
}

func TestLocalIndex_SearchRanksByCosine(t *testing.T) {
	index, err := NewLocalIndex(3)
	require.NoError(t, err)
	defer index.Close()

	loader := &stubCatalog{items: []models.CatalogItem{
		styled("exact", 2, 0, 0),
		styled("close", 1, 1, 0),
		styled("far", 0, 0, 1),
		styled("wrong-dim", 1, 0),
		{ItemID: "no-embedding"},
	}}

	indexed, err := index.Warm(context.Background(), loader, 100)
	require.NoError(t, err)
	assert.Equal(t, 3, indexed)
	assert.Equal(t, 3, index.Len())

	results, err := index.Search(context.Background(), []float32{1, 0, 0}, 2, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "exact", results[0].Item.ItemID)
	assert.InDelta(t, 1.0, *results[0].Similarity, 1e-6)
	assert.Equal(t, "close", results[1].Item.ItemID)
	assert.InDelta(t, 0.7071, *results[1].Similarity, 1e-3)
	assert.Equal(t, models.SourceVector, results[1].Source)
}

func TestLocalIndex_UpsertReplacesVector(t *testing.T) {
	index, err := NewLocalIndex(2)
	require.NoError(t, err)
	defer index.Close()

	ctx := context.Background()
	ok, err := index.Upsert(ctx, styled("a", 1, 0))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = index.Upsert(ctx, styled("a", 0, 1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, index.Len())

	results, err := index.Search(ctx, []float32{0, 1}, 1, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, *results[0].Similarity, 1e-6)
}

func TestLocalIndex_RejectsDimensionMismatch(t *testing.T) {
	index, err := NewLocalIndex(2)
	require.NoError(t, err)
	defer index.Close()

	_, err = index.Search(context.Background(), []float32{1, 0, 0}, 1, 1)
	assert.Error(t, err)

	results, err := index.Search(context.Background(), []float32{1, 0}, 1, 1)
	require.NoError(t, err)
	assert.Empty(t, results)
}

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qlozet/stylefeed/internal/config"
	"github.com/qlozet/stylefeed/pkg/models"
)

var feedNow = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

type orchestratorDeps struct {
	catalog  *fakeCatalog
	events   *fakeEventLog
	profiles *fakeProfileStore
	searcher *fakeSearcher
	vendors  *fakeVendorService
	graph    CoPurchaseGraph
}

func newOrchestratorDeps(items ...models.CatalogItem) *orchestratorDeps {
	return &orchestratorDeps{
		catalog:  newFakeCatalog(items...),
		events:   &fakeEventLog{},
		profiles: newFakeProfileStore(),
		searcher: &fakeSearcher{},
		vendors:  &fakeVendorService{records: map[string]*models.VendorTrustRecord{}},
	}
}

func (d *orchestratorDeps) build() *FeedOrchestrator {
	logger := quietLogger()
	metrics := NewFeedMetrics(prometheus.NewRegistry())
	cfg := config.FeedConfig{
		DefaultLimit:      20,
		MaxLimit:          50,
		NewArrivalsDays:   14,
		ProductsPerVendor: 4,
		Retrieval: config.RetrievalConfig{
			NumCandidates:       100,
			CandidateMultiplier: 3,
			TrendingCap:         100,
			SearchTimeout:       time.Second,
		},
		Profile: config.ProfileConfig{EventLimit: 100, DecayRate: 0.05, SessionAlpha: 0.7, SessionLastN: 30},
	}

	profiles := NewProfileBuilder(d.catalog, d.events, d.profiles, nil, cfg.Profile, logger)
	profiles.now = func() time.Time { return feedNow }
	retriever := NewRetriever(d.searcher, d.catalog, nil, cfg.Retrieval, 0, metrics, logger)
	trust := NewVendorTrustFetcher(d.vendors, cfg.Vendors, logger)

	o := NewFeedOrchestrator(profiles, retriever, trust, d.catalog, d.events, d.profiles, d.graph,
		NewExplanationService(logger), metrics, cfg, logger)
	o.now = func() time.Time { return feedNow }
	return o
}

func catalogItem(id string, itemType models.ItemType, vendor string, tags ...string) models.CatalogItem {
	return models.CatalogItem{
		ItemID:    id,
		Type:      itemType,
		VendorID:  vendor,
		Price:     25,
		Tags:      tags,
		CreatedAt: feedNow.Add(-time.Hour),
	}
}

func TestHomeFeed_ColdUser(t *testing.T) {
	deps := newOrchestratorDeps(
		catalogItem("g1", models.ItemTypeGarment, "v1"),
		catalogItem("g2", models.ItemTypeGarment, "v2"),
		catalogItem("a1", models.ItemTypeAccessory, "v3"),
		catalogItem("f1", models.ItemTypeFabric, "v4"),
		catalogItem("gp", models.ItemTypeGarment, "v-pending"),
	)
	deps.vendors.records["v-pending"] = &models.VendorTrustRecord{VendorID: "v-pending", IsActive: true, Status: models.VendorStatusPending}

	resp, err := deps.build().HomeFeed(context.Background(), FeedRequest{UserID: "u1", Limit: 10})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.RequestID)
	assert.ElementsMatch(t, []string{"g1", "g2", "a1", "f1"}, itemIDs(resp.Items))
	require.NotNil(t, resp.Debug)
	assert.Equal(t, models.ColdStartCold, resp.Debug.ColdStartLevel)
	assert.False(t, resp.Debug.UsedSessionBlend)
	assert.Equal(t, 5, resp.Debug.CandidateCount)
	assert.Equal(t, 4, resp.Debug.FilteredCount)
	assert.Equal(t, 1, resp.Debug.Dropped[models.DropVendorGated])
	assert.Zero(t, deps.searcher.calls)

	for _, item := range resp.Items {
		assert.NotEmpty(t, item.Stream)
		assert.Contains(t, item.Explanation.Codes, models.ReasonWithinBudget)
	}
}

func TestHomeFeed_PersonalisedWithSession(t *testing.T) {
	styled := catalogItem("g2", models.ItemTypeGarment, "v2")
	styled.Embeddings = &models.ItemEmbeddings{EStyle: []float32{0, 1}}

	deps := newOrchestratorDeps(catalogItem("g1", models.ItemTypeGarment, "v1"), styled)
	deps.profiles.embeddings["u1"] = &models.UserEmbedding{UserID: "u1", UStyle: []float32{1, 0}, Version: 1}
	deps.events.events = []models.Event{
		{UserID: "u1", SessionID: "s1", ItemID: "g2", EventType: models.EventClickItem, Timestamp: feedNow},
	}
	deps.searcher.results = []models.Candidate{
		{Item: catalogItem("g1", models.ItemTypeGarment, "v1"), Similarity: float64Ptr(0.95)},
	}

	resp, err := deps.build().HomeFeed(context.Background(), FeedRequest{UserID: "u1", SessionID: "s1", Limit: 5})
	require.NoError(t, err)

	assert.Equal(t, models.ColdStartHot, resp.Debug.ColdStartLevel)
	assert.True(t, resp.Debug.UsedSessionBlend)
	assert.Equal(t, 1, deps.searcher.calls)
	require.NotEmpty(t, resp.Items)
	assert.Equal(t, "g1", resp.Items[0].Item.ItemID)
	assert.Contains(t, resp.Items[0].Explanation.Codes, models.ReasonStyleMatch)
}

func TestHomeFeed_ColdStartLevelTracksPersistence(t *testing.T) {
	styled := catalogItem("g2", models.ItemTypeGarment, "v2")
	styled.Embeddings = &models.ItemEmbeddings{EStyle: []float32{0, 1}}

	tests := []struct {
		name      string
		upsertErr error
		sessionID string
		want      models.ColdStartLevel
	}{
		{name: "persisted profile", want: models.ColdStartHot},
		{name: "unpersisted profile with session", upsertErr: errors.New("db down"), sessionID: "s1", want: models.ColdStartWarmSession},
		{name: "unpersisted profile", upsertErr: errors.New("db down"), want: models.ColdStartCold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newOrchestratorDeps(catalogItem("g1", models.ItemTypeGarment, "v1"), styled)
			deps.profiles.upsertErr = tt.upsertErr
			deps.events.events = []models.Event{
				{UserID: "u1", SessionID: "s1", ItemID: "g2", EventType: models.EventClickItem, Timestamp: feedNow},
			}

			resp, err := deps.build().HomeFeed(context.Background(), FeedRequest{UserID: "u1", SessionID: tt.sessionID, Limit: 5})
			require.NoError(t, err)

			assert.Equal(t, tt.want, resp.Debug.ColdStartLevel)
			assert.Equal(t, 1, deps.searcher.calls)
		})
	}
}

func TestFeeds_ReadRecentEventsOnce(t *testing.T) {
	styled := catalogItem("g2", models.ItemTypeGarment, "v2")
	styled.Embeddings = &models.ItemEmbeddings{EStyle: []float32{0, 1}}

	deps := newOrchestratorDeps(catalogItem("g1", models.ItemTypeGarment, "v1"), styled)
	deps.events.events = []models.Event{
		{UserID: "u1", SessionID: "s1", ItemID: "g2", EventType: models.EventClickItem, Timestamp: feedNow},
		{UserID: "u1", EventType: models.EventHideBusiness, Properties: map[string]interface{}{"businessId": "v1"}, Timestamp: feedNow},
	}
	o := deps.build()

	resp, err := o.HomeFeed(context.Background(), FeedRequest{UserID: "u1", SessionID: "s1", Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, deps.events.reads)
	assert.True(t, resp.Debug.UsedSessionBlend)
	assert.NotContains(t, itemIDs(resp.Items), "g1")

	_, err = o.VendorFeed(context.Background(), VendorFeedRequest{UserID: "u1", SessionID: "s1", Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 2, deps.events.reads)
}

func TestHomeFeed_InvalidRequests(t *testing.T) {
	o := newOrchestratorDeps().build()

	_, err := o.HomeFeed(context.Background(), FeedRequest{})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = o.HomeFeed(context.Background(), FeedRequest{UserID: "u1", Limit: -1})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestHomeFeed_DegradesWhenStoresFail(t *testing.T) {
	deps := newOrchestratorDeps()
	deps.catalog.err = errors.New("db down")
	deps.events.err = errors.New("db down")
	deps.searcher.err = errors.New("search down")

	resp, err := deps.build().HomeFeed(context.Background(), FeedRequest{UserID: "u1"})
	require.NoError(t, err)
	require.NotNil(t, resp.Items)
	assert.Empty(t, resp.Items)
}

func TestResolveLimit(t *testing.T) {
	o := newOrchestratorDeps().build()

	limit, err := o.resolveLimit(0)
	require.NoError(t, err)
	assert.Equal(t, 20, limit)

	limit, err = o.resolveLimit(500)
	require.NoError(t, err)
	assert.Equal(t, 50, limit)

	limit, err = o.resolveLimit(7)
	require.NoError(t, err)
	assert.Equal(t, 7, limit)

	_, err = o.resolveLimit(-3)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestVendorFeed(t *testing.T) {
	deps := newOrchestratorDeps(
		catalogItem("g1", models.ItemTypeGarment, "v1"),
		catalogItem("g2", models.ItemTypeGarment, "v1"),
		catalogItem("g3", models.ItemTypeGarment, "v1"),
		catalogItem("g4", models.ItemTypeGarment, "v2"),
	)
	deps.vendors.records["v2"] = &models.VendorTrustRecord{VendorID: "v2", IsActive: true, Status: models.VendorStatusVerified, SuccessRate: 100}

	resp, err := deps.build().VendorFeed(context.Background(), VendorFeedRequest{UserID: "u1", Limit: 5, ProductsPerVendor: 2})
	require.NoError(t, err)

	require.Len(t, resp.Vendors, 2)
	assert.Equal(t, "v2", resp.Vendors[0].VendorID)
	assert.Equal(t, "v1", resp.Vendors[1].VendorID)
	assert.Len(t, resp.Vendors[1].Products, 2)
	assert.Greater(t, resp.Vendors[0].VendorScore, resp.Vendors[1].VendorScore)

	_, err = deps.build().VendorFeed(context.Background(), VendorFeedRequest{UserID: "u1", ProductsPerVendor: -1})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = deps.build().VendorFeed(context.Background(), VendorFeedRequest{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestTrending(t *testing.T) {
	deps := newOrchestratorDeps(
		catalogItem("t1", models.ItemTypeGarment, "v1"),
		catalogItem("t2", models.ItemTypeAccessory, "v2"),
		catalogItem("t3", models.ItemTypeFabric, "v3"),
	)

	resp, err := deps.build().Trending(context.Background(), FeedRequest{Limit: 2})
	require.NoError(t, err)

	require.Len(t, resp.Items, 2)
	for _, item := range resp.Items {
		assert.Equal(t, models.StreamTrending, item.Stream)
	}
}

func TestNewArrivals(t *testing.T) {
	fresh := catalogItem("n1", models.ItemTypeGarment, "v1")
	fresh.CreatedAt = feedNow.Add(-24 * time.Hour)
	older := catalogItem("n2", models.ItemTypeGarment, "v2")
	older.CreatedAt = feedNow.Add(-48 * time.Hour)
	stale := catalogItem("old", models.ItemTypeGarment, "v3")
	stale.CreatedAt = feedNow.Add(-30 * 24 * time.Hour)

	deps := newOrchestratorDeps(stale, older, fresh)
	o := deps.build()

	resp, err := o.NewArrivals(context.Background(), NewArrivalsRequest{Days: 7})
	require.NoError(t, err)
	assert.Equal(t, []string{"n1", "n2"}, itemIDs(resp.Items))
	assert.Equal(t, models.StreamNew, resp.Items[0].Stream)

	resp, err = o.NewArrivals(context.Background(), NewArrivalsRequest{})
	require.NoError(t, err)
	assert.Len(t, resp.Items, 2)

	_, err = o.NewArrivals(context.Background(), NewArrivalsRequest{Days: -1})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestBoughtTogether(t *testing.T) {
	extra := catalogItem("x9", models.ItemTypeAccessory, "v9")
	deps := newOrchestratorDeps(
		catalogItem("g1", models.ItemTypeGarment, "v1", "boho"),
		catalogItem("g2", models.ItemTypeGarment, "v1", "Boho"),
		catalogItem("g3", models.ItemTypeGarment, "v2", "boho"),
		catalogItem("g4", models.ItemTypeGarment, "v3"),
		catalogItem("g5", models.ItemTypeGarment, "v4", "formal"),
		extra,
	)
	deps.graph = &fakeGraph{counts: map[string]int{"g4": 2}}
	o := deps.build()

	resp, err := o.BoughtTogether(context.Background(), RelatedRequest{ItemIDs: []string{"g1"}, Limit: 10})
	require.NoError(t, err)

	// g2: vendor and tag, g3: tag, g4: two co-purchases. g5 and x9 share nothing.
	assert.Equal(t, []string{"g2", "g3", "g4"}, itemIDs(resp.Items))
	for _, item := range resp.Items {
		assert.Equal(t, models.StreamRelated, item.Stream)
	}
	assert.InDelta(t, 1.0, resp.Items[0].Debug.VScore, 1e-9)
	assert.InDelta(t, 0.6, resp.Items[1].Debug.VScore, 1e-9)
	assert.InDelta(t, 0.1, resp.Items[2].Debug.VScore, 1e-9)

	t.Run("unknown reference", func(t *testing.T) {
		resp, err := o.BoughtTogether(context.Background(), RelatedRequest{ItemIDs: []string{"missing"}})
		require.NoError(t, err)
		assert.Empty(t, resp.Items)
	})

	t.Run("missing item id", func(t *testing.T) {
		_, err := o.BoughtTogether(context.Background(), RelatedRequest{})
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})
}

func TestCompleteTheLook(t *testing.T) {
	deps := newOrchestratorDeps(
		catalogItem("g1", models.ItemTypeGarment, "v1", "boho"),
		catalogItem("g2", models.ItemTypeGarment, "v2", "boho"),
		catalogItem("a1", models.ItemTypeAccessory, "v3", "boho"),
		catalogItem("f1", models.ItemTypeFabric, "v4"),
	)
	o := deps.build()

	resp, err := o.CompleteTheLook(context.Background(), RelatedRequest{ItemIDs: []string{"g1", "g1", ""}, Limit: 10})
	require.NoError(t, err)

	ids := itemIDs(resp.Items)
	assert.ElementsMatch(t, []string{"g2", "a1", "f1"}, ids)

	scores := make(map[string]float64, len(resp.Items))
	for _, item := range resp.Items {
		scores[item.Item.ItemID] = item.Debug.VScore
	}
	assert.InDelta(t, 0.6, scores["g2"], 1e-9)
	assert.InDelta(t, 0.8, scores["a1"], 1e-9)
	assert.InDelta(t, 0.2, scores["f1"], 1e-9)

	_, err = o.CompleteTheLook(context.Background(), RelatedRequest{ItemIDs: []string{""}})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	resp, err = o.CompleteTheLook(context.Background(), RelatedRequest{ItemIDs: []string{"missing"}})
	require.NoError(t, err)
	assert.Empty(t, resp.Items)
}

func TestGroupByVendor(t *testing.T) {
	ranked := []models.RankedItem{
		{Item: models.CatalogItem{ItemID: "b1", VendorID: "vb"}, FinalScore: 0.5, Debug: models.ScoringDebug{VendorQualityScore: 0.8}},
		{Item: models.CatalogItem{ItemID: "a1", VendorID: "va"}, FinalScore: 0.5, Debug: models.ScoringDebug{VendorQualityScore: 0.8}},
		{Item: models.CatalogItem{ItemID: "none"}, FinalScore: 0.9},
	}

	groups := groupByVendor(ranked, 3, nil)

	vendors := make([]string, len(groups))
	for i, g := range groups {
		vendors[i] = g.VendorID
	}
	assert.Equal(t, []string{"va", "vb"}, vendors)
	assert.InDelta(t, 0.7*0.5+0.3*0.8, groups[0].VendorScore, 1e-9)
}

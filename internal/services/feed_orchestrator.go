package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/qlozet/stylefeed/internal/config"
	"github.com/qlozet/stylefeed/pkg/models"
)

const (
	relatedVendorWeight   = 0.4
	relatedTagWeight      = 0.6
	coPurchaseBonus       = 0.05
	coPurchaseBonusCap    = 0.2
	complementaryTypeBump = 0.2

	vendorProductWeight = 0.7
	vendorQualityWeight = 0.3
)

// FeedRequest drives the home and trending pipelines.
type FeedRequest struct {
	UserID         string
	SessionID      string
	Limit          int
	BudgetMax      *float64
	DeadlineDays   *int
	Category       string
	Gender         string
	DeliveryRegion string
	IncludeOOS     bool
}

// VendorFeedRequest asks for vendors ranked for a user, each with its top products.
type VendorFeedRequest struct {
	UserID            string
	SessionID         string
	Limit             int
	ProductsPerVendor int
	BudgetMax         *float64
}

// NewArrivalsRequest asks for items created within the last Days days.
type NewArrivalsRequest struct {
	Limit     int
	Days      int
	Category  string
	BudgetMax *float64
}

// RelatedRequest seeds the bought-together and complete-the-look pipelines.
// Bought-together uses only the first item id.
type RelatedRequest struct {
	ItemIDs   []string
	UserID    string
	Limit     int
	BudgetMax *float64
}

// userContext is what the pipelines know about the requesting user beyond
// their style vector.
type userContext struct {
	prefs   *models.StylePreferences
	events  []models.Event
	history HistoryProfile
}

// FeedOrchestrator composes retrieval, filtering, ranking, mixing and
// explanations into the named feed pipelines.
type FeedOrchestrator struct {
	profiles    *ProfileBuilder
	retriever   *Retriever
	vendorTrust *VendorTrustFetcher
	catalog     CatalogRepository
	events      EventLog
	prefs       ProfileStore
	graph       CoPurchaseGraph
	explainer   *ExplanationService
	metrics     *FeedMetrics
	config      config.FeedConfig
	logger      *logrus.Logger
	now         func() time.Time
}

// NewFeedOrchestrator fills unset feed settings with their defaults.
func NewFeedOrchestrator(
	profiles *ProfileBuilder,
	retriever *Retriever,
	vendorTrust *VendorTrustFetcher,
	catalog CatalogRepository,
	events EventLog,
	prefs ProfileStore,
	graph CoPurchaseGraph,
	explainer *ExplanationService,
	metrics *FeedMetrics,
	cfg config.FeedConfig,
	logger *logrus.Logger,
) *FeedOrchestrator {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 100
	}
	if cfg.NewArrivalsDays <= 0 {
		cfg.NewArrivalsDays = 14
	}
	if cfg.ProductsPerVendor <= 0 {
		cfg.ProductsPerVendor = 4
	}
	if cfg.Retrieval.CandidateMultiplier <= 0 {
		cfg.Retrieval.CandidateMultiplier = 3
	}
	if cfg.Retrieval.TrendingCap <= 0 {
		cfg.Retrieval.TrendingCap = 100
	}

	return &FeedOrchestrator{
		profiles:    profiles,
		retriever:   retriever,
		vendorTrust: vendorTrust,
		catalog:     catalog,
		events:      events,
		prefs:       prefs,
		graph:       graph,
		explainer:   explainer,
		metrics:     metrics,
		config:      cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// HomeFeed builds the personalised, type-mixed feed.
func (o *FeedOrchestrator) HomeFeed(ctx context.Context, req FeedRequest) (*models.FeedResponse, error) {
	start := time.Now()

	if req.UserID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	}
	limit, err := o.resolveLimit(req.Limit)
	if err != nil {
		return nil, err
	}

	events := o.recentEvents(ctx, req.UserID)
	profileVec, persisted, sessionVec := o.personalVectors(ctx, req.UserID, req.SessionID, events)
	styleVector := BlendVectors(profileVec, sessionVec, o.profiles.SessionAlpha())
	coldStart := DetermineColdStartLevel(persisted, sessionVec)

	pool := limit * o.config.Retrieval.CandidateMultiplier
	candidates := o.retriever.RetrieveCandidates(ctx, styleVector, pool, max(pool, o.config.Retrieval.NumCandidates))

	user := o.loadUserContext(ctx, req.UserID, events)
	spec := BuildFilterSpec(filterQuery(req), user.prefs, user.events)

	ranked, dropped, _ := o.filterAndRank(ctx, PipelineHome, candidates, spec, req.BudgetMax)

	garments, accessories, fabrics := SplitByType(ranked)
	items := MixCandidates(garments, accessories, fabrics, limit)
	o.explainer.Explain(items, user.history)

	resp := &models.FeedResponse{
		RequestID: uuid.NewString(),
		Items:     items,
		Debug: &models.FeedDebug{
			ColdStartLevel:   coldStart,
			UsedSessionBlend: sessionVec != nil,
			CandidateCount:   len(candidates),
			FilteredCount:    len(ranked),
			Dropped:          dropped,
			DurationMs:       time.Since(start).Milliseconds(),
		},
	}

	o.metrics.RecordColdStart(coldStart)
	o.metrics.ObserveFeed(PipelineHome, start, len(items), nil)

	o.logger.WithFields(logrus.Fields{
		"request_id":     resp.RequestID,
		"user_id":        req.UserID,
		"cold_start":     coldStart,
		"candidates":     len(candidates),
		"filtered":       len(ranked),
		"items":          len(items),
		"duration_ms":    resp.Debug.DurationMs,
		"session_blend":  sessionVec != nil,
		"dropped_counts": dropped.Total(),
	}).Info("Home feed generated")

	return resp, nil
}

// VendorFeed groups the personalised candidates by vendor and ranks vendors
// by 0.7 * mean product score + 0.3 * vendor quality.
func (o *FeedOrchestrator) VendorFeed(ctx context.Context, req VendorFeedRequest) (*models.VendorFeedResponse, error) {
	start := time.Now()

	if req.UserID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	}
	limit, err := o.resolveLimit(req.Limit)
	if err != nil {
		return nil, err
	}
	perVendor := req.ProductsPerVendor
	if perVendor < 0 {
		return nil, fmt.Errorf("%w: productsPerVendor must be positive", ErrInvalidRequest)
	}
	if perVendor == 0 {
		perVendor = o.config.ProductsPerVendor
	}

	events := o.recentEvents(ctx, req.UserID)
	profileVec, _, sessionVec := o.personalVectors(ctx, req.UserID, req.SessionID, events)
	styleVector := BlendVectors(profileVec, sessionVec, o.profiles.SessionAlpha())

	pool := min(limit*perVendor, o.config.MaxLimit) * o.config.Retrieval.CandidateMultiplier
	candidates := o.retriever.RetrieveCandidates(ctx, styleVector, pool, max(pool, o.config.Retrieval.NumCandidates))

	user := o.loadUserContext(ctx, req.UserID, events)
	spec := BuildFilterSpec(FilterQuery{BudgetMax: req.BudgetMax}, user.prefs, user.events)

	ranked, _, trust := o.filterAndRank(ctx, PipelineVendor, candidates, spec, req.BudgetMax)
	groups := groupByVendor(ranked, perVendor, trust)
	if len(groups) > limit {
		groups = groups[:limit]
	}
	for i := range groups {
		o.explainer.Explain(groups[i].Products, user.history)
	}

	o.metrics.ObserveFeed(PipelineVendor, start, len(groups), nil)

	return &models.VendorFeedResponse{
		RequestID: uuid.NewString(),
		Vendors:   groups,
	}, nil
}

// Trending ranks the recent catalog scan without personalisation.
func (o *FeedOrchestrator) Trending(ctx context.Context, req FeedRequest) (*models.FeedResponse, error) {
	start := time.Now()

	limit, err := o.resolveLimit(req.Limit)
	if err != nil {
		return nil, err
	}

	trending := o.retriever.Trending(ctx)
	candidates := make([]models.Candidate, 0, len(trending))
	for _, item := range trending {
		candidates = append(candidates, models.Candidate{Item: item, Source: models.SourceTrending})
	}

	spec := BuildFilterSpec(filterQuery(req), nil, nil)
	ranked, dropped, _ := o.filterAndRank(ctx, PipelineTrending, candidates, spec, req.BudgetMax)
	items := takeStream(ranked, limit, models.StreamTrending)
	o.explainer.Explain(items, HistoryProfile{})

	o.metrics.ObserveFeed(PipelineTrending, start, len(items), nil)

	return &models.FeedResponse{
		RequestID: uuid.NewString(),
		Items:     items,
		Debug: &models.FeedDebug{
			ColdStartLevel: models.ColdStartCold,
			CandidateCount: len(candidates),
			FilteredCount:  len(ranked),
			Dropped:        dropped,
			DurationMs:     time.Since(start).Milliseconds(),
		},
	}, nil
}

// NewArrivals keeps items created within the last req.Days days, orders them
// newest first and then ranks them. Equal scores keep the creation order.
func (o *FeedOrchestrator) NewArrivals(ctx context.Context, req NewArrivalsRequest) (*models.FeedResponse, error) {
	start := time.Now()

	limit, err := o.resolveLimit(req.Limit)
	if err != nil {
		return nil, err
	}
	days := req.Days
	if days < 0 {
		return nil, fmt.Errorf("%w: days must be positive", ErrInvalidRequest)
	}
	if days == 0 {
		days = o.config.NewArrivalsDays
	}

	scan := max(limit*o.config.Retrieval.CandidateMultiplier, o.config.Retrieval.TrendingCap)
	recent, err := o.catalog.FindRecent(ctx, scan)
	if err != nil {
		o.logger.WithError(err).Warn("Failed to scan recent catalog items")
		recent = nil
	}

	cutoff := o.now().AddDate(0, 0, -days)
	fresh := make([]models.CatalogItem, 0, len(recent))
	for _, item := range recent {
		if !item.CreatedAt.Before(cutoff) {
			fresh = append(fresh, item)
		}
	}
	sort.SliceStable(fresh, func(i, j int) bool {
		return fresh[i].CreatedAt.After(fresh[j].CreatedAt)
	})

	candidates := make([]models.Candidate, 0, len(fresh))
	for _, item := range fresh {
		candidates = append(candidates, models.Candidate{Item: item, Source: models.SourceRecent})
	}

	spec := BuildFilterSpec(FilterQuery{BudgetMax: req.BudgetMax, Category: req.Category}, nil, nil)
	ranked, dropped, _ := o.filterAndRank(ctx, PipelineNewArrivals, candidates, spec, req.BudgetMax)
	items := takeStream(ranked, limit, models.StreamNew)
	o.explainer.Explain(items, HistoryProfile{})

	o.metrics.ObserveFeed(PipelineNewArrivals, start, len(items), nil)

	return &models.FeedResponse{
		RequestID: uuid.NewString(),
		Items:     items,
		Debug: &models.FeedDebug{
			ColdStartLevel: models.ColdStartCold,
			CandidateCount: len(candidates),
			FilteredCount:  len(ranked),
			Dropped:        dropped,
			DurationMs:     time.Since(start).Milliseconds(),
		},
	}, nil
}

// BoughtTogether recommends items related to a single reference item by
// shared vendor, shared tags and co-purchase history.
func (o *FeedOrchestrator) BoughtTogether(ctx context.Context, req RelatedRequest) (*models.FeedResponse, error) {
	start := time.Now()

	if len(req.ItemIDs) == 0 || req.ItemIDs[0] == "" {
		return nil, fmt.Errorf("%w: itemId is required", ErrInvalidRequest)
	}
	limit, err := o.resolveLimit(req.Limit)
	if err != nil {
		return nil, err
	}

	ref, err := o.catalog.FindByID(ctx, req.ItemIDs[0])
	if err != nil {
		o.logger.WithError(err).WithField("item_id", req.ItemIDs[0]).Warn("Failed to load reference item")
	}
	if ref == nil {
		return o.emptyFeed(PipelineBoughtTogether, start), nil
	}

	refs := []models.CatalogItem{*ref}
	candidates := o.relatedCandidates(ctx, refs, ref.StyleVector(), false)

	user := o.loadUserContext(ctx, req.UserID, o.recentEvents(ctx, req.UserID))
	spec := BuildFilterSpec(FilterQuery{BudgetMax: req.BudgetMax}, user.prefs, user.events)
	ranked, dropped, _ := o.filterAndRank(ctx, PipelineBoughtTogether, candidates, spec, req.BudgetMax)
	items := takeStream(ranked, limit, models.StreamRelated)
	o.explainer.Explain(items, user.history)

	o.metrics.ObserveFeed(PipelineBoughtTogether, start, len(items), nil)

	return &models.FeedResponse{
		RequestID: uuid.NewString(),
		Items:     items,
		Debug: &models.FeedDebug{
			ColdStartLevel: models.ColdStartCold,
			CandidateCount: len(candidates),
			FilteredCount:  len(ranked),
			Dropped:        dropped,
			DurationMs:     time.Since(start).Milliseconds(),
		},
	}, nil
}

// CompleteTheLook assembles a mixed feed around one or more reference items,
// favouring item types the references do not already cover.
func (o *FeedOrchestrator) CompleteTheLook(ctx context.Context, req RelatedRequest) (*models.FeedResponse, error) {
	start := time.Now()

	ids := compactIDs(req.ItemIDs)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: itemIds is required", ErrInvalidRequest)
	}
	limit, err := o.resolveLimit(req.Limit)
	if err != nil {
		return nil, err
	}

	found, err := o.catalog.FindByIDs(ctx, ids)
	if err != nil {
		o.logger.WithError(err).WithField("item_ids", ids).Warn("Failed to load reference items")
	}
	refs := make([]models.CatalogItem, 0, len(ids))
	var seed styleAccumulator
	for _, id := range ids {
		item, ok := found[id]
		if !ok {
			continue
		}
		refs = append(refs, item)
		seed.add(item.StyleVector(), 1)
	}
	if len(refs) == 0 {
		return o.emptyFeed(PipelineCompleteLook, start), nil
	}

	candidates := o.relatedCandidates(ctx, refs, seed.vector(), true)

	user := o.loadUserContext(ctx, req.UserID, o.recentEvents(ctx, req.UserID))
	spec := BuildFilterSpec(FilterQuery{BudgetMax: req.BudgetMax}, user.prefs, user.events)
	ranked, dropped, _ := o.filterAndRank(ctx, PipelineCompleteLook, candidates, spec, req.BudgetMax)

	garments, accessories, fabrics := SplitByType(ranked)
	items := MixCandidates(garments, accessories, fabrics, limit)
	o.explainer.Explain(items, user.history)

	o.metrics.ObserveFeed(PipelineCompleteLook, start, len(items), nil)

	return &models.FeedResponse{
		RequestID: uuid.NewString(),
		Items:     items,
		Debug: &models.FeedDebug{
			ColdStartLevel: models.ColdStartCold,
			CandidateCount: len(candidates),
			FilteredCount:  len(ranked),
			Dropped:        dropped,
			DurationMs:     time.Since(start).Milliseconds(),
		},
	}, nil
}

func (o *FeedOrchestrator) resolveLimit(limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, fmt.Errorf("%w: limit must be positive", ErrInvalidRequest)
	case limit == 0:
		return o.config.DefaultLimit, nil
	case limit > o.config.MaxLimit:
		return o.config.MaxLimit, nil
	default:
		return limit, nil
	}
}

// recentEvents returns the request's shared loader for the user's events.
func (o *FeedOrchestrator) recentEvents(ctx context.Context, userID string) eventsLoader {
	return newEventsLoader(ctx, o.events, userID, o.profiles.config.EventLimit)
}

// personalVectors computes the profile and session vectors concurrently.
// Either may be nil; failures only cost personalisation. persisted reports
// whether a stored profile backs the profile vector.
func (o *FeedOrchestrator) personalVectors(ctx context.Context, userID, sessionID string, events eventsLoader) (profile []float32, persisted bool, session []float32) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		v, found, err := o.profiles.profileVector(gctx, userID, events)
		if err != nil {
			o.logger.WithError(err).WithField("user_id", userID).Warn("Profile vector unavailable")
			return nil
		}
		profile, persisted = v, found
		return nil
	})

	if sessionID != "" {
		g.Go(func() error {
			v, err := o.profiles.sessionStyleVector(gctx, sessionID, 0, events)
			if err != nil {
				o.logger.WithError(err).WithFields(logrus.Fields{
					"user_id":    userID,
					"session_id": sessionID,
				}).Warn("Session vector unavailable")
				return nil
			}
			session = v
			return nil
		})
	}

	_ = g.Wait()
	return profile, persisted, session
}

func (o *FeedOrchestrator) loadUserContext(ctx context.Context, userID string, loadEvents eventsLoader) userContext {
	var uc userContext
	if userID == "" {
		return uc
	}

	if o.prefs != nil {
		prefs, err := o.prefs.GetPreferences(ctx, userID)
		if err != nil {
			o.logger.WithError(err).WithField("user_id", userID).Warn("Failed to load style preferences")
		}
		uc.prefs = prefs
	}

	events, err := loadEvents()
	if err != nil {
		o.logger.WithError(err).WithField("user_id", userID).Warn("Failed to load recent events")
		return uc
	}
	uc.events = events

	ids := make([]string, 0, len(events))
	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e.ItemID == "" || EventWeight(e.EventType) <= 0 {
			continue
		}
		if _, dup := seen[e.ItemID]; dup {
			continue
		}
		seen[e.ItemID] = struct{}{}
		ids = append(ids, e.ItemID)
	}
	if len(ids) == 0 {
		return uc
	}

	found, err := o.catalog.FindByIDs(ctx, ids)
	if err != nil {
		o.logger.WithError(err).WithField("user_id", userID).Warn("Failed to load history items")
		return uc
	}
	history := make([]models.CatalogItem, 0, len(ids))
	for _, id := range ids {
		if item, ok := found[id]; ok {
			history = append(history, item)
		}
	}
	uc.history = NewHistoryProfile(history)

	return uc
}

// filterAndRank fetches trust for the candidates' vendors, applies the hard
// filters and ranks the survivors. The trust map is returned for callers
// that aggregate per vendor.
func (o *FeedOrchestrator) filterAndRank(
	ctx context.Context,
	pipeline string,
	candidates []models.Candidate,
	spec models.FilterSpec,
	budgetMax *float64,
) ([]models.RankedItem, models.DropCounts, models.VendorTrustMap) {
	trust := o.vendorTrust.FetchTrust(ctx, DistinctVendors(candidates))

	kept, dropped := ApplyHardFilters(candidates, spec, trust)
	o.metrics.RecordDrops(pipeline, dropped)

	ranked := RankCandidates(kept, RankingContext{BudgetMax: budgetMax, VendorTrust: trust})
	return ranked, dropped, trust
}

// relatedCandidates scores a similarity pool plus co-purchased items against
// the reference items. Only candidates with a positive score survive and the
// score becomes their vScore.
func (o *FeedOrchestrator) relatedCandidates(ctx context.Context, refs []models.CatalogItem, seed []float32, complementary bool) []models.Candidate {
	poolSize := o.config.Retrieval.TrendingCap

	refIDs := make([]string, 0, len(refs))
	exclude := make(map[string]struct{}, len(refs))
	refTags := make(map[string]struct{})
	refVendors := make(map[string]struct{})
	refTypes := make(map[models.ItemType]struct{})
	for i := range refs {
		refIDs = append(refIDs, refs[i].ItemID)
		exclude[refs[i].ItemID] = struct{}{}
		for tag := range tagSet(refs[i].Tags) {
			refTags[tag] = struct{}{}
		}
		if refs[i].VendorID != "" {
			refVendors[refs[i].VendorID] = struct{}{}
		}
		refTypes[refs[i].Type] = struct{}{}
	}

	set := newCandidateSet(poolSize)
	for _, c := range o.retriever.RetrieveCandidates(ctx, seed, poolSize, max(poolSize, o.config.Retrieval.NumCandidates)) {
		set.add(c)
	}

	var coCounts map[string]int
	if o.graph != nil {
		counts, err := o.graph.CoPurchased(ctx, refIDs, poolSize)
		if err != nil {
			o.logger.WithError(err).WithField("item_ids", refIDs).Warn("Co-purchase lookup failed")
		} else {
			coCounts = counts
		}
	}
	if missing := missingIDs(coCounts, set.byID); len(missing) > 0 {
		found, err := o.catalog.FindByIDs(ctx, missing)
		if err != nil {
			o.logger.WithError(err).Warn("Failed to load co-purchased items")
		}
		for _, id := range missing {
			if item, ok := found[id]; ok {
				set.add(models.Candidate{Item: item, Source: models.SourceRelated})
			}
		}
	}

	out := make([]models.Candidate, 0, set.len())
	for _, c := range set.list(-1) {
		if _, isRef := exclude[c.Item.ItemID]; isRef {
			continue
		}

		score := relatedScore(c.Item, refTags, refVendors, coCounts[c.Item.ItemID])
		if complementary {
			if _, covered := refTypes[c.Item.Type]; !covered {
				score += complementaryTypeBump
			}
		}
		if score <= 0 {
			continue
		}
		score = min(score, 1)

		c.Similarity = &score
		c.Source = models.SourceRelated
		out = append(out, c)
	}

	return out
}

// relatedScore is 0.4 for a shared vendor, plus 0.6 times the share of the
// reference tags the item carries, plus 0.05 per co-purchase up to 0.2.
func relatedScore(item models.CatalogItem, refTags map[string]struct{}, refVendors map[string]struct{}, coPurchases int) float64 {
	score := 0.0
	if _, ok := refVendors[item.VendorID]; ok && item.VendorID != "" {
		score += relatedVendorWeight
	}
	if len(refTags) > 0 {
		overlap := 0
		for tag := range tagSet(item.Tags) {
			if _, ok := refTags[tag]; ok {
				overlap++
			}
		}
		score += relatedTagWeight * float64(overlap) / float64(len(refTags))
	}
	if coPurchases > 0 {
		score += min(coPurchaseBonus*float64(coPurchases), coPurchaseBonusCap)
	}
	return score
}

// groupByVendor keeps each vendor's products in rank order. Ties between
// vendor scores fall back to vendor id.
func groupByVendor(ranked []models.RankedItem, perVendor int, trust models.VendorTrustMap) []models.VendorGroup {
	var order []string
	products := make(map[string][]models.RankedItem)
	for _, item := range ranked {
		vendor := item.Item.VendorID
		if vendor == "" {
			continue
		}
		if _, ok := products[vendor]; !ok {
			order = append(order, vendor)
		}
		if len(products[vendor]) < perVendor {
			products[vendor] = append(products[vendor], item)
		}
	}

	groups := make([]models.VendorGroup, 0, len(order))
	for _, vendor := range order {
		top := products[vendor]

		sum := 0.0
		for _, p := range top {
			sum += p.FinalScore
		}
		avg := sum / float64(len(top))

		quality := top[0].Debug.VendorQualityScore
		if record, ok := trust[vendor]; ok && record != nil {
			quality = record.SuccessRate / 100
		}

		groups = append(groups, models.VendorGroup{
			VendorID:    vendor,
			VendorScore: vendorProductWeight*avg + vendorQualityWeight*quality,
			Products:    top,
		})
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].VendorScore != groups[j].VendorScore {
			return groups[i].VendorScore > groups[j].VendorScore
		}
		return groups[i].VendorID < groups[j].VendorID
	})

	return groups
}

func (o *FeedOrchestrator) emptyFeed(pipeline string, start time.Time) *models.FeedResponse {
	o.metrics.ObserveFeed(pipeline, start, 0, nil)
	return &models.FeedResponse{
		RequestID: uuid.NewString(),
		Items:     []models.RankedItem{},
		Debug: &models.FeedDebug{
			ColdStartLevel: models.ColdStartCold,
			DurationMs:     time.Since(start).Milliseconds(),
		},
	}
}

func takeStream(ranked []models.RankedItem, limit int, stream models.Stream) []models.RankedItem {
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	items := make([]models.RankedItem, len(ranked))
	for i := range ranked {
		items[i] = ranked[i]
		items[i].Stream = stream
	}
	return items
}

func filterQuery(req FeedRequest) FilterQuery {
	return FilterQuery{
		BudgetMax:      req.BudgetMax,
		DeadlineDays:   req.DeadlineDays,
		DeliveryRegion: req.DeliveryRegion,
		Gender:         req.Gender,
		Category:       req.Category,
		IncludeOOS:     req.IncludeOOS,
	}
}

func compactIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func missingIDs(counts map[string]int, present map[string]models.Candidate) []string {
	var missing []string
	for id := range counts {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	return missing
}

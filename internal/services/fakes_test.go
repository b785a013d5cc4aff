package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qlozet/stylefeed/pkg/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

type fakeCatalog struct {
	mu      sync.Mutex
	items   []models.CatalogItem
	patches map[string]models.CatalogPatch
	err     error
}

func newFakeCatalog(items ...models.CatalogItem) *fakeCatalog {
	return &fakeCatalog{items: items, patches: make(map[string]models.CatalogPatch)}
}

func (f *fakeCatalog) FindAll(_ context.Context, limit int) ([]models.CatalogItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && limit < len(f.items) {
		return append([]models.CatalogItem(nil), f.items[:limit]...), nil
	}
	return append([]models.CatalogItem(nil), f.items...), nil
}

// FindRecent returns items newest first by CreatedAt.
func (f *fakeCatalog) FindRecent(_ context.Context, limit int) ([]models.CatalogItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := append([]models.CatalogItem(nil), f.items...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeCatalog) FindByID(_ context.Context, id string) (*models.CatalogItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.items {
		if f.items[i].ItemID == id {
			item := f.items[i]
			return &item, nil
		}
	}
	return nil, nil
}

func (f *fakeCatalog) FindByIDs(_ context.Context, ids []string) (map[string]models.CatalogItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]models.CatalogItem)
	for _, id := range ids {
		for i := range f.items {
			if f.items[i].ItemID == id {
				out[id] = f.items[i]
			}
		}
	}
	return out, nil
}

func (f *fakeCatalog) Update(_ context.Context, id string, patch models.CatalogPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.patches[id] = patch
	return nil
}

type fakeEventLog struct {
	mu     sync.Mutex
	events []models.Event
	logged []models.Event
	reads  int
	err    error
}

func (f *fakeEventLog) LogEvent(_ context.Context, event *models.Event) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.logged = append(f.logged, *event)
	stored := *event
	return &stored, nil
}

func (f *fakeEventLog) GetRecentEvents(_ context.Context, userID string, limit int, since *time.Time) ([]models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Event
	for _, e := range f.events {
		if e.UserID != userID {
			continue
		}
		if since != nil && e.Timestamp.Before(*since) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeProfileStore struct {
	mu         sync.Mutex
	embeddings map[string]*models.UserEmbedding
	prefs      map[string]*models.StylePreferences
	upserts    int
	err        error
	upsertErr  error
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{
		embeddings: make(map[string]*models.UserEmbedding),
		prefs:      make(map[string]*models.StylePreferences),
	}
}

func (f *fakeProfileStore) GetUserEmbedding(_ context.Context, userID string) (*models.UserEmbedding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.embeddings[userID], nil
}

func (f *fakeProfileStore) UpsertUserEmbedding(_ context.Context, embedding *models.UserEmbedding) (*models.UserEmbedding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	f.upserts++
	stored := *embedding
	if prev, ok := f.embeddings[embedding.UserID]; ok {
		stored.Version = prev.Version + 1
	} else {
		stored.Version = 1
	}
	f.embeddings[embedding.UserID] = &stored
	return &stored, nil
}

func (f *fakeProfileStore) GetPreferences(_ context.Context, userID string) (*models.StylePreferences, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.prefs[userID], nil
}

// fakeEmbedder answers from a fixed table and errors for anything else.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	calls   []string
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0}, nil
}

type fakeSearcher struct {
	results []models.Candidate
	err     error
	calls   int
}

func (f *fakeSearcher) Search(_ context.Context, _ []float32, limit, _ int) ([]models.Candidate, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && limit < len(f.results) {
		return append([]models.Candidate(nil), f.results[:limit]...), nil
	}
	return append([]models.Candidate(nil), f.results...), nil
}

type fakeVendorService struct {
	records map[string]*models.VendorTrustRecord
}

func (f *fakeVendorService) FindOne(_ context.Context, vendorID string) (*models.VendorTrustRecord, error) {
	return f.records[vendorID], nil
}

type fakeGraph struct {
	mu        sync.Mutex
	counts    map[string]int
	purchases []string
	err       error
}

func (f *fakeGraph) CoPurchased(_ context.Context, _ []string, _ int) (map[string]int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.counts, nil
}

func (f *fakeGraph) RecordPurchase(_ context.Context, userID, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purchases = append(f.purchases, userID+":"+itemID)
	return f.err
}

type fakePublisher struct {
	mu        sync.Mutex
	published []models.Event
	err       error
}

func (f *fakePublisher) PublishEvent(_ context.Context, event *models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, *event)
	return nil
}

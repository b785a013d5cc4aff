package services

import (
	"context"
	"errors"
	"time"

	"github.com/qlozet/stylefeed/pkg/models"
)

var (
	// ErrInvalidRequest marks request input rejected at the orchestrator boundary.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrEmbeddingsDisabled is returned when no embedding provider is configured.
	ErrEmbeddingsDisabled = errors.New("embedding provider not configured")

	errStoreNotConfigured = errors.New("store not configured")
)

// CatalogRepository reads and patches catalog items. Lookups of unknown ids
// return nil without an error.
type CatalogRepository interface {
	FindAll(ctx context.Context, limit int) ([]models.CatalogItem, error)
	FindRecent(ctx context.Context, limit int) ([]models.CatalogItem, error)
	FindByID(ctx context.Context, id string) (*models.CatalogItem, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]models.CatalogItem, error)
	Update(ctx context.Context, id string, patch models.CatalogPatch) error
}

// EventLog is the append-only behavioural event store. GetRecentEvents
// returns newest first.
type EventLog interface {
	LogEvent(ctx context.Context, event *models.Event) (*models.Event, error)
	GetRecentEvents(ctx context.Context, userID string, limit int, since *time.Time) ([]models.Event, error)
}

// ProfileStore persists user embeddings and reads explicit style preferences.
type ProfileStore interface {
	GetUserEmbedding(ctx context.Context, userID string) (*models.UserEmbedding, error)
	UpsertUserEmbedding(ctx context.Context, embedding *models.UserEmbedding) (*models.UserEmbedding, error)
	GetPreferences(ctx context.Context, userID string) (*models.StylePreferences, error)
}

// EmbeddingProvider turns free text into a style vector.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VendorTrustService looks up one vendor. A nil record means unknown.
type VendorTrustService interface {
	FindOne(ctx context.Context, vendorID string) (*models.VendorTrustRecord, error)
}

// VectorSearcher returns up to limit nearest items to vector, considering
// numCandidates items before the final cut.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, limit, numCandidates int) ([]models.Candidate, error)
}

// CoPurchaseGraph counts buyers shared between the given items and others.
type CoPurchaseGraph interface {
	CoPurchased(ctx context.Context, itemIDs []string, limit int) (map[string]int, error)
	RecordPurchase(ctx context.Context, userID, itemID string) error
}

// EventPublisher forwards logged events to the bus.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *models.Event) error
}

// EventConsumer delivers events from the bus to handle until ctx ends.
type EventConsumer interface {
	Consume(ctx context.Context, handle func(context.Context, *models.Event) error) error
}

// FeedOrchestratorInterface is the surface consumed by the HTTP handlers.
type FeedOrchestratorInterface interface {
	HomeFeed(ctx context.Context, req FeedRequest) (*models.FeedResponse, error)
	VendorFeed(ctx context.Context, req VendorFeedRequest) (*models.VendorFeedResponse, error)
	Trending(ctx context.Context, req FeedRequest) (*models.FeedResponse, error)
	NewArrivals(ctx context.Context, req NewArrivalsRequest) (*models.FeedResponse, error)
	BoughtTogether(ctx context.Context, req RelatedRequest) (*models.FeedResponse, error)
	CompleteTheLook(ctx context.Context, req RelatedRequest) (*models.FeedResponse, error)
}

// EvaluatorInterface is the evaluation surface used by handlers.
type EvaluatorInterface interface {
	EvaluateUser(ctx context.Context, req models.EvaluateRequest) (*models.EvaluationMetrics, error)
}

// EventServiceInterface is the ingestion surface used by handlers.
type EventServiceInterface interface {
	LogEvent(ctx context.Context, event *models.Event) (*models.Event, error)
}

// ProfileRecomputer rebuilds and persists one user's profile.
type ProfileRecomputer interface {
	ComputeUserStyleVector(ctx context.Context, userID string) (*models.UserEmbedding, error)
}

package services

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/qlozet/stylefeed/internal/config"
	"github.com/qlozet/stylefeed/internal/database"
	"github.com/qlozet/stylefeed/internal/messaging"
	"github.com/qlozet/stylefeed/internal/ml"
	"github.com/qlozet/stylefeed/internal/repository"
	"github.com/qlozet/stylefeed/internal/search"
)

type Services struct {
	Auth         *AuthService
	Health       *HealthService
	RateLimit    *RateLimitService
	Metrics      *FeedMetrics
	EventBus     *messaging.EventBus
	LocalIndex   *search.LocalIndex
	Catalog      *repository.CatalogRepository
	Profiles     *ProfileBuilder
	Orchestrator *FeedOrchestrator
	Evaluator    *Evaluator
	Events       *EventService
	Refresher    *ProfileRefresher
	Embedder     *CatalogEmbedder
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database, reg prometheus.Registerer) (*Services, error) {
	metrics := NewFeedMetrics(reg)

	catalogRepo := repository.NewCatalogRepository(db.PG, logger)
	eventRepo := repository.NewEventRepository(db.PG)
	profileRepo := repository.NewProfileRepository(db.PG, db.Redis.Hot, cfg.Feed.Caching.ProfileTTL, logger)
	vendorRepo := repository.NewVendorTrustRepository(db.PG, db.Redis.Warm, cfg.Feed.Caching.VendorTrustTTL, logger)
	graph := repository.NewCoPurchaseGraph(db.Neo4j, logger)

	// Without an API key explicit preferences are not embedded and profiles
	// are built from behaviour alone.
	var embedder EmbeddingProvider
	if cfg.Embedding.APIKey != "" {
		embedder = ml.NewEmbeddingClient(cfg.Embedding, db.Redis.Cold, cfg.Feed.Caching.EmbeddingTTL, logger)
	} else {
		logger.Warn("Embedding provider not configured, explicit preferences ignored")
	}

	searcher, localIndex, err := search.New(cfg.Feed.Retrieval, catalogRepo, cfg.Embedding.Dimensions, metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector search: %w", err)
	}

	retriever := NewRetriever(searcher, catalogRepo, db.Redis.Warm, cfg.Feed.Retrieval, cfg.Feed.Caching.TrendingTTL, metrics, logger)
	profiles := NewProfileBuilder(catalogRepo, eventRepo, profileRepo, embedder, cfg.Feed.Profile, logger)
	vendorTrust := NewVendorTrustFetcher(vendorRepo, cfg.Feed.Vendors, logger)
	explainer := NewExplanationService(logger)

	orchestrator := NewFeedOrchestrator(
		profiles, retriever, vendorTrust, catalogRepo, eventRepo, profileRepo, graph,
		explainer, metrics, cfg.Feed, logger,
	)
	evaluator := NewEvaluator(catalogRepo, eventRepo, logger)

	var (
		bus       *messaging.EventBus
		publisher EventPublisher
		refresher *ProfileRefresher
	)
	if cfg.Kafka.Enabled {
		bus, err = messaging.NewEventBus(cfg.Kafka, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize event bus: %w", err)
		}
		publisher = bus
		refresher = NewProfileRefresher(bus, profiles, logger)
	}

	eventService := NewEventService(eventRepo, publisher, graph, NewEventCounters(cfg.Logging.EventLogEvery), metrics, logger)

	var indexer ItemIndexer
	if localIndex != nil {
		indexer = localIndex
	}

	health := NewHealthService(reg, logger, db)
	if bus != nil {
		health.WatchConsumer(bus)
	}

	return &Services{
		Auth:         NewAuthService(cfg.Auth, logger, db.Redis.Hot),
		Health:       health,
		RateLimit:    NewRateLimitService(cfg.Auth.RateLimit, logger, db.Redis.Hot),
		Metrics:      metrics,
		EventBus:     bus,
		LocalIndex:   localIndex,
		Catalog:      catalogRepo,
		Profiles:     profiles,
		Orchestrator: orchestrator,
		Evaluator:    evaluator,
		Events:       eventService,
		Refresher:    refresher,
		Embedder:     NewCatalogEmbedder(catalogRepo, embedder, indexer, logger),
	}, nil
}

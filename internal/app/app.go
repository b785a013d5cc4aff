package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/qlozet/stylefeed/internal/config"
	"github.com/qlozet/stylefeed/internal/database"
	"github.com/qlozet/stylefeed/internal/handlers"
	"github.com/qlozet/stylefeed/internal/middleware"
	"github.com/qlozet/stylefeed/internal/services"
	"github.com/qlozet/stylefeed/internal/validation"
)

type App struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	registry *prometheus.Registry
	services *services.Services
	handlers *handlers.Handlers
	router   *gin.Engine

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config:   cfg,
		logger:   setupLogger(cfg),
		registry: prometheus.NewRegistry(),
	}
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	db, err := database.Connect(context.Background(), cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	svc, err := services.New(cfg, app.logger, db, app.registry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = svc

	app.handlers = handlers.New(app.logger, svc)

	schemas, err := validation.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load request schemas: %w", err)
	}
	app.setupRouter(schemas)

	return app, nil
}

func (a *App) Logger() *logrus.Logger {
	return a.logger
}

func (a *App) Router() *gin.Engine {
	return a.router
}

// Start launches the background workers: health collectors, the local
// vector index warm-up and the profile refresher.
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)

	a.services.Health.Start(ctx)

	if index := a.services.LocalIndex; index != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			n, err := index.Warm(ctx, a.services.Catalog, a.config.Feed.Retrieval.LocalIndexSize)
			if err != nil {
				a.logger.WithError(err).Error("Failed to warm local vector index")
				return
			}
			a.logger.WithField("items", n).Info("Local vector index warmed")
		}()
	}

	if refresher := a.services.Refresher; refresher != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := refresher.Run(ctx); err != nil {
				a.logger.WithError(err).Error("Profile refresher exited")
			}
		}()
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("Background workers did not stop before the shutdown deadline")
	}

	if bus := a.services.EventBus; bus != nil {
		if err := bus.Close(); err != nil {
			a.logger.WithError(err).Error("Error closing event bus")
		}
	}
	if index := a.services.LocalIndex; index != nil {
		if err := index.Close(); err != nil {
			a.logger.WithError(err).Error("Error closing local vector index")
		}
	}

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}

	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter(schemas *validation.Validator) {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config.Security.CORS))

	// Health check and metrics endpoints (no auth required)
	router.GET("/health", a.handlers.Health.Check)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	{
		if a.config.Auth.Enabled {
			api.Use(middleware.Auth(a.services.Auth, a.logger))
		}
		if a.config.Auth.RateLimit.Enabled {
			api.Use(middleware.RateLimit(a.services.RateLimit, a.logger))
		}

		recommend := api.Group("/recommend")
		{
			recommend.GET("/feed", a.handlers.Recommendation.Feed)
			recommend.GET("/vendors", a.handlers.Recommendation.Vendors)
			recommend.GET("/trending", a.handlers.Recommendation.Trending)
			recommend.GET("/new", a.handlers.Recommendation.NewArrivals)
			recommend.GET("/bought-together", a.handlers.Recommendation.BoughtTogether)
			recommend.GET("/complete-look", a.handlers.Recommendation.CompleteTheLook)
			recommend.POST("/evaluate", middleware.SchemaBody(schemas, validation.EvaluateRequest), a.handlers.Recommendation.Evaluate)
		}

		api.POST("/events", middleware.SchemaBody(schemas, validation.FeedEvent), a.handlers.Events.Record)
		api.POST("/users/:userId/profile/recompute", a.handlers.Profile.Recompute)

		admin := api.Group("/admin")
		{
			admin.POST("/embeddings/backfill", a.handlers.Admin.BackfillEmbeddings)
			admin.POST("/sessions", a.handlers.Admin.IssueSession)
			admin.DELETE("/sessions/:userId", a.handlers.Admin.RevokeSession)
		}
	}

	a.router = router
}

package services

import (
	"context"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/qlozet/stylefeed/internal/database"
)

const (
	healthCheckTimeout = 5 * time.Second
	poolStatsInterval  = 30 * time.Second
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

type HealthStatus struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Services    map[string]string `json:"services"`
	Critical    []string          `json:"critical_failures,omitempty"`
	NonCritical []string          `json:"non_critical_failures,omitempty"`
}

// probe is one dependency check. A failing critical probe makes the whole
// service unhealthy; any other failure only degrades it.
type probe struct {
	name     string
	critical bool
	check    func(ctx context.Context) error
}

type lagReporter interface {
	Lag() int64
}

type HealthService struct {
	db       *database.Database
	probes   []probe
	consumer lagReporter
	logger   *logrus.Logger

	up          *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
	poolConn    *prometheus.GaugeVec
	consumerLag prometheus.Gauge
}

func NewHealthService(reg prometheus.Registerer, logger *logrus.Logger, db *database.Database) *HealthService {
	factory := promauto.With(reg)
	s := &HealthService{
		db:     db,
		logger: logger,
		up: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "feed_dependency_up",
			Help: "Whether the last health probe of a dependency succeeded (1) or failed (0)",
		}, []string{"dependency"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "feed_dependency_probe_seconds",
			Help:    "Duration of dependency health probes",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"dependency"}),
		poolConn: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "postgres_pool_connections",
			Help: "Postgres pool connections by state",
		}, []string{"state"}),
		consumerLag: factory.NewGauge(prometheus.GaugeOpts{
			Name: "feed_event_consumer_lag",
			Help: "Feed events not yet read by the profile refresher",
		}),
	}
	s.probes = s.storeProbes()
	return s
}

func (s *HealthService) storeProbes() []probe {
	probes := []probe{{name: "postgresql", critical: true, check: func(ctx context.Context) error {
		if s.db == nil || s.db.PG == nil {
			return errStoreNotConfigured
		}
		return s.db.PG.Ping(ctx)
	}}}

	var redisTiers database.RedisClients
	if s.db != nil && s.db.Redis != nil {
		redisTiers = *s.db.Redis
	}
	probes = append(probes, probe{name: "redis_hot", critical: true, check: pingRedis(redisTiers.Hot)})
	// Tiers sharing the hot client are already covered.
	if redisTiers.Warm != nil && redisTiers.Warm != redisTiers.Hot {
		probes = append(probes, probe{name: "redis_warm", check: pingRedis(redisTiers.Warm)})
	}
	if redisTiers.Cold != nil && redisTiers.Cold != redisTiers.Hot {
		probes = append(probes, probe{name: "redis_cold", check: pingRedis(redisTiers.Cold)})
	}

	if s.db != nil && s.db.Neo4j != nil {
		driver := s.db.Neo4j
		probes = append(probes, probe{name: "neo4j", check: driver.VerifyConnectivity})
	}
	return probes
}

func pingRedis(client *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if client == nil {
			return errStoreNotConfigured
		}
		return client.Ping(ctx).Err()
	}
}

// WatchConsumer exports the lag of the event stream consumer.
func (s *HealthService) WatchConsumer(consumer lagReporter) {
	s.consumer = consumer
}

// Start exports pool and consumer statistics until ctx is cancelled.
func (s *HealthService) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(poolStatsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.collect()
			}
		}
	}()
}

func (s *HealthService) collect() {
	if s.db != nil && s.db.PG != nil {
		s.recordPoolStats(s.db.PG.Stat())
	}
	if s.consumer != nil {
		if lag := s.consumer.Lag(); lag >= 0 {
			s.consumerLag.Set(float64(lag))
		}
	}
}

func (s *HealthService) recordPoolStats(stats *pgxpool.Stat) {
	s.poolConn.WithLabelValues("acquired").Set(float64(stats.AcquiredConns()))
	s.poolConn.WithLabelValues("idle").Set(float64(stats.IdleConns()))
	s.poolConn.WithLabelValues("total").Set(float64(stats.TotalConns()))
	s.poolConn.WithLabelValues("max").Set(float64(stats.MaxConns()))
}

// CheckHealth runs every probe concurrently, each under its own timeout.
func (s *HealthService) CheckHealth(ctx context.Context) *HealthStatus {
	errs := make([]error, len(s.probes))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range s.probes {
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(gctx, healthCheckTimeout)
			defer cancel()

			start := time.Now()
			errs[i] = p.check(probeCtx)
			s.latency.WithLabelValues(p.name).Observe(time.Since(start).Seconds())
			return nil
		})
	}
	_ = g.Wait()

	status := &HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Services:  make(map[string]string, len(s.probes)),
	}
	for i, p := range s.probes {
		if errs[i] == nil {
			status.Services[p.name] = StatusHealthy
			s.up.WithLabelValues(p.name).Set(1)
			continue
		}

		status.Services[p.name] = StatusUnhealthy
		s.up.WithLabelValues(p.name).Set(0)
		entry := s.logger.WithError(errs[i]).WithField("dependency", p.name)
		if p.critical {
			status.Critical = append(status.Critical, p.name)
			entry.Error("Critical dependency is unhealthy")
		} else {
			status.NonCritical = append(status.NonCritical, p.name)
			entry.Warn("Dependency is unhealthy")
		}
	}
	sort.Strings(status.Critical)
	sort.Strings(status.NonCritical)

	switch {
	case len(status.Critical) > 0:
		status.Status = StatusUnhealthy
	case len(status.NonCritical) > 0:
		status.Status = StatusDegraded
	}
	return status
}

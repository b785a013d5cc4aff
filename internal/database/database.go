// Package database opens the stores the feed reads from: the Postgres
// catalog, the tiered Redis caches and the optional Neo4j purchase graph.
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/qlozet/stylefeed/internal/config"
)

const connectTimeout = 10 * time.Second

type Database struct {
	PG    *pgxpool.Pool
	Neo4j neo4j.DriverWithContext
	Redis *RedisClients

	closers []closer
	logger  *logrus.Logger
}

type closer struct {
	name  string
	close func(context.Context) error
}

// RedisClients splits cached data by access pattern. Hot holds sessions,
// profiles and rate limits. Warm holds vendor trust and trending lists.
// Cold holds text embeddings. A tier without its own URL shares Hot.
type RedisClients struct {
	Hot  *redis.Client
	Warm *redis.Client
	Cold *redis.Client
}

// Connect opens every configured store and pings it. Postgres and the hot
// Redis tier are required; Neo4j failures only disable co-purchase signals.
func Connect(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Database, error) {
	db := &Database{logger: logger}

	if err := db.connectPostgres(ctx, cfg.Database); err != nil {
		return nil, errors.Join(err, db.Close())
	}
	if err := db.connectRedis(ctx, cfg.Redis); err != nil {
		return nil, errors.Join(err, db.Close())
	}
	if cfg.Neo4j.Enabled {
		if err := db.connectNeo4j(ctx, cfg.Neo4j); err != nil {
			logger.WithError(err).Warn("Neo4j unavailable, co-purchase signals disabled")
		}
	}

	return db, nil
}

func (db *Database) connectPostgres(ctx context.Context, cfg config.DatabaseConfig) error {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return fmt.Errorf("invalid postgres url: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConnections)
	poolCfg.MaxConnIdleTime = cfg.MaxIdleTime
	poolCfg.MaxConnLifetime = cfg.MaxLifetime
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("failed to open postgres pool: %w", err)
	}
	db.track("postgres", func(context.Context) error { pool.Close(); return nil })

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}

	db.PG = pool
	db.logger.WithField("max_conns", poolCfg.MaxConns).Info("PostgreSQL connected")
	return nil
}

func (db *Database) connectRedis(ctx context.Context, cfg config.RedisConfig) error {
	hot, err := db.openRedis(ctx, "hot", cfg.Hot)
	if err != nil {
		return err
	}
	db.Redis = &RedisClients{Hot: hot, Warm: hot, Cold: hot}

	for _, tier := range []struct {
		name   string
		cfg    config.RedisInstanceConfig
		target **redis.Client
	}{
		{"warm", cfg.Warm, &db.Redis.Warm},
		{"cold", cfg.Cold, &db.Redis.Cold},
	} {
		if tier.cfg.URL == "" || tier.cfg.URL == cfg.Hot.URL {
			continue
		}
		client, err := db.openRedis(ctx, tier.name, tier.cfg)
		if err != nil {
			return err
		}
		*tier.target = client
	}
	return nil
}

func (db *Database) openRedis(ctx context.Context, tier string, cfg config.RedisInstanceConfig) (*redis.Client, error) {
	opts, err := RedisOptions(cfg)
	if err != nil {
		return nil, fmt.Errorf("redis %s: %w", tier, err)
	}
	client := redis.NewClient(opts)
	db.track("redis "+tier, func(context.Context) error { return client.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis %s ping: %w", tier, err)
	}

	db.logger.WithField("tier", tier).Info("Redis connected")
	return client, nil
}

// RedisOptions accepts either a redis:// URL or a bare host:port.
func RedisOptions(cfg config.RedisInstanceConfig) (*redis.Options, error) {
	var opts *redis.Options
	if strings.HasPrefix(cfg.URL, "redis://") || strings.HasPrefix(cfg.URL, "rediss://") {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid url: %w", err)
		}
		opts = parsed
	} else {
		if cfg.URL == "" {
			return nil, errors.New("address is empty")
		}
		opts = &redis.Options{Addr: cfg.URL}
	}

	if cfg.MaxRetries != 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.Timeout > 0 {
		opts.ReadTimeout = cfg.Timeout
		opts.WriteTimeout = cfg.Timeout
	}
	return opts, nil
}

func (db *Database) connectNeo4j(ctx context.Context, cfg config.Neo4jConfig) error {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URL,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
		func(c *neo4j.Config) {
			c.MaxConnectionPoolSize = 10
			c.ConnectionAcquisitionTimeout = 5 * time.Second
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(verifyCtx)
		return fmt.Errorf("neo4j connectivity: %w", err)
	}

	db.Neo4j = driver
	db.track("neo4j", driver.Close)
	db.logger.Info("Neo4j connected")
	return nil
}

func (db *Database) track(name string, fn func(context.Context) error) {
	db.closers = append(db.closers, closer{name: name, close: fn})
}

// Close releases connections in reverse order of opening.
func (db *Database) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	var errs []error
	for i := len(db.closers) - 1; i >= 0; i-- {
		c := db.closers[i]
		if err := c.close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	db.closers = nil

	if len(errs) == 0 {
		db.logger.Debug("Database connections closed")
	}
	return errors.Join(errs...)
}

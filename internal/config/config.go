package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Neo4j     Neo4jConfig     `mapstructure:"neo4j"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Security  SecurityConfig  `mapstructure:"security"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	Hot  RedisInstanceConfig `mapstructure:"hot"`
	Warm RedisInstanceConfig `mapstructure:"warm"`
	Cold RedisInstanceConfig `mapstructure:"cold"`
}

type RedisInstanceConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type Neo4jConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		FeedEvents string `mapstructure:"feed_events"`
	} `mapstructure:"topics"`
	ConsumerGroup string `mapstructure:"consumer_group"`
}

type AuthConfig struct {
	Enabled   bool              `mapstructure:"enabled"`
	JWTSecret string            `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration     `mapstructure:"token_ttl"`
	APIKeys   map[string]string `mapstructure:"api_keys"`
	RateLimit RateLimitConfig   `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Default int           `mapstructure:"default"`
	Premium int           `mapstructure:"premium"`
	Window  time.Duration `mapstructure:"window"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`

	// EventLogEvery logs one line per N events of the same type.
	EventLogEvery int64 `mapstructure:"event_log_every"`
}

type EmbeddingConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	Dimensions        int           `mapstructure:"dimensions"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

type FeedConfig struct {
	DefaultLimit      int             `mapstructure:"default_limit"`
	MaxLimit          int             `mapstructure:"max_limit"`
	NewArrivalsDays   int             `mapstructure:"new_arrivals_days"`
	ProductsPerVendor int             `mapstructure:"products_per_vendor"`
	Retrieval         RetrievalConfig `mapstructure:"retrieval"`
	Profile           ProfileConfig   `mapstructure:"profile"`
	Vendors           VendorConfig    `mapstructure:"vendors"`
	Caching           CachingConfig   `mapstructure:"caching"`
}

type RetrievalConfig struct {
	// Backend selects the nearest-neighbour implementation: "pgvector" or "local".
	Backend             string        `mapstructure:"backend"`
	NumCandidates       int           `mapstructure:"num_candidates"`
	CandidateMultiplier int           `mapstructure:"candidate_multiplier"`
	TrendingCap         int           `mapstructure:"trending_cap"`
	SearchTimeout       time.Duration `mapstructure:"search_timeout"`
	// LocalIndexSize bounds how many catalog items the local backend loads.
	LocalIndexSize      int           `mapstructure:"local_index_size"`
	Breaker             BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	MaxRequests         uint32        `mapstructure:"max_requests"`
	Interval            time.Duration `mapstructure:"interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
}

type ProfileConfig struct {
	EventLimit   int     `mapstructure:"event_limit"`
	DecayRate    float64 `mapstructure:"decay_rate"`
	SessionAlpha float64 `mapstructure:"session_alpha"`
	SessionLastN int     `mapstructure:"session_last_n"`
}

type VendorConfig struct {
	LookupTimeout     time.Duration `mapstructure:"lookup_timeout"`
	LookupConcurrency int           `mapstructure:"lookup_concurrency"`
}

type CachingConfig struct {
	TrendingTTL    time.Duration `mapstructure:"trending_ttl"`
	VendorTrustTTL time.Duration `mapstructure:"vendor_trust_ttl"`
	EmbeddingTTL   time.Duration `mapstructure:"embedding_ttl"`
	ProfileTTL     time.Duration `mapstructure:"profile_ttl"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	setDefaults(v)

	// Environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "development")

	// Database defaults
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.max_idle_time", "15m")
	v.SetDefault("database.max_lifetime", "1h")
	v.SetDefault("database.connect_timeout", "10s")

	// Redis defaults
	v.SetDefault("redis.hot.max_retries", 3)
	v.SetDefault("redis.hot.pool_size", 10)
	v.SetDefault("redis.hot.timeout", "5s")
	v.SetDefault("redis.warm.max_retries", 3)
	v.SetDefault("redis.warm.pool_size", 5)
	v.SetDefault("redis.warm.timeout", "10s")
	v.SetDefault("redis.cold.max_retries", 3)
	v.SetDefault("redis.cold.pool_size", 5)
	v.SetDefault("redis.cold.timeout", "15s")

	v.SetDefault("neo4j.enabled", true)

	// Kafka defaults
	v.SetDefault("kafka.enabled", true)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topics.feed_events", "feed-events")
	v.SetDefault("kafka.consumer_group", "profile-refreshers")

	// Auth defaults
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.rate_limit.enabled", false)
	v.SetDefault("auth.rate_limit.default", 1000)
	v.SetDefault("auth.rate_limit.premium", 10000)
	v.SetDefault("auth.rate_limit.window", "1h")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.event_log_every", 100)

	// Embedding provider defaults
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.timeout", "10s")
	v.SetDefault("embedding.requests_per_second", 20)
	v.SetDefault("embedding.burst", 5)

	// Feed defaults
	v.SetDefault("feed.default_limit", 20)
	v.SetDefault("feed.max_limit", 100)
	v.SetDefault("feed.new_arrivals_days", 14)
	v.SetDefault("feed.products_per_vendor", 4)

	v.SetDefault("feed.retrieval.backend", "pgvector")
	v.SetDefault("feed.retrieval.num_candidates", 200)
	v.SetDefault("feed.retrieval.candidate_multiplier", 3)
	v.SetDefault("feed.retrieval.trending_cap", 100)
	v.SetDefault("feed.retrieval.search_timeout", "800ms")
	v.SetDefault("feed.retrieval.local_index_size", 10000)
	v.SetDefault("feed.retrieval.breaker.max_requests", 1)
	v.SetDefault("feed.retrieval.breaker.interval", "60s")
	v.SetDefault("feed.retrieval.breaker.timeout", "30s")
	v.SetDefault("feed.retrieval.breaker.consecutive_failures", 5)

	v.SetDefault("feed.profile.event_limit", 100)
	v.SetDefault("feed.profile.decay_rate", 0.05)
	v.SetDefault("feed.profile.session_alpha", 0.7)
	v.SetDefault("feed.profile.session_last_n", 30)

	v.SetDefault("feed.vendors.lookup_timeout", "300ms")
	v.SetDefault("feed.vendors.lookup_concurrency", 16)

	v.SetDefault("feed.caching.trending_ttl", "5m")
	v.SetDefault("feed.caching.vendor_trust_ttl", "10m")
	v.SetDefault("feed.caching.embedding_ttl", "24h")
	v.SetDefault("feed.caching.profile_ttl", "1h")

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("security.cors.allowed_headers", []string{"*"})
}

package ml

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"gonum.org/v1/gonum/floats"

	"github.com/qlozet/stylefeed/internal/config"
)

var ErrEmptyText = errors.New("text cannot be empty")

type embeddingRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// EmbeddingClient turns text into unit-length style embeddings through an
// OpenAI-compatible /embeddings endpoint. Results are cached in the cold
// Redis tier keyed by model and text.
type EmbeddingClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *redis.Client
	cacheTTL   time.Duration
	config     config.EmbeddingConfig
	logger     *logrus.Logger
}

func NewEmbeddingClient(cfg config.EmbeddingConfig, cache *redis.Client, cacheTTL time.Duration, logger *logrus.Logger) *EmbeddingClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &EmbeddingClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		cache:      cache,
		cacheTTL:   cacheTTL,
		config:     cfg,
		logger:     logger,
	}
}

func (c *EmbeddingClient) cacheKey(text string) string {
	return fmt.Sprintf("embed:text:%x", sha256.Sum256([]byte(c.config.Model+"\x00"+text)))
}

func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	key := c.cacheKey(text)
	if c.cache != nil {
		if cached, err := c.cache.Get(ctx, key).Bytes(); err == nil {
			var embedding []float32
			if err := json.Unmarshal(cached, &embedding); err == nil && len(embedding) > 0 {
				return embedding, nil
			}
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding rate limit wait: %w", err)
	}

	embedding, err := c.request(ctx, text)
	if err != nil {
		return nil, err
	}
	embedding = normalize(embedding)

	if c.cache != nil && c.cacheTTL > 0 {
		if data, err := json.Marshal(embedding); err == nil {
			if err := c.cache.Set(ctx, key, data, c.cacheTTL).Err(); err != nil {
				c.logger.WithError(err).Debug("Failed to cache text embedding")
			}
		}
	}

	return embedding, nil
}

func (c *EmbeddingClient) request(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{
		Model:      c.config.Model,
		Input:      text,
		Dimensions: c.config.Dimensions,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding response: %w", err)
	}

	var parsed embeddingResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil && parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return nil, fmt.Errorf("embedding provider returned %d: %s", resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", decodeErr)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, errors.New("embedding provider returned no data")
	}

	embedding := parsed.Data[0].Embedding
	if c.config.Dimensions > 0 && len(embedding) != c.config.Dimensions {
		return nil, fmt.Errorf("embedding has %d dimensions, expected %d", len(embedding), c.config.Dimensions)
	}

	c.logger.WithFields(logrus.Fields{
		"model":      c.config.Model,
		"dimensions": len(embedding),
		"latency_ms": time.Since(start).Milliseconds(),
	}).Debug("Generated text embedding")

	return embedding, nil
}

func normalize(v []float32) []float32 {
	f := make([]float64, len(v))
	for i, x := range v {
		f[i] = float64(x)
	}
	norm := floats.Norm(f, 2)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range f {
		out[i] = float32(x / norm)
	}
	return out
}

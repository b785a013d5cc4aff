package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/qlozet/stylefeed/pkg/models"
)

// ProfileRepository stores user embeddings in Postgres with a read-through
// copy in the hot Redis tier, and reads explicit style preferences.
type ProfileRepository struct {
	db       DBTX
	cache    *redis.Client
	cacheTTL time.Duration
	logger   *logrus.Logger
}

func NewProfileRepository(db DBTX, cache *redis.Client, cacheTTL time.Duration, logger *logrus.Logger) *ProfileRepository {
	return &ProfileRepository{
		db:       db,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

func profileCacheKey(userID string) string {
	return fmt.Sprintf("user_profile:%s", userID)
}

func (r *ProfileRepository) GetUserEmbedding(ctx context.Context, userID string) (*models.UserEmbedding, error) {
	if r.cache != nil {
		if cached, err := r.cache.Get(ctx, profileCacheKey(userID)).Bytes(); err == nil {
			var embedding models.UserEmbedding
			if err := json.Unmarshal(cached, &embedding); err == nil {
				return &embedding, nil
			}
		}
	}

	query := `
		SELECT user_id, u_style::real[], u_fit, scalars, version, last_updated
		FROM user_embeddings
		WHERE user_id = $1`

	var (
		embedding models.UserEmbedding
		scalars   []byte
	)
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&embedding.UserID, &embedding.UStyle, &embedding.UFit, &scalars, &embedding.Version, &embedding.LastUpdated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user embedding: %w", err)
	}
	if err := decodeJSON(scalars, &embedding.Scalars); err != nil {
		return nil, fmt.Errorf("user %s: scalars: %w", userID, err)
	}

	r.cacheEmbedding(ctx, &embedding)
	return &embedding, nil
}

// UpsertUserEmbedding overwrites the stored profile and bumps its version.
func (r *ProfileRepository) UpsertUserEmbedding(ctx context.Context, embedding *models.UserEmbedding) (*models.UserEmbedding, error) {
	scalars, err := json.Marshal(embedding.Scalars)
	if err != nil {
		return nil, fmt.Errorf("failed to encode scalars: %w", err)
	}

	query := `
		INSERT INTO user_embeddings (user_id, u_style, u_fit, scalars, version, last_updated)
		VALUES ($1, $2::real[]::vector, $3, $4, 1, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			u_style = EXCLUDED.u_style,
			u_fit = EXCLUDED.u_fit,
			scalars = EXCLUDED.scalars,
			version = user_embeddings.version + 1,
			last_updated = EXCLUDED.last_updated
		RETURNING version, last_updated`

	stored := *embedding
	err = r.db.QueryRow(ctx, query,
		embedding.UserID, embedding.UStyle, embedding.UFit, scalars, embedding.LastUpdated,
	).Scan(&stored.Version, &stored.LastUpdated)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user embedding: %w", err)
	}

	r.cacheEmbedding(ctx, &stored)
	return &stored, nil
}

func (r *ProfileRepository) GetPreferences(ctx context.Context, userID string) (*models.StylePreferences, error) {
	query := `
		SELECT user_id, COALESCE(wears_preference, ''), COALESCE(aesthetic_tags, '{}'), COALESCE(body_fit_tags, '{}')
		FROM user_style_preferences
		WHERE user_id = $1`

	var prefs models.StylePreferences
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&prefs.UserID, &prefs.WearsPreference, &prefs.AestheticTags, &prefs.BodyFitTags,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load style preferences: %w", err)
	}
	return &prefs, nil
}

func (r *ProfileRepository) cacheEmbedding(ctx context.Context, embedding *models.UserEmbedding) {
	if r.cache == nil || r.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(embedding)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, profileCacheKey(embedding.UserID), data, r.cacheTTL).Err(); err != nil {
		r.logger.WithError(err).WithField("user_id", embedding.UserID).Debug("Failed to cache user embedding")
	}
}

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

// VendorTrustRepository reads vendor trust records, cached in the warm tier.
// Missing vendors are not cached.
type VendorTrustRepository struct {
	db       DBTX
	cache    *redis.Client
	cacheTTL time.Duration
	logger   *logrus.Logger
}

func NewVendorTrustRepository(db DBTX, cache *redis.Client, cacheTTL time.Duration, logger *logrus.Logger) *VendorTrustRepository {
	return &VendorTrustRepository{
		db:       db,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

func (r *VendorTrustRepository) FindOne(ctx context.Context, vendorID string) (*models.VendorTrustRecord, error) {
	cacheKey := fmt.Sprintf("vendor_trust:%s", vendorID)

	if r.cache != nil {
		if cached, err := r.cache.Get(ctx, cacheKey).Bytes(); err == nil {
			var record models.VendorTrustRecord
			if err := json.Unmarshal(cached, &record); err == nil {
				return &record, nil
			}
		}
	}

	query := `
		SELECT vendor_id, is_active, status, COALESCE(success_rate, 0)::float8, is_featured
		FROM vendor_trust
		WHERE vendor_id = $1`

	var (
		record models.VendorTrustRecord
		status string
	)
	err := r.db.QueryRow(ctx, query, vendorID).Scan(
		&record.VendorID, &record.IsActive, &status, &record.SuccessRate, &record.IsFeatured,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load vendor trust for %s: %w", vendorID, err)
	}
	record.Status = models.VendorStatus(status)

	if r.cache != nil && r.cacheTTL > 0 {
		if data, err := json.Marshal(record); err == nil {
			if err := r.cache.Set(ctx, cacheKey, data, r.cacheTTL).Err(); err != nil {
				r.logger.WithError(err).WithField("vendor_id", vendorID).Debug("Failed to cache vendor trust")
			}
		}
	}

	return &record, nil
}

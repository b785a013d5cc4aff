package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/qlozet/stylefeed/internal/config"
	"github.com/qlozet/stylefeed/pkg/models"
)

// VendorTrustFetcher looks up trust records for many vendors concurrently.
type VendorTrustFetcher struct {
	service     VendorTrustService
	timeout     time.Duration
	concurrency int
	logger      *logrus.Logger
}

// NewVendorTrustFetcher bounds each lookup by time and the lookups by concurrency.
func NewVendorTrustFetcher(service VendorTrustService, cfg config.VendorConfig, logger *logrus.Logger) *VendorTrustFetcher {
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 300 * time.Millisecond
	}
	if cfg.LookupConcurrency <= 0 {
		cfg.LookupConcurrency = 16
	}
	return &VendorTrustFetcher{
		service:     service,
		timeout:     cfg.LookupTimeout,
		concurrency: cfg.LookupConcurrency,
		logger:      logger,
	}
}

// FetchTrust returns the records it could load. Failed or missing lookups
// are absent from the map and the caller treats those vendors as ungated.
func (f *VendorTrustFetcher) FetchTrust(ctx context.Context, vendorIDs []string) models.VendorTrustMap {
	trust := make(models.VendorTrustMap, len(vendorIDs))
	if f == nil || f.service == nil || len(vendorIDs) == 0 {
		return trust
	}

	// Each lookup owns one slot; the map is assembled after all of them return.
	records := make([]*models.VendorTrustRecord, len(vendorIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	for i, vendorID := range vendorIDs {
		g.Go(func() error {
			lookupCtx, cancel := context.WithTimeout(gctx, f.timeout)
			defer cancel()

			record, err := f.service.FindOne(lookupCtx, vendorID)
			if err != nil {
				f.logger.WithError(err).WithField("vendor_id", vendorID).Debug("Vendor trust lookup failed")
				return nil
			}
			records[i] = record
			return nil
		})
	}
	_ = g.Wait()

	for i, vendorID := range vendorIDs {
		if records[i] != nil {
			trust[vendorID] = records[i]
		}
	}

	return trust
}

// DistinctVendors lists vendor ids in first-seen order.
func DistinctVendors(candidates []models.Candidate) []string {
	seen := make(map[string]struct{})
	var vendors []string
	for _, c := range candidates {
		id := c.Item.VendorID
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		vendors = append(vendors, id)
	}
	return vendors
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/qlozet/stylefeed/pkg/models"
)

const catalogColumns = `item_id, item_type, title, price::float8, currency, vendor_id, tags,
	fit_meta, e_style::real[], e_fabric::real[], raw_vendor_data, attributes, created_at`

// Trending scans skip the embeddings; nothing downstream of them needs vectors.
const catalogColumnsLight = `item_id, item_type, title, price::float8, currency, vendor_id, tags,
	fit_meta, NULL::real[], NULL::real[], raw_vendor_data, attributes, created_at`

type CatalogRepository struct {
	db     DBTX
	logger *logrus.Logger
}

// NewCatalogRepository reads and patches catalog_items. Rows that scan but
// cannot be decoded into a valid item are logged and skipped.
func NewCatalogRepository(db DBTX, logger *logrus.Logger) *CatalogRepository {
	return &CatalogRepository{db: db, logger: logger}
}

// badRowError marks a row that scanned but holds data no item can be built
// from, such as malformed vendor JSON or an unknown item type.
type badRowError struct {
	itemID string
	err    error
}

func (e *badRowError) Error() string { return fmt.Sprintf("item %s: %v", e.itemID, e.err) }

func (e *badRowError) Unwrap() error { return e.err }

// skipBadRow logs and reports true for rows that should be left out of a
// result set. Any other error still fails the query.
func (r *CatalogRepository) skipBadRow(err error) bool {
	var bad *badRowError
	if !errors.As(err, &bad) {
		return false
	}
	r.logger.WithError(bad.err).WithField("item_id", bad.itemID).Warn("Skipping undecodable catalog item")
	return true
}

func (r *CatalogRepository) FindAll(ctx context.Context, limit int) ([]models.CatalogItem, error) {
	query := `SELECT ` + catalogColumns + ` FROM catalog_items ORDER BY item_id LIMIT $1`
	return r.queryItems(ctx, query, limit)
}

// FindRecent returns the newest items first.
func (r *CatalogRepository) FindRecent(ctx context.Context, limit int) ([]models.CatalogItem, error) {
	query := `SELECT ` + catalogColumnsLight + ` FROM catalog_items ORDER BY created_at DESC, item_id LIMIT $1`
	return r.queryItems(ctx, query, limit)
}

func (r *CatalogRepository) FindByID(ctx context.Context, id string) (*models.CatalogItem, error) {
	query := `SELECT ` + catalogColumns + ` FROM catalog_items WHERE item_id = $1`

	item, err := scanItem(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) || r.skipBadRow(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog item %s: %w", id, err)
	}
	return &item, nil
}

// FindByIDs returns the items that exist, keyed by id.
func (r *CatalogRepository) FindByIDs(ctx context.Context, ids []string) (map[string]models.CatalogItem, error) {
	out := make(map[string]models.CatalogItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query := `SELECT ` + catalogColumns + ` FROM catalog_items WHERE item_id = ANY($1)`
	items, err := r.queryItems(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		out[item.ItemID] = item
	}
	return out, nil
}

// Update applies the non-nil fields of patch. Vendor data is merged into the
// stored document rather than replacing it.
func (r *CatalogRepository) Update(ctx context.Context, id string, patch models.CatalogPatch) error {
	var sets []string
	args := []any{id}

	add := func(clause string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf(clause, len(args)))
	}

	if patch.Title != nil {
		add("title = $%d", *patch.Title)
	}
	if patch.Price != nil {
		add("price = $%d", *patch.Price)
	}
	if patch.Tags != nil {
		add("tags = $%d", patch.Tags)
	}
	if patch.Embeddings != nil {
		if len(patch.Embeddings.EStyle) > 0 {
			add("e_style = $%d::real[]::vector", patch.Embeddings.EStyle)
		}
		if len(patch.Embeddings.EFabric) > 0 {
			add("e_fabric = $%d::real[]::vector", patch.Embeddings.EFabric)
		}
	}
	if patch.RawVendorData != nil {
		data, err := json.Marshal(patch.RawVendorData)
		if err != nil {
			return fmt.Errorf("failed to encode vendor data: %w", err)
		}
		add("raw_vendor_data = COALESCE(raw_vendor_data, '{}'::jsonb) || $%d::jsonb", data)
	}

	if len(sets) == 0 {
		return nil
	}

	query := `UPDATE catalog_items SET ` + strings.Join(sets, ", ") + `, updated_at = NOW() WHERE item_id = $1`
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update catalog item %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("catalog item %s: %w", id, ErrNotFound)
	}
	return nil
}

// SearchByStyle runs an approximate nearest-neighbour query over e_style.
// The inner query bounds the index scan to numCandidates rows.
func (r *CatalogRepository) SearchByStyle(ctx context.Context, vector []float32, limit, numCandidates int) ([]models.Candidate, error) {
	query := `
		WITH nearest AS (
			SELECT ` + catalogColumns + `, e_style <=> $1::real[]::vector AS distance
			FROM catalog_items
			WHERE e_style IS NOT NULL
			ORDER BY e_style <=> $1::real[]::vector
			LIMIT $2
		)
		SELECT * FROM nearest ORDER BY distance LIMIT $3`

	rows, err := r.db.Query(ctx, query, vector, numCandidates, limit)
	if err != nil {
		return nil, fmt.Errorf("style search query failed: %w", err)
	}
	defer rows.Close()

	var results []models.Candidate
	for rows.Next() {
		var distance float64
		item, err := scanItem(rows, &distance)
		if r.skipBadRow(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to scan style search result: %w", err)
		}
		similarity := 1 - distance
		results = append(results, models.Candidate{
			Item:       item,
			Similarity: &similarity,
			Source:     models.SourceVector,
		})
	}

	return results, rows.Err()
}

func (r *CatalogRepository) queryItems(ctx context.Context, query string, args ...any) ([]models.CatalogItem, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog query failed: %w", err)
	}
	defer rows.Close()

	var items []models.CatalogItem
	for rows.Next() {
		item, err := scanItem(rows)
		if r.skipBadRow(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to scan catalog item: %w", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

func scanItem(row scanner, extra ...any) (models.CatalogItem, error) {
	var (
		item                       models.CatalogItem
		itemType                   string
		fitMeta, vendorData, attrs []byte
		eStyle, eFabric            []float32
	)

	dest := []any{
		&item.ItemID, &itemType, &item.Title, &item.Price, &item.Currency, &item.VendorID, &item.Tags,
		&fitMeta, &eStyle, &eFabric, &vendorData, &attrs, &item.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return item, err
	}

	item.Type = models.ItemType(strings.ToUpper(itemType))

	if len(fitMeta) > 0 {
		var meta models.FitMeta
		if err := decodeJSON(fitMeta, &meta); err != nil {
			return item, &badRowError{item.ItemID, fmt.Errorf("fit_meta: %w", err)}
		}
		if meta != (models.FitMeta{}) {
			item.FitMeta = &meta
		}
	}

	if len(eStyle) > 0 || len(eFabric) > 0 {
		item.Embeddings = &models.ItemEmbeddings{EStyle: eStyle, EFabric: eFabric}
	}

	if err := decodeJSON(vendorData, &item.RawVendorData); err != nil {
		return item, &badRowError{item.ItemID, fmt.Errorf("raw_vendor_data: %w", err)}
	}

	if err := decodeVariant(&item, attrs); err != nil {
		return item, &badRowError{item.ItemID, fmt.Errorf("attributes: %w", err)}
	}

	if _, err := item.Kind(); err != nil {
		return item, &badRowError{item.ItemID, err}
	}

	return item, nil
}

// decodeVariant fills the variant matching the item's type from the shared
// attributes document.
func decodeVariant(item *models.CatalogItem, raw []byte) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	switch item.Type {
	case models.ItemTypeGarment:
		item.Garment = &models.GarmentAttributes{}
		return json.Unmarshal(raw, item.Garment)
	case models.ItemTypeFabric:
		item.Fabric = &models.FabricAttributes{}
		return json.Unmarshal(raw, item.Fabric)
	case models.ItemTypeAccessory:
		item.Accessory = &models.AccessoryAttributes{}
		return json.Unmarshal(raw, item.Accessory)
	}
	return nil
}

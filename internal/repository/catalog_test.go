package repository

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qlozet/stylefeed/pkg/models"
)

var catalogRowColumns = []string{
	"item_id", "item_type", "title", "price", "currency", "vendor_id", "tags",
	"fit_meta", "e_style", "e_fabric", "raw_vendor_data", "attributes", "created_at",
}

func garmentRow(rows *pgxmock.Rows, id string, createdAt time.Time) *pgxmock.Rows {
	return rows.AddRow(
		id, "garment", "Linen Shirt", 49.5, "USD", "v1", []string{"linen", "summer"},
		[]byte(`{"targetDemographic":"women","fitType":"relaxed"}`),
		[]float32{0.1, 0.2}, nil,
		[]byte(`{"inventory_quantity":3,"eta_days":2}`),
		[]byte(`{"sizes":["S","M"],"silhouette":"boxy"}`),
		createdAt,
	)
}

func TestCatalogRepository_FindByID(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	repo := NewCatalogRepository(mockDB, logrus.New())
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		mockDB.ExpectQuery(`FROM catalog_items WHERE item_id = \$1`).
			WithArgs("g1").
			WillReturnRows(garmentRow(pgxmock.NewRows(catalogRowColumns), "g1", created))

		item, err := repo.FindByID(context.Background(), "g1")
		require.NoError(t, err)
		require.NotNil(t, item)

		assert.Equal(t, models.ItemTypeGarment, item.Type)
		assert.Equal(t, 49.5, item.Price)
		assert.Equal(t, []string{"linen", "summer"}, item.Tags)
		require.NotNil(t, item.FitMeta)
		assert.Equal(t, "relaxed", item.FitMeta.FitType)
		require.NotNil(t, item.Embeddings)
		assert.Equal(t, []float32{0.1, 0.2}, item.Embeddings.EStyle)
		assert.Empty(t, item.Embeddings.EFabric)
		require.NotNil(t, item.RawVendorData.InventoryQuantity)
		assert.Equal(t, 3, *item.RawVendorData.InventoryQuantity)
		assert.Nil(t, item.RawVendorData.VendorQuality)
		require.NotNil(t, item.Garment)
		assert.Equal(t, []string{"S", "M"}, item.Garment.Sizes)
		assert.Nil(t, item.Fabric)
		assert.Equal(t, created, item.CreatedAt)

		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mockDB.ExpectQuery(`FROM catalog_items WHERE item_id = \$1`).
			WithArgs("missing").
			WillReturnRows(pgxmock.NewRows(catalogRowColumns))

		item, err := repo.FindByID(context.Background(), "missing")
		require.NoError(t, err)
		assert.Nil(t, item)

		require.NoError(t, mockDB.ExpectationsWereMet())
	})
}

func TestCatalogRepository_FindByIDs(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	repo := NewCatalogRepository(mockDB, logrus.New())

	t.Run("empty input skips the query", func(t *testing.T) {
		items, err := repo.FindByIDs(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("keys results by id", func(t *testing.T) {
		rows := pgxmock.NewRows(catalogRowColumns)
		garmentRow(rows, "g1", time.Now())
		garmentRow(rows, "g2", time.Now())

		mockDB.ExpectQuery(`WHERE item_id = ANY\(\$1\)`).
			WithArgs([]string{"g1", "g2", "gone"}).
			WillReturnRows(rows)

		items, err := repo.FindByIDs(context.Background(), []string{"g1", "g2", "gone"})
		require.NoError(t, err)
		assert.Len(t, items, 2)
		assert.Contains(t, items, "g1")
		assert.NotContains(t, items, "gone")

		require.NoError(t, mockDB.ExpectationsWereMet())
	})
}

func TestCatalogRepository_Update(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	repo := NewCatalogRepository(mockDB, logrus.New())

	t.Run("empty patch is a no-op", func(t *testing.T) {
		require.NoError(t, repo.Update(context.Background(), "g1", models.CatalogPatch{}))
		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("sets only provided fields", func(t *testing.T) {
		title := "Linen Shirt II"
		mockDB.ExpectExec(`UPDATE catalog_items SET title = \$2, tags = \$3, updated_at = NOW\(\) WHERE item_id = \$1`).
			WithArgs("g1", title, []string{"linen"}).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := repo.Update(context.Background(), "g1", models.CatalogPatch{
			Title: &title,
			Tags:  []string{"linen"},
		})
		require.NoError(t, err)
		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("merges vendor data", func(t *testing.T) {
		qty := 0
		mockDB.ExpectExec(`raw_vendor_data = COALESCE\(raw_vendor_data, '\{\}'::jsonb\) \|\| \$2::jsonb`).
			WithArgs("g1", []byte(`{"inventory_quantity":0}`)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := repo.Update(context.Background(), "g1", models.CatalogPatch{
			RawVendorData: &models.VendorData{InventoryQuantity: &qty},
		})
		require.NoError(t, err)
		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("unknown item", func(t *testing.T) {
		price := 10.0
		mockDB.ExpectExec(`UPDATE catalog_items SET price = \$2`).
			WithArgs("nope", price).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.Update(context.Background(), "nope", models.CatalogPatch{Price: &price})
		assert.ErrorIs(t, err, ErrNotFound)
		require.NoError(t, mockDB.ExpectationsWereMet())
	})
}

func TestCatalogRepository_SearchByStyle(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	repo := NewCatalogRepository(mockDB, logrus.New())
	vec := []float32{1, 0}

	rows := pgxmock.NewRows(append(append([]string{}, catalogRowColumns...), "distance")).
		AddRow("g1", "garment", "Shirt", 20.0, "USD", "v1", []string{"linen"},
			nil, []float32{1, 0}, nil, nil, nil, time.Now(), 0.1).
		AddRow("a1", "accessory", "Belt", 15.0, "USD", "v2", []string{"leather"},
			nil, []float32{0.5, 0.5}, nil, nil, []byte(`{"material":"leather"}`), time.Now(), 0.4)

	mockDB.ExpectQuery(`WITH nearest AS`).
		WithArgs(vec, 50, 10).
		WillReturnRows(rows)

	results, err := repo.SearchByStyle(context.Background(), vec, 10, 50)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "g1", results[0].Item.ItemID)
	assert.Equal(t, models.SourceVector, results[0].Source)
	require.NotNil(t, results[0].Similarity)
	assert.InDelta(t, 0.9, *results[0].Similarity, 1e-9)
	assert.InDelta(t, 0.6, *results[1].Similarity, 1e-9)
	require.NotNil(t, results[1].Item.Accessory)
	assert.Equal(t, "leather", results[1].Item.Accessory.Material)
	assert.Nil(t, results[0].Item.FitMeta)

	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestCatalogRepository_SkipsUndecodableRows(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	repo := NewCatalogRepository(mockDB, logrus.New())

	tests := []struct {
		name string
		row  []any
	}{
		{
			name: "malformed vendor data",
			row: []any{"bad", "garment", "Shirt", 20.0, "USD", "v1", []string{"linen"},
				nil, nil, nil, []byte(`{"eta_days":"soon"}`), nil, time.Now()},
		},
		{
			name: "malformed fit meta",
			row: []any{"bad", "garment", "Shirt", 20.0, "USD", "v1", []string{"linen"},
				[]byte(`{"fitType":`), nil, nil, nil, nil, time.Now()},
		},
		{
			name: "unknown item type",
			row: []any{"bad", "shoes", "Sneaker", 80.0, "USD", "v1", []string{"sneaker"},
				nil, nil, nil, nil, nil, time.Now()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := pgxmock.NewRows(catalogRowColumns)
			garmentRow(rows, "g1", time.Now())
			rows.AddRow(tt.row...)
			garmentRow(rows, "g2", time.Now())

			mockDB.ExpectQuery(`ORDER BY created_at DESC`).
				WithArgs(10).
				WillReturnRows(rows)

			items, err := repo.FindRecent(context.Background(), 10)
			require.NoError(t, err)
			require.Len(t, items, 2)
			assert.Equal(t, "g1", items[0].ItemID)
			assert.Equal(t, "g2", items[1].ItemID)

			require.NoError(t, mockDB.ExpectationsWereMet())
		})
	}

	t.Run("single lookup treats the row as missing", func(t *testing.T) {
		mockDB.ExpectQuery(`FROM catalog_items WHERE item_id = \$1`).
			WithArgs("bad").
			WillReturnRows(pgxmock.NewRows(catalogRowColumns).AddRow(
				"bad", "garment", "Shirt", 20.0, "USD", "v1", []string{"linen"},
				nil, nil, nil, []byte(`{"inventory_quantity":"lots"}`), nil, time.Now()))

		item, err := repo.FindByID(context.Background(), "bad")
		require.NoError(t, err)
		assert.Nil(t, item)

		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("scan errors still fail the query", func(t *testing.T) {
		mockDB.ExpectQuery(`ORDER BY created_at DESC`).
			WithArgs(10).
			WillReturnRows(pgxmock.NewRows([]string{"item_id"}).AddRow("g1"))

		items, err := repo.FindRecent(context.Background(), 10)
		require.Error(t, err)
		assert.Nil(t, items)

		require.NoError(t, mockDB.ExpectationsWereMet())
	})
}

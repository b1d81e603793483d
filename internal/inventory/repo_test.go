package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mfigueroa/stockroom-backend/pkg/db/models"
	"github.com/mfigueroa/stockroom-backend/pkg/enums"
	"github.com/mfigueroa/stockroom-backend/pkg/pagination"
)

func setupInventoryTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	items := `
CREATE TABLE IF NOT EXISTS inventory_items (
  product_id TEXT NOT NULL,
  size TEXT NOT NULL,
  quantity INTEGER NOT NULL DEFAULT 0,
  reserved_qty INTEGER NOT NULL DEFAULT 0,
  low_stock_threshold INTEGER NOT NULL DEFAULT 5,
  in_stock INTEGER NOT NULL DEFAULT 0,
  last_restocked DATETIME,
  created_at DATETIME,
  updated_at DATETIME,
  PRIMARY KEY (product_id, size)
);`
	logs := `
CREATE TABLE IF NOT EXISTS inventory_logs (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL,
  size TEXT NOT NULL,
  action TEXT NOT NULL,
  quantity_change INTEGER NOT NULL,
  previous_qty INTEGER NOT NULL,
  new_qty INTEGER NOT NULL,
  reason TEXT,
  reference_id TEXT,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(items).Error)
	require.NoError(t, db.Exec(logs).Error)
	return db
}

func createItem(t *testing.T, db *gorm.DB, productID uuid.UUID, size string, quantity, reserved int) *models.InventoryItem {
	t.Helper()

	item := &models.InventoryItem{
		ProductID:         productID,
		Size:              size,
		Quantity:          quantity,
		ReservedQty:       reserved,
		LowStockThreshold: 5,
		InStock:           quantity-reserved > 0,
	}
	require.NoError(t, db.Create(item).Error)
	return item
}

func createLog(t *testing.T, db *gorm.DB, productID uuid.UUID, size string, created time.Time) *models.InventoryLog {
	t.Helper()

	log := &models.InventoryLog{
		ID:             uuid.New(),
		ProductID:      productID,
		Size:           size,
		Action:         enums.InventoryActionReserve,
		QuantityChange: 1,
		PreviousQty:    0,
		NewQty:         1,
		CreatedAt:      created,
	}
	require.NoError(t, db.Create(log).Error)
	return log
}

func TestRepositoryGet(t *testing.T) {
	db := setupInventoryTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	productID := uuid.New()
	createItem(t, db, productID, "M", 10, 2)

	item, err := repo.Get(ctx, productID, "M")
	require.NoError(t, err)
	assert.Equal(t, 10, item.Quantity)
	assert.Equal(t, 2, item.ReservedQty)
	assert.Equal(t, 8, item.Available())

	_, err = repo.Get(ctx, productID, "XL")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositorySaveRoundTrip(t *testing.T) {
	db := setupInventoryTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	productID := uuid.New()
	item := createItem(t, db, productID, "S", 4, 0)

	item.ReservedQty = 3
	item.InStock = true
	require.NoError(t, repo.Save(ctx, item))

	got, err := repo.Get(ctx, productID, "S")
	require.NoError(t, err)
	assert.Equal(t, 3, got.ReservedQty)
}

func TestRepositoryDelete(t *testing.T) {
	db := setupInventoryTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	productID := uuid.New()
	createItem(t, db, productID, "M", 1, 0)

	deleted, err := repo.Delete(ctx, productID, "M")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, productID, "M")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestRepositoryListPagination(t *testing.T) {
	db := setupInventoryTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		createItem(t, db, uuid.New(), "M", 10, 0)
	}

	first, next, err := repo.List(ctx, listItemsParams{Limit: 3})
	require.NoError(t, err)
	require.Len(t, first, 3)
	require.NotNil(t, next)

	second, last, err := repo.List(ctx, listItemsParams{Limit: 3, Cursor: next})
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Nil(t, last)

	seen := map[string]bool{}
	for _, item := range append(first, second...) {
		key := item.ProductID.String() + "|" + item.Size
		assert.False(t, seen[key], "expected no duplicates across pages")
		seen[key] = true
	}
	assert.Len(t, seen, 5)
}

func TestRepositoryListLogsPagination(t *testing.T) {
	db := setupInventoryTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	productID := uuid.New()
	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 4; i++ {
		createLog(t, db, productID, "M", base.Add(time.Duration(i)*time.Minute))
	}
	createLog(t, db, uuid.New(), "M", base)

	first, next, err := repo.ListLogs(ctx, listLogsParams{ProductID: productID, Size: "M", Limit: 3})
	require.NoError(t, err)
	require.Len(t, first, 3)
	require.NotNil(t, next)
	assert.True(t, first[0].CreatedAt.After(first[2].CreatedAt), "expected newest first")

	second, last, err := repo.ListLogs(ctx, listLogsParams{ProductID: productID, Size: "M", Limit: 3, Cursor: next})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Nil(t, last)
}

func TestRepositoryDeleteLogsBefore(t *testing.T) {
	db := setupInventoryTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	productID := uuid.New()
	now := time.Now().UTC()
	createLog(t, db, productID, "M", now.Add(-100*24*time.Hour))
	createLog(t, db, productID, "M", now.Add(-95*24*time.Hour))
	keep := createLog(t, db, productID, "M", now.Add(-time.Hour))

	deleted, err := repo.DeleteLogsBefore(ctx, now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	remaining, _, err := repo.ListLogs(ctx, listLogsParams{ProductID: productID, Size: "M", Limit: pagination.DefaultLimit})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, keep.ID, remaining[0].ID)
}

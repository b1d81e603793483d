package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mfigueroa/stockroom-backend/pkg/db/models"
	"github.com/mfigueroa/stockroom-backend/pkg/pagination"
)

// Repository exposes persistence helpers for inventory rows and audit logs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, productID uuid.UUID, size string) (*models.InventoryItem, error)
	GetForUpdate(ctx context.Context, productID uuid.UUID, size string) (*models.InventoryItem, error)
	Create(ctx context.Context, item *models.InventoryItem) error
	Save(ctx context.Context, item *models.InventoryItem) error
	Delete(ctx context.Context, productID uuid.UUID, size string) (bool, error)
	List(ctx context.Context, params listItemsParams) ([]models.InventoryItem, *pagination.KeyCursor, error)
	CreateLog(ctx context.Context, log *models.InventoryLog) error
	ListLogs(ctx context.Context, params listLogsParams) ([]models.InventoryLog, *pagination.Cursor, error)
	DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an inventory repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type listItemsParams struct {
	Limit  int
	Cursor *pagination.KeyCursor
}

type listLogsParams struct {
	ProductID uuid.UUID
	Size      string
	Limit     int
	Cursor    *pagination.Cursor
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Get(ctx context.Context, productID uuid.UUID, size string) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND size = ?", productID, size).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// GetForUpdate locks the row for the duration of the surrounding transaction.
func (r *repositoryImpl) GetForUpdate(ctx context.Context, productID uuid.UUID, size string) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ? AND size = ?", productID, size).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repositoryImpl) Create(ctx context.Context, item *models.InventoryItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repositoryImpl) Save(ctx context.Context, item *models.InventoryItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

func (r *repositoryImpl) Delete(ctx context.Context, productID uuid.UUID, size string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("product_id = ? AND size = ?", productID, size).
		Delete(&models.InventoryItem{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) List(ctx context.Context, params listItemsParams) ([]models.InventoryItem, *pagination.KeyCursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.InventoryItem{})
	if params.Cursor != nil {
		query = query.Where("(product_id, size) > (?, ?)", params.Cursor.Primary, params.Cursor.Secondary)
	}

	var items []models.InventoryItem
	if err := query.Order("product_id ASC, size ASC").Limit(limit).Find(&items).Error; err != nil {
		return nil, nil, err
	}

	if len(items) > normalized {
		items = items[:normalized]
		last := items[normalized-1]
		return items, &pagination.KeyCursor{Primary: last.ProductID.String(), Secondary: last.Size}, nil
	}
	return items, nil, nil
}

func (r *repositoryImpl) CreateLog(ctx context.Context, log *models.InventoryLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *repositoryImpl) ListLogs(ctx context.Context, params listLogsParams) ([]models.InventoryLog, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).
		Model(&models.InventoryLog{}).
		Where("product_id = ? AND size = ?", params.ProductID, params.Size)
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var logs []models.InventoryLog
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, nil, err
	}

	if len(logs) > normalized {
		logs = logs[:normalized]
		last := logs[normalized-1]
		return logs, &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
	}
	return logs, nil, nil
}

func (r *repositoryImpl) DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.InventoryLog{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

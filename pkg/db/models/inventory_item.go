package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryItem tracks on-hand and reserved counts per product and size.
type InventoryItem struct {
	ProductID         uuid.UUID  `gorm:"column:product_id;type:uuid;primaryKey" json:"productId"`
	Size              string     `gorm:"column:size;type:text;primaryKey" json:"size"`
	Quantity          int        `gorm:"column:quantity;not null;default:0" json:"quantity"`
	ReservedQty       int        `gorm:"column:reserved_qty;not null;default:0" json:"reservedQty"`
	LowStockThreshold int        `gorm:"column:low_stock_threshold;not null;default:5" json:"lowStockThreshold"`
	InStock           bool       `gorm:"column:in_stock;not null;default:false" json:"inStock"`
	LastRestocked     *time.Time `gorm:"column:last_restocked;type:timestamptz" json:"lastRestocked,omitempty"`
	CreatedAt         time.Time  `gorm:"column:created_at;type:timestamptz;autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;type:timestamptz;autoUpdateTime" json:"updatedAt"`
}

// Available returns the quantity not currently held by reservations.
func (i InventoryItem) Available() int {
	return i.Quantity - i.ReservedQty
}

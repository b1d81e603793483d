package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mfigueroa/stockroom-backend/pkg/enums"
)

// InventoryLog is the append-only audit trail for inventory mutations.
type InventoryLog struct {
	ID             uuid.UUID             `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProductID      uuid.UUID             `gorm:"column:product_id;type:uuid;not null" json:"productId"`
	Size           string                `gorm:"column:size;type:text;not null" json:"size"`
	Action         enums.InventoryAction `gorm:"column:action;type:text;not null" json:"action"`
	QuantityChange int                   `gorm:"column:quantity_change;not null" json:"quantityChange"`
	PreviousQty    int                   `gorm:"column:previous_qty;not null" json:"previousQty"`
	NewQty         int                   `gorm:"column:new_qty;not null" json:"newQty"`
	Reason         string                `gorm:"column:reason;type:text" json:"reason"`
	ReferenceID    *uuid.UUID            `gorm:"column:reference_id;type:uuid" json:"referenceId,omitempty"`
	CreatedAt      time.Time             `gorm:"column:created_at;type:timestamptz;autoCreateTime" json:"createdAt"`
}

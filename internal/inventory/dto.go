package inventory

import (
	"github.com/google/uuid"

	"github.com/mfigueroa/stockroom-backend/pkg/db/models"
)

// MutationKind selects the counter movement a batch entry applies.
type MutationKind string

const (
	MutationReserve  MutationKind = "reserve"
	MutationRelease  MutationKind = "release"
	MutationFinalize MutationKind = "finalize"
)

// MutationParams carries the shared inputs for reserve, release and
// finalize calls.
type MutationParams struct {
	ProductID   uuid.UUID
	Size        string
	Quantity    int
	Reason      string
	ReferenceID *uuid.UUID
}

// AdjustParams sets the absolute stock level for one item, creating the
// row when it does not exist yet.
type AdjustParams struct {
	ProductID         uuid.UUID
	Size              string
	Quantity          int
	LowStockThreshold *int
	Reason            string
}

// ListParams configures cursor pagination for the inventory listing.
type ListParams struct {
	Limit  int
	Cursor string
}

// ListResult wraps returned items and the cursor for the next page.
type ListResult struct {
	Items  []models.InventoryItem `json:"items"`
	Cursor string                 `json:"cursor"`
}

// LogsParams configures cursor pagination for one item's audit trail.
type LogsParams struct {
	ProductID uuid.UUID
	Size      string
	Limit     int
	Cursor    string
}

// LogsResult wraps returned audit rows and the cursor for the next page.
type LogsResult struct {
	Items  []models.InventoryLog `json:"items"`
	Cursor string                `json:"cursor"`
}

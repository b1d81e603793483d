package orders

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mfigueroa/stockroom-backend/pkg/enums"
)

// OrderEvent is the storefront's order lifecycle envelope.
type OrderEvent struct {
	EventID    string               `json:"eventId"`
	Type       enums.OrderEventType `json:"type"`
	OrderID    uuid.UUID            `json:"orderId"`
	UserID     uuid.UUID            `json:"userId"`
	OccurredAt time.Time            `json:"occurredAt"`
	Items      []OrderEventItem     `json:"items"`
}

// OrderEventItem identifies one reserved line of the order.
type OrderEventItem struct {
	ProductID uuid.UUID `json:"productId"`
	Size      string    `json:"size"`
	Quantity  int       `json:"quantity"`
}

func decodeOrderEvent(data []byte) (*OrderEvent, error) {
	var event OrderEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("decode order event: %w", err)
	}
	if event.EventID == "" {
		return nil, fmt.Errorf("order event id missing")
	}
	if !event.Type.IsValid() {
		return nil, fmt.Errorf("unknown order event type %q", event.Type)
	}
	if event.OrderID == uuid.Nil {
		return nil, fmt.Errorf("order id missing")
	}
	if event.UserID == uuid.Nil {
		return nil, fmt.Errorf("user id missing")
	}
	if len(event.Items) == 0 {
		return nil, fmt.Errorf("order event has no items")
	}
	for i, item := range event.Items {
		if item.ProductID == uuid.Nil || item.Size == "" || item.Quantity <= 0 {
			return nil, fmt.Errorf("order event item %d invalid", i)
		}
	}
	return &event, nil
}

package enums

// OrderEventType identifies storefront order lifecycle events on the bus.
type OrderEventType string

const (
	EventOrderPlaced      OrderEventType = "order_placed"
	EventOrderCanceled    OrderEventType = "order_canceled"
	EventPaymentSucceeded OrderEventType = "payment_succeeded"
	EventPaymentFailed    OrderEventType = "payment_failed"
)

// IsValid reports whether the event type is part of the canonical set.
func (e OrderEventType) IsValid() bool {
	switch e {
	case EventOrderPlaced, EventOrderCanceled, EventPaymentSucceeded, EventPaymentFailed:
		return true
	}
	return false
}

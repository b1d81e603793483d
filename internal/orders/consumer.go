package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/mfigueroa/stockroom-backend/internal/inventory"
	"github.com/mfigueroa/stockroom-backend/internal/realtime"
	"github.com/mfigueroa/stockroom-backend/pkg/db/models"
	"github.com/mfigueroa/stockroom-backend/pkg/enums"
	pkgerrors "github.com/mfigueroa/stockroom-backend/pkg/errors"
	"github.com/mfigueroa/stockroom-backend/pkg/logger"
)

const (
	consumerName = "orders"
	dedupeTTL    = 24 * time.Hour
)

type inventoryService interface {
	ApplyBatch(ctx context.Context, kind inventory.MutationKind, items []inventory.MutationParams) ([]*models.InventoryItem, error)
}

type notifier interface {
	SendToUser(ctx context.Context, userID uuid.UUID, n realtime.Notification)
	SendToAdmins(ctx context.Context, n realtime.Notification)
}

type eventGuard interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	EventKey(consumer, eventID string) string
}

// Consumer applies storefront order lifecycle events to inventory and
// fans out the matching notifications. Processing is idempotent per
// event id via a Redis SetNX guard.
type Consumer struct {
	inventory    inventoryService
	hub          notifier
	guard        eventGuard
	subscription *pubsub.Subscriber
	logg         *logger.Logger
}

// NewConsumer constructs a consumer watching the storefront orders subscription.
func NewConsumer(inv inventoryService, hub notifier, guard eventGuard, subscription *pubsub.Subscriber, logg *logger.Logger) (*Consumer, error) {
	if inv == nil {
		return nil, errors.New("inventory service is required")
	}
	if hub == nil {
		return nil, errors.New("notification hub is required")
	}
	if guard == nil {
		return nil, errors.New("event guard is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{
		inventory:    inv,
		hub:          hub,
		guard:        guard,
		subscription: subscription,
		logg:         logg,
	}, nil
}

// Run processes messages until the context is canceled or the subscription errors.
func (c *Consumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return errors.New("orders subscription is required")
	}
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg.Data)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, data []byte) processResult {
	event, err := decodeOrderEvent(data)
	if err != nil {
		c.logg.Error(ctx, "dropping undecodable order event", err)
		return processResult{ack: true}
	}

	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_id":   event.EventID,
		"event_type": event.Type,
		"order_id":   event.OrderID,
	})

	key := c.guard.EventKey(consumerName, event.EventID)
	fresh, err := c.guard.SetNX(logCtx, key, 1, dedupeTTL)
	if err != nil {
		c.logg.Error(logCtx, "event dedupe check failed", err)
		return processResult{nack: true}
	}
	if !fresh {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	if err := c.apply(logCtx, event); err != nil {
		if isPoison(err) {
			c.logg.Error(logCtx, "order event conflicts with inventory state", err)
			return processResult{ack: true}
		}
		c.logg.Error(logCtx, "failed to apply order event", err)
		// Clear the guard so the redelivery is not skipped.
		if delErr := c.guard.Del(logCtx, key); delErr != nil {
			c.logg.Error(logCtx, "failed to clear event guard", delErr)
		}
		return processResult{nack: true}
	}

	c.notify(logCtx, event)
	c.logg.Info(logCtx, "order event applied")
	return processResult{ack: true}
}

// apply maps the event to one counter movement and applies every order
// line as a single batch, so a failing line cannot leave earlier lines
// mutated.
func (c *Consumer) apply(ctx context.Context, event *OrderEvent) error {
	var kind inventory.MutationKind
	var reason string
	switch event.Type {
	case enums.EventOrderPlaced:
		kind, reason = inventory.MutationReserve, "order placed"
	case enums.EventPaymentSucceeded:
		kind, reason = inventory.MutationFinalize, "payment captured"
	case enums.EventPaymentFailed:
		kind, reason = inventory.MutationRelease, "payment failed"
	case enums.EventOrderCanceled:
		kind, reason = inventory.MutationRelease, "order canceled"
	default:
		return fmt.Errorf("unhandled order event type %q", event.Type)
	}

	orderID := event.OrderID
	batch := make([]inventory.MutationParams, 0, len(event.Items))
	for _, item := range event.Items {
		batch = append(batch, inventory.MutationParams{
			ProductID:   item.ProductID,
			Size:        item.Size,
			Quantity:    item.Quantity,
			Reason:      reason,
			ReferenceID: &orderID,
		})
	}
	if _, err := c.inventory.ApplyBatch(ctx, kind, batch); err != nil {
		return fmt.Errorf("%s order %s: %w", reason, orderID, err)
	}
	return nil
}

func (c *Consumer) notify(ctx context.Context, event *OrderEvent) {
	var user realtime.Notification
	switch event.Type {
	case enums.EventOrderPlaced:
		user = realtime.NewNotification(enums.NotificationTypeOrderUpdate,
			"Order received", "We have received your order and reserved your items.")
		admin := realtime.NewNotification(enums.NotificationTypeOrderUpdate,
			"New order", fmt.Sprintf("Order %s was placed.", event.OrderID)).
			WithEntity("order", event.OrderID)
		c.hub.SendToAdmins(ctx, admin)
	case enums.EventPaymentSucceeded:
		user = realtime.NewNotification(enums.NotificationTypePaymentUpdate,
			"Payment confirmed", "Your payment went through. Your order is being prepared.")
	case enums.EventPaymentFailed:
		user = realtime.NewNotification(enums.NotificationTypePaymentUpdate,
			"Payment failed", "Your payment did not go through. Your items were released.")
	case enums.EventOrderCanceled:
		user = realtime.NewNotification(enums.NotificationTypeOrderUpdate,
			"Order canceled", "Your order was canceled and your items were released.")
	default:
		return
	}
	c.hub.SendToUser(ctx, event.UserID, user.WithEntity("order", event.OrderID))
}

// isPoison reports whether retrying the event can never succeed.
func isPoison(err error) bool {
	typed := pkgerrors.As(err)
	if typed == nil {
		return false
	}
	switch typed.Code() {
	case pkgerrors.CodeInsufficientStock, pkgerrors.CodeOverRelease, pkgerrors.CodeNotFound, pkgerrors.CodeValidation:
		return true
	}
	return false
}

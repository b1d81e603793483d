package orders

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mfigueroa/stockroom-backend/internal/inventory"
	"github.com/mfigueroa/stockroom-backend/internal/realtime"
	"github.com/mfigueroa/stockroom-backend/pkg/db/models"
	"github.com/mfigueroa/stockroom-backend/pkg/enums"
	pkgerrors "github.com/mfigueroa/stockroom-backend/pkg/errors"
	"github.com/mfigueroa/stockroom-backend/pkg/logger"
)

type batchCall struct {
	kind  inventory.MutationKind
	items []inventory.MutationParams
}

type fakeInventory struct {
	calls []batchCall
	err   error
}

func (f *fakeInventory) ApplyBatch(ctx context.Context, kind inventory.MutationKind, items []inventory.MutationParams) ([]*models.InventoryItem, error) {
	f.calls = append(f.calls, batchCall{kind: kind, items: items})
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*models.InventoryItem, 0, len(items))
	for _, params := range items {
		out = append(out, &models.InventoryItem{ProductID: params.ProductID, Size: params.Size})
	}
	return out, nil
}

type fakeHub struct {
	userNotes  []realtime.Notification
	adminNotes []realtime.Notification
}

func (f *fakeHub) SendToUser(ctx context.Context, userID uuid.UUID, n realtime.Notification) {
	f.userNotes = append(f.userNotes, n)
}

func (f *fakeHub) SendToAdmins(ctx context.Context, n realtime.Notification) {
	f.adminNotes = append(f.adminNotes, n)
}

type fakeGuard struct {
	seen    map[string]bool
	deleted []string
	err     error
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{seen: map[string]bool{}}
}

func (f *fakeGuard) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func (f *fakeGuard) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.seen, key)
		f.deleted = append(f.deleted, key)
	}
	return nil
}

func (f *fakeGuard) EventKey(consumer, eventID string) string {
	return "sr:events:" + consumer + ":" + eventID
}

func newTestConsumer(t *testing.T) (*Consumer, *fakeInventory, *fakeHub, *fakeGuard) {
	t.Helper()
	inv := &fakeInventory{}
	hub := &fakeHub{}
	guard := newFakeGuard()
	logg := logger.New(logger.Options{ServiceName: "orders-test", Level: zerolog.Disabled, Output: io.Discard})
	c, err := NewConsumer(inv, hub, guard, nil, logg)
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	return c, inv, hub, guard
}

func eventBytes(t *testing.T, eventType enums.OrderEventType, items ...OrderEventItem) []byte {
	t.Helper()
	event := OrderEvent{
		EventID:    uuid.NewString(),
		Type:       eventType,
		OrderID:    uuid.New(),
		UserID:     uuid.New(),
		OccurredAt: time.Now().UTC(),
		Items:      items,
	}
	raw, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return raw
}

func oneItem() OrderEventItem {
	return OrderEventItem{ProductID: uuid.New(), Size: "M", Quantity: 2}
}

func TestProcessOrderPlacedReservesAndNotifies(t *testing.T) {
	c, inv, hub, _ := newTestConsumer(t)

	result := c.process(context.Background(), eventBytes(t, enums.EventOrderPlaced, oneItem(), oneItem()))
	if !result.ack || result.nack {
		t.Fatalf("expected ack, got %+v", result)
	}
	// Both lines of the order arrive as one batch so they commit together.
	if len(inv.calls) != 1 {
		t.Fatalf("expected a single batch call, got %d", len(inv.calls))
	}
	call := inv.calls[0]
	if call.kind != inventory.MutationReserve {
		t.Fatalf("expected reserve batch, got %s", call.kind)
	}
	if len(call.items) != 2 {
		t.Fatalf("expected both order lines in the batch, got %d", len(call.items))
	}
	for _, params := range call.items {
		if params.ReferenceID == nil {
			t.Fatalf("expected order id reference on reservation")
		}
	}
	if len(hub.userNotes) != 1 || hub.userNotes[0].Type != enums.NotificationTypeOrderUpdate {
		t.Fatalf("expected one order update to the buyer, got %+v", hub.userNotes)
	}
	if len(hub.adminNotes) != 1 {
		t.Fatalf("expected one admin notification, got %d", len(hub.adminNotes))
	}
}

func TestProcessPaymentSucceededFinalizes(t *testing.T) {
	c, inv, hub, _ := newTestConsumer(t)

	result := c.process(context.Background(), eventBytes(t, enums.EventPaymentSucceeded, oneItem()))
	if !result.ack {
		t.Fatalf("expected ack, got %+v", result)
	}
	if len(inv.calls) != 1 || inv.calls[0].kind != inventory.MutationFinalize {
		t.Fatalf("expected finalize batch, got %+v", inv.calls)
	}
	if len(hub.userNotes) != 1 || hub.userNotes[0].Type != enums.NotificationTypePaymentUpdate {
		t.Fatalf("expected payment update to the buyer, got %+v", hub.userNotes)
	}
}

func TestProcessPaymentFailedReleases(t *testing.T) {
	c, inv, _, _ := newTestConsumer(t)

	result := c.process(context.Background(), eventBytes(t, enums.EventPaymentFailed, oneItem()))
	if !result.ack {
		t.Fatalf("expected ack, got %+v", result)
	}
	if len(inv.calls) != 1 || inv.calls[0].kind != inventory.MutationRelease {
		t.Fatalf("expected release batch, got %+v", inv.calls)
	}
}

func TestProcessOrderCanceledReleases(t *testing.T) {
	c, inv, _, _ := newTestConsumer(t)

	result := c.process(context.Background(), eventBytes(t, enums.EventOrderCanceled, oneItem()))
	if !result.ack {
		t.Fatalf("expected ack, got %+v", result)
	}
	if len(inv.calls) != 1 || inv.calls[0].kind != inventory.MutationRelease {
		t.Fatalf("expected release batch, got %+v", inv.calls)
	}
}

func TestProcessDuplicateEventIsSkipped(t *testing.T) {
	c, inv, hub, _ := newTestConsumer(t)
	raw := eventBytes(t, enums.EventOrderPlaced, oneItem())

	first := c.process(context.Background(), raw)
	second := c.process(context.Background(), raw)
	if !first.ack || !second.ack {
		t.Fatalf("expected both deliveries to ack")
	}
	if len(inv.calls) != 1 {
		t.Fatalf("expected no reprocessing, got %d calls", len(inv.calls))
	}
	if len(hub.userNotes) != 1 {
		t.Fatalf("expected no duplicate notifications, got %d", len(hub.userNotes))
	}
}

func TestProcessPoisonEventAcks(t *testing.T) {
	c, inv, hub, guard := newTestConsumer(t)
	inv.err = pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock")

	result := c.process(context.Background(), eventBytes(t, enums.EventOrderPlaced, oneItem()))
	if !result.ack || result.nack {
		t.Fatalf("expected poison event to ack, got %+v", result)
	}
	if len(hub.userNotes) != 0 || len(hub.adminNotes) != 0 {
		t.Fatalf("expected no notifications on failure")
	}
	if len(guard.deleted) != 0 {
		t.Fatalf("expected guard kept for poison event")
	}
}

func TestProcessTransientFailureNacksAndClearsGuard(t *testing.T) {
	c, inv, _, guard := newTestConsumer(t)
	inv.err = pkgerrors.New(pkgerrors.CodeDependency, "database unavailable")

	result := c.process(context.Background(), eventBytes(t, enums.EventOrderPlaced, oneItem()))
	if !result.nack {
		t.Fatalf("expected nack, got %+v", result)
	}
	if len(guard.deleted) != 1 {
		t.Fatalf("expected guard cleared for retry, got %v", guard.deleted)
	}
}

func TestProcessUndecodableEventAcks(t *testing.T) {
	c, inv, _, _ := newTestConsumer(t)

	result := c.process(context.Background(), []byte(`{"type":"mystery"}`))
	if !result.ack {
		t.Fatalf("expected undecodable event to ack, got %+v", result)
	}
	if len(inv.calls) != 0 {
		t.Fatalf("expected no inventory calls, got %d", len(inv.calls))
	}
}

func TestDecodeOrderEventValidation(t *testing.T) {
	valid := OrderEvent{
		EventID: uuid.NewString(),
		Type:    enums.EventOrderPlaced,
		OrderID: uuid.New(),
		UserID:  uuid.New(),
		Items:   []OrderEventItem{oneItem()},
	}

	mutate := func(fn func(e *OrderEvent)) []byte {
		event := valid
		event.Items = append([]OrderEventItem(nil), valid.Items...)
		fn(&event)
		raw, _ := json.Marshal(event)
		return raw
	}

	cases := map[string][]byte{
		"missing event id": mutate(func(e *OrderEvent) { e.EventID = "" }),
		"unknown type":     mutate(func(e *OrderEvent) { e.Type = "order_teleported" }),
		"missing order id": mutate(func(e *OrderEvent) { e.OrderID = uuid.Nil }),
		"missing user id":  mutate(func(e *OrderEvent) { e.UserID = uuid.Nil }),
		"no items":         mutate(func(e *OrderEvent) { e.Items = nil }),
		"zero quantity":    mutate(func(e *OrderEvent) { e.Items[0].Quantity = 0 }),
	}
	for name, raw := range cases {
		if _, err := decodeOrderEvent(raw); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	raw, _ := json.Marshal(valid)
	if _, err := decodeOrderEvent(raw); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}
}

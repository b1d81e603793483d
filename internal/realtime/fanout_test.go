package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mfigueroa/stockroom-backend/pkg/enums"
)

func newTestFanout(t *testing.T) (*Fanout, *Registry) {
	t.Helper()
	registry := NewRegistry()
	return NewFanout(registry, 50, 100, nil, nil), registry
}

func registerUser(r *Registry, userID uuid.UUID) (*Connection, *fakeSocket) {
	sock := &fakeSocket{}
	conn := r.Add(sock, time.Now())
	r.Register(conn, &userID, false)
	return conn, sock
}

func registerAdmin(r *Registry) (*Connection, *fakeSocket) {
	sock := &fakeSocket{}
	conn := r.Add(sock, time.Now())
	r.Register(conn, nil, true)
	return conn, sock
}

func TestSendToUserDeliversToAllUserConnections(t *testing.T) {
	f, r := newTestFanout(t)
	userID := uuid.New()
	_, first := registerUser(r, userID)
	_, second := registerUser(r, userID)
	_, other := registerUser(r, uuid.New())

	f.SendToUser(context.Background(), userID, NewNotification(enums.NotificationTypeOrderUpdate, "Order shipped", "Your order is on the way"))

	if len(first.frames) != 1 || len(second.frames) != 1 {
		t.Fatalf("expected both user connections to receive, got %d and %d", len(first.frames), len(second.frames))
	}
	if len(other.frames) != 0 {
		t.Fatalf("expected other user to receive nothing, got %d", len(other.frames))
	}
	if first.frames[0].Type != MessageTypeNotification {
		t.Fatalf("expected notification frame, got %q", first.frames[0].Type)
	}
}

func TestSendToUserWithoutConnectionsOnlyRetains(t *testing.T) {
	f, _ := newTestFanout(t)
	userID := uuid.New()

	f.SendToUser(context.Background(), userID, NewNotification(enums.NotificationTypeOrderUpdate, "t", "m"))

	if got := f.UserHistoryLen(userID); got != 1 {
		t.Fatalf("expected history of 1, got %d", got)
	}
}

func TestUserHistoryEvictsOldest(t *testing.T) {
	registry := NewRegistry()
	f := NewFanout(registry, 3, 100, nil, nil)
	userID := uuid.New()

	for i := 0; i < 5; i++ {
		f.SendToUser(context.Background(), userID, NewNotification(enums.NotificationTypeOrderUpdate, "t", "m"))
	}

	if got := f.UserHistoryLen(userID); got != 3 {
		t.Fatalf("expected capped history of 3, got %d", got)
	}
	history := f.userHistory[userID]
	for i := 1; i < len(history); i++ {
		if history[i].seq <= history[i-1].seq {
			t.Fatalf("expected ascending seq order after eviction")
		}
	}
}

func TestAdminHistoryEvictsOldest(t *testing.T) {
	registry := NewRegistry()
	f := NewFanout(registry, 50, 2, nil, nil)

	for i := 0; i < 4; i++ {
		f.SendToAdmins(context.Background(), NewNotification(enums.NotificationTypeLowStock, "t", "m"))
	}

	if got := f.AdminHistoryLen(); got != 2 {
		t.Fatalf("expected capped admin history of 2, got %d", got)
	}
}

func TestSendToAdminsSkipsNonAdmins(t *testing.T) {
	f, r := newTestFanout(t)
	_, adminSock := registerAdmin(r)
	_, userSock := registerUser(r, uuid.New())

	f.SendToAdmins(context.Background(), NewNotification(enums.NotificationTypeLowStock, "Low stock", "sku running out"))

	if len(adminSock.frames) != 1 {
		t.Fatalf("expected admin to receive 1 frame, got %d", len(adminSock.frames))
	}
	if len(userSock.frames) != 0 {
		t.Fatalf("expected user to receive nothing, got %d", len(userSock.frames))
	}
}

func TestBroadcastReachesEveryoneAndIsNotRetained(t *testing.T) {
	f, r := newTestFanout(t)
	userID := uuid.New()
	_, userSock := registerUser(r, userID)
	_, adminSock := registerAdmin(r)
	anon := &fakeSocket{}
	r.Add(anon, time.Now())

	f.Broadcast(context.Background(), NewNotification(enums.NotificationTypeSystem, "Maintenance", "tonight"))

	for name, sock := range map[string]*fakeSocket{"user": userSock, "admin": adminSock, "anonymous": anon} {
		if len(sock.frames) != 1 {
			t.Fatalf("expected %s connection to receive broadcast, got %d frames", name, len(sock.frames))
		}
		if sock.frames[0].Type != MessageTypeBroadcast {
			t.Fatalf("expected broadcast frame, got %q", sock.frames[0].Type)
		}
	}
	if f.UserHistoryLen(userID) != 0 || f.AdminHistoryLen() != 0 {
		t.Fatalf("expected broadcasts to leave histories untouched")
	}
}

func TestPushSkipsDeadSocketAndUnregisters(t *testing.T) {
	f, r := newTestFanout(t)
	userID := uuid.New()
	conn, sock := registerUser(r, userID)
	sock.writeErr = errSocketClosed

	var removed *Connection
	f.OnDeadSocket(func(c *Connection) { removed = c })

	f.SendToUser(context.Background(), userID, NewNotification(enums.NotificationTypeOrderUpdate, "t", "m"))

	if removed == nil || removed.ID != conn.ID {
		t.Fatalf("expected dead socket callback for the failing connection")
	}
	if !conn.closed {
		t.Fatalf("expected connection to be marked closed")
	}
	if got := f.UserHistoryLen(userID); got != 1 {
		t.Fatalf("expected notification to be retained despite failed push, got %d", got)
	}
}

func TestReplayUserSendsUnreadBacklogOnce(t *testing.T) {
	f, r := newTestFanout(t)
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		f.SendToUser(context.Background(), userID, NewNotification(enums.NotificationTypeOrderUpdate, "t", "m"))
	}

	conn, sock := registerUser(r, userID)
	f.ReplayUser(context.Background(), conn)

	if len(sock.frames) != 1 {
		t.Fatalf("expected a single replay frame, got %d", len(sock.frames))
	}
	frame := sock.frames[0]
	if frame.Type != MessageTypeUnreadNotification {
		t.Fatalf("expected unread_notifications frame, got %q", frame.Type)
	}
	backlog, ok := frame.Data.([]Notification)
	if !ok {
		t.Fatalf("expected []Notification payload, got %T", frame.Data)
	}
	if len(backlog) != 3 {
		t.Fatalf("expected 3 unread notifications, got %d", len(backlog))
	}

	// Replaying again without new notifications sends nothing.
	f.ReplayUser(context.Background(), conn)
	if len(sock.frames) != 1 {
		t.Fatalf("expected no duplicate replay, got %d frames", len(sock.frames))
	}
}

func TestReplayUserSkipsAlreadyDelivered(t *testing.T) {
	f, r := newTestFanout(t)
	userID := uuid.New()
	conn, sock := registerUser(r, userID)

	// Delivered live, watermark advances with the push.
	f.SendToUser(context.Background(), userID, NewNotification(enums.NotificationTypeOrderUpdate, "t", "m"))
	if len(sock.frames) != 1 {
		t.Fatalf("expected live delivery, got %d frames", len(sock.frames))
	}

	f.ReplayUser(context.Background(), conn)
	if len(sock.frames) != 1 {
		t.Fatalf("expected replay to skip live-delivered notifications, got %d frames", len(sock.frames))
	}
}

func TestReplayUserAfterIdentitySwitch(t *testing.T) {
	f, r := newTestFanout(t)
	userA := uuid.New()
	userB := uuid.New()

	// B accumulates unread history while nobody is connected.
	f.SendToUser(context.Background(), userB, NewNotification(enums.NotificationTypeOrderUpdate, "t", "m"))

	conn, sock := registerUser(r, userA)
	f.SendToUser(context.Background(), userA, NewNotification(enums.NotificationTypeOrderUpdate, "t", "m"))
	if len(sock.frames) != 1 {
		t.Fatalf("expected live delivery to the first identity, got %d frames", len(sock.frames))
	}

	// Re-registering as B must not inherit A's watermark.
	r.Register(conn, &userB, false)
	f.ReplayUser(context.Background(), conn)

	if len(sock.frames) != 2 {
		t.Fatalf("expected backlog replay after identity switch, got %d frames", len(sock.frames))
	}
	frame := sock.frames[1]
	if frame.Type != MessageTypeUnreadNotification {
		t.Fatalf("expected unread_notifications frame, got %q", frame.Type)
	}
	backlog, ok := frame.Data.([]Notification)
	if !ok || len(backlog) != 1 {
		t.Fatalf("expected 1 replayed notification, got %v", frame.Data)
	}

	// Re-registering as B again keeps the watermark, so nothing repeats.
	r.Register(conn, &userB, false)
	f.ReplayUser(context.Background(), conn)
	if len(sock.frames) != 2 {
		t.Fatalf("expected no duplicate replay for same identity, got %d frames", len(sock.frames))
	}
}

func TestReplayAdminSendsRecentBacklog(t *testing.T) {
	f, r := newTestFanout(t)

	f.SendToAdmins(context.Background(), NewNotification(enums.NotificationTypeLowStock, "t", "m"))
	f.SendToAdmins(context.Background(), NewNotification(enums.NotificationTypeOutOfStock, "t", "m"))

	conn, sock := registerAdmin(r)
	f.ReplayAdmin(context.Background(), conn)

	if len(sock.frames) != 1 {
		t.Fatalf("expected a single replay frame, got %d", len(sock.frames))
	}
	if sock.frames[0].Type != MessageTypeAdminNotification {
		t.Fatalf("expected admin_notifications frame, got %q", sock.frames[0].Type)
	}
	backlog, ok := sock.frames[0].Data.([]Notification)
	if !ok || len(backlog) != 2 {
		t.Fatalf("expected 2 replayed admin notifications, got %v", sock.frames[0].Data)
	}

	f.ReplayAdmin(context.Background(), conn)
	if len(sock.frames) != 1 {
		t.Fatalf("expected no duplicate admin replay, got %d frames", len(sock.frames))
	}
}

func TestPongAnswersPing(t *testing.T) {
	f, r := newTestFanout(t)
	sock := &fakeSocket{}
	conn := r.Add(sock, time.Now())

	f.Pong(context.Background(), conn)

	if len(sock.frames) != 1 || sock.frames[0].Type != MessageTypePong {
		t.Fatalf("expected a pong frame")
	}
}

package realtime

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mfigueroa/stockroom-backend/pkg/config"
	"github.com/mfigueroa/stockroom-backend/pkg/enums"
)

func newTestHub() *Hub {
	return NewHub(config.RealtimeConfig{
		UserHistoryCap:  50,
		AdminHistoryCap: 100,
		IdleTimeout:     15 * time.Minute,
		SweepInterval:   time.Minute,
	}, nil, nil)
}

func attachSync(h *Hub, sock Socket) *Connection {
	reply := make(chan *Connection, 1)
	h.dispatch(context.Background(), attachEvent{sock: sock, reply: reply})
	return <-reply
}

func registerFrame(userID *uuid.UUID, role string) []byte {
	if userID != nil {
		return []byte(fmt.Sprintf(`{"type":"register","data":{"id":%q,"role":%q}}`, userID.String(), role))
	}
	return []byte(fmt.Sprintf(`{"type":"register","data":{"role":%q}}`, role))
}

func TestHubRegisterBindsIdentityAndReplays(t *testing.T) {
	h := newTestHub()
	ctx := context.Background()
	userID := uuid.New()

	// Notification arrives while the user is offline.
	h.dispatch(ctx, sendUserEvent{userID: userID, notification: NewNotification(enums.NotificationTypeOrderUpdate, "t", "m")})

	sock := &fakeSocket{}
	conn := attachSync(h, sock)
	h.dispatch(ctx, inboundEvent{connID: conn.ID, raw: registerFrame(&userID, "customer")})

	frames := sock.snapshot()
	if len(frames) != 1 || frames[0].Type != MessageTypeUnreadNotification {
		t.Fatalf("expected unread replay after register, got %+v", frames)
	}
}

func TestHubAdminRegisterReplaysAdminBacklog(t *testing.T) {
	h := newTestHub()
	ctx := context.Background()

	h.dispatch(ctx, sendAdminsEvent{notification: NewNotification(enums.NotificationTypeLowStock, "t", "m")})

	sock := &fakeSocket{}
	conn := attachSync(h, sock)
	h.dispatch(ctx, inboundEvent{connID: conn.ID, raw: registerFrame(nil, "admin")})

	frames := sock.snapshot()
	if len(frames) != 1 || frames[0].Type != MessageTypeAdminNotification {
		t.Fatalf("expected admin replay after register, got %+v", frames)
	}
}

func TestHubPingAnswersPong(t *testing.T) {
	h := newTestHub()
	ctx := context.Background()

	sock := &fakeSocket{}
	conn := attachSync(h, sock)
	h.dispatch(ctx, inboundEvent{connID: conn.ID, raw: []byte(`{"type":"ping"}`)})

	frames := sock.snapshot()
	if len(frames) != 1 || frames[0].Type != MessageTypePong {
		t.Fatalf("expected pong, got %+v", frames)
	}
}

func TestHubIgnoresMalformedFrames(t *testing.T) {
	h := newTestHub()
	ctx := context.Background()

	sock := &fakeSocket{}
	conn := attachSync(h, sock)
	h.dispatch(ctx, inboundEvent{connID: conn.ID, raw: []byte(`{"type":"shutdown"}`)})
	h.dispatch(ctx, inboundEvent{connID: conn.ID, raw: []byte(`not json`)})
	h.dispatch(ctx, inboundEvent{connID: conn.ID, raw: registerFrame(nil, "customer")})

	if frames := sock.snapshot(); len(frames) != 0 {
		t.Fatalf("expected no frames for malformed input, got %+v", frames)
	}
	if h.registry.Get(conn.ID) == nil {
		t.Fatalf("expected connection to survive malformed frames")
	}
}

func TestHubInboundTouchesActivity(t *testing.T) {
	h := newTestHub()
	ctx := context.Background()

	base := time.Now()
	h.now = func() time.Time { return base.Add(-20 * time.Minute) }
	sock := &fakeSocket{}
	conn := attachSync(h, sock)

	h.now = func() time.Time { return base }
	h.dispatch(ctx, inboundEvent{connID: conn.ID, raw: []byte(`{"type":"ping"}`)})
	h.dispatch(ctx, sweepEvent{})

	if h.registry.Get(conn.ID) == nil {
		t.Fatalf("expected active connection to survive sweep")
	}
}

func TestHubSweepClosesIdleConnections(t *testing.T) {
	h := newTestHub()
	ctx := context.Background()

	base := time.Now()
	h.now = func() time.Time { return base.Add(-20 * time.Minute) }
	sock := &fakeSocket{}
	conn := attachSync(h, sock)

	h.now = func() time.Time { return base }
	h.dispatch(ctx, sweepEvent{})

	if h.registry.Get(conn.ID) != nil {
		t.Fatalf("expected idle connection to be removed")
	}
	if !sock.isClosed() {
		t.Fatalf("expected idle socket to be closed")
	}
}

func TestHubRemovesConnectionWhenWriteFails(t *testing.T) {
	h := newTestHub()
	ctx := context.Background()
	userID := uuid.New()

	sock := &fakeSocket{writeErr: errSocketClosed}
	conn := attachSync(h, sock)
	h.registry.Register(conn, &userID, false)

	h.dispatch(ctx, sendUserEvent{userID: userID, notification: NewNotification(enums.NotificationTypeOrderUpdate, "t", "m")})

	if h.registry.Get(conn.ID) != nil {
		t.Fatalf("expected failing connection to be removed")
	}
}

func TestHubBroadcastEvent(t *testing.T) {
	h := newTestHub()
	ctx := context.Background()

	first := &fakeSocket{}
	second := &fakeSocket{}
	attachSync(h, first)
	attachSync(h, second)

	h.dispatch(ctx, broadcastEvent{notification: NewNotification(enums.NotificationTypeSystem, "t", "m")})

	if len(first.snapshot()) != 1 || len(second.snapshot()) != 1 {
		t.Fatalf("expected broadcast to reach both connections")
	}
}

func TestHubRunDeliversEndToEnd(t *testing.T) {
	h := newTestHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	userID := uuid.New()
	sock := &fakeSocket{}
	conn, err := h.Attach(ctx, sock)
	if err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	h.Inbound(ctx, conn.ID, registerFrame(&userID, "customer"))
	h.SendToUser(ctx, userID, NewNotification(enums.NotificationTypeOrderUpdate, "Order shipped", "on its way"))

	deadline := time.After(2 * time.Second)
	for {
		frames := sock.snapshot()
		if len(frames) == 1 && frames[0].Type == MessageTypeNotification {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for delivery, frames: %+v", frames)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

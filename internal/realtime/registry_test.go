package realtime

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeSocket struct {
	mu       sync.Mutex
	frames   []OutboundEnvelope
	writeErr error
	closed   bool
}

func (s *fakeSocket) WriteJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	if env, ok := v.(OutboundEnvelope); ok {
		s.frames = append(s.frames, env)
	}
	return nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSocket) snapshot() []OutboundEnvelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]OutboundEnvelope(nil), s.frames...)
}

func (s *fakeSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestRegistryAddAndRegister(t *testing.T) {
	r := NewRegistry()
	now := time.Now()

	conn := r.Add(&fakeSocket{}, now)
	if conn.Registered() {
		t.Fatalf("expected fresh connection to be unregistered")
	}
	if got := r.Len(); got != 1 {
		t.Fatalf("expected 1 connection, got %d", got)
	}

	userID := uuid.New()
	r.Register(conn, &userID, false)
	if !conn.Registered() {
		t.Fatalf("expected connection to be registered")
	}
	if conn.UserID() == nil || *conn.UserID() != userID {
		t.Fatalf("expected bound user %s, got %v", userID, conn.UserID())
	}

	found := r.FindByUser(userID)
	if len(found) != 1 || found[0].ID != conn.ID {
		t.Fatalf("expected to find connection by user")
	}
}

func TestRegistryReRegisterOverwritesIdentity(t *testing.T) {
	r := NewRegistry()
	conn := r.Add(&fakeSocket{}, time.Now())

	first := uuid.New()
	second := uuid.New()
	r.Register(conn, &first, false)
	r.Register(conn, &second, true)

	if len(r.FindByUser(first)) != 0 {
		t.Fatalf("expected old identity to be forgotten")
	}
	if len(r.FindByUser(second)) != 1 {
		t.Fatalf("expected new identity to be bound")
	}
	if len(r.FindAdmins()) != 1 {
		t.Fatalf("expected connection to be an admin")
	}
}

func TestRegistryMultipleConnectionsPerUser(t *testing.T) {
	r := NewRegistry()
	userID := uuid.New()
	for i := 0; i < 3; i++ {
		conn := r.Add(&fakeSocket{}, time.Now())
		r.Register(conn, &userID, false)
	}

	if got := len(r.FindByUser(userID)); got != 3 {
		t.Fatalf("expected 3 connections for user, got %d", got)
	}
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	conn := r.Add(&fakeSocket{}, time.Now())

	r.Remove(conn.ID)
	if r.Get(conn.ID) != nil {
		t.Fatalf("expected connection to be gone")
	}
	if got := r.Len(); got != 0 {
		t.Fatalf("expected empty registry, got %d", got)
	}
}

func TestRegistrySweepIdle(t *testing.T) {
	r := NewRegistry()
	now := time.Now()

	idle := r.Add(&fakeSocket{}, now.Add(-20*time.Minute))
	fresh := r.Add(&fakeSocket{}, now)

	swept := r.SweepIdle(now.Add(-15 * time.Minute))
	if len(swept) != 1 || swept[0].ID != idle.ID {
		t.Fatalf("expected only the idle connection to be swept")
	}
	if r.Get(idle.ID) != nil {
		t.Fatalf("expected swept connection to be removed")
	}
	if r.Get(fresh.ID) == nil {
		t.Fatalf("expected fresh connection to survive")
	}
}

func TestRegistrySweepSparesRecentlyActive(t *testing.T) {
	r := NewRegistry()
	now := time.Now()

	conn := r.Add(&fakeSocket{}, now.Add(-20*time.Minute))
	conn.Touch(now)

	if swept := r.SweepIdle(now.Add(-15 * time.Minute)); len(swept) != 0 {
		t.Fatalf("expected no sweeps after activity, got %d", len(swept))
	}
}

func TestRegistryCounts(t *testing.T) {
	r := NewRegistry()
	userID := uuid.New()

	userConn := r.Add(&fakeSocket{}, time.Now())
	r.Register(userConn, &userID, false)
	adminConn := r.Add(&fakeSocket{}, time.Now())
	r.Register(adminConn, nil, true)
	r.Add(&fakeSocket{}, time.Now())

	users, admins := r.Counts()
	if users != 2 || admins != 1 {
		t.Fatalf("expected 2 users and 1 admin, got %d and %d", users, admins)
	}
}

var errSocketClosed = errors.New("socket closed")

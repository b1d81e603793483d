package realtime

import (
	"time"

	"github.com/google/uuid"
)

// Socket abstracts the transport write surface so the hub can be tested
// without a network connection.
type Socket interface {
	WriteJSON(v any) error
	Close() error
}

// Connection is a live socket plus its declared identity. All fields are
// owned by the hub dispatcher goroutine; nothing here is safe for
// concurrent use.
type Connection struct {
	ID           uuid.UUID
	sock         Socket
	userID       *uuid.UUID
	isAdmin      bool
	registered   bool
	closed       bool
	lastActivity time.Time

	// replay watermarks; deliveries at or below these were already sent.
	lastUserSeq  uint64
	lastAdminSeq uint64
}

// UserID returns the bound user identity, if any.
func (c *Connection) UserID() *uuid.UUID {
	return c.userID
}

// IsAdmin reports whether the connection registered as an admin.
func (c *Connection) IsAdmin() bool {
	return c.isAdmin
}

// Registered reports whether a register message was accepted.
func (c *Connection) Registered() bool {
	return c.registered
}

// Touch records inbound activity for the idle sweep.
func (c *Connection) Touch(now time.Time) {
	c.lastActivity = now
}

func (c *Connection) markClosed() {
	c.closed = true
}

// Registry tracks live connections and their identities. It is owned by
// the hub dispatcher goroutine and performs no locking of its own.
type Registry struct {
	conns map[uuid.UUID]*Connection
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: map[uuid.UUID]*Connection{}}
}

// Add creates a Connection for a freshly opened socket.
func (r *Registry) Add(sock Socket, now time.Time) *Connection {
	conn := &Connection{
		ID:           uuid.New(),
		sock:         sock,
		lastActivity: now,
	}
	r.conns[conn.ID] = conn
	return conn
}

// Register binds an identity to the connection. Re-registration overwrites
// the prior identity, which supports admins switching contexts. Watermarks
// only carry over for a same-identity re-register; a new identity starts
// from zero so its unread backlog is not mistaken for already delivered.
func (r *Registry) Register(conn *Connection, userID *uuid.UUID, isAdmin bool) {
	if conn == nil {
		return
	}
	if !sameUser(conn.userID, userID) {
		conn.lastUserSeq = 0
	}
	if conn.isAdmin != isAdmin {
		conn.lastAdminSeq = 0
	}
	conn.userID = userID
	conn.isAdmin = isAdmin
	conn.registered = true
}

func sameUser(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Remove drops the connection from the registry.
func (r *Registry) Remove(connID uuid.UUID) {
	delete(r.conns, connID)
}

// Get returns the tracked connection, or nil.
func (r *Registry) Get(connID uuid.UUID) *Connection {
	return r.conns[connID]
}

// FindByUser returns every open connection registered for the user.
func (r *Registry) FindByUser(userID uuid.UUID) []*Connection {
	var matched []*Connection
	for _, conn := range r.conns {
		if conn.closed || conn.userID == nil {
			continue
		}
		if *conn.userID == userID {
			matched = append(matched, conn)
		}
	}
	return matched
}

// FindAdmins returns every open admin-flagged connection.
func (r *Registry) FindAdmins() []*Connection {
	var matched []*Connection
	for _, conn := range r.conns {
		if conn.closed || !conn.isAdmin {
			continue
		}
		matched = append(matched, conn)
	}
	return matched
}

// All returns every open connection regardless of identity.
func (r *Registry) All() []*Connection {
	var conns []*Connection
	for _, conn := range r.conns {
		if conn.closed {
			continue
		}
		conns = append(conns, conn)
	}
	return conns
}

// Len returns the number of tracked connections.
func (r *Registry) Len() int {
	return len(r.conns)
}

// Counts returns non-admin and admin connection counts.
func (r *Registry) Counts() (users int, admins int) {
	for _, conn := range r.conns {
		if conn.closed {
			continue
		}
		if conn.isAdmin {
			admins++
		} else {
			users++
		}
	}
	return users, admins
}

// SweepIdle removes and returns connections whose last activity predates
// the cutoff. Best-effort liveness cleanup, not a heartbeat protocol.
func (r *Registry) SweepIdle(cutoff time.Time) []*Connection {
	var swept []*Connection
	for id, conn := range r.conns {
		if conn.lastActivity.Before(cutoff) {
			delete(r.conns, id)
			conn.markClosed()
			swept = append(swept, conn)
		}
	}
	return swept
}

package realtime

import (
	"context"

	"github.com/google/uuid"

	"github.com/mfigueroa/stockroom-backend/pkg/logger"
	"github.com/mfigueroa/stockroom-backend/pkg/metrics"
)

const (
	channelUser      = "user"
	channelAdmin     = "admin"
	channelBroadcast = "broadcast"
	channelReplay    = "replay"
)

type storedNotification struct {
	seq uint64
	n   Notification
}

// Fanout pushes notifications to live connections and keeps bounded
// in-memory histories for reconnect replay. Delivery is best-effort,
// at-most-once: a write to a dead socket is skipped, never retried, and
// everything here is lost on process restart. Like the registry, it is
// owned by the hub dispatcher goroutine.
type Fanout struct {
	registry     *Registry
	userHistory  map[uuid.UUID][]storedNotification
	adminHistory []storedNotification
	userCap      int
	adminCap     int
	seq          uint64

	// onDeadSocket lets the hub unregister connections whose writes fail.
	onDeadSocket func(*Connection)

	logg    *logger.Logger
	metrics *metrics.RealtimeMetrics
}

// NewFanout builds a fanout over the provided registry.
func NewFanout(registry *Registry, userCap, adminCap int, logg *logger.Logger, m *metrics.RealtimeMetrics) *Fanout {
	if userCap <= 0 {
		userCap = 50
	}
	if adminCap <= 0 {
		adminCap = 100
	}
	return &Fanout{
		registry:    registry,
		userHistory: map[uuid.UUID][]storedNotification{},
		userCap:     userCap,
		adminCap:    adminCap,
		logg:        logg,
		metrics:     m,
	}
}

// OnDeadSocket registers a callback invoked when a push hits a closed socket.
func (f *Fanout) OnDeadSocket(fn func(*Connection)) {
	f.onDeadSocket = fn
}

// SendToUser appends to the user's bounded history, then pushes to every
// open connection registered for that user.
func (f *Fanout) SendToUser(ctx context.Context, userID uuid.UUID, n Notification) {
	n.UserID = &userID
	stored := storedNotification{seq: f.nextSeq(), n: n}
	history := append(f.userHistory[userID], stored)
	if len(history) > f.userCap {
		history = history[len(history)-f.userCap:]
	}
	f.userHistory[userID] = history

	for _, conn := range f.registry.FindByUser(userID) {
		if f.push(ctx, conn, NewOutbound(MessageTypeNotification, stored.n), channelUser) {
			conn.lastUserSeq = stored.seq
		}
	}
}

// SendToAdmins appends to the admin history, then pushes to every
// admin-flagged connection.
func (f *Fanout) SendToAdmins(ctx context.Context, n Notification) {
	stored := storedNotification{seq: f.nextSeq(), n: n}
	f.adminHistory = append(f.adminHistory, stored)
	if len(f.adminHistory) > f.adminCap {
		f.adminHistory = f.adminHistory[len(f.adminHistory)-f.adminCap:]
	}

	for _, conn := range f.registry.FindAdmins() {
		if f.push(ctx, conn, NewOutbound(MessageTypeNotification, stored.n), channelAdmin) {
			conn.lastAdminSeq = stored.seq
		}
	}
}

// Broadcast pushes to every open connection regardless of identity.
// Broadcasts are not retained in any history.
func (f *Fanout) Broadcast(ctx context.Context, n Notification) {
	for _, conn := range f.registry.All() {
		f.push(ctx, conn, NewOutbound(MessageTypeBroadcast, n), channelBroadcast)
	}
}

// ReplayUser sends the connection's unread backlog for its bound user.
// A second registration from the same connection replays nothing unless
// new notifications arrived in between.
func (f *Fanout) ReplayUser(ctx context.Context, conn *Connection) {
	if conn == nil || conn.userID == nil {
		return
	}
	var backlog []Notification
	var highest uint64
	for _, stored := range f.userHistory[*conn.userID] {
		if stored.seq <= conn.lastUserSeq || stored.n.Read {
			continue
		}
		backlog = append(backlog, stored.n)
		highest = stored.seq
	}
	if len(backlog) == 0 {
		return
	}
	if f.push(ctx, conn, NewOutbound(MessageTypeUnreadNotification, backlog), channelReplay) {
		conn.lastUserSeq = highest
	}
}

// ReplayAdmin sends the recent admin backlog to a newly registered admin.
func (f *Fanout) ReplayAdmin(ctx context.Context, conn *Connection) {
	if conn == nil || !conn.isAdmin {
		return
	}
	var backlog []Notification
	var highest uint64
	for _, stored := range f.adminHistory {
		if stored.seq <= conn.lastAdminSeq {
			continue
		}
		backlog = append(backlog, stored.n)
		highest = stored.seq
	}
	if len(backlog) == 0 {
		return
	}
	if f.push(ctx, conn, NewOutbound(MessageTypeAdminNotification, backlog), channelReplay) {
		conn.lastAdminSeq = highest
	}
}

// Pong answers a client liveness probe.
func (f *Fanout) Pong(ctx context.Context, conn *Connection) {
	f.push(ctx, conn, NewOutbound(MessageTypePong, nil), channelUser)
}

// UserHistoryLen reports the retained history size for a user.
func (f *Fanout) UserHistoryLen(userID uuid.UUID) int {
	return len(f.userHistory[userID])
}

// AdminHistoryLen reports the retained admin history size.
func (f *Fanout) AdminHistoryLen() int {
	return len(f.adminHistory)
}

func (f *Fanout) nextSeq() uint64 {
	f.seq++
	return f.seq
}

// push writes one envelope to one socket. Failures are swallowed: the
// connection is marked dead and handed to the hub for cleanup.
func (f *Fanout) push(ctx context.Context, conn *Connection, envelope OutboundEnvelope, channel string) bool {
	if conn == nil || conn.closed || conn.sock == nil {
		f.dropped(channel)
		return false
	}
	if err := conn.sock.WriteJSON(envelope); err != nil {
		conn.markClosed()
		f.dropped(channel)
		if f.logg != nil {
			f.logg.Debug(f.logg.WithConnectionID(ctx, conn.ID.String()), "skipping push to dead socket")
		}
		if f.onDeadSocket != nil {
			f.onDeadSocket(conn)
		}
		return false
	}
	if f.metrics != nil {
		f.metrics.IncDelivered(channel)
	}
	return true
}

func (f *Fanout) dropped(channel string) {
	if f.metrics != nil {
		f.metrics.IncDropped(channel)
	}
}

package realtime

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mfigueroa/stockroom-backend/pkg/config"
	"github.com/mfigueroa/stockroom-backend/pkg/logger"
	"github.com/mfigueroa/stockroom-backend/pkg/metrics"
)

// event is the closed set of commands the dispatcher consumes.
type event interface {
	apply(ctx context.Context, h *Hub)
}

type attachEvent struct {
	sock  Socket
	reply chan *Connection
}

type detachEvent struct {
	connID uuid.UUID
}

type inboundEvent struct {
	connID uuid.UUID
	raw    []byte
}

type sendUserEvent struct {
	userID       uuid.UUID
	notification Notification
}

type sendAdminsEvent struct {
	notification Notification
}

type broadcastEvent struct {
	notification Notification
}

type sweepEvent struct{}

// Hub routes notifications between producers and websocket connections.
// All registry and fanout state is touched only by the dispatcher
// goroutine running in Run, so none of it carries locks. Producers and
// socket read loops talk to the hub exclusively through the event channel.
type Hub struct {
	cfg      config.RealtimeConfig
	registry *Registry
	fanout   *Fanout
	events   chan event
	now      func() time.Time

	logg    *logger.Logger
	metrics *metrics.RealtimeMetrics
}

// NewHub wires a hub with its own registry and fanout.
func NewHub(cfg config.RealtimeConfig, logg *logger.Logger, m *metrics.RealtimeMetrics) *Hub {
	registry := NewRegistry()
	fanout := NewFanout(registry, cfg.UserHistoryCap, cfg.AdminHistoryCap, logg, m)
	h := &Hub{
		cfg:      cfg,
		registry: registry,
		fanout:   fanout,
		events:   make(chan event, 256),
		now:      time.Now,
		logg:     logg,
		metrics:  m,
	}
	fanout.OnDeadSocket(func(conn *Connection) {
		h.registry.Remove(conn.ID)
		h.reportConnections()
	})
	return h
}

// Run consumes events until the context is canceled. It also owns the
// idle sweep ticker, so sweeps are serialized with everything else.
func (h *Hub) Run(ctx context.Context) {
	interval := h.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll(ctx)
			return
		case <-ticker.C:
			h.dispatch(ctx, sweepEvent{})
		case ev := <-h.events:
			h.dispatch(ctx, ev)
		}
	}
}

// dispatch applies one event. Only the Run goroutine and tests call it.
func (h *Hub) dispatch(ctx context.Context, ev event) {
	ev.apply(ctx, h)
}

// Attach hands a freshly upgraded socket to the hub and blocks until the
// dispatcher has admitted it.
func (h *Hub) Attach(ctx context.Context, sock Socket) (*Connection, error) {
	reply := make(chan *Connection, 1)
	if err := h.enqueue(ctx, attachEvent{sock: sock, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case conn := <-reply:
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Detach removes a connection, typically after its read loop exits.
func (h *Hub) Detach(ctx context.Context, connID uuid.UUID) {
	_ = h.enqueue(ctx, detachEvent{connID: connID})
}

// Inbound forwards a raw client frame to the dispatcher.
func (h *Hub) Inbound(ctx context.Context, connID uuid.UUID, raw []byte) {
	_ = h.enqueue(ctx, inboundEvent{connID: connID, raw: raw})
}

// SendToUser delivers a notification to every connection of one user.
func (h *Hub) SendToUser(ctx context.Context, userID uuid.UUID, n Notification) {
	_ = h.enqueue(ctx, sendUserEvent{userID: userID, notification: n})
}

// SendToAdmins delivers a notification to every admin connection.
func (h *Hub) SendToAdmins(ctx context.Context, n Notification) {
	_ = h.enqueue(ctx, sendAdminsEvent{notification: n})
}

// Broadcast delivers a notification to every open connection.
func (h *Hub) Broadcast(ctx context.Context, n Notification) {
	_ = h.enqueue(ctx, broadcastEvent{notification: n})
}

func (h *Hub) enqueue(ctx context.Context, ev event) error {
	select {
	case h.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (ev attachEvent) apply(ctx context.Context, h *Hub) {
	conn := h.registry.Add(ev.sock, h.now())
	h.reportConnections()
	ev.reply <- conn
}

func (ev detachEvent) apply(ctx context.Context, h *Hub) {
	h.registry.Remove(ev.connID)
	h.reportConnections()
}

func (ev inboundEvent) apply(ctx context.Context, h *Hub) {
	conn := h.registry.Get(ev.connID)
	if conn == nil || conn.closed {
		return
	}
	conn.Touch(h.now())

	msg, err := DecodeInbound(ev.raw)
	if err != nil {
		if h.logg != nil {
			h.logg.Debug(h.logg.WithConnectionID(ctx, conn.ID.String()), "dropping malformed client frame")
		}
		return
	}

	switch m := msg.(type) {
	case PingMessage:
		h.fanout.Pong(ctx, conn)
	case RegisterMessage:
		h.registry.Register(conn, m.UserID, m.IsAdmin)
		h.reportConnections()
		if conn.userID != nil {
			h.fanout.ReplayUser(ctx, conn)
		}
		if conn.isAdmin {
			h.fanout.ReplayAdmin(ctx, conn)
		}
	}
}

func (ev sendUserEvent) apply(ctx context.Context, h *Hub) {
	h.fanout.SendToUser(ctx, ev.userID, ev.notification)
}

func (ev sendAdminsEvent) apply(ctx context.Context, h *Hub) {
	h.fanout.SendToAdmins(ctx, ev.notification)
}

func (ev broadcastEvent) apply(ctx context.Context, h *Hub) {
	h.fanout.Broadcast(ctx, ev.notification)
}

func (sweepEvent) apply(ctx context.Context, h *Hub) {
	idle := h.cfg.IdleTimeout
	if idle <= 0 {
		idle = 15 * time.Minute
	}
	swept := h.registry.SweepIdle(h.now().Add(-idle))
	if len(swept) == 0 {
		return
	}
	for _, conn := range swept {
		if conn.sock != nil {
			_ = conn.sock.Close()
		}
	}
	if h.metrics != nil {
		h.metrics.IncSwept(len(swept))
	}
	h.reportConnections()
	if h.logg != nil {
		h.logg.Info(h.logg.WithField(ctx, "count", len(swept)), "swept idle websocket connections")
	}
}

func (h *Hub) closeAll(ctx context.Context) {
	for _, conn := range h.registry.All() {
		if conn.sock != nil {
			_ = conn.sock.Close()
		}
		h.registry.Remove(conn.ID)
	}
	h.reportConnections()
}

func (h *Hub) reportConnections() {
	if h.metrics == nil {
		return
	}
	users, admins := h.registry.Counts()
	h.metrics.SetConnections("customer", users)
	h.metrics.SetConnections("admin", admins)
}

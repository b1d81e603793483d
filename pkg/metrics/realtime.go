package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RealtimeMetrics records websocket hub activity.
type RealtimeMetrics struct {
	connections *prometheus.GaugeVec
	delivered   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	swept       prometheus.Counter
}

// NewRealtimeMetrics registers the hub metrics on the provided registerer.
func NewRealtimeMetrics(reg prometheus.Registerer) *RealtimeMetrics {
	if reg == nil {
		return &RealtimeMetrics{}
	}
	connections := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "realtime_open_connections",
		Help: "Currently open websocket connections.",
	}, []string{"role"})
	delivered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_notifications_delivered",
		Help: "Notifications pushed to live connections.",
	}, []string{"channel"})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_notifications_dropped",
		Help: "Notification pushes skipped because the socket was closed.",
	}, []string{"channel"})
	swept := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realtime_idle_connections_swept",
		Help: "Connections removed by the idle sweep.",
	})
	reg.MustRegister(connections, delivered, dropped, swept)
	return &RealtimeMetrics{
		connections: connections,
		delivered:   delivered,
		dropped:     dropped,
		swept:       swept,
	}
}

// SetConnections records the number of open connections for a role.
func (m *RealtimeMetrics) SetConnections(role string, count int) {
	if m == nil || m.connections == nil {
		return
	}
	m.connections.WithLabelValues(normalizeLabel(role)).Set(float64(count))
}

// IncDelivered counts a successful push on the named channel.
func (m *RealtimeMetrics) IncDelivered(channel string) {
	if m == nil || m.delivered == nil {
		return
	}
	m.delivered.WithLabelValues(normalizeLabel(channel)).Inc()
}

// IncDropped counts a push skipped due to a dead socket.
func (m *RealtimeMetrics) IncDropped(channel string) {
	if m == nil || m.dropped == nil {
		return
	}
	m.dropped.WithLabelValues(normalizeLabel(channel)).Inc()
}

// IncSwept counts idle connections removed by the sweeper.
func (m *RealtimeMetrics) IncSwept(count int) {
	if m == nil || m.swept == nil || count <= 0 {
		return
	}
	m.swept.Add(float64(count))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

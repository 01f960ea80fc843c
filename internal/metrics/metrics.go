// Package metrics exposes Prometheus instrumentation for the real-time core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ActiveConnections tracks currently open websocket connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "parley",
		Name:      "websocket_connections_active",
		Help:      "Number of currently open websocket connections.",
	})

	// PresenceTransitions counts genuine online/offline edges by direction.
	PresenceTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parley",
		Name:      "presence_transitions_total",
		Help:      "Presence state transitions by direction (online/offline).",
	}, []string{"direction"})

	// MessagesSent counts persisted messages by read state at send time.
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parley",
		Name:      "messages_sent_total",
		Help:      "Messages persisted, labeled by read state at send time.",
	}, []string{"read_state"})

	// NotificationsDelivered counts gateway deliveries by event name.
	NotificationsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parley",
		Name:      "notifications_delivered_total",
		Help:      "Events delivered through the notification gateway.",
	}, []string{"event"})
)

// Handler returns the HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

package websocket

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"parley/internal/metrics"
)

// Registry tracks open connections by connection id. It implements the
// notification gateway contract: delivery to a set of connection ids is fire
// and forget, skipping ids that are unknown or already closed.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	log         zerolog.Logger
}

// NewRegistry creates an empty connection registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
		log:         log,
	}
}

// Add tracks a connection.
func (r *Registry) Add(conn *Connection) {
	r.mu.Lock()
	r.connections[conn.ID()] = conn
	r.mu.Unlock()
	metrics.ActiveConnections.Inc()
}

// Remove stops tracking a connection. Idempotent: only the instance that is
// currently registered under the id is removed.
func (r *Registry) Remove(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if registered, exists := r.connections[conn.ID()]; exists && registered == conn {
		delete(r.connections, conn.ID())
		metrics.ActiveConnections.Dec()
	}
}

// Get returns the connection registered under an id.
func (r *Registry) Get(connectionID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, exists := r.connections[connectionID]
	return conn, exists
}

// Count returns the number of tracked connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// DeliverTo pushes an event to each of the given connections. Failures are
// logged and skipped; a slow or dead connection never fails the caller.
func (r *Registry) DeliverTo(ctx context.Context, connectionIDs []string, event string, payload any) {
	for _, id := range connectionIDs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, exists := r.Get(id)
		if !exists {
			continue
		}
		if err := conn.WriteEvent(event, payload); err != nil {
			r.log.Debug().Err(err).Str("connection_id", id).Str("event", event).
				Msg("failed to deliver event")
			continue
		}
		metrics.NotificationsDelivered.WithLabelValues(event).Inc()
	}
}

// Package presence tracks which users currently have at least one live
// connection and emits online/offline transitions exactly once per edge.
package presence

import (
	"sort"
	"sync"
)

// Registry is the authoritative in-process record of live connections per
// username. All mutations happen under a single mutex; nothing here performs
// I/O, so the critical section is never held across a suspension point.
//
// One Registry instance is constructed at startup and injected into the
// components that need it. None of its operations fail: unknown usernames and
// connection ids are no-ops.
type Registry struct {
	mu          sync.Mutex
	connections map[string]map[string]struct{} // username -> set of connection ids
}

// NewRegistry creates an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]map[string]struct{}),
	}
}

// Connect records a connection for a user. Returns true only when this is the
// user's first connection, the offline-to-online edge.
func (r *Registry) Connect(username, connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, exists := r.connections[username]
	if !exists {
		set = make(map[string]struct{})
		r.connections[username] = set
	}
	set[connectionID] = struct{}{}
	return !exists
}

// Disconnect removes a connection for a user. Returns true only when the
// user's last connection was removed, the online-to-offline edge. Duplicate
// or late disconnects return false and change nothing.
func (r *Registry) Disconnect(username, connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, exists := r.connections[username]
	if !exists {
		return false
	}
	if _, tracked := set[connectionID]; !tracked {
		return false
	}
	delete(set, connectionID)
	if len(set) == 0 {
		delete(r.connections, username)
		return true
	}
	return false
}

// ListOnlineUsers returns a sorted snapshot of usernames with at least one
// live connection.
func (r *Registry) ListOnlineUsers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]string, 0, len(r.connections))
	for username := range r.connections {
		users = append(users, username)
	}
	sort.Strings(users)
	return users
}

// ConnectionsFor returns a snapshot of the user's connection ids. Offline
// users yield an empty slice.
func (r *Registry) ConnectionsFor(username string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.connections[username]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// AllConnections returns a snapshot of every tracked connection id across all
// users. Used to address broadcasts to everyone currently on the presence
// channel.
func (r *Registry) AllConnections() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for _, set := range r.connections {
		for id := range set {
			ids = append(ids, id)
		}
	}
	return ids
}

// Package group maps a pair of usernames to a persisted conversation group
// and manages which live connections are members of it.
package group

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"parley/pkg/interfaces"
	"parley/pkg/types"
)

// NameFor computes the canonical channel name for a pair of users. The
// tie-break is ordinal (byte-wise) string comparison, never locale collation,
// so NameFor(a, b) == NameFor(b, a) in every environment.
func NameFor(userA, userB string) string {
	if strings.Compare(userA, userB) < 0 {
		return userA + "-" + userB
	}
	return userB + "-" + userA
}

// Manager owns persisted group membership. Because membership rows live in
// the store, "is the other party viewing this conversation" can be answered
// from any process instance. Rows are stamped with the current process epoch;
// a startup purge removes rows from prior epochs, which cannot reference live
// sessions.
type Manager struct {
	store interfaces.MessageStore
	epoch string
	log   zerolog.Logger
}

// NewManager creates a group manager writing membership rows under the given
// process epoch.
func NewManager(store interfaces.MessageStore, epoch string, log zerolog.Logger) *Manager {
	return &Manager{store: store, epoch: epoch, log: log}
}

// Epoch returns the process epoch this manager stamps membership rows with.
func (m *Manager) Epoch() string {
	return m.epoch
}

// Join adds a connection to the named group, creating the group lazily, and
// returns the updated membership so the caller can notify the room.
func (m *Manager) Join(ctx context.Context, name string, conn types.Connection) (*types.Group, error) {
	if err := m.store.AddConnection(ctx, name, conn, m.epoch); err != nil {
		return nil, fmt.Errorf("failed to join group %s: %w", name, err)
	}
	g, err := m.store.GetGroup(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load group %s after join: %w", name, err)
	}
	m.log.Debug().Str("group", name).Str("username", conn.Username).Msg("connection joined group")
	return g, nil
}

// Leave removes the connection from whichever group contains it (at most one)
// and returns that group's remaining membership. Returns
// interfaces.ErrConnectionNotInGroup when no group contains the connection,
// which legitimately happens when cleanup already ran.
func (m *Manager) Leave(ctx context.Context, connectionID string) (*types.Group, error) {
	g, err := m.store.GroupForConnection(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to leave group: %w", err)
	}
	if err := m.store.RemoveConnection(ctx, connectionID); err != nil {
		return nil, fmt.Errorf("failed to remove connection %s from group %s: %w", connectionID, g.Name, err)
	}

	remaining := make([]types.Connection, 0, len(g.Connections))
	for _, c := range g.Connections {
		if c.ID != connectionID {
			remaining = append(remaining, c)
		}
	}
	g.Connections = remaining
	m.log.Debug().Str("group", g.Name).Msg("connection left group")
	return g, nil
}

// IsPresent reports whether any live connection of username is currently a
// member of the named group. A group that does not exist yet has no members.
func (m *Manager) IsPresent(ctx context.Context, name, username string) (bool, error) {
	g, err := m.store.GetGroup(ctx, name)
	if errors.Is(err, interfaces.ErrGroupNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load group %s: %w", name, err)
	}
	return g.HasUser(username), nil
}

// Members returns the current membership of the named group. A group that
// does not exist yet is returned empty rather than as an error.
func (m *Manager) Members(ctx context.Context, name string) (*types.Group, error) {
	g, err := m.store.GetGroup(ctx, name)
	if errors.Is(err, interfaces.ErrGroupNotFound) {
		return &types.Group{Name: name}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load group %s: %w", name, err)
	}
	return g, nil
}

// PurgeStale removes membership rows persisted by prior process instances.
// This is a required recovery step at startup, not an optimization: connection
// ids have no meaning across restarts.
func (m *Manager) PurgeStale(ctx context.Context) error {
	purged, err := m.store.PurgeConnectionsExcept(ctx, m.epoch)
	if err != nil {
		return fmt.Errorf("failed to purge stale connection rows: %w", err)
	}
	m.log.Info().Int64("purged", purged).Str("epoch", m.epoch).Msg("purged stale connection rows")
	return nil
}

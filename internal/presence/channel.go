package presence

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"parley/internal/metrics"
	"parley/pkg/interfaces"
	"parley/pkg/types"
)

// Channel is the protocol-facing side of presence. It reacts to connection
// lifecycle events: it updates the registry and broadcasts online/offline
// transitions to every other connected party, exactly once per genuine edge.
type Channel struct {
	registry  *Registry
	directory interfaces.UserDirectory
	gateway   interfaces.NotificationGateway
	log       zerolog.Logger
}

// NewChannel creates the presence channel.
func NewChannel(registry *Registry, directory interfaces.UserDirectory, gateway interfaces.NotificationGateway, log zerolog.Logger) *Channel {
	return &Channel{
		registry:  registry,
		directory: directory,
		gateway:   gateway,
		log:       log,
	}
}

// Connected handles a new presence connection. The identity must resolve in
// the directory or the connection is rejected before any state mutation. When
// the connect is the user's offline-to-online edge, every other connected
// party receives a UserIsOnline event. The caller always receives a full
// online-users snapshot, edge or not.
func (c *Channel) Connected(ctx context.Context, conn types.Connection) error {
	if conn.Username == "" {
		return ErrMissingIdentity
	}
	if _, err := c.directory.ResolveByUsername(ctx, conn.Username); err != nil {
		return fmt.Errorf("failed to resolve user %s: %w", conn.Username, err)
	}

	first := c.registry.Connect(conn.Username, conn.ID)
	if first {
		c.gateway.DeliverTo(ctx, c.others(conn.ID), types.EventUserIsOnline,
			types.PresenceEvent{Username: conn.Username})
		metrics.PresenceTransitions.WithLabelValues("online").Inc()
		c.log.Info().Str("username", conn.Username).Msg("user online")
	}

	c.gateway.DeliverTo(ctx, []string{conn.ID}, types.EventOnlineUsers, c.registry.ListOnlineUsers())
	return nil
}

// Disconnected handles a closed presence connection. When the disconnect is
// the user's online-to-offline edge, every other connected party receives a
// UserIsOffline event. Late or duplicate disconnects are silent no-ops.
func (c *Channel) Disconnected(ctx context.Context, conn types.Connection) {
	last := c.registry.Disconnect(conn.Username, conn.ID)
	if !last {
		return
	}
	c.gateway.DeliverTo(ctx, c.others(conn.ID), types.EventUserIsOffline,
		types.PresenceEvent{Username: conn.Username})
	metrics.PresenceTransitions.WithLabelValues("offline").Inc()
	c.log.Info().Str("username", conn.Username).Msg("user offline")
}

// others returns every tracked connection id except the given one.
func (c *Channel) others(connectionID string) []string {
	all := c.registry.AllConnections()
	others := all[:0]
	for _, id := range all {
		if id != connectionID {
			others = append(others, id)
		}
	}
	return others
}

// Package chat implements the conversation channel: joining a connection to
// its conversation group, serving message history, accepting outgoing
// messages and deciding read state at send time.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"parley/internal/group"
	"parley/internal/metrics"
	"parley/internal/presence"
	"parley/pkg/interfaces"
	"parley/pkg/types"
)

// Channel coordinates one conversation endpoint. It is stateless itself; all
// shared state lives in the presence registry, the group manager and the
// message store, so a single Channel serves every connection.
type Channel struct {
	groups    *group.Manager
	store     interfaces.MessageStore
	directory interfaces.UserDirectory
	presence  *presence.Registry
	gateway   interfaces.NotificationGateway
	log       zerolog.Logger
}

// NewChannel creates the conversation channel.
func NewChannel(groups *group.Manager, store interfaces.MessageStore, directory interfaces.UserDirectory,
	registry *presence.Registry, gateway interfaces.NotificationGateway, log zerolog.Logger) *Channel {
	return &Channel{
		groups:    groups,
		store:     store,
		directory: directory,
		presence:  registry,
		gateway:   gateway,
		log:       log,
	}
}

// Connected joins a connection to the conversation between its user and the
// peer. The updated roster goes to the whole group; the message thread,
// oldest first with the caller's unread messages bulk-marked read in a single
// flush, goes to the caller only. Missing or unresolvable identities reject
// the connection before any state changes.
func (c *Channel) Connected(ctx context.Context, conn types.Connection, peerUsername string) error {
	if conn.Username == "" {
		return ErrMissingCallerIdentity
	}
	if peerUsername == "" {
		return ErrMissingPeerIdentity
	}
	if _, err := c.directory.ResolveByUsername(ctx, conn.Username); err != nil {
		return fmt.Errorf("failed to resolve caller %s: %w", conn.Username, err)
	}
	if _, err := c.directory.ResolveByUsername(ctx, peerUsername); err != nil {
		return fmt.Errorf("failed to resolve peer %s: %w", peerUsername, err)
	}

	groupName := group.NameFor(conn.Username, peerUsername)
	g, err := c.groups.Join(ctx, groupName, conn)
	if err != nil {
		return err
	}
	c.gateway.DeliverTo(ctx, g.ConnectionIDs(), types.EventUpdatedGroup, g)

	if _, err := c.store.MarkThreadRead(ctx, conn.Username, peerUsername, time.Now().UTC()); err != nil {
		c.undoJoin(ctx, conn.ID)
		return fmt.Errorf("failed to mark thread read: %w", err)
	}
	thread, err := c.store.ThreadBetween(ctx, conn.Username, peerUsername)
	if err != nil {
		c.undoJoin(ctx, conn.ID)
		return fmt.Errorf("failed to load message thread: %w", err)
	}
	c.gateway.DeliverTo(ctx, []string{conn.ID}, types.EventMessageThread, thread)

	c.log.Debug().Str("group", groupName).Str("username", conn.Username).Msg("joined conversation")
	return nil
}

// undoJoin reverses a persisted join when the connect fails partway. A
// rejected connection must never linger as a group member: a stale row would
// make IsPresent report the user as viewing the thread and mark messages to
// them read at send time.
func (c *Channel) undoJoin(ctx context.Context, connectionID string) {
	g, err := c.groups.Leave(ctx, connectionID)
	if err != nil {
		if !errors.Is(err, interfaces.ErrConnectionNotInGroup) {
			c.log.Warn().Err(err).Str("connection_id", connectionID).Msg("failed to undo group join")
		}
		return
	}
	c.gateway.DeliverTo(ctx, g.ConnectionIDs(), types.EventUpdatedGroup, g)
}

// SendMessage persists a new message and broadcasts it to the conversation
// group. When the recipient is present in the group the message is persisted
// already read; when the recipient is merely online elsewhere an inbox alert
// goes to their presence connections instead. Nothing is broadcast unless
// persistence succeeds. On success the persisted message is returned.
func (c *Channel) SendMessage(ctx context.Context, senderUsername, recipientUsername, content string) (*types.Message, error) {
	if senderUsername == recipientUsername {
		return nil, ErrSelfMessage
	}
	if err := types.ValidateContent(content); err != nil {
		return nil, err
	}
	sender, err := c.directory.ResolveByUsername(ctx, senderUsername)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sender %s: %w", senderUsername, err)
	}
	recipient, err := c.directory.ResolveByUsername(ctx, recipientUsername)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve recipient %s: %w", recipientUsername, err)
	}

	message := &types.Message{
		SenderUsername:    sender.Username,
		RecipientUsername: recipient.Username,
		Content:           content,
		SentAt:            time.Now().UTC(),
	}

	groupName := group.NameFor(sender.Username, recipient.Username)
	recipientPresent, err := c.groups.IsPresent(ctx, groupName, recipient.Username)
	if err != nil {
		return nil, err
	}

	readState := "unread"
	if recipientPresent {
		// Immediate read: the recipient is already looking at the thread.
		readAt := time.Now().UTC()
		message.ReadAt = &readAt
		readState = "read"
	} else if connections := c.presence.ConnectionsFor(recipient.Username); len(connections) > 0 {
		c.gateway.DeliverTo(ctx, connections, types.EventNewMessageReceive,
			types.InboxAlert{Username: sender.Username, Content: content})
	}

	if err := c.store.AddMessage(ctx, message); err != nil {
		// No partial delivery: a failed persist means nothing is broadcast.
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}

	g, err := c.groups.Members(ctx, groupName)
	if err != nil {
		return nil, err
	}
	c.gateway.DeliverTo(ctx, g.ConnectionIDs(), types.EventNewMessage, message)
	metrics.MessagesSent.WithLabelValues(readState).Inc()

	c.log.Debug().
		Str("group", groupName).
		Str("sender", sender.Username).
		Bool("read", message.IsRead()).
		Msg("message sent")
	return message, nil
}

// Disconnected removes the connection from its conversation group and
// broadcasts the updated roster to the remaining members. A connection whose
// membership was already cleaned up is reported via
// interfaces.ErrConnectionNotInGroup wrapped in the returned error.
func (c *Channel) Disconnected(ctx context.Context, connectionID string) error {
	g, err := c.groups.Leave(ctx, connectionID)
	if err != nil {
		return err
	}
	c.gateway.DeliverTo(ctx, g.ConnectionIDs(), types.EventUpdatedGroup, g)
	return nil
}

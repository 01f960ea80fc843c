// Package interfaces defines the narrow contracts between the presence and
// conversation core and its external collaborators. Each interface covers one
// responsibility and is independently mockable for tests.
package interfaces

import (
	"context"
	"time"

	"parley/pkg/types"
)

// UserDirectory resolves stable user identities to profile data. The core
// never mutates identities; it only resolves and compares them.
type UserDirectory interface {
	// ResolveByUsername returns the user for a username, or ErrUserNotFound.
	ResolveByUsername(ctx context.Context, username string) (*types.User, error)
}

// MessageStore persists Message, Group and Connection records.
type MessageStore interface {
	// AddMessage persists a new message and fills in its id.
	AddMessage(ctx context.Context, message *types.Message) error

	// GetMessage returns one message by id, or ErrMessageNotFound.
	GetMessage(ctx context.Context, id int64) (*types.Message, error)

	// ThreadBetween returns the conversation between two users ordered by
	// sent time ascending (insertion order breaking ties), omitting messages
	// the current user has deleted on their side.
	ThreadBetween(ctx context.Context, currentUsername, otherUsername string) ([]*types.Message, error)

	// MarkThreadRead sets read_at for every unread message sent by
	// otherUsername to currentUsername, in a single flush. Returns the number
	// of messages marked. Marking an already-read message is a no-op.
	MarkThreadRead(ctx context.Context, currentUsername, otherUsername string, at time.Time) (int64, error)

	// MessagesForUser lists messages for one side of the store: inbox,
	// outbox or unread, newest first, capped at limit.
	MessagesForUser(ctx context.Context, username, container string, limit int) ([]*types.Message, error)

	// DeleteMessage flags the message deleted for the requesting party and
	// removes the row once both parties have deleted it. Returns
	// ErrMessageNotFound or ErrNotMessageParticipant as appropriate.
	DeleteMessage(ctx context.Context, id int64, username string) error

	// GetGroup returns a group with its current connections, or
	// ErrGroupNotFound.
	GetGroup(ctx context.Context, name string) (*types.Group, error)

	// AddConnection creates the group if absent and appends the connection
	// row stamped with the given process epoch.
	AddConnection(ctx context.Context, groupName string, conn types.Connection, epoch string) error

	// RemoveConnection deletes a connection row. Unknown ids are a no-op.
	RemoveConnection(ctx context.Context, connectionID string) error

	// GroupForConnection returns the group currently containing the
	// connection, or ErrConnectionNotInGroup.
	GroupForConnection(ctx context.Context, connectionID string) (*types.Group, error)

	// PurgeConnectionsExcept deletes every connection row whose epoch differs
	// from the given one. Run once at startup: rows persisted by a previous
	// process instance cannot reference live sessions.
	PurgeConnectionsExcept(ctx context.Context, epoch string) (int64, error)
}

// NotificationGateway delivers an out-of-band event to a specific set of
// active connections. Delivery is fire and forget: unknown or closed
// connection ids are skipped.
type NotificationGateway interface {
	DeliverTo(ctx context.Context, connectionIDs []string, event string, payload any)
}

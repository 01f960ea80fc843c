package types

import (
	"time"
)

// Event names pushed over the two real-time channels. Clients key their
// handlers on these strings, so they are part of the wire contract.
const (
	EventUserIsOnline       = "UserIsOnline"
	EventUserIsOffline      = "UserIsOffline"
	EventOnlineUsers        = "GetOnlineUsers"
	EventUpdatedGroup       = "UpdatedGroup"
	EventMessageThread      = "ReceiveMessageThread"
	EventNewMessage         = "NewMessage"
	EventNewMessageReceive = "NewMessageReceive"
	EventError              = "Error"
)

// Message containers for the inbox-style listing queries.
const (
	ContainerInbox  = "inbox"
	ContainerOutbox = "outbox"
	ContainerUnread = "unread"
)

// User is the directory's view of an account. The core only ever compares
// usernames; everything else about a profile lives outside this subsystem.
type User struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
}

// Connection identifies one live network session of a user. Connection ids
// are minted at upgrade time and carry no meaning across process restarts.
type Connection struct {
	ID       string `json:"connectionId"`
	Username string `json:"username"`
}

// Group is a conversation channel: the set of live connections currently
// viewing the thread between two users. The name is a canonical function of
// the two participant usernames (see group.NameFor).
type Group struct {
	Name        string       `json:"name"`
	Connections []Connection `json:"connections"`
}

// HasUser reports whether any connection in the group belongs to username.
func (g *Group) HasUser(username string) bool {
	if g == nil {
		return false
	}
	for _, c := range g.Connections {
		if c.Username == username {
			return true
		}
	}
	return false
}

// ConnectionIDs returns the ids of all connections in the group.
func (g *Group) ConnectionIDs() []string {
	if g == nil {
		return nil
	}
	ids := make([]string, 0, len(g.Connections))
	for _, c := range g.Connections {
		ids = append(ids, c.ID)
	}
	return ids
}

// Message is one persisted message between two users. ReadAt is nil until the
// recipient has seen the message; a row is physically removed only once both
// deletion flags are set.
type Message struct {
	ID                int64      `json:"id"`
	SenderUsername    string     `json:"senderUsername"`
	RecipientUsername string     `json:"recipientUsername"`
	Content           string     `json:"content"`
	SentAt            time.Time  `json:"sentAt"`
	ReadAt            *time.Time `json:"readAt,omitempty"`
	SenderDeleted     bool       `json:"-"`
	RecipientDeleted  bool       `json:"-"`
}

// IsRead reports whether the message has been read by the recipient.
func (m *Message) IsRead() bool {
	return m.ReadAt != nil
}

// PresenceEvent is the payload of online/offline broadcasts.
type PresenceEvent struct {
	Username string `json:"username"`
}

// InboxAlert is the payload pushed to a recipient who is online but not
// viewing the conversation when a new message arrives.
type InboxAlert struct {
	Username string `json:"username"`
	Content  string `json:"content"`
}

package websocket

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"parley/internal/chat"
	"parley/internal/config"
	"parley/internal/presence"
	"parley/pkg/interfaces"
	"parley/pkg/types"
)

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking belongs to the hosting deployment.
		return true
	},
}

// Handlers upgrades HTTP requests into presence and conversation sessions
// and drives the channel lifecycle from the socket lifecycle: any exit from
// the read loop, clean or not, triggers disconnect cleanup.
type Handlers struct {
	registry *Registry
	presence *presence.Channel
	chat     *chat.Channel
	cfg      config.WebSocketConfig
	log      zerolog.Logger
}

// NewHandlers creates the websocket handlers.
func NewHandlers(registry *Registry, presenceChannel *presence.Channel, chatChannel *chat.Channel,
	cfg config.WebSocketConfig, log zerolog.Logger) *Handlers {
	return &Handlers{
		registry: registry,
		presence: presenceChannel,
		chat:     chatChannel,
		cfg:      cfg,
		log:      log,
	}
}

// HandlePresence serves GET /ws/presence?username=<caller>.
func (h *Handlers) HandlePresence(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if !types.IsValidUsername(username) {
		http.Error(w, "missing or invalid username", http.StatusBadRequest)
		return
	}

	conn, ok := h.upgrade(w, r, username)
	if !ok {
		return
	}
	session := types.Connection{ID: conn.ID(), Username: username}

	if err := h.presence.Connected(conn.Context(), session); err != nil {
		h.rejectConnection(conn, err)
		return
	}

	defer func() {
		h.registry.Remove(conn)
		_ = conn.Close()
		// Disconnect cleanup runs on every exit path, explicit close or not.
		h.presence.Disconnected(contextWithoutCancel(conn), session)
	}()

	// The presence channel has no client-initiated operations; the read loop
	// only keeps the heartbeat alive and detects the drop.
	h.readLoop(conn, nil)
}

// HandleChat serves GET /ws/chat?username=<caller>&user=<peer>.
func (h *Handlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	peer := r.URL.Query().Get("user")
	if !types.IsValidUsername(username) {
		http.Error(w, "missing or invalid username", http.StatusBadRequest)
		return
	}
	if peer == "" {
		http.Error(w, "no peer user provided", http.StatusBadRequest)
		return
	}

	conn, ok := h.upgrade(w, r, username)
	if !ok {
		return
	}
	session := types.Connection{ID: conn.ID(), Username: username}

	if err := h.chat.Connected(conn.Context(), session, peer); err != nil {
		h.rejectConnection(conn, err)
		return
	}

	defer func() {
		h.registry.Remove(conn)
		_ = conn.Close()
		if err := h.chat.Disconnected(contextWithoutCancel(conn), conn.ID()); err != nil &&
			!errors.Is(err, interfaces.ErrConnectionNotInGroup) {
			h.log.Warn().Err(err).Str("connection_id", conn.ID()).Msg("disconnect cleanup failed")
		}
	}()

	h.readLoop(conn, func(data []byte) {
		h.handleChatFrame(conn, data)
	})
}

// sendMessageRequest is the inbound SendMessage payload.
type sendMessageRequest struct {
	RecipientUsername string `json:"recipientUsername"`
	Content           string `json:"content"`
}

func (h *Handlers) handleChatFrame(conn *Connection, data []byte) {
	var frame Envelope
	if err := json.Unmarshal(data, &frame); err != nil {
		h.sendError(conn, "malformed frame")
		return
	}

	switch frame.Event {
	case "SendMessage":
		var req sendMessageRequest
		if err := json.Unmarshal(frame.Payload, &req); err != nil {
			h.sendError(conn, "malformed SendMessage payload")
			return
		}
		if _, err := h.chat.SendMessage(conn.Context(), conn.Username(), req.RecipientUsername, req.Content); err != nil {
			h.log.Debug().Err(err).Str("username", conn.Username()).Msg("send rejected")
			h.sendError(conn, err.Error())
		}
	default:
		h.sendError(conn, "unknown event: "+frame.Event)
	}
}

// upgrade performs the websocket handshake and registers the wrapper.
func (h *Handlers) upgrade(w http.ResponseWriter, r *http.Request, username string) (*Connection, bool) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return nil, false
	}
	conn := NewConnection(ws, uuid.NewString(), username, h.cfg)
	h.registry.Add(conn)
	return conn, true
}

// rejectConnection surfaces a channel-level failure to the caller and tears
// the connection down before it ever participates in a room.
func (h *Handlers) rejectConnection(conn *Connection, cause error) {
	h.log.Warn().Err(cause).Str("username", conn.Username()).Msg("connection rejected")
	h.sendError(conn, cause.Error())
	// Give the writer a moment to flush the error frame.
	time.Sleep(50 * time.Millisecond)
	h.registry.Remove(conn)
	_ = conn.Close()
}

func (h *Handlers) sendError(conn *Connection, message string) {
	_ = conn.WriteEvent(types.EventError, map[string]string{"message": message})
}

// readLoop pumps inbound frames and maintains the ping/pong heartbeat. It
// returns when the socket drops, the peer closes, or a deadline passes.
func (h *Handlers) readLoop(conn *Connection, onFrame func([]byte)) {
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(h.cfg.WriteTimeout)
				if err := conn.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
			case <-conn.Context().Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("connection_id", conn.ID()).Msg("websocket read error")
			}
			return
		}
		if messageType == websocket.TextMessage && onFrame != nil {
			onFrame(data)
		}
	}
}

// contextWithoutCancel detaches cleanup work from the connection context:
// the socket is already gone when cleanup runs, but registry and membership
// state still must be brought back in line with it.
func contextWithoutCancel(conn *Connection) context.Context {
	return context.WithoutCancel(conn.Context())
}

// Package websocket hosts the transport layer: the connection wrapper, the
// connection registry (which doubles as the notification gateway) and the
// HTTP upgrade handlers for the presence and conversation channels.
package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"parley/internal/config"
)

// Envelope is the frame format on both channels: an event name and an
// event-specific payload.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Connection wraps one websocket session. All writes are serialized through a
// single writer goroutine; the connection's context is cancelled on close so
// in-flight work tied to the session can stop.
type Connection struct {
	id           string
	username     string
	conn         *websocket.Conn
	writeCh      chan []byte
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
	writeTimeout time.Duration
}

// NewConnection wraps an upgraded websocket and starts its writer goroutine.
func NewConnection(conn *websocket.Conn, id, username string, cfg config.WebSocketConfig) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:           id,
		username:     username,
		conn:         conn,
		writeCh:      make(chan []byte, cfg.SendBufferSize),
		ctx:          ctx,
		cancel:       cancel,
		writeTimeout: cfg.WriteTimeout,
	}
	go c.writeLoop()
	return c
}

// ID returns the connection id minted at upgrade time.
func (c *Connection) ID() string { return c.id }

// Username returns the authenticated username of the session.
func (c *Connection) Username() string { return c.username }

// Context is cancelled when the connection closes.
func (c *Connection) Context() context.Context { return c.ctx }

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// WriteEvent queues an event frame for delivery. Returns ErrConnectionClosed
// once the session is gone and ErrWriteTimeout when the send buffer stays
// full past the write timeout.
func (c *Connection) WriteEvent(event string, payload any) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(Envelope{Event: event, Payload: body})
	if err != nil {
		return err
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(c.writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close tears the session down. Idempotent; also cancels the connection
// context, which stops the writer goroutine and any in-flight work.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

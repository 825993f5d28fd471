package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection wraps a gorilla WebSocket connection for one chat session.
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized to prevent
// race conditions - a single writer goroutine owns the underlying conn
type Connection struct {
	conn      *websocket.Conn
	writeCh   chan []byte // FUNCTIONAL DISCOVERY: 100 buffer absorbs telemetry bursts around agent calls
	sessionID string
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConnection creates a connection wrapper bound to its session id.
// The session id is fixed at accept time; frames are always routed under it
// regardless of what ids appear in inbound payloads.
func NewConnection(conn *websocket.Conn, sessionID string) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:      conn,
		writeCh:   make(chan []byte, 100),
		sessionID: sessionID,
		ctx:       ctx,
		cancel:    cancel,
	}

	go c.writeLoop()

	return c
}

// writeLoop is the single writer for the underlying connection.
// RACE CONDITION FIX: writeCh is never closed - closing it raced a
// concurrent WriteJSON that had already passed its cancellation check and
// could panic sending on the closed channel. Cancellation alone stops both
// sides; the unclosed channel is reclaimed with the connection.
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			// FUNCTIONAL DISCOVERY: 5-second write deadline keeps a stalled
			// client from wedging the writer goroutine
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
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

// WriteJSON serializes v and queues it on the writer goroutine (thread-safe)
func (c *Connection) WriteJSON(v any) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(5 * time.Second):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// SessionID returns the session this connection is registered under
func (c *Connection) SessionID() string {
	return c.sessionID
}

// Close cancels the writer goroutine and closes the transport. Idempotent.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()

		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

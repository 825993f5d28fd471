package websocket

import (
	"sync"

	"go.uber.org/zap"

	"fhirchat/pkg/interfaces"
	"fhirchat/pkg/types"
)

// Registry maps each session id to exactly one live connection.
// ARCHITECTURAL DISCOVERY: Pure connection management without business logic
// keeps the registry reusable as the delivery half of the telemetry pipeline.
// RWMutex is required here: connection read loops run as OS-scheduled
// goroutines, so map mutations are not naturally atomic.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection // sessionID -> Connection, last connect wins
	logger      *zap.Logger
}

// NewRegistry creates an empty connection registry
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		connections: make(map[string]*Connection),
		logger:      logger,
	}
}

// Register records a connection under its session id, replacing any prior
// entry for that id.
// FUNCTIONAL DISCOVERY: The replaced connection is closed asynchronously to
// avoid holding the registry lock across a transport close - replacement is
// immediate, cleanup is background
func (r *Registry) Register(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	sessionID := conn.SessionID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.connections[sessionID]; ok && existing != conn {
		r.logger.Info("websocket_connection_replaced",
			zap.String("session_id", sessionID))
		go func() {
			if err := existing.Close(); err != nil {
				r.logger.Warn("websocket_replaced_close_failed",
					zap.String("session_id", sessionID), zap.Error(err))
			}
		}()
	}

	r.connections[sessionID] = conn
	r.logger.Info("websocket_connected", zap.String("session_id", sessionID))

	return nil
}

// Deregister removes a departing connection from the registry.
// RACE CONDITION FIX: Only removes the entry if it still points at this
// connection instance, so a stale read loop never evicts its replacement.
func (r *Registry) Deregister(conn *Connection) {
	if conn == nil {
		return
	}

	sessionID := conn.SessionID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if registered, ok := r.connections[sessionID]; !ok || registered != conn {
		return
	}

	delete(r.connections, sessionID)
	r.logger.Info("websocket_disconnected", zap.String("session_id", sessionID))
}

// Disconnect removes whatever connection holds the session id, closing it.
// Idempotent - calling it twice, or for an id never connected, is a no-op.
func (r *Registry) Disconnect(sessionID string) {
	r.mu.Lock()
	conn, ok := r.connections[sessionID]
	if ok {
		delete(r.connections, sessionID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	if err := conn.Close(); err != nil {
		r.logger.Warn("websocket_disconnect_close_failed",
			zap.String("session_id", sessionID), zap.Error(err))
	}
	r.logger.Info("websocket_disconnected", zap.String("session_id", sessionID))
}

// Get returns the current connection for a session id with O(1) lookup
func (r *Registry) Get(sessionID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.connections[sessionID]
	return conn, ok
}

// Send delivers an envelope to the connection registered under sessionID.
// Delivery is fire-and-forget by policy: a missing connection or a transport
// fault is logged here, and the returned error is informational only - no
// caller may fail its own control flow on it (telemetry must never crash the
// chat path).
func (r *Registry) Send(sessionID string, envelope types.Envelope) error {
	conn, ok := r.Get(sessionID)
	if !ok {
		r.logger.Warn("websocket_send_failed_no_connection",
			zap.String("session_id", sessionID),
			zap.String("message_type", envelope.EnvelopeType()))
		return interfaces.ErrSessionNotConnected
	}

	if err := conn.WriteJSON(envelope); err != nil {
		r.logger.Error("websocket_send_failed",
			zap.String("session_id", sessionID),
			zap.String("message_type", envelope.EnvelopeType()),
			zap.Error(err))
		return err
	}

	return nil
}

// Sessions returns a snapshot of the currently connected session ids
func (r *Registry) Sessions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]string, 0, len(r.connections))
	for sessionID := range r.connections {
		sessions = append(sessions, sessionID)
	}
	return sessions
}

// Stats returns registry statistics for the health endpoint
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"active_connections": len(r.connections),
	}
}

package interfaces

import "fhirchat/pkg/types"

// Connection represents one live duplex client connection.
// ARCHITECTURAL DISCOVERY: Pure abstraction without transport details allows
// mock connections in tests and keeps business logic off the WebSocket layer
type Connection interface {
	// WriteJSON sends a JSON frame to the client (thread-safe)
	WriteJSON(v any) error

	// Close closes the connection and releases resources. Idempotent.
	Close() error

	// SessionID returns the session this connection is registered under
	SessionID() string
}

// MessageSender delivers an envelope to whatever connection currently holds
// a session id. Delivery is best-effort: a returned error is informational
// and callers must never fail their own control flow on it.
type MessageSender interface {
	Send(sessionID string, envelope types.Envelope) error
}

package types

import "errors"

// ARCHITECTURAL DISCOVERY: Specific error types enable proper error handling
// and user-friendly error envelopes throughout the system
var (
	ErrInvalidFrame       = errors.New("invalid message format")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrNotInboundType     = errors.New("message type not accepted from clients")
	ErrEmptyContent       = errors.New("message content cannot be empty")
	ErrInvalidSessionID   = errors.New("session ID must be 1-128 printable characters")
)

package interfaces

import "errors"

// Common interface errors used across components
var (
	ErrSessionNotConnected = errors.New("no connection registered for session")
)

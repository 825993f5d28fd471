package agent

import "errors"

var (
	ErrNoCompletion       = errors.New("model returned no choices")
	ErrSessionClosed      = errors.New("agent session already closed")
	ErrToolRoundsExceeded = errors.New("tool call round limit exceeded")
	ErrHistoryNotFound    = errors.New("no clinical history available for patient")
)

package interfaces

import "context"

type sessionIDKey struct{}

// WithSessionID tags a context with the session id driving an agent
// invocation so instrumentation and tool observers can correlate events.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

// SessionIDFromContext returns the session id set by WithSessionID, or ""
func SessionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey{}).(string); ok {
		return id
	}
	return ""
}

// ChatProcessor runs one user turn for a session and returns the assistant
// output. It never fails: agent faults are folded into the returned text as
// a documented policy, so transport layers always have content to deliver.
type ChatProcessor interface {
	Process(ctx context.Context, sessionID, message string) string
}

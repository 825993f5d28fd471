package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// ARCHITECTURAL DISCOVERY: Message type constants form a closed set so the
// decode boundary can match exhaustively; adding a variant is a compile-visible
// change in exactly two places (constant + switch arm)
const (
	MessageTypeUser           = "message"
	MessageTypeAssistant      = "assistant"
	MessageTypeToolCall       = "tool_call"
	MessageTypeToolResult     = "tool_result"
	MessageTypeOpenAICall     = "openai_call"
	MessageTypeOpenAIResponse = "openai_response"
	MessageTypeError          = "error"
	MessageTypeConnection     = "connection"
)

// Connection status values carried by ConnectionStatus frames
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusReconnecting = "reconnecting"
)

// Envelope is the discriminated union of every frame exchanged over the
// WebSocket channel. All variants carry their discriminator and session id.
// ARCHITECTURAL DISCOVERY: Sealed interface keeps the variant set closed -
// only types in this package can satisfy it
type Envelope interface {
	// EnvelopeType returns the wire discriminator ("assistant", "tool_call", ...)
	EnvelopeType() string
	// Session returns the session id the frame belongs to
	Session() string
}

// UserMessage is the only inbound frame shape accepted from clients
type UserMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
}

// AssistantMessage carries the agent's reply back to the client
type AssistantMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
	Streaming bool   `json:"streaming"`
}

// ToolCallEvent announces a tool invocation before it begins
type ToolCallEvent struct {
	Type       string         `json:"type"`
	SessionID  string         `json:"session_id"`
	ToolCallID string         `json:"tool_call_id"`
	ToolName   string         `json:"tool_name"`
	Arguments  map[string]any `json:"arguments"`
	Timestamp  time.Time      `json:"timestamp"`
}

// ToolResultEvent reports a completed tool invocation with its duration
type ToolResultEvent struct {
	Type       string    `json:"type"`
	SessionID  string    `json:"session_id"`
	ToolCallID string    `json:"tool_call_id"`
	ToolName   string    `json:"tool_name"`
	Result     string    `json:"result"`
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// OpenAIEvent marks a model call boundary (type "openai_call" before the
// invocation, "openai_response" after). Token counts and duration are only
// present when the provider reports them.
type OpenAIEvent struct {
	Type             string    `json:"type"`
	SessionID        string    `json:"session_id"`
	Model            string    `json:"model"`
	PromptTokens     *int      `json:"prompt_tokens,omitempty"`
	CompletionTokens *int      `json:"completion_tokens,omitempty"`
	TotalTokens      *int      `json:"total_tokens,omitempty"`
	DurationMS       *int64    `json:"duration_ms,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// ErrorMessage surfaces a recoverable per-frame failure to the client
type ErrorMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Error     string `json:"error"`
}

// ConnectionStatus reports connection lifecycle transitions
type ConnectionStatus struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

func (m *UserMessage) EnvelopeType() string      { return MessageTypeUser }
func (m *UserMessage) Session() string           { return m.SessionID }
func (m *AssistantMessage) EnvelopeType() string { return MessageTypeAssistant }
func (m *AssistantMessage) Session() string      { return m.SessionID }
func (e *ToolCallEvent) EnvelopeType() string    { return MessageTypeToolCall }
func (e *ToolCallEvent) Session() string         { return e.SessionID }
func (e *ToolResultEvent) EnvelopeType() string  { return MessageTypeToolResult }
func (e *ToolResultEvent) Session() string       { return e.SessionID }
func (e *OpenAIEvent) EnvelopeType() string      { return e.Type }
func (e *OpenAIEvent) Session() string           { return e.SessionID }
func (m *ErrorMessage) EnvelopeType() string     { return MessageTypeError }
func (m *ErrorMessage) Session() string          { return m.SessionID }
func (s *ConnectionStatus) EnvelopeType() string { return MessageTypeConnection }
func (s *ConnectionStatus) Session() string      { return s.SessionID }

// NewAssistantMessage builds a non-streaming assistant reply
func NewAssistantMessage(sessionID, content string) *AssistantMessage {
	return &AssistantMessage{
		Type:      MessageTypeAssistant,
		SessionID: sessionID,
		Content:   content,
		Streaming: false,
	}
}

// NewErrorMessage builds an error frame keyed to the given session
func NewErrorMessage(sessionID, errText string) *ErrorMessage {
	return &ErrorMessage{
		Type:      MessageTypeError,
		SessionID: sessionID,
		Error:     errText,
	}
}

// NewConnectionStatus builds a connection lifecycle frame
func NewConnectionStatus(sessionID, status string) *ConnectionStatus {
	return &ConnectionStatus{
		Type:      MessageTypeConnection,
		SessionID: sessionID,
		Status:    status,
	}
}

// DecodeInbound is the single decode boundary for client frames.
// ARCHITECTURAL DISCOVERY: Exhaustive switch over the closed type set means
// semantically-invalid-but-syntactically-valid frames take the same error path
// as malformed JSON - callers build one error envelope for both cases
func DecodeInbound(data []byte) (*UserMessage, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}

	switch probe.Type {
	case MessageTypeUser:
		var msg UserMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
		}
		if err := msg.Validate(); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypeAssistant, MessageTypeToolCall, MessageTypeToolResult,
		MessageTypeOpenAICall, MessageTypeOpenAIResponse,
		MessageTypeError, MessageTypeConnection:
		// Outbound-only variants are never accepted from clients
		return nil, fmt.Errorf("%w: %q", ErrNotInboundType, probe.Type)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, probe.Type)
	}
}

package types

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// Architectural Validation Tests
func TestEnvelope_InterfaceCompliance(t *testing.T) {
	// Every frame variant satisfies the sealed Envelope interface
	var _ Envelope = &UserMessage{}
	var _ Envelope = &AssistantMessage{}
	var _ Envelope = &ToolCallEvent{}
	var _ Envelope = &ToolResultEvent{}
	var _ Envelope = &OpenAIEvent{}
	var _ Envelope = &ErrorMessage{}
	var _ Envelope = &ConnectionStatus{}
}

func TestEnvelope_Discriminators(t *testing.T) {
	cases := []struct {
		envelope Envelope
		expected string
	}{
		{&UserMessage{SessionID: "s"}, MessageTypeUser},
		{&AssistantMessage{SessionID: "s"}, MessageTypeAssistant},
		{&ToolCallEvent{SessionID: "s"}, MessageTypeToolCall},
		{&ToolResultEvent{SessionID: "s"}, MessageTypeToolResult},
		{&OpenAIEvent{Type: MessageTypeOpenAICall, SessionID: "s"}, MessageTypeOpenAICall},
		{&OpenAIEvent{Type: MessageTypeOpenAIResponse, SessionID: "s"}, MessageTypeOpenAIResponse},
		{&ErrorMessage{SessionID: "s"}, MessageTypeError},
		{&ConnectionStatus{SessionID: "s"}, MessageTypeConnection},
	}

	for _, tc := range cases {
		if got := tc.envelope.EnvelopeType(); got != tc.expected {
			t.Errorf("Expected type %q, got %q", tc.expected, got)
		}
		if got := tc.envelope.Session(); got != "s" {
			t.Errorf("Expected session 's', got %q", got)
		}
	}
}

// Functional Validation Tests
func TestDecodeInbound_ValidUserMessage(t *testing.T) {
	data := []byte(`{"type":"message","session_id":"test-123","content":"hello"}`)

	msg, err := DecodeInbound(data)
	if err != nil {
		t.Fatalf("DecodeInbound failed: %v", err)
	}

	if msg.SessionID != "test-123" {
		t.Errorf("Expected session 'test-123', got %q", msg.SessionID)
	}
	if msg.Content != "hello" {
		t.Errorf("Expected content 'hello', got %q", msg.Content)
	}
}

func TestDecodeInbound_MalformedJSON(t *testing.T) {
	_, err := DecodeInbound([]byte("not valid json"))
	if !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("Expected ErrInvalidFrame, got %v", err)
	}
}

func TestDecodeInbound_UnknownType(t *testing.T) {
	_, err := DecodeInbound([]byte(`{"type":"mystery","content":"x"}`))
	if !errors.Is(err, ErrUnknownMessageType) {
		t.Errorf("Expected ErrUnknownMessageType, got %v", err)
	}
}

func TestDecodeInbound_OutboundTypesRejected(t *testing.T) {
	// Outbound variants are syntactically valid JSON but never accepted
	// from clients
	outbound := []string{
		MessageTypeAssistant,
		MessageTypeToolCall,
		MessageTypeToolResult,
		MessageTypeOpenAICall,
		MessageTypeOpenAIResponse,
		MessageTypeError,
		MessageTypeConnection,
	}

	for _, msgType := range outbound {
		data := []byte(`{"type":"` + msgType + `","session_id":"s","content":"x"}`)
		_, err := DecodeInbound(data)
		if !errors.Is(err, ErrNotInboundType) {
			t.Errorf("Type %q: expected ErrNotInboundType, got %v", msgType, err)
		}
	}
}

func TestDecodeInbound_EmptyContent(t *testing.T) {
	_, err := DecodeInbound([]byte(`{"type":"message","session_id":"s","content":""}`))
	if !errors.Is(err, ErrEmptyContent) {
		t.Errorf("Expected ErrEmptyContent, got %v", err)
	}
}

func TestNewAssistantMessage_NotStreaming(t *testing.T) {
	msg := NewAssistantMessage("s1", "reply text")

	if msg.Type != MessageTypeAssistant {
		t.Errorf("Expected type %q, got %q", MessageTypeAssistant, msg.Type)
	}
	if msg.Streaming {
		t.Error("Assistant replies are delivered complete, not streaming")
	}
	if msg.Content != "reply text" {
		t.Errorf("Expected content 'reply text', got %q", msg.Content)
	}
}

func TestNewErrorMessage_WireShape(t *testing.T) {
	msg := NewErrorMessage("s1", "Invalid message format")

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded["type"] != MessageTypeError {
		t.Errorf("Expected type %q on the wire, got %v", MessageTypeError, decoded["type"])
	}
	if decoded["error"] != "Invalid message format" {
		t.Errorf("Expected error text on the wire, got %v", decoded["error"])
	}
}

func TestOpenAIEvent_OptionalFieldsOmitted(t *testing.T) {
	event := &OpenAIEvent{
		Type:      MessageTypeOpenAICall,
		SessionID: "s1",
		Model:     "gpt-4o",
	}

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	// Call markers carry no token counts or duration
	for _, field := range []string{"prompt_tokens", "completion_tokens", "total_tokens", "duration_ms"} {
		if strings.Contains(string(data), field) {
			t.Errorf("Field %q should be omitted when unset: %s", field, data)
		}
	}
}

func TestUserMessage_Validation(t *testing.T) {
	cases := []struct {
		name    string
		msg     UserMessage
		wantErr error
	}{
		{"valid", UserMessage{Type: MessageTypeUser, SessionID: "s1", Content: "hi"}, nil},
		{"empty content", UserMessage{Type: MessageTypeUser, SessionID: "s1"}, ErrEmptyContent},
		{"missing session id ok", UserMessage{Type: MessageTypeUser, Content: "hi"}, nil},
		{"bad session id", UserMessage{Type: MessageTypeUser, SessionID: "has space", Content: "hi"}, ErrInvalidSessionID},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			if tc.wantErr == nil && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("Expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestIsValidSessionID(t *testing.T) {
	valid := []string{"default", "test-123", "a", strings.Repeat("x", 128)}
	for _, id := range valid {
		if !IsValidSessionID(id) {
			t.Errorf("Expected %q to be valid", id)
		}
	}

	invalid := []string{"", "has space", "tab\there", strings.Repeat("x", 129)}
	for _, id := range invalid {
		if IsValidSessionID(id) {
			t.Errorf("Expected %q to be invalid", id)
		}
	}
}

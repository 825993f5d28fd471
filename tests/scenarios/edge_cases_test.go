package scenarios

import (
	"errors"
	"strings"
	"testing"
	"time"

	"fhirchat/tests/fixtures"
)

// TestMalformedFrameRecovery validates that a bad frame yields an error
// envelope and the connection keeps serving.
func TestMalformedFrameRecovery(t *testing.T) {
	gw := fixtures.StartGateway(t, &fixtures.ScriptedAgent{Replies: []string{"still alive"}})
	client := fixtures.Connect(t, gw, "test-123")

	client.ExpectFrame(t, "connection")

	client.SendRaw(t, "this is not json")

	frame := client.ExpectFrame(t, "error")
	if !strings.HasPrefix(fixtures.FrameError(frame), "Invalid message format") {
		t.Errorf("Expected 'Invalid message format' text, got %v", frame["error"])
	}
	if frame["session_id"] != "test-123" {
		t.Errorf("Error envelope must carry the connection's session id, got %v", frame["session_id"])
	}

	client.SendChat(t, "are you there?")
	client.ExpectFrame(t, "openai_call")
	client.ExpectFrame(t, "openai_response")
	reply := client.ExpectFrame(t, "assistant")
	if reply["content"] != "still alive" {
		t.Errorf("Connection must survive a bad frame, got %v", reply["content"])
	}
}

// TestUnknownAndOutboundTypesRejected validates the decode boundary over
// the wire: unknown discriminators and outbound-only types are errors.
func TestUnknownAndOutboundTypesRejected(t *testing.T) {
	gw := fixtures.StartGateway(t, nil)
	client := fixtures.Connect(t, gw, "test-123")

	client.ExpectFrame(t, "connection")

	client.SendRaw(t, `{"type":"mystery","session_id":"test-123","content":"x"}`)
	client.ExpectFrame(t, "error")

	client.SendRaw(t, `{"type":"assistant","session_id":"test-123","content":"spoofed"}`)
	client.ExpectFrame(t, "error")
}

// TestEmptyContentRejected validates the empty-content edge case
func TestEmptyContentRejected(t *testing.T) {
	gw := fixtures.StartGateway(t, nil)
	client := fixtures.Connect(t, gw, "test-123")

	client.ExpectFrame(t, "connection")

	client.SendRaw(t, `{"type":"message","session_id":"test-123","content":""}`)
	client.ExpectFrame(t, "error")
}

// TestAgentFailureFoldedIntoReply validates that a failing agent produces a
// well-formed assistant message carrying the error as content.
func TestAgentFailureFoldedIntoReply(t *testing.T) {
	gw := fixtures.StartGateway(t, &fixtures.ScriptedAgent{
		RunErr: errors.New("deployment unreachable"),
	})
	client := fixtures.Connect(t, gw, "test-123")

	client.ExpectFrame(t, "connection")
	client.SendChat(t, "hello")

	client.ExpectFrame(t, "openai_call")
	client.ExpectFrame(t, "openai_response")

	reply := client.ExpectFrame(t, "assistant")
	if reply["content"] != "Error: deployment unreachable" {
		t.Errorf("Expected folded error content, got %v", reply["content"])
	}
}

// TestSessionIsolation validates that frames and transcripts never cross
// sessions.
func TestSessionIsolation(t *testing.T) {
	agent := &fixtures.ScriptedAgent{}
	gw := fixtures.StartGateway(t, agent)

	alice := fixtures.Connect(t, gw, "alice")
	bob := fixtures.Connect(t, gw, "bob")
	alice.ExpectFrame(t, "connection")
	bob.ExpectFrame(t, "connection")

	alice.SendChat(t, "from alice")
	alice.ExpectFrame(t, "openai_call")
	alice.ExpectFrame(t, "openai_response")
	reply := alice.ExpectFrame(t, "assistant")
	if reply["content"] != "echo from alice" {
		t.Errorf("Unexpected reply for alice: %v", reply["content"])
	}

	// Bob receives nothing from alice's turn
	bob.ExpectNoFrame(t, 200*time.Millisecond)

	transcript := gw.Chat.Transcript("bob")
	if len(transcript) != 0 {
		t.Errorf("Bob's transcript must be empty, got %v", transcript)
	}
}

// TestDuplicateSessionReplacesConnection validates last-connect-wins for a
// session id.
func TestDuplicateSessionReplacesConnection(t *testing.T) {
	gw := fixtures.StartGateway(t, nil)

	first := fixtures.Connect(t, gw, "dup-session")
	first.ExpectFrame(t, "connection")

	second := fixtures.Connect(t, gw, "dup-session")
	second.ExpectFrame(t, "connection")

	// The replacement now owns the session
	second.SendChat(t, "who owns this?")
	second.ExpectFrame(t, "openai_call")
	second.ExpectFrame(t, "openai_response")
	second.ExpectFrame(t, "assistant")

	if stats := gw.Registry.Stats(); stats["active_connections"] != 1 {
		t.Errorf("Expected 1 active connection after replacement, got %d",
			stats["active_connections"])
	}
}

// TestDefaultSessionAssignment validates the default session id fallback
func TestDefaultSessionAssignment(t *testing.T) {
	gw := fixtures.StartGateway(t, nil)
	client := fixtures.Connect(t, gw, "")

	frame := client.ExpectFrame(t, "connection")
	if frame["session_id"] != "default" {
		t.Errorf("Expected default session id, got %v", frame["session_id"])
	}
}

// TestDisconnectCleansRegistry validates deregistration on client close
func TestDisconnectCleansRegistry(t *testing.T) {
	gw := fixtures.StartGateway(t, nil)

	client := fixtures.Connect(t, gw, "leaver")
	client.ExpectFrame(t, "connection")
	client.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if gw.Registry.Stats()["active_connections"] == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("Expected registry to drop the closed connection")
}

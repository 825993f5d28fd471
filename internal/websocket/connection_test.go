package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"fhirchat/pkg/interfaces"
)

// Test WebSocket upgrader for creating test connections
var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Architectural Validation Tests
func TestConnection_InterfaceCompliance(t *testing.T) {
	// Verify Connection implements interfaces.Connection
	var _ interfaces.Connection = &Connection{}
}

// Functional Validation Tests
func TestConnection_NewConnectionInitialization(t *testing.T) {
	wsConn := createTestWebSocketConnection(t)
	defer wsConn.Close()

	conn := NewConnection(wsConn, "test-123")
	defer conn.Close()

	if conn.writeCh == nil {
		t.Error("Write channel not initialized")
	}

	if cap(conn.writeCh) != 100 {
		t.Errorf("Expected write channel buffer of 100, got %d", cap(conn.writeCh))
	}

	if conn.SessionID() != "test-123" {
		t.Errorf("Expected session 'test-123', got %q", conn.SessionID())
	}
}

func TestConnection_WriteJSONValidData(t *testing.T) {
	wsConn := createTestWebSocketConnection(t)
	defer wsConn.Close()

	conn := NewConnection(wsConn, "test-123")
	defer conn.Close()

	testData := map[string]interface{}{
		"type":    "assistant",
		"content": "test message",
	}

	if err := conn.WriteJSON(testData); err != nil {
		t.Errorf("WriteJSON failed: %v", err)
	}
}

func TestConnection_WriteJSONInvalidData(t *testing.T) {
	wsConn := createTestWebSocketConnection(t)
	defer wsConn.Close()

	conn := NewConnection(wsConn, "test-123")
	defer conn.Close()

	// Function type cannot be marshaled to JSON
	invalidData := map[string]interface{}{
		"func": func() {},
	}

	if err := conn.WriteJSON(invalidData); err != ErrInvalidJSON {
		t.Errorf("Expected ErrInvalidJSON, got %v", err)
	}
}

func TestConnection_CloseIdempotent(t *testing.T) {
	wsConn := createTestWebSocketConnection(t)
	defer wsConn.Close()

	conn := NewConnection(wsConn, "test-123")

	// Close should be safe to call multiple times
	err1 := conn.Close()
	err2 := conn.Close()
	err3 := conn.Close()

	if err1 != nil {
		t.Errorf("First close failed: %v", err1)
	}
	if err2 != nil {
		t.Errorf("Second close failed: %v", err2)
	}
	if err3 != nil {
		t.Errorf("Third close failed: %v", err3)
	}
}

func TestConnection_WriteAfterClose(t *testing.T) {
	wsConn := createTestWebSocketConnection(t)
	defer wsConn.Close()

	conn := NewConnection(wsConn, "test-123")
	conn.Close()

	// Give time for context cancellation to propagate
	time.Sleep(10 * time.Millisecond)

	err := conn.WriteJSON(map[string]interface{}{"type": "assistant"})
	if err != ErrConnectionClosed {
		t.Errorf("Expected ErrConnectionClosed, got %v", err)
	}
}

// Technical Validation Tests (Race Detection)
func TestConnection_ConcurrentWrites(t *testing.T) {
	wsConn := createTestWebSocketConnection(t)
	defer wsConn.Close()

	conn := NewConnection(wsConn, "test-123")
	defer conn.Close()

	const numGoroutines = 10
	const messagesPerGoroutine = 10

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	// Telemetry and chat replies write from different goroutines
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < messagesPerGoroutine; j++ {
				testData := map[string]interface{}{
					"worker":  id,
					"message": j,
				}
				conn.WriteJSON(testData)
			}
		}(i)
	}

	wg.Wait()
}

func TestConnection_ConcurrentWriteAndClose(t *testing.T) {
	// Writers racing Close must never panic: a write that slips past the
	// cancellation check while the connection shuts down has to land on a
	// live channel, not a closed one
	for i := 0; i < 20; i++ {
		wsConn := createTestWebSocketConnection(t)

		conn := NewConnection(wsConn, "test-123")

		const numWriters = 8
		var wg sync.WaitGroup
		wg.Add(numWriters)

		for w := 0; w < numWriters; w++ {
			go func() {
				defer wg.Done()
				for j := 0; j < 20; j++ {
					conn.WriteJSON(map[string]interface{}{"seq": j})
				}
			}()
		}

		conn.Close()
		wg.Wait()
		wsConn.Close()
	}
}

func TestConnection_GoroutineCleanup(t *testing.T) {
	wsConn := createTestWebSocketConnection(t)
	defer wsConn.Close()

	conn := NewConnection(wsConn, "test-123")

	// Give time for writeLoop to start
	time.Sleep(10 * time.Millisecond)

	if err := conn.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	// Wait for goroutine cleanup
	time.Sleep(100 * time.Millisecond)
}

// Helper function to create a test WebSocket connection
func createTestWebSocketConnection(t *testing.T) *websocket.Conn {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Failed to upgrade connection: %v", err)
			return
		}
		defer conn.Close()

		// Keep connection alive for testing
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				break
			}
		}
	}))

	t.Cleanup(func() { server.Close() })

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to create test WebSocket connection: %v", err)
	}

	return conn
}

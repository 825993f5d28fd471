package fixtures

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a WebSocket test client speaking the gateway's frame protocol
type Client struct {
	SessionID string
	conn      *websocket.Conn
}

// Connect dials the gateway's /ws endpoint for the given session
func Connect(t *testing.T, gw *Gateway, sessionID string) *Client {
	t.Helper()

	url := "ws" + strings.TrimPrefix(gw.Server.URL, "http") + "/ws"
	if sessionID != "" {
		url += "?session_id=" + sessionID
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to connect client %q: %v", sessionID, err)
	}
	t.Cleanup(func() { conn.Close() })

	return &Client{SessionID: sessionID, conn: conn}
}

// SendChat sends a user message frame
func (c *Client) SendChat(t *testing.T, content string) {
	t.Helper()

	frame := map[string]string{
		"type":       "message",
		"session_id": c.SessionID,
		"content":    content,
	}
	data, _ := json.Marshal(frame)
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("Failed to send chat frame: %v", err)
	}
}

// SendRaw sends an arbitrary text frame
func (c *Client) SendRaw(t *testing.T, data string) {
	t.Helper()

	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(data)); err != nil {
		t.Fatalf("Failed to send raw frame: %v", err)
	}
}

// ReadFrame reads the next frame within the timeout
func (c *Client) ReadFrame(t *testing.T, timeout time.Duration) map[string]any {
	t.Helper()

	c.conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read frame for %q: %v", c.SessionID, err)
	}

	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("Failed to decode frame %s: %v", data, err)
	}
	return frame
}

// ExpectFrame reads the next frame and asserts its type discriminator
func (c *Client) ExpectFrame(t *testing.T, frameType string) map[string]any {
	t.Helper()

	frame := c.ReadFrame(t, 2*time.Second)
	if frame["type"] != frameType {
		t.Fatalf("Expected %q frame, got %v", frameType, frame)
	}
	return frame
}

// ExpectNoFrame asserts that no frame arrives within the window
func (c *Client) ExpectNoFrame(t *testing.T, window time.Duration) {
	t.Helper()

	c.conn.SetReadDeadline(time.Now().Add(window))
	_, data, err := c.conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected no frame, got %s", data)
	}
}

// Close terminates the client connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// FrameError extracts the error text from an error frame
func FrameError(frame map[string]any) string {
	return fmt.Sprint(frame["error"])
}

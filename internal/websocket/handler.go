package websocket

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"fhirchat/pkg/interfaces"
	"fhirchat/pkg/types"
)

// WebSocket upgrader with production-ready settings
// ARCHITECTURAL DISCOVERY: Separate upgrader configuration enables reuse
// and consistent WebSocket settings across handler instances
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// FUNCTIONAL DISCOVERY: Allow all origins for development
		// Production deployments should implement stricter origin checking
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// DefaultSessionID is used when a client connects without a session_id
// query parameter.
const DefaultSessionID = "default"

// TECHNICAL DISCOVERY: 60-second read deadline with 30-second ping interval
// provides reliable connection health monitoring
const (
	DefaultReadTimeout  = 60 * time.Second
	DefaultPingInterval = 30 * time.Second
)

// Handler accepts WebSocket connections and runs the per-connection chat
// orchestration loop: read frame, decode, dispatch to the chat service,
// deliver the reply through the registry.
type Handler struct {
	registry     *Registry
	chat         interfaces.ChatProcessor
	readTimeout  time.Duration
	pingInterval time.Duration
	logger       *zap.Logger
}

// NewHandler creates a WebSocket handler with dependency injection
func NewHandler(registry *Registry, chat interfaces.ChatProcessor, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		registry:     registry,
		chat:         chat,
		readTimeout:  DefaultReadTimeout,
		pingInterval: DefaultPingInterval,
		logger:       logger,
	}
}

// SetTimeouts overrides the read deadline and ping interval. Non-positive
// values keep the current settings.
func (h *Handler) SetTimeouts(readTimeout, pingInterval time.Duration) {
	if readTimeout > 0 {
		h.readTimeout = readTimeout
	}
	if pingInterval > 0 {
		h.pingInterval = pingInterval
	}
}

// HandleWebSocket upgrades the request and registers the connection under
// its session id.
// ARCHITECTURAL DISCOVERY: Validation before upgrade keeps invalid requests
// on the cheap HTTP error path instead of consuming WebSocket resources
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = DefaultSessionID
	}

	if !types.IsValidSessionID(sessionID) {
		http.Error(w, "Invalid session_id", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket_upgrade_failed", zap.Error(err))
		return
	}

	wsConn := NewConnection(conn, sessionID)

	if err := h.registry.Register(wsConn); err != nil {
		h.logger.Error("websocket_register_failed",
			zap.String("session_id", sessionID), zap.Error(err))
		_ = wsConn.Close()
		return
	}

	// Best-effort status frame; a failure here is not a connection fault
	_ = h.registry.Send(sessionID, types.NewConnectionStatus(sessionID, types.StatusConnected))

	go h.handleConnection(wsConn)
}

// handleConnection runs the read loop until the client disconnects.
// Frames are processed strictly sequentially: the next frame is not read
// until the previous message's full processing completes.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		// FUNCTIONAL DISCOVERY: Deferred cleanup ensures deregistration even
		// if frame processing panics or exits unexpectedly
		h.registry.Deregister(conn)
		_ = conn.Close()
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.readTimeout)); err != nil {
		h.logger.Error("websocket_read_deadline_failed", zap.Error(err))
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			// Disconnect is normal termination, not an error path
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket_read_error",
					zap.String("session_id", conn.SessionID()), zap.Error(err))
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		h.processFrame(conn, data)

		// FUNCTIONAL DISCOVERY: Frame processing blocks the read loop for the
		// whole agent turn, so no pongs are read while it runs and the
		// deadline set before the turn may already be in the past. The
		// deadline must restart from the end of processing, not its start -
		// otherwise any turn longer than the read timeout drops a healthy
		// connection the moment the loop resumes.
		if err := conn.conn.SetReadDeadline(time.Now().Add(h.readTimeout)); err != nil {
			h.logger.Error("websocket_read_deadline_failed",
				zap.String("session_id", conn.SessionID()), zap.Error(err))
			return
		}
	}
}

// processFrame decodes one inbound frame and dispatches it.
// FUNCTIONAL DISCOVERY: Error envelopes are keyed on the connection's own
// session id, never on ids parsed from a bad payload
func (h *Handler) processFrame(conn *Connection, data []byte) {
	sessionID := conn.SessionID()

	msg, err := types.DecodeInbound(data)
	if err != nil {
		h.logger.Warn("websocket_invalid_frame",
			zap.String("session_id", sessionID), zap.Error(err))
		_ = h.registry.Send(sessionID, types.NewErrorMessage(sessionID, fmt.Sprintf("Invalid message format: %v", err)))
		return
	}

	output := h.chat.Process(conn.ctx, sessionID, msg.Content)

	_ = h.registry.Send(sessionID, types.NewAssistantMessage(sessionID, output))
}

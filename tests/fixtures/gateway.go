// Package fixtures provides an embedded gateway and WebSocket test client
// for end-to-end scenario tests.
package fixtures

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"fhirchat/internal/agent"
	"fhirchat/internal/api"
	"fhirchat/internal/chat"
	"fhirchat/internal/telemetry"
	"fhirchat/internal/trace"
	"fhirchat/internal/websocket"
	"fhirchat/pkg/interfaces"
)

// ScriptedAgent is a deterministic stand-in for the hosted model. Each run
// consumes the next scripted reply; when exhausted it echoes the prompt's
// last user line.
type ScriptedAgent struct {
	mu      sync.Mutex
	Replies []string
	RunErr  error
	Prompts []string
}

func (a *ScriptedAgent) Session(context.Context) (interfaces.AgentSession, error) {
	return &scriptedSession{agent: a}, nil
}

type scriptedSession struct {
	agent *ScriptedAgent
}

func (s *scriptedSession) Run(_ context.Context, prompt string) (interfaces.AgentResult, error) {
	a := s.agent
	a.mu.Lock()
	defer a.mu.Unlock()

	a.Prompts = append(a.Prompts, prompt)
	if a.RunErr != nil {
		return interfaces.AgentResult{}, a.RunErr
	}
	if len(a.Replies) > 0 {
		reply := a.Replies[0]
		a.Replies = a.Replies[1:]
		return interfaces.AgentResult{Output: reply}, nil
	}

	lines := strings.Split(strings.TrimSuffix(prompt, "\nAssistant:"), "\n")
	last := lines[len(lines)-1]
	return interfaces.AgentResult{Output: "echo " + strings.TrimPrefix(last, "User: ")}, nil
}

func (s *scriptedSession) Close() error { return nil }

// Gateway is a fully assembled gateway behind an httptest server
type Gateway struct {
	Server    *httptest.Server
	Agent     *ScriptedAgent
	Registry  *websocket.Registry
	Chat      *chat.Service
	SpanStore *trace.Store
}

// StartGateway assembles the production component graph with a scripted
// agent and serves it on an ephemeral port.
func StartGateway(t *testing.T, scripted *ScriptedAgent) *Gateway {
	t.Helper()

	if scripted == nil {
		scripted = &ScriptedAgent{}
	}
	logger := zap.NewNop()

	store, err := trace.NewStore(filepath.Join(t.TempDir(), "spans.db"), logger)
	if err != nil {
		t.Fatalf("Failed to create span store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	registry := websocket.NewRegistry(logger)
	emitter := telemetry.NewEmitter(registry, store, logger)
	chatSvc := chat.NewService(scripted, emitter, "gpt-4o", 0, logger)
	historySvc := agent.NewHistoryService(scripted, logger)
	backend := trace.NewBackend(logger, store)
	apiServer := api.NewServer(chatSvc, historySvc, backend, registry, logger)
	wsHandler := websocket.NewHandler(registry, chatSvc, logger)

	mux := http.NewServeMux()
	mux.Handle("/chat", apiServer)
	mux.Handle("/patient", apiServer)
	mux.Handle("/telemetry/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &Gateway{
		Server:    server,
		Agent:     scripted,
		Registry:  registry,
		Chat:      chatSvc,
		SpanStore: store,
	}
}

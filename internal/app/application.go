// Package app assembles the gateway from its components and owns their
// lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"fhirchat/internal/agent"
	"fhirchat/internal/api"
	"fhirchat/internal/chat"
	"fhirchat/internal/config"
	"fhirchat/internal/telemetry"
	"fhirchat/internal/trace"
	"fhirchat/internal/websocket"
	"fhirchat/pkg/interfaces"
)

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config     *config.Config
	spanStore  *trace.Store
	registry   *websocket.Registry
	emitter    *telemetry.Emitter
	chatSvc    *chat.Service
	historySvc *agent.HistoryService
	backend    *trace.Backend
	apiServer  *api.Server
	httpServer *http.Server
	logger     *zap.Logger
}

// NewApplication creates a new application instance with all components
// initialized. Component initialization follows strict dependency order:
// Span store → Registry → Emitter → Agent → Chat → History → Backend → API → HTTP
func NewApplication(cfg *config.Config, logger *zap.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// Validate configuration before component initialization
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Initialize the local span store (foundation layer)
	spanStore, err := trace.NewStore(cfg.Telemetry.SpanStorePath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize span store: %w", err)
	}

	// STEP 2: Initialize WebSocket registry for connection tracking
	registry := websocket.NewRegistry(logger)

	// STEP 3: Initialize telemetry emitter over the registry and span store
	emitter := telemetry.NewEmitter(registry, spanStore, logger)

	// STEP 4: Initialize the agent. Missing credentials degrade to an
	// unconfigured client so chat turns fold the fault into output instead
	// of the gateway refusing to start.
	llm, err := buildAgent(cfg.Agent, emitter, logger)
	if err != nil {
		_ = spanStore.Close()
		return nil, fmt.Errorf("failed to initialize agent: %w", err)
	}

	// STEP 5: Initialize chat orchestration and history generation
	chatSvc := chat.NewService(llm, emitter, cfg.Agent.Model, cfg.Agent.RunTimeout, logger)
	historySvc := agent.NewHistoryService(llm, logger)

	// STEP 6: Initialize the merged trace backend (local store + Jaeger)
	jaeger := trace.NewJaegerClient(cfg.Telemetry.JaegerQueryURL,
		cfg.Telemetry.ServiceName, cfg.Telemetry.QueryTimeout, logger)
	backend := trace.NewBackend(logger, spanStore, jaeger)

	// STEP 7: Initialize API server with all business dependencies
	apiServer := api.NewServer(chatSvc, historySvc, backend, registry, logger)

	// STEP 8: Initialize WebSocket handler with configured heartbeat timings
	wsHandler := websocket.NewHandler(registry, chatSvc, logger)
	wsHandler.SetTimeouts(cfg.WebSocket.ReadTimeout, cfg.WebSocket.PingInterval)

	// STEP 9: Setup HTTP server with both API and WebSocket endpoints
	mux := http.NewServeMux()
	mux.Handle("/chat", apiServer)
	mux.Handle("/patient", apiServer)
	mux.Handle("/telemetry/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		spanStore:  spanStore,
		registry:   registry,
		emitter:    emitter,
		chatSvc:    chatSvc,
		historySvc: historySvc,
		backend:    backend,
		apiServer:  apiServer,
		httpServer: httpServer,
		logger:     logger,
	}, nil
}

// buildAgent wires the Azure OpenAI agent with the emitter observing tool
// dispatches. Without credentials the client is a stub whose calls fail,
// which the chat service folds into assistant-visible error content.
func buildAgent(cfg *config.AgentConfig, emitter *telemetry.Emitter, logger *zap.Logger) (interfaces.Agent, error) {
	opts := agent.Options{
		Observer: emitter,
		Logger:   logger,
	}

	if cfg.Endpoint == "" || cfg.APIKey == "" {
		logger.Warn("agent_credentials_missing")
		opts.Client = unconfiguredClient{}
		opts.Model = cfg.Model
		return agent.New(opts)
	}

	return agent.NewAzure(cfg.Endpoint, cfg.APIKey, cfg.Model, cfg.APIVersion, opts)
}

// unconfiguredClient fails every completion with a stable message
type unconfiguredClient struct{}

func (unconfiguredClient) CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (
	openai.ChatCompletionResponse, error) {
	return openai.ChatCompletionResponse{}, fmt.Errorf("agent is not configured")
}

// Start begins application execution
// Startup coordination ensures the HTTP server is accepting connections
// before returning
func (app *Application) Start(ctx context.Context) error {
	app.logger.Info("application_starting", zap.String("addr", app.httpServer.Addr))

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Verify server is ready before returning
	select {
	case err := <-serverErrCh:
		_ = app.spanStore.Close()
		return err
	case <-time.After(100 * time.Millisecond):
		app.logger.Info("application_started")
		return nil
	case <-ctx.Done():
		_ = app.spanStore.Close()
		return ctx.Err()
	}
}

// Stop gracefully shuts down the application
// Reverse dependency order: HTTP → connections → span store
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info("application_stopping")

	// STEP 1: Stop accepting new connections
	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.logger.Error("http_shutdown_error", zap.Error(err))
	}

	// STEP 2: Close remaining WebSocket connections
	for _, sessionID := range app.registry.Sessions() {
		app.registry.Disconnect(sessionID)
	}

	// STEP 3: Stop the span store writer
	if err := app.spanStore.Close(); err != nil {
		app.logger.Error("span_store_shutdown_error", zap.Error(err))
	}

	app.logger.Info("application_stopped")
	return nil
}

// GetAddr returns the server address for external connections
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}

// Package agent implements the language-model collaborator behind the chat
// gateway: an Azure OpenAI chat-completions client with a tool-call loop,
// consumed through the scoped session contract in pkg/interfaces.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"fhirchat/pkg/interfaces"
)

// maxToolRounds bounds the model/tool round-trips in one run so a looping
// model cannot wedge a connection's turn forever.
const maxToolRounds = 8

// ChatClient captures the subset of the go-openai client used by the agent.
// ARCHITECTURAL DISCOVERY: Narrow client seam keeps provider coupling in one
// place and lets tests substitute deterministic completions
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (
		openai.ChatCompletionResponse, error)
}

// Options configures the OpenAI-backed agent
type Options struct {
	Client   ChatClient
	Model    string
	Tools    []openai.Tool            // tool definitions exposed to the model
	Executor interfaces.ToolExecutor  // nil selects UnavailableExecutor
	Observer interfaces.ToolObserver  // nil disables tool telemetry
	Logger   *zap.Logger
}

// OpenAIAgent implements interfaces.Agent via the chat completions API
type OpenAIAgent struct {
	client   ChatClient
	model    string
	tools    []openai.Tool
	executor interfaces.ToolExecutor
	observer interfaces.ToolObserver
	tracer   trace.Tracer
	logger   *zap.Logger
}

// New builds an agent from the provided options
func New(opts Options) (*OpenAIAgent, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("agent: chat client is required")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("agent: model is required")
	}
	executor := opts.Executor
	if executor == nil {
		executor = UnavailableExecutor{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIAgent{
		client:   opts.Client,
		model:    opts.Model,
		tools:    opts.Tools,
		executor: executor,
		observer: opts.Observer,
		tracer:   otel.Tracer("fhirchat/agent"),
		logger:   logger,
	}, nil
}

// NewAzure builds an agent backed by an Azure OpenAI deployment, matching
// the provider configuration the gateway is deployed against.
func NewAzure(endpoint, apiKey, model, apiVersion string, opts Options) (*OpenAIAgent, error) {
	if endpoint == "" || apiKey == "" {
		return nil, fmt.Errorf("agent: azure endpoint and api key are required")
	}
	cfg := openai.DefaultAzureConfig(apiKey, endpoint)
	if apiVersion != "" {
		cfg.APIVersion = apiVersion
	}
	opts.Client = openai.NewClientWithConfig(cfg)
	opts.Model = model
	return New(opts)
}

// Model returns the configured model name
func (a *OpenAIAgent) Model() string {
	return a.model
}

// Session acquires a scoped run session. The session must be closed on
// every exit path.
func (a *OpenAIAgent) Session(ctx context.Context) (interfaces.AgentSession, error) {
	return &runSession{agent: a}, nil
}

// runSession is one scoped acquisition of the agent
type runSession struct {
	agent     *OpenAIAgent
	closeOnce sync.Once
	closed    bool
	mu        sync.Mutex
}

// Run executes the prompt, resolving tool calls until the model produces a
// final answer. Any provider fault surfaces as an error for the caller to
// fold - never as a panic or a connection-level failure.
func (s *runSession) Run(ctx context.Context, prompt string) (interfaces.AgentResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return interfaces.AgentResult{}, ErrSessionClosed
	}
	s.mu.Unlock()

	a := s.agent
	sessionID := interfaces.SessionIDFromContext(ctx)

	ctx, span := a.tracer.Start(ctx, "chat_session", trace.WithAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("openai.model", a.model),
	))
	defer span.End()

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}

	usage := interfaces.TokenUsage{}
	for round := 0; round < maxToolRounds; round++ {
		resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    a.model,
			Messages: messages,
			Tools:    a.tools,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return interfaces.AgentResult{}, fmt.Errorf("chat completion: %w", err)
		}

		usage.PromptTokens += resp.Usage.PromptTokens
		usage.CompletionTokens += resp.Usage.CompletionTokens
		usage.TotalTokens += resp.Usage.TotalTokens

		if len(resp.Choices) == 0 {
			return interfaces.AgentResult{}, ErrNoCompletion
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			span.SetAttributes(attribute.Int("openai.token_count", usage.TotalTokens))
			return interfaces.AgentResult{Output: msg.Content, Usage: &usage}, nil
		}

		// Tool round: notify the observer around each dispatch and feed the
		// results back to the model
		messages = append(messages, msg)
		for _, tc := range msg.ToolCalls {
			messages = append(messages, s.dispatchTool(ctx, sessionID, tc))
		}
	}

	return interfaces.AgentResult{}, ErrToolRoundsExceeded
}

// dispatchTool executes one tool call and returns the tool message for the
// next model round. Executor failures become tool-result content, not run
// failures.
func (s *runSession) dispatchTool(ctx context.Context, sessionID string, tc openai.ToolCall) openai.ChatCompletionMessage {
	a := s.agent

	callID := tc.ID
	if callID == "" {
		callID = uuid.New().String()
	}

	var args map[string]any
	if tc.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			a.logger.Warn("agent_tool_arguments_invalid",
				zap.String("tool_name", tc.Function.Name), zap.Error(err))
		}
	}

	if a.observer != nil {
		a.observer.EmitToolCall(sessionID, callID, tc.Function.Name, args)
	}

	start := time.Now()
	result, err := a.executor.Execute(ctx, tc.Function.Name, args)
	if err != nil {
		result = fmt.Sprintf("Error: %v", err)
	}
	durationMS := time.Since(start).Milliseconds()

	if a.observer != nil {
		a.observer.EmitToolResult(sessionID, callID, tc.Function.Name, result, durationMS)
	}

	// callID, not tc.ID: when the provider omits the id, the model's
	// tool-result correlation must match what the observer was told
	return openai.ChatCompletionMessage{
		Role:       openai.ChatMessageRoleTool,
		Content:    result,
		ToolCallID: callID,
	}
}

// Close releases the session. Further Run calls fail with ErrSessionClosed.
func (s *runSession) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
	})
	return nil
}

// UnavailableExecutor is the default tool executor: the FHIR/MCP toolset is
// an external collaborator, so without one every tool reports unavailable.
type UnavailableExecutor struct{}

func (UnavailableExecutor) Execute(_ context.Context, toolName string, _ map[string]any) (string, error) {
	return "", fmt.Errorf("tool %q is not available", toolName)
}

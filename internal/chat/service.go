// Package chat owns the per-session conversation store and the orchestration
// of one user turn: transcript append, prompt build, scoped agent invocation
// with telemetry markers, and error folding.
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"fhirchat/internal/telemetry"
	"fhirchat/pkg/interfaces"
	"fhirchat/pkg/types"
)

// DefaultRunTimeout bounds one agent invocation. A hung model call times
// out, emits its response marker, and folds into assistant content like any
// other agent failure.
const DefaultRunTimeout = 120 * time.Second

// openAIEmitter is the slice of the telemetry emitter the service needs
type openAIEmitter interface {
	EmitOpenAI(sessionID, eventType, model string, opts telemetry.OpenAIEventOpts)
}

// Service manages in-memory chat transcripts and delegates to the agent.
// ARCHITECTURAL DISCOVERY: Process-scoped state object injected into the
// transport layers - no ambient singletons. The transcript map is shared by
// every connection goroutine, so it is mutex-protected.
type Service struct {
	mu          sync.RWMutex
	transcripts map[string][]string // sessionID -> ordered role-prefixed turns, append-only

	agent      interfaces.Agent
	emitter    openAIEmitter
	model      string
	runTimeout time.Duration
	logger     *zap.Logger
}

// NewService creates a chat service. model is the reported model name on
// telemetry markers; runTimeout <= 0 selects DefaultRunTimeout.
func NewService(agent interfaces.Agent, emitter openAIEmitter, model string, runTimeout time.Duration, logger *zap.Logger) *Service {
	if runTimeout <= 0 {
		runTimeout = DefaultRunTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		transcripts: make(map[string][]string),
		agent:       agent,
		emitter:     emitter,
		model:       model,
		runTimeout:  runTimeout,
		logger:      logger,
	}
}

// Process runs one user turn and returns the assistant output. It never
// fails: any agent fault is folded into the output as "Error: ..." content,
// a deliberate policy so clients always receive a well-formed assistant
// message (documented in DESIGN.md).
func (s *Service) Process(ctx context.Context, sessionID, message string) string {
	prompt := s.appendUser(sessionID, message)

	s.emitter.EmitOpenAI(sessionID, types.MessageTypeOpenAICall, s.model, telemetry.OpenAIEventOpts{})

	start := time.Now()
	result, runErr := s.invoke(interfaces.WithSessionID(ctx, sessionID), prompt)
	durationMS := time.Since(start).Milliseconds()

	output := result.Output
	if runErr != nil {
		s.logger.Warn("chat_agent_run_failed",
			zap.String("session_id", sessionID), zap.Error(runErr))
		output = fmt.Sprintf("Error: %v", runErr)
	}

	opts := telemetry.OpenAIEventOpts{DurationMS: &durationMS}
	if result.Usage != nil {
		opts.PromptTokens = &result.Usage.PromptTokens
		opts.CompletionTokens = &result.Usage.CompletionTokens
		opts.TotalTokens = &result.Usage.TotalTokens
	}
	s.emitter.EmitOpenAI(sessionID, types.MessageTypeOpenAIResponse, s.model, opts)

	s.appendAssistant(sessionID, output)

	return output
}

// invoke acquires an agent session, runs the prompt under the configured
// timeout, and releases the session on every exit path.
func (s *Service) invoke(ctx context.Context, prompt string) (interfaces.AgentResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	session, err := s.agent.Session(runCtx)
	if err != nil {
		return interfaces.AgentResult{}, err
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			s.logger.Warn("chat_agent_session_close_failed", zap.Error(closeErr))
		}
	}()

	return session.Run(runCtx, prompt)
}

// appendUser records the user turn and returns the prompt for the next
// agent call: the full transcript joined by newlines plus the assistant cue.
func (s *Service) appendUser(sessionID, message string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transcripts[sessionID] = append(s.transcripts[sessionID], "User: "+message)
	return strings.Join(s.transcripts[sessionID], "\n") + "\nAssistant:"
}

func (s *Service) appendAssistant(sessionID, output string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transcripts[sessionID] = append(s.transcripts[sessionID], "Assistant: "+output)
}

// Transcript returns a copy of the session's transcript, oldest first
func (s *Service) Transcript(sessionID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transcript := s.transcripts[sessionID]
	out := make([]string, len(transcript))
	copy(out, transcript)
	return out
}

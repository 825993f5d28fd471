package interfaces

import "context"

// AgentResult is the two-outcome boundary of one agent invocation: callers
// receive either output text (with optional usage) or an error, never a
// connection-level fault.
type AgentResult struct {
	Output string
	Usage  *TokenUsage
}

// TokenUsage reports provider token accounting when available
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// AgentSession is a scoped acquisition of the agent's underlying resources
// (model client, toolset transport). Close must be called on every exit
// path, whether Run returned normally or with an error.
type AgentSession interface {
	Run(ctx context.Context, prompt string) (AgentResult, error)
	Close() error
}

// Agent is the language-model collaborator consumed by the chat service.
// ARCHITECTURAL DISCOVERY: Session-per-invocation mirrors the scoped
// acquire/release contract and lets tests substitute deterministic fakes
type Agent interface {
	Session(ctx context.Context) (AgentSession, error)
}

// ToolObserver receives tool lifecycle notifications from an agent run.
// Implementations must be best-effort: they never return errors and never
// affect the run's control flow.
type ToolObserver interface {
	EmitToolCall(sessionID, toolCallID, toolName string, arguments map[string]any)
	EmitToolResult(sessionID, toolCallID, toolName, result string, durationMS int64)
}

// ToolExecutor resolves a tool invocation requested by the model.
// The FHIR/MCP toolset is an external collaborator; the default executor
// reports tools as unavailable.
type ToolExecutor interface {
	Execute(ctx context.Context, toolName string, arguments map[string]any) (string, error)
}

// Package telemetry translates internal lifecycle events (tool invocations,
// model call boundaries) into wire envelopes and best-effort span records.
package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fhirchat/pkg/interfaces"
	"fhirchat/pkg/types"
)

// Stable namespace for deriving a per-session trace id so locally recorded
// spans for one session group under one trace.
var sessionTraceNamespace = uuid.MustParse("7d3c2a10-9f4e-4b6a-8c21-5e0d9b1f6a42")

// Emitter builds telemetry envelopes and pushes them through the message
// sender. Every emission is best-effort: failures are logged and swallowed,
// never returned - telemetry must never affect the caller's control flow.
type Emitter struct {
	sender   interfaces.MessageSender
	recorder interfaces.SpanRecorder // optional local span store
	logger   *zap.Logger
}

// NewEmitter creates a telemetry emitter. The recorder may be nil when no
// local span store is configured.
func NewEmitter(sender interfaces.MessageSender, recorder interfaces.SpanRecorder, logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{
		sender:   sender,
		recorder: recorder,
		logger:   logger,
	}
}

// EmitToolCall announces a tool invocation before it begins
func (e *Emitter) EmitToolCall(sessionID, toolCallID, toolName string, arguments map[string]any) {
	event := &types.ToolCallEvent{
		Type:       types.MessageTypeToolCall,
		SessionID:  sessionID,
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Arguments:  arguments,
		Timestamp:  time.Now(),
	}

	if err := e.sender.Send(sessionID, event); err != nil {
		e.logger.Warn("telemetry_emit_tool_call_failed",
			zap.String("session_id", sessionID), zap.Error(err))
	}
}

// EmitToolResult reports a completed tool invocation and records its span
func (e *Emitter) EmitToolResult(sessionID, toolCallID, toolName, result string, durationMS int64) {
	now := time.Now()
	event := &types.ToolResultEvent{
		Type:       types.MessageTypeToolResult,
		SessionID:  sessionID,
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Result:     result,
		DurationMS: durationMS,
		Timestamp:  now,
	}

	if err := e.sender.Send(sessionID, event); err != nil {
		e.logger.Warn("telemetry_emit_tool_result_failed",
			zap.String("session_id", sessionID), zap.Error(err))
	}

	e.recordSpan(sessionID, "running tool", now, durationMS, types.SpanAttributes{
		SessionID: sessionID,
		MCPQuery:  toolName,
	})
}

// OpenAIEventOpts carries the optional fields of an OpenAI call/response
// marker. Nil fields are omitted from the wire frame.
type OpenAIEventOpts struct {
	PromptTokens     *int
	CompletionTokens *int
	TotalTokens      *int
	DurationMS       *int64
}

// EmitOpenAI emits a model call boundary marker. eventType must be
// "openai_call" or "openai_response"; anything else is logged and dropped
// rather than put on the wire.
func (e *Emitter) EmitOpenAI(sessionID, eventType, model string, opts OpenAIEventOpts) {
	if eventType != types.MessageTypeOpenAICall && eventType != types.MessageTypeOpenAIResponse {
		e.logger.Warn("telemetry_invalid_openai_event_type",
			zap.String("session_id", sessionID), zap.String("event_type", eventType))
		return
	}

	now := time.Now()
	event := &types.OpenAIEvent{
		Type:             eventType,
		SessionID:        sessionID,
		Model:            model,
		PromptTokens:     opts.PromptTokens,
		CompletionTokens: opts.CompletionTokens,
		TotalTokens:      opts.TotalTokens,
		DurationMS:       opts.DurationMS,
		Timestamp:        now,
	}

	if err := e.sender.Send(sessionID, event); err != nil {
		e.logger.Warn("telemetry_emit_openai_failed",
			zap.String("session_id", sessionID),
			zap.String("event_type", eventType), zap.Error(err))
	}

	// Only the response marker describes a completed, timed operation
	if eventType == types.MessageTypeOpenAIResponse && opts.DurationMS != nil {
		attrs := types.SpanAttributes{
			SessionID:   sessionID,
			OpenAIModel: model,
		}
		if opts.TotalTokens != nil {
			attrs.OpenAITokenCount = *opts.TotalTokens
		}
		e.recordSpan(sessionID, "openai.chat.completion", now, *opts.DurationMS, attrs)
	}
}

// recordSpan persists a completed operation into the local span store.
// FUNCTIONAL DISCOVERY: Span end time is the emission time and the start is
// back-dated by the reported duration, so local spans line up with what the
// client saw on the wire
func (e *Emitter) recordSpan(sessionID, operation string, end time.Time, durationMS int64, attrs types.SpanAttributes) {
	if e.recorder == nil {
		return
	}

	endNS := end.UnixNano()
	durationNS := durationMS * int64(time.Millisecond)

	span := types.SpanData{
		SpanID:        uuid.New().String(),
		TraceID:       uuid.NewSHA1(sessionTraceNamespace, []byte(sessionID)).String(),
		OperationName: operation,
		StartTime:     endNS - durationNS,
		EndTime:       endNS,
		Duration:      durationNS,
		Attributes:    attrs,
		Status:        "OK",
	}

	if err := e.recorder.RecordSpan(context.Background(), span); err != nil {
		e.logger.Warn("telemetry_span_record_failed",
			zap.String("session_id", sessionID),
			zap.String("operation", operation), zap.Error(err))
	}
}

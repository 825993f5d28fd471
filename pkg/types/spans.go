package types

// SpanAttributes holds operation-specific data attached to a trace span.
// Flattened attribute keys mirror the OpenTelemetry semantic names used by
// the agent instrumentation.
type SpanAttributes struct {
	OpenAIPrompt     string            `json:"openai.prompt,omitempty"`
	OpenAICompletion string            `json:"openai.completion,omitempty"`
	OpenAIModel      string            `json:"openai.model,omitempty"`
	OpenAITokenCount int               `json:"openai.token_count,omitempty"`
	MCPQuery         string            `json:"mcp.query,omitempty"`
	MCPResourceType  string            `json:"mcp.resource_type,omitempty"`
	MCPResponse      string            `json:"mcp.response,omitempty"`
	SessionID        string            `json:"session_id,omitempty"`
	Additional       map[string]string `json:"additional_attributes,omitempty"`
}

// SpanData is one timed operation read from the trace backend.
// Timestamps and duration are nanoseconds since epoch, matching the
// Jaeger/OTLP representation so no precision is lost in conversion.
type SpanData struct {
	SpanID        string         `json:"span_id"`
	TraceID       string         `json:"trace_id"`
	ParentSpanID  string         `json:"parent_span_id,omitempty"`
	OperationName string         `json:"operation_name"`
	StartTime     int64          `json:"start_time"`
	EndTime       int64          `json:"end_time"`
	Duration      int64          `json:"duration"`
	Attributes    SpanAttributes `json:"attributes"`
	Status        string         `json:"status"`
	ErrorMessage  string         `json:"error_message,omitempty"`
}

// TelemetryResponse is the payload returned by GET /telemetry/{session_id}
type TelemetryResponse struct {
	SessionID  string     `json:"session_id"`
	Spans      []SpanData `json:"spans"`
	TraceCount int        `json:"trace_count"`
}

// CountTraces returns the number of distinct trace ids across spans
func CountTraces(spans []SpanData) int {
	seen := make(map[string]struct{}, len(spans))
	for _, span := range spans {
		seen[span.TraceID] = struct{}{}
	}
	return len(seen)
}

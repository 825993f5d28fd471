// Package trace provides the read-only trace backends consumed by the
// telemetry endpoint: a Jaeger Query API client and a local SQLite span
// store, merged behind one querier.
package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"fhirchat/pkg/types"
)

// Jaeger Query API defaults matching the agent's OTLP export pipeline
const (
	DefaultJaegerTimeout = 5 * time.Second
	DefaultServiceName   = "fhir-chat-agent"
	jaegerQueryLimit     = 100
)

// JaegerClient queries the Jaeger Query API for spans tagged with a session
// id. All failures degrade to an empty result - the telemetry surface treats
// an unreachable collector the same as no data.
type JaegerClient struct {
	queryURL   string // e.g. http://localhost:16686/api/traces
	service    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewJaegerClient creates a Jaeger query client
func NewJaegerClient(queryURL, service string, timeout time.Duration, logger *zap.Logger) *JaegerClient {
	if service == "" {
		service = DefaultServiceName
	}
	if timeout <= 0 {
		timeout = DefaultJaegerTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JaegerClient{
		queryURL:   queryURL,
		service:    service,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// QuerySpans returns the relevant spans recorded for a session.
// FUNCTIONAL DISCOVERY: The error return is always nil - timeouts, HTTP
// faults, and parse errors are logged and produce an empty slice, reserving
// hard failure for callers that cannot even issue the read
func (c *JaegerClient) QuerySpans(ctx context.Context, sessionID string) ([]types.SpanData, error) {
	params := url.Values{}
	params.Set("service", c.service)
	params.Set("tag", fmt.Sprintf("session_id:%s", sessionID))
	params.Set("limit", strconv.Itoa(jaegerQueryLimit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.queryURL+"?"+params.Encode(), nil)
	if err != nil {
		c.logger.Error("jaeger_query_error",
			zap.String("session_id", sessionID), zap.Error(err))
		return nil, nil
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("jaeger_query_http_error",
			zap.String("session_id", sessionID), zap.Error(err))
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("jaeger_query_http_error",
			zap.String("session_id", sessionID), zap.Int("status", resp.StatusCode))
		return nil, nil
	}

	var payload jaegerResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.logger.Error("jaeger_query_parse_error",
			zap.String("session_id", sessionID), zap.Error(err))
		return nil, nil
	}

	spans := c.parseResponse(payload, sessionID)
	c.logger.Info("jaeger_query_success",
		zap.String("session_id", sessionID), zap.Int("span_count", len(spans)))
	return spans, nil
}

// Jaeger Query API wire structures (only the fields consumed here)
type jaegerResponse struct {
	Data []jaegerTrace `json:"data"`
}

type jaegerTrace struct {
	Spans []jaegerSpan `json:"spans"`
}

type jaegerSpan struct {
	TraceID       string            `json:"traceID"`
	SpanID        string            `json:"spanID"`
	OperationName string            `json:"operationName"`
	StartTime     int64             `json:"startTime"` // microseconds since epoch
	Duration      int64             `json:"duration"`  // microseconds
	References    []jaegerReference `json:"references"`
	Tags          []jaegerTag       `json:"tags"`
}

type jaegerReference struct {
	RefType string `json:"refType"`
	SpanID  string `json:"spanID"`
}

type jaegerTag struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

func (c *JaegerClient) parseResponse(payload jaegerResponse, sessionID string) []types.SpanData {
	var spans []types.SpanData

	for _, tr := range payload.Data {
		for _, js := range tr.Spans {
			if !isRelevantSpan(js.OperationName) {
				continue
			}
			spans = append(spans, convertJaegerSpan(js))
		}
	}

	return spans
}

// isRelevantSpan keeps only model, tool, and agent operation spans -
// transport and framework noise is filtered server-side
func isRelevantSpan(operationName string) bool {
	lower := strings.ToLower(operationName)
	return strings.HasPrefix(operationName, "openai.") ||
		strings.HasPrefix(operationName, "mcp.") ||
		strings.HasPrefix(operationName, "chat ") ||
		strings.HasPrefix(operationName, "agent ") ||
		strings.Contains(operationName, "OpenAI") ||
		strings.Contains(operationName, "MCP") ||
		strings.Contains(operationName, "Aidbox") ||
		strings.Contains(lower, "gpt") ||
		operationName == "chat_session" ||
		operationName == "running tool" ||
		operationName == "running tools"
}

// convertJaegerSpan maps a Jaeger span onto the SpanData model.
// TECHNICAL DISCOVERY: Jaeger Query reports microseconds; SpanData carries
// nanoseconds, so times are scaled on conversion
func convertJaegerSpan(js jaegerSpan) types.SpanData {
	startNS := js.StartTime * int64(time.Microsecond)
	durationNS := js.Duration * int64(time.Microsecond)

	parentSpanID := ""
	for _, ref := range js.References {
		if ref.RefType == "CHILD_OF" {
			parentSpanID = ref.SpanID
			break
		}
	}

	attrs := types.SpanAttributes{Additional: make(map[string]string)}
	status := "OK"
	errorMessage := ""
	for _, tag := range js.Tags {
		value := fmt.Sprint(tag.Value)
		switch tag.Key {
		case "openai.prompt":
			attrs.OpenAIPrompt = value
		case "openai.completion":
			attrs.OpenAICompletion = value
		case "openai.model":
			attrs.OpenAIModel = value
		case "openai.token_count":
			if n, err := strconv.Atoi(value); err == nil {
				attrs.OpenAITokenCount = n
			}
		case "mcp.query":
			attrs.MCPQuery = value
		case "mcp.resource_type":
			attrs.MCPResourceType = value
		case "mcp.response":
			attrs.MCPResponse = value
		case "session_id":
			attrs.SessionID = value
		case "otel.status_code":
			if value == "ERROR" {
				status = "ERROR"
			}
		case "error.message":
			errorMessage = value
		default:
			attrs.Additional[tag.Key] = value
		}
	}
	if status != "ERROR" {
		errorMessage = ""
	}
	if len(attrs.Additional) == 0 {
		attrs.Additional = nil
	}

	return types.SpanData{
		SpanID:        js.SpanID,
		TraceID:       js.TraceID,
		ParentSpanID:  parentSpanID,
		OperationName: js.OperationName,
		StartTime:     startNS,
		EndTime:       startNS + durationNS,
		Duration:      durationNS,
		Attributes:    attrs,
		Status:        status,
		ErrorMessage:  errorMessage,
	}
}

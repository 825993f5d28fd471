package trace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const jaegerFixture = `{
	"data": [
		{
			"spans": [
				{
					"traceID": "trace-1",
					"spanID": "span-1",
					"operationName": "openai.chat.completion",
					"startTime": 1724580000000000,
					"duration": 1500000,
					"references": [
						{"refType": "CHILD_OF", "spanID": "span-parent"}
					],
					"tags": [
						{"key": "openai.model", "value": "gpt-4o"},
						{"key": "openai.token_count", "value": 42},
						{"key": "session_id", "value": "test-123"},
						{"key": "http.method", "value": "POST"}
					]
				},
				{
					"traceID": "trace-1",
					"spanID": "span-2",
					"operationName": "running tool",
					"startTime": 1724580001000000,
					"duration": 250000,
					"tags": [
						{"key": "mcp.query", "value": "fhir_search"},
						{"key": "otel.status_code", "value": "ERROR"},
						{"key": "error.message", "value": "backend down"}
					]
				},
				{
					"traceID": "trace-1",
					"spanID": "span-3",
					"operationName": "http receive",
					"startTime": 1724580002000000,
					"duration": 100,
					"tags": []
				}
			]
		}
	]
}`

// startJaegerFixture serves the canned query response and records requests
func startJaegerFixture(t *testing.T, body string, status int) (*JaegerClient, *http.Request) {
	t.Helper()

	var captured http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = *r
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	client := NewJaegerClient(server.URL+"/api/traces", "", time.Second, nil)
	return client, &captured
}

// Functional Validation Tests
func TestJaegerClient_QueryParameters(t *testing.T) {
	client, captured := startJaegerFixture(t, `{"data":[]}`, http.StatusOK)

	client.QuerySpans(context.Background(), "test-123")

	q := captured.URL.Query()
	if q.Get("service") != DefaultServiceName {
		t.Errorf("Expected service %q, got %q", DefaultServiceName, q.Get("service"))
	}
	if q.Get("tag") != "session_id:test-123" {
		t.Errorf("Expected session tag filter, got %q", q.Get("tag"))
	}
	if q.Get("limit") != "100" {
		t.Errorf("Expected limit 100, got %q", q.Get("limit"))
	}
}

func TestJaegerClient_ParsesAndFiltersSpans(t *testing.T) {
	client, _ := startJaegerFixture(t, jaegerFixture, http.StatusOK)

	spans, err := client.QuerySpans(context.Background(), "test-123")
	if err != nil {
		t.Fatalf("QuerySpans failed: %v", err)
	}

	// The transport span is filtered out
	if len(spans) != 2 {
		t.Fatalf("Expected 2 relevant spans, got %d", len(spans))
	}

	first := spans[0]
	if first.SpanID != "span-1" {
		t.Errorf("Expected span-1 first, got %q", first.SpanID)
	}
	if first.ParentSpanID != "span-parent" {
		t.Errorf("Expected CHILD_OF parent, got %q", first.ParentSpanID)
	}
	// Jaeger reports microseconds; SpanData carries nanoseconds
	if first.StartTime != 1724580000000000*1000 {
		t.Errorf("Expected nanosecond start time, got %d", first.StartTime)
	}
	if first.Duration != 1500000*1000 {
		t.Errorf("Expected nanosecond duration, got %d", first.Duration)
	}
	if first.EndTime != first.StartTime+first.Duration {
		t.Error("End time must be start + duration")
	}
	if first.Attributes.OpenAIModel != "gpt-4o" {
		t.Errorf("Expected model attribute, got %q", first.Attributes.OpenAIModel)
	}
	if first.Attributes.OpenAITokenCount != 42 {
		t.Errorf("Expected token count 42, got %d", first.Attributes.OpenAITokenCount)
	}
	if first.Attributes.SessionID != "test-123" {
		t.Errorf("Expected session attribute, got %q", first.Attributes.SessionID)
	}
	if first.Attributes.Additional["http.method"] != "POST" {
		t.Errorf("Expected unmapped tag in additional attributes, got %v", first.Attributes.Additional)
	}
	if first.Status != "OK" {
		t.Errorf("Expected OK status, got %q", first.Status)
	}

	second := spans[1]
	if second.Status != "ERROR" {
		t.Errorf("Expected ERROR status from otel.status_code, got %q", second.Status)
	}
	if second.ErrorMessage != "backend down" {
		t.Errorf("Expected error message, got %q", second.ErrorMessage)
	}
}

func TestJaegerClient_HTTPErrorDegradesToEmpty(t *testing.T) {
	client, _ := startJaegerFixture(t, "oops", http.StatusInternalServerError)

	spans, err := client.QuerySpans(context.Background(), "test-123")
	if err != nil {
		t.Errorf("Expected nil error on HTTP failure, got %v", err)
	}
	if len(spans) != 0 {
		t.Errorf("Expected no spans on HTTP failure, got %d", len(spans))
	}
}

func TestJaegerClient_ParseErrorDegradesToEmpty(t *testing.T) {
	client, _ := startJaegerFixture(t, "not json", http.StatusOK)

	spans, err := client.QuerySpans(context.Background(), "test-123")
	if err != nil {
		t.Errorf("Expected nil error on parse failure, got %v", err)
	}
	if len(spans) != 0 {
		t.Errorf("Expected no spans on parse failure, got %d", len(spans))
	}
}

func TestJaegerClient_UnreachableCollectorDegradesToEmpty(t *testing.T) {
	client := NewJaegerClient("http://127.0.0.1:1/api/traces", "", 100*time.Millisecond, nil)

	spans, err := client.QuerySpans(context.Background(), "test-123")
	if err != nil {
		t.Errorf("Expected nil error for unreachable collector, got %v", err)
	}
	if len(spans) != 0 {
		t.Errorf("Expected no spans, got %d", len(spans))
	}
}

func TestIsRelevantSpan(t *testing.T) {
	relevant := []string{
		"openai.chat.completion",
		"mcp.fhir_search",
		"chat_session",
		"running tool",
		"running tools",
		"OpenAI request",
		"MCP call",
		"Aidbox query",
		"gpt-4o completion",
	}
	for _, op := range relevant {
		if !isRelevantSpan(op) {
			t.Errorf("Expected %q to be relevant", op)
		}
	}

	noise := []string{"http receive", "POST /chat", "connection open"}
	for _, op := range noise {
		if isRelevantSpan(op) {
			t.Errorf("Expected %q to be filtered", op)
		}
	}
}

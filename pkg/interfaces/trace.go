package interfaces

import (
	"context"

	"fhirchat/pkg/types"
)

// SpanQuerier is the read-only trace backend consumed by the telemetry
// endpoint. Implementations return an empty slice - never an error - when
// the backend is unavailable or holds no data; the error return is reserved
// for the read call itself failing irrecoverably.
type SpanQuerier interface {
	QuerySpans(ctx context.Context, sessionID string) ([]types.SpanData, error)
}

// SpanRecorder accepts spans derived from local telemetry events so trace
// data survives without an external collector.
type SpanRecorder interface {
	RecordSpan(ctx context.Context, span types.SpanData) error
}

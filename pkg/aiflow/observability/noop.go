package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
type NoopMetrics struct{}

var _ MetricsRecorder = NoopMetrics{}

// RecordBuild does nothing.
func (NoopMetrics) RecordBuild(_ context.Context, _ int, _ time.Duration, _ error) {}

// RecordRecursionAbort does nothing.
func (NoopMetrics) RecordRecursionAbort(_ context.Context, _ string) {}

// RecordTokenUsage does nothing.
func (NoopMetrics) RecordTokenUsage(_ context.Context, _, _, _ int64) {}

// RecordFinalize does nothing.
func (NoopMetrics) RecordFinalize(_ context.Context, _ int, _ time.Duration) {}

// NoopSpanManager is a SpanManager that does nothing.
type NoopSpanManager struct{}

var _ SpanManager = NoopSpanManager{}

var noopSpan = noop.Span{}

// StartBuildSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartBuildSpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartFinalizeSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartFinalizeSpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}

// AddSpanEvent does nothing.
func (NoopSpanManager) AddSpanEvent(_ context.Context, _ string, _ ...attribute.KeyValue) {}

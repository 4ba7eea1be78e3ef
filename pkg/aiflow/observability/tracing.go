package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer uses the global OTel tracer provider.
var tracer = otel.Tracer("aiflow")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartBuildSpan starts a span covering a whole graph build.
	StartBuildSpan(ctx context.Context, rootKey string) (context.Context, trace.Span)

	// StartFinalizeSpan starts a span covering run finalization.
	StartFinalizeSpan(ctx context.Context, runID string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

func (m *otelSpanManager) StartBuildSpan(ctx context.Context, rootKey string) (context.Context, trace.Span) {
	return StartBuildSpan(ctx, rootKey)
}

func (m *otelSpanManager) StartFinalizeSpan(ctx context.Context, runID string) (context.Context, trace.Span) {
	return StartFinalizeSpan(ctx, runID)
}

func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	AddSpanEvent(ctx, name, attrs...)
}

// StartBuildSpan starts a span for a graph build.
// Uses the global OTel tracer.
func StartBuildSpan(ctx context.Context, rootKey string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "aiflow.build",
		trace.WithAttributes(
			attribute.String("element.key", rootKey),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartFinalizeSpan starts a span for run finalization.
// Uses the global OTel tracer.
func StartFinalizeSpan(ctx context.Context, runID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "aiflow.run.finalize",
		trace.WithAttributes(
			attribute.String("run.id", runID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

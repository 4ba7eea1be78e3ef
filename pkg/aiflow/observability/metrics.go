package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records build and run metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordBuild records a graph build with its node count and duration.
	RecordBuild(ctx context.Context, nodeCount int, duration time.Duration, err error)

	// RecordRecursionAbort records a subtree replaced by an error node.
	RecordRecursionAbort(ctx context.Context, elementKey string)

	// RecordTokenUsage records the tokens attributed to a finalized run.
	RecordTokenUsage(ctx context.Context, prompt, completion, reasoning int64)

	// RecordFinalize records a run finalization.
	RecordFinalize(ctx context.Context, generatedValues int, duration time.Duration)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	builds          metric.Int64Counter
	buildLatency    metric.Float64Histogram
	buildErrors     metric.Int64Counter
	buildNodes      metric.Int64Histogram
	recursionAborts metric.Int64Counter
	tokens          metric.Int64Counter
	finalizes       metric.Int64Counter
	finalizeLatency metric.Float64Histogram
	generatedPerRun metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics lazily initializes the default OTel metrics instance.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("aiflow")

	builds, err := meter.Int64Counter("aiflow.build.count",
		metric.WithDescription("Number of graph builds"),
	)
	if err != nil {
		return nil, err
	}

	buildLatency, err := meter.Float64Histogram("aiflow.build.latency_ms",
		metric.WithDescription("Graph build latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	buildErrors, err := meter.Int64Counter("aiflow.build.errors",
		metric.WithDescription("Number of graph builds that returned an error"),
	)
	if err != nil {
		return nil, err
	}

	buildNodes, err := meter.Int64Histogram("aiflow.build.nodes",
		metric.WithDescription("Nodes in a built graph"),
	)
	if err != nil {
		return nil, err
	}

	recursionAborts, err := meter.Int64Counter("aiflow.build.recursion_aborts",
		metric.WithDescription("Subtrees replaced by an error node at the recursion limit"),
	)
	if err != nil {
		return nil, err
	}

	tokens, err := meter.Int64Counter("aiflow.run.tokens",
		metric.WithDescription("Tokens attributed to finalized runs"),
	)
	if err != nil {
		return nil, err
	}

	finalizes, err := meter.Int64Counter("aiflow.run.finalizes",
		metric.WithDescription("Number of run finalizations"),
	)
	if err != nil {
		return nil, err
	}

	finalizeLatency, err := meter.Float64Histogram("aiflow.run.finalize_latency_ms",
		metric.WithDescription("Run finalization latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	generatedPerRun, err := meter.Int64Histogram("aiflow.run.generated_values",
		metric.WithDescription("Generated values per finalized run"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		builds:          builds,
		buildLatency:    buildLatency,
		buildErrors:     buildErrors,
		buildNodes:      buildNodes,
		recursionAborts: recursionAborts,
		tokens:          tokens,
		finalizes:       finalizes,
		finalizeLatency: finalizeLatency,
		generatedPerRun: generatedPerRun,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordBuild records a graph build.
func (m *otelMetrics) RecordBuild(ctx context.Context, nodeCount int, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.Bool("success", err == nil),
	}
	m.builds.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.buildLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.buildNodes.Record(ctx, int64(nodeCount))
	if err != nil {
		m.buildErrors.Add(ctx, 1)
	}
}

// RecordRecursionAbort records a recursion-limit abort.
func (m *otelMetrics) RecordRecursionAbort(ctx context.Context, elementKey string) {
	m.recursionAborts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("element_key", elementKey),
	))
}

// RecordTokenUsage records attributed tokens, one data point per kind.
func (m *otelMetrics) RecordTokenUsage(ctx context.Context, prompt, completion, reasoning int64) {
	m.tokens.Add(ctx, prompt, metric.WithAttributes(attribute.String("kind", "prompt")))
	m.tokens.Add(ctx, completion, metric.WithAttributes(attribute.String("kind", "completion")))
	m.tokens.Add(ctx, reasoning, metric.WithAttributes(attribute.String("kind", "reasoning")))
}

// RecordFinalize records a run finalization.
func (m *otelMetrics) RecordFinalize(ctx context.Context, generatedValues int, duration time.Duration) {
	m.finalizes.Add(ctx, 1)
	m.finalizeLatency.Record(ctx, float64(duration.Milliseconds()))
	m.generatedPerRun.Record(ctx, int64(generatedValues))
}

package aiflow

import (
	"log/slog"

	"github.com/randalmurphal/aiflow/pkg/aiflow/datamodel"
	"github.com/randalmurphal/aiflow/pkg/aiflow/guard"
	"github.com/randalmurphal/aiflow/pkg/aiflow/observability"
)

// DefaultMaxRecursion is the visit limit per element key.
const DefaultMaxRecursion = 10

// MaxRecursionAttr overrides the visit limit for one element.
const MaxRecursionAttr = "maxRecursion"

// builderConfig holds GraphBuilder configuration.
type builderConfig struct {
	maxRecursion int
	logger       *slog.Logger
	registry     *datamodel.Registry
	metrics      observability.MetricsRecorder
	spans        observability.SpanManager
	guards       *guard.Compiler
	fallback     Constructor
}

func defaultBuilderConfig() builderConfig {
	return builderConfig{
		maxRecursion: DefaultMaxRecursion,
		logger:       slog.Default(),
		metrics:      observability.NoopMetrics{},
		spans:        observability.NoopSpanManager{},
		guards:       guard.Default(),
	}
}

// BuilderOption configures a GraphBuilder.
type BuilderOption func(*builderConfig)

// WithMaxRecursion sets the per-key visit limit. Values below 1 are ignored.
//
// Default: 10
func WithMaxRecursion(n int) BuilderOption {
	return func(c *builderConfig) {
		if n > 0 {
			c.maxRecursion = n
		}
	}
}

// WithLogger sets the logger for build events.
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(c *builderConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDataModels sets the registry datamodel elements register into.
// Each session otherwise gets a fresh registry.
func WithDataModels(r *datamodel.Registry) BuilderOption {
	return func(c *builderConfig) {
		c.registry = r
	}
}

// WithMetrics enables build metrics.
func WithMetrics(m observability.MetricsRecorder) BuilderOption {
	return func(c *builderConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracing enables build spans.
func WithTracing(sm observability.SpanManager) BuilderOption {
	return func(c *builderConfig) {
		if sm != nil {
			c.spans = sm
		}
	}
}

// WithGuardCompiler sets the compiler used to check When guards.
func WithGuardCompiler(gc *guard.Compiler) BuilderOption {
	return func(c *builderConfig) {
		if gc != nil {
			c.guards = gc
		}
	}
}

// WithFallbackConstructor sets the constructor used for elements without one.
func WithFallbackConstructor(ctor Constructor) BuilderOption {
	return func(c *builderConfig) {
		c.fallback = ctor
	}
}

package aiflow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/randalmurphal/aiflow/pkg/aiflow/datamodel"
	"github.com/randalmurphal/aiflow/pkg/aiflow/guard"
	"github.com/randalmurphal/aiflow/pkg/aiflow/template"
	"github.com/randalmurphal/aiflow/pkg/aiflow/value"
)

// ExecutionContext is what an element sees while the engine runs it.
// It extends context.Context with run metadata, the data-model scope active
// at the element, and an expression environment.
//
// ExecutionContext is immutable; ForElement derives a per-element context.
type ExecutionContext interface {
	context.Context

	// Logger returns the logger enriched with run and element context.
	// Never returns nil.
	Logger() *slog.Logger

	// RunID returns the run identifier. Auto-generated if not configured.
	RunID() string

	// RequestID returns the inbound request identifier, if any.
	RequestID() string

	// ElementKey returns the key of the current element.
	// Empty string before ForElement.
	ElementKey() string

	// Run returns the run aggregate, or nil if not configured.
	Run() *value.RunValue

	// Input returns the value the previous step produced, or nil.
	Input() *value.StepValue

	// DataModel returns the data-model view for the current scope.
	// Nil when no registry is configured.
	DataModel() *datamodel.Scoped

	// Attributes returns the current element's attributes with ${path}
	// placeholders resolved through Lookup.
	Attributes() map[string]any

	// Env returns the expression environment: data-model fields visible
	// from the scope plus "input", "run" and "request".
	Env() map[string]any

	// Lookup resolves a dotted path in Env.
	Lookup(path string) (any, bool)

	// Evaluate runs expression against Env.
	Evaluate(expression string) (any, error)

	// Enabled evaluates node's When guard against Env.
	Enabled(node *ExecutionGraphElement) (bool, error)

	// ForElement derives a context for node with input as its Input.
	ForElement(node *ExecutionGraphElement, input *value.StepValue) ExecutionContext
}

type executionContext struct {
	context.Context

	logger    *slog.Logger
	runID     string
	requestID string
	request   map[string]any
	registry  *datamodel.Registry
	run       *value.RunValue
	guards    *guard.Compiler
	expander  *template.Expander

	node  *ExecutionGraphElement
	input *value.StepValue
	scope *datamodel.Scoped
}

// ContextOption configures an ExecutionContext.
type ContextOption func(*executionContext)

// WithContextLogger sets the logger.
func WithContextLogger(logger *slog.Logger) ContextOption {
	return func(c *executionContext) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRunID sets the run identifier. If not set, a UUID is generated.
func WithRunID(id string) ContextOption {
	return func(c *executionContext) {
		if id != "" {
			c.runID = id
		}
	}
}

// WithRequest sets the inbound request id and payload exposed as "request".
func WithRequest(id string, payload map[string]any) ContextOption {
	return func(c *executionContext) {
		c.requestID = id
		c.request = payload
	}
}

// WithRegistry sets the data-model registry.
func WithRegistry(r *datamodel.Registry) ContextOption {
	return func(c *executionContext) {
		c.registry = r
	}
}

// WithRun sets the run aggregate.
func WithRun(run *value.RunValue) ContextOption {
	return func(c *executionContext) {
		c.run = run
	}
}

// WithExpander sets the attribute template expander.
func WithExpander(e *template.Expander) ContextOption {
	return func(c *executionContext) {
		if e != nil {
			c.expander = e
		}
	}
}

// NewExecutionContext creates a run-level context.
//
// Example:
//
//	ectx := aiflow.NewExecutionContext(ctx,
//	    aiflow.WithRunID("run-123"),
//	    aiflow.WithRegistry(session.DataModels()))
//	stepCtx := ectx.ForElement(node, prev)
func NewExecutionContext(ctx context.Context, opts ...ContextOption) ExecutionContext {
	c := &executionContext{
		Context:  ctx,
		logger:   slog.Default(),
		runID:    uuid.NewString(),
		guards:   guard.Default(),
		expander: template.NewExpander(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.run != nil {
		c.runID = c.run.ID()
	}
	if c.registry != nil {
		c.scope = c.registry.GetScopedDataModel("root")
	}
	return c
}

func (c *executionContext) Logger() *slog.Logger         { return c.logger }
func (c *executionContext) RunID() string                { return c.runID }
func (c *executionContext) RequestID() string            { return c.requestID }
func (c *executionContext) Run() *value.RunValue         { return c.run }
func (c *executionContext) Input() *value.StepValue      { return c.input }
func (c *executionContext) DataModel() *datamodel.Scoped { return c.scope }

func (c *executionContext) ElementKey() string {
	if c.node == nil {
		return ""
	}
	return c.node.Key
}

func (c *executionContext) ForElement(node *ExecutionGraphElement, input *value.StepValue) ExecutionContext {
	derived := *c
	derived.node = node
	derived.input = input
	derived.logger = c.logger.With(
		slog.String("run_id", c.runID),
		slog.String("element_key", node.Key),
	)
	if c.registry != nil && len(node.Scope) > 0 {
		derived.scope = c.registry.GetScopedDataModel(strings.Join(node.Scope, "."))
	}
	return &derived
}

func (c *executionContext) Env() map[string]any {
	env := make(map[string]any)
	if c.scope != nil {
		for k, v := range c.scope.Snapshot() {
			env[k] = v
		}
	}
	if c.input != nil && c.input.ValueReady() {
		if v, err := c.input.SimpleValue(c); err == nil {
			env["input"] = v
		}
	}
	env["run"] = map[string]any{"id": c.runID}
	if c.request != nil || c.requestID != "" {
		env["request"] = map[string]any{"id": c.requestID, "body": c.request}
	}
	return env
}

func (c *executionContext) Lookup(path string) (any, bool) {
	return template.MapLookup(c.Env())(path)
}

func (c *executionContext) Attributes() map[string]any {
	if c.node == nil {
		return nil
	}
	attrs, err := c.expander.ExpandAttributes(c.node.Attributes, template.MapLookup(c.Env()))
	if err != nil {
		c.logger.Warn("attribute expansion failed", slog.String("error", err.Error()))
		return c.node.Attributes
	}
	return attrs
}

func (c *executionContext) Evaluate(expression string) (any, error) {
	g, err := c.guards.Compile(expression)
	if err != nil {
		return nil, err
	}
	return g.Run(c.Env())
}

func (c *executionContext) Enabled(node *ExecutionGraphElement) (bool, error) {
	if node.When == "" {
		return true, nil
	}
	env := c.ForElement(node, c.input).Env()
	return node.Enabled(env)
}

package guard

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/builtin"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
)

// Guard is a compiled boolean expression.
type Guard struct {
	source  string
	program *vm.Program
}

// Source returns the expression text the guard was compiled from.
func (g *Guard) Source() string {
	return g.source
}

// Evaluate runs the guard against env and reports whether the result is
// truthy.
func (g *Guard) Evaluate(env map[string]any) (bool, error) {
	if env == nil {
		env = map[string]any{}
	}
	out, err := expr.Run(g.program, env)
	if err != nil {
		return false, &EvalError{Expression: g.source, Err: err}
	}
	return IsTruthy(out), nil
}

// Run evaluates the guard's expression and returns the raw result.
func (g *Guard) Run(env map[string]any) (any, error) {
	if env == nil {
		env = map[string]any{}
	}
	out, err := expr.Run(g.program, env)
	if err != nil {
		return nil, &EvalError{Expression: g.source, Err: err}
	}
	return out, nil
}

// Compiler compiles guards and caches them by source text.
// Compiler is safe for concurrent use.
type Compiler struct {
	cache sync.Map // source -> *Guard
	opts  []expr.Option
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithFunction registers an additional function callable from guards.
func WithFunction(name string, fn func(params ...any) (any, error)) Option {
	return func(c *Compiler) {
		c.opts = append(c.opts, expr.Function(name, fn))
	}
}

// NewCompiler creates a Compiler with the given options.
func NewCompiler(opts ...Option) *Compiler {
	c := &Compiler{
		opts: []expr.Option{
			expr.AllowUndefinedVariables(),
			expr.Function("truthy", func(params ...any) (any, error) {
				if len(params) != 1 {
					return nil, fmt.Errorf("truthy() expects 1 argument, got %d", len(params))
				}
				return IsTruthy(params[0]), nil
			}),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile parses source into a Guard, returning a cached instance when the
// same source was compiled before. An empty source compiles to "true".
func (c *Compiler) Compile(source string) (*Guard, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		source = "true"
	}
	if g, ok := c.cache.Load(source); ok {
		return g.(*Guard), nil
	}

	opts := c.opts
	if shadowed := bareBuiltins(source); len(shadowed) > 0 {
		opts = make([]expr.Option, 0, len(c.opts)+len(shadowed))
		opts = append(opts, c.opts...)
		for _, name := range shadowed {
			opts = append(opts, expr.DisableBuiltin(name))
		}
	}

	program, err := expr.Compile(source, opts...)
	if err != nil {
		return nil, &CompileError{Expression: source, Err: err}
	}
	g := &Guard{source: source, program: program}
	actual, _ := c.cache.LoadOrStore(source, g)
	return actual.(*Guard), nil
}

// bareBuiltins returns the builtin names that source references as plain
// identifiers rather than calls. Guards are compiled without a typed env, so
// these must be disabled for a field such as "count" to read as a variable.
func bareBuiltins(source string) []string {
	tree, err := parser.Parse(source)
	if err != nil {
		return nil
	}
	v := &identVisitor{}
	ast.Walk(&tree.Node, v)
	return v.names
}

type identVisitor struct {
	names []string
}

func (v *identVisitor) Visit(node *ast.Node) {
	id, ok := (*node).(*ast.IdentifierNode)
	if !ok {
		return
	}
	if _, isBuiltin := builtin.Index[id.Value]; isBuiltin && !slices.Contains(v.names, id.Value) {
		v.names = append(v.names, id.Value)
	}
}

// Evaluate compiles (or reuses) source and evaluates it against env.
func (c *Compiler) Evaluate(source string, env map[string]any) (bool, error) {
	g, err := c.Compile(source)
	if err != nil {
		return false, err
	}
	return g.Evaluate(env)
}

var defaultCompiler = NewCompiler()

// Default returns the package-level compiler.
func Default() *Compiler {
	return defaultCompiler
}

// Compile compiles source with the package-level compiler.
func Compile(source string) (*Guard, error) {
	return defaultCompiler.Compile(source)
}

// Eval is a convenience that evaluates source with the package-level compiler.
func Eval(source string, env map[string]any) (bool, error) {
	return defaultCompiler.Evaluate(source, env)
}

// CompileError reports an expression that failed to parse or type-check.
type CompileError struct {
	Expression string
	Err        error
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	return fmt.Sprintf("compile guard %q: %v", e.Expression, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CompileError) Unwrap() error {
	return e.Err
}

// EvalError reports a runtime failure while evaluating a guard.
type EvalError struct {
	Expression string
	Err        error
}

// Error implements the error interface.
func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluate guard %q: %v", e.Expression, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *EvalError) Unwrap() error {
	return e.Err
}

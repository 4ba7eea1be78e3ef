package aiflow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/randalmurphal/aiflow/pkg/aiflow/datamodel"
	"github.com/randalmurphal/aiflow/pkg/aiflow/guard"
)

// BuildContext is handed to a Constructor for one element. It is owned by
// the traversal and must not be retained after Construct returns.
type BuildContext struct {
	session *BuildSession
	element *Element
}

// Context returns the build's context.
func (bc *BuildContext) Context() context.Context {
	return bc.session.ctx
}

// Logger returns the build logger with the element key attached.
func (bc *BuildContext) Logger() *slog.Logger {
	return bc.session.cfg.logger.With(slog.String("element_key", bc.element.Key))
}

// Session returns the session the element is being built in.
func (bc *BuildContext) Session() *BuildSession {
	return bc.session
}

// Element returns the element being constructed.
func (bc *BuildContext) Element() *Element {
	return bc.element
}

// Key returns the element's key.
func (bc *BuildContext) Key() string {
	return bc.element.Key
}

// Attributes returns the element's attributes.
func (bc *BuildContext) Attributes() map[string]any {
	return bc.element.Attributes
}

// Children returns the element's children.
func (bc *BuildContext) Children() []*Element {
	return bc.element.Children
}

// Scope returns the element's data-model scope path segments.
func (bc *BuildContext) Scope() []string {
	return bc.element.Scope
}

// ScopePath returns the scope joined with dots.
func (bc *BuildContext) ScopePath() string {
	return strings.Join(bc.element.Scope, ".")
}

// Parent returns the element's parent, or nil for the root.
func (bc *BuildContext) Parent() *Element {
	p, _ := bc.session.Parent(bc.element.Key)
	return p
}

// Siblings returns the parent's other children in document order.
func (bc *BuildContext) Siblings() []*Element {
	p := bc.Parent()
	if p == nil {
		return nil
	}
	out := make([]*Element, 0, len(p.Children))
	for _, c := range p.Children {
		if c != bc.element {
			out = append(out, c)
		}
	}
	return out
}

// FindElementByKey looks up an element anywhere in the tree by key, then
// by id.
func (bc *BuildContext) FindElementByKey(ref string) (*Element, bool) {
	return bc.session.Resolve(ref)
}

// GetCachedGraphElement returns the node cached under the first matching
// key.
func (bc *BuildContext) GetCachedGraphElement(keys ...string) (*ExecutionGraphElement, bool) {
	return bc.session.cached(keys...)
}

// SetCachedGraphElement caches node under every non-empty key.
func (bc *BuildContext) SetCachedGraphElement(node *ExecutionGraphElement, keys ...string) {
	s := bc.session
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		if k != "" {
			s.cache[k] = node
		}
	}
}

// Build constructs child. It returns (nil, nil) once the build has ended
// in error, or when the child emits no node.
func (bc *BuildContext) Build(child *Element) (*ExecutionGraphElement, error) {
	return bc.session.build(child)
}

// BuildChildren constructs children in order, skipping those that emit no
// node. It stops early once the build has ended in error.
func (bc *BuildContext) BuildChildren(children []*Element) ([]*ExecutionGraphElement, error) {
	out := make([]*ExecutionGraphElement, 0, len(children))
	for _, child := range children {
		if bc.session.EndedInError() {
			break
		}
		node, err := bc.session.build(child)
		if err != nil {
			return nil, err
		}
		if node != nil {
			out = append(out, node)
		}
	}
	return out, nil
}

// EndedInError reports whether a recursion limit aborted the build.
func (bc *BuildContext) EndedInError() bool {
	return bc.session.EndedInError()
}

// DataModels returns the session's data-model registry.
func (bc *BuildContext) DataModels() *datamodel.Registry {
	return bc.session.registry
}

// CompileGuard compiles expression with the session's guard compiler.
func (bc *BuildContext) CompileGuard(expression string) (*guard.Guard, error) {
	return bc.session.cfg.guards.Compile(expression)
}

// ShortCircuitCondition returns the guard for branch index of an
// if/elseif/else chain over conds; index len(conds) is the else branch.
func (bc *BuildContext) ShortCircuitCondition(conds []string, index int) string {
	return guard.ShortCircuit(conds, index)
}

// SetWhen compiles expression and installs it as node's guard.
func (bc *BuildContext) SetWhen(node *ExecutionGraphElement, expression string) error {
	g, err := bc.CompileGuard(expression)
	if err != nil {
		return &BuildError{Key: node.Key, Op: "guard", Err: err}
	}
	node.When = expression
	node.guard = g
	return nil
}

// Node returns a node pre-filled with the element's id, key, scope and a
// copy of its attributes.
func (bc *BuildContext) Node(typ ElementType, subType string) *ExecutionGraphElement {
	el := bc.element
	var attrs map[string]any
	if len(el.Attributes) > 0 {
		attrs = make(map[string]any, len(el.Attributes))
		for k, v := range el.Attributes {
			attrs[k] = v
		}
	}
	return &ExecutionGraphElement{
		ID:         el.ID,
		Key:        el.Key,
		Type:       typ,
		SubType:    subType,
		Attributes: attrs,
		Scope:      el.Scope,
	}
}

// AddDiagnostic records a non-fatal finding for the element.
func (bc *BuildContext) AddDiagnostic(message string, err error) {
	s := bc.session
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diagnostics = append(s.diagnostics, Diagnostic{Key: bc.element.Key, Message: message, Err: err})
}

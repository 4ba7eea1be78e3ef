package elements

import (
	"github.com/randalmurphal/aiflow/pkg/aiflow"
)

// Structural tags.
const (
	TagWorkflow   = "workflow"
	TagState      = "state"
	TagParallel   = "parallel"
	TagFinal      = "final"
	TagTransition = "transition"
	TagIf         = "if"
	TagElseIf     = "elseif"
	TagElse       = "else"
	TagDataModel  = "datamodel"
	TagData       = "data"
)

// Node subtypes emitted by the constructors.
const (
	SubTypeIfPart = "if-part"
)

// Attribute names read by the constructors.
const (
	AttrID       = "id"
	AttrInitial  = "initial"
	AttrTarget   = "target"
	AttrCond     = "cond"
	AttrRunAfter = "runAfter"
)

// New builds an element for tag using the default registry.
func New(tag string, attrs map[string]any, children ...*aiflow.Element) *aiflow.Element {
	return defaultRegistry.New(tag, attrs, children...)
}

// Register adds or replaces tag in the default registry.
func Register(tag string, def Definition) {
	defaultRegistry.Register(tag, def)
}

// ByTag dispatches on the element's tag through the default registry. It
// suits aiflow.WithFallbackConstructor for trees built without this
// package.
func ByTag() aiflow.Constructor {
	return defaultRegistry.Fallback()
}

func withID(id string, attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs)+1)
	for k, v := range attrs {
		out[k] = v
	}
	if id != "" {
		out[AttrID] = id
	}
	return out
}

// Workflow returns the root element.
func Workflow(id string, children ...*aiflow.Element) *aiflow.Element {
	return New(TagWorkflow, withID(id, nil), children...)
}

// State returns a compound or atomic state.
func State(id string, children ...*aiflow.Element) *aiflow.Element {
	return New(TagState, withID(id, nil), children...)
}

// StateWith returns a state with extra attributes, such as "initial".
func StateWith(id string, attrs map[string]any, children ...*aiflow.Element) *aiflow.Element {
	return New(TagState, withID(id, attrs), children...)
}

// Parallel returns a parallel region.
func Parallel(id string, children ...*aiflow.Element) *aiflow.Element {
	return New(TagParallel, withID(id, nil), children...)
}

// Final returns a final state.
func Final(id string, children ...*aiflow.Element) *aiflow.Element {
	return New(TagFinal, withID(id, nil), children...)
}

// Transition returns a transition to target, guarded by cond when non-empty.
func Transition(target, cond string, children ...*aiflow.Element) *aiflow.Element {
	attrs := map[string]any{AttrTarget: target}
	if cond != "" {
		attrs[AttrCond] = cond
	}
	return New(TagTransition, attrs, children...)
}

// If returns a conditional. ElseIf and Else markers among children split it
// into partitions.
func If(cond string, children ...*aiflow.Element) *aiflow.Element {
	return New(TagIf, map[string]any{AttrCond: cond}, children...)
}

// ElseIf returns an elseif marker. Its own children, if any, belong to its
// partition.
func ElseIf(cond string, children ...*aiflow.Element) *aiflow.Element {
	return New(TagElseIf, map[string]any{AttrCond: cond}, children...)
}

// Else returns an else marker.
func Else(children ...*aiflow.Element) *aiflow.Element {
	return New(TagElse, nil, children...)
}

// DataModel returns a data-model declaration for the enclosing state.
func DataModel(data ...*aiflow.Element) *aiflow.Element {
	return New(TagDataModel, nil, data...)
}

// Data declares one data-model field. Recognized attributes: type,
// defaultValue (or expr), readonly, fromRequest, enum.
func Data(id string, attrs map[string]any) *aiflow.Element {
	return New(TagData, withID(id, attrs))
}

// Action returns a generic action element.
func Action(tag string, attrs map[string]any, children ...*aiflow.Element) *aiflow.Element {
	return New(tag, attrs, children...)
}

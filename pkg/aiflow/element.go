package aiflow

import (
	"fmt"
	"strconv"
	"strings"
)

// ElementType classifies elements and graph nodes.
type ElementType string

// Graph node types. TypeData marks declaration elements that never emit a
// node.
const (
	TypeState     ElementType = "state"
	TypeAction    ElementType = "action"
	TypeError     ElementType = "error"
	TypeUserInput ElementType = "user-input"
	TypeOutput    ElementType = "output"
	TypeData      ElementType = "data"
)

// Element is one node of the parsed workflow tree.
//
// Key is globally unique and stable; the builder assigns one when empty.
// Scope is the data-model scope path, e.g. ["root", "review"]; the builder
// derives it from enclosing states when nil.
type Element struct {
	ID          string
	Key         string
	Tag         string
	Type        ElementType
	SubType     string
	Attributes  map[string]any
	Children    []*Element
	Scope       []string
	Constructor Constructor
}

// Constructor lowers an element into a graph node.
//
// Construct may return (nil, nil) for elements that emit no node.
type Constructor interface {
	Construct(bc *BuildContext) (*ExecutionGraphElement, error)
}

// ConstructorFunc adapts a function to Constructor.
type ConstructorFunc func(bc *BuildContext) (*ExecutionGraphElement, error)

// Construct calls f(bc).
func (f ConstructorFunc) Construct(bc *BuildContext) (*ExecutionGraphElement, error) {
	return f(bc)
}

// Attr returns the attribute value and whether it is set.
func (e *Element) Attr(name string) (any, bool) {
	if e.Attributes == nil {
		return nil, false
	}
	v, ok := e.Attributes[name]
	return v, ok
}

// StringAttr returns the attribute rendered as a string, or "".
func (e *Element) StringAttr(name string) string {
	v, ok := e.Attr(name)
	if !ok || v == nil {
		return ""
	}
	if s, isString := v.(string); isString {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// IntAttr returns an integer attribute. Strings and floats with integral
// values are accepted.
func (e *Element) IntAttr(name string) (int, bool, error) {
	v, ok := e.Attr(name)
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case int:
		return n, true, nil
	case int64:
		return int(n), true, nil
	case float64:
		if n != float64(int(n)) {
			return 0, true, fmt.Errorf("%w: %s=%v is not an integer", ErrInvalidAttribute, name, v)
		}
		return int(n), true, nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, true, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidAttribute, name, n)
		}
		return i, true, nil
	default:
		return 0, true, fmt.Errorf("%w: %s has type %T", ErrInvalidAttribute, name, v)
	}
}

// ScopePath returns the scope joined with dots.
func (e *Element) ScopePath() string {
	return strings.Join(e.Scope, ".")
}

// IsState reports whether the element owns a data-model scope.
func (e *Element) IsState() bool {
	return e.Type == TypeState || e.Type == TypeOutput || e.Type == TypeUserInput
}

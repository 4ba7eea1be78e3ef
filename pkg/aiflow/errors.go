package aiflow

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph construction.
var (
	// ErrNilElement indicates a nil element in the tree.
	ErrNilElement = errors.New("element is nil")

	// ErrDuplicateKey indicates two elements share a key.
	ErrDuplicateKey = errors.New("duplicate element key")

	// ErrNoConstructor indicates an element has no Constructor and the
	// builder has no fallback.
	ErrNoConstructor = errors.New("element has no constructor")

	// ErrTargetNotFound indicates a transition target that matches no key
	// or id in the tree.
	ErrTargetNotFound = errors.New("transition target not found")

	// ErrInvalidAttribute indicates an attribute with an unusable value.
	ErrInvalidAttribute = errors.New("invalid attribute")

	// ErrRecursionLimit is recorded in diagnostics when a subtree is
	// replaced by an error node.
	ErrRecursionLimit = errors.New("recursion limit reached")

	// ErrSessionUsed indicates Build was called twice on one session.
	ErrSessionUsed = errors.New("build session already used")
)

// BuildError wraps a construction failure with the element involved.
type BuildError struct {
	// Key is the key of the element whose construction failed.
	Key string
	// Op is the step that failed ("index", "construct", "guard").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	return fmt.Sprintf("build %s: %s: %v", e.Key, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *BuildError) Unwrap() error {
	return e.Err
}

// Diagnostic is a non-fatal construction finding attached to an element.
type Diagnostic struct {
	Key     string `json:"key"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// String returns "key: message".
func (d Diagnostic) String() string {
	return d.Key + ": " + d.Message
}

package value

import "errors"

var (
	// ErrStepNotFound indicates an unknown step id.
	ErrStepNotFound = errors.New("step not found")

	// ErrStreamsPending indicates step streams were still open when a wait
	// timed out.
	ErrStreamsPending = errors.New("step streams still pending")

	// ErrStreamStalled indicates a followed stream produced no chunk within
	// the idle bound.
	ErrStreamStalled = errors.New("step stream stalled")
)

package elements

import "errors"

var (
	// ErrMalformedConditional indicates misplaced elseif/else markers.
	ErrMalformedConditional = errors.New("malformed if/elseif/else")

	// ErrInitialNotFound indicates an "initial" attribute naming no child state.
	ErrInitialNotFound = errors.New("initial state not found")
)

package template

// MissingAction specifies how to handle placeholders whose path is not found.
type MissingAction int

const (
	// MissingKeep keeps the placeholder as-is. This is the default.
	MissingKeep MissingAction = iota

	// MissingEmpty replaces the placeholder with an empty string.
	MissingEmpty

	// MissingError returns an *UndefinedVariableError.
	MissingError
)

// Option configures an Expander.
type Option func(*Expander)

// WithMissingAction sets how missing paths are handled.
//
// Default: MissingKeep
func WithMissingAction(action MissingAction) Option {
	return func(e *Expander) {
		e.missingAction = action
	}
}

// WithPreserveTypes controls whether a value made of a single placeholder
// keeps the referenced value's type.
//
// Default: true
func WithPreserveTypes(enabled bool) Option {
	return func(e *Expander) {
		e.preserveTypes = enabled
	}
}

package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/Jeffail/gabs/v2"
)

// placeholderPattern matches ${path} where path is a dotted identifier.
var placeholderPattern = regexp.MustCompile(`\$\{\s*([a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z0-9_]+)*)\s*\}`)

// Lookup resolves a dotted path to a value.
type Lookup func(path string) (any, bool)

// MapLookup returns a Lookup over nested maps.
func MapLookup(vars map[string]any) Lookup {
	container := gabs.Wrap(vars)
	return func(path string) (any, bool) {
		if vars == nil {
			return nil, false
		}
		if v, ok := vars[path]; ok {
			return v, true
		}
		if !container.ExistsP(path) {
			return nil, false
		}
		return container.Path(path).Data(), true
	}
}

// Expander replaces placeholders in attribute values.
// Expander is safe for concurrent use after construction.
type Expander struct {
	missingAction MissingAction
	preserveTypes bool
}

// NewExpander creates an Expander. Defaults: MissingKeep, types preserved.
func NewExpander(opts ...Option) *Expander {
	e := &Expander{
		missingAction: MissingKeep,
		preserveTypes: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand replaces every placeholder in s with the stringified lookup value.
// Maps and slices are rendered as JSON.
func (e *Expander) Expand(s string, lookup Lookup) (string, error) {
	if s == "" || !strings.Contains(s, "${") {
		return s, nil
	}

	var missing []string
	result := placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		path := placeholderPattern.FindStringSubmatch(match)[1]
		if lookup != nil {
			if v, ok := lookup(path); ok {
				return stringify(v)
			}
		}
		switch e.missingAction {
		case MissingEmpty:
			return ""
		case MissingError:
			missing = append(missing, path)
			return match
		default:
			return match
		}
	})

	if len(missing) > 0 {
		return result, &UndefinedVariableError{Names: missing}
	}
	return result, nil
}

// ExpandValue expands strings, and recursively the strings inside maps and
// slices. Other values are returned unchanged.
func (e *Expander) ExpandValue(v any, lookup Lookup) (any, error) {
	switch val := v.(type) {
	case string:
		if e.preserveTypes {
			if m := placeholderPattern.FindStringSubmatch(val); m != nil && m[0] == strings.TrimSpace(val) && lookup != nil {
				if resolved, ok := lookup(m[1]); ok {
					return resolved, nil
				}
			}
		}
		return e.Expand(val, lookup)
	case map[string]any:
		return e.ExpandAttributes(val, lookup)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			expanded, err := e.ExpandValue(item, lookup)
			if err != nil {
				return nil, err
			}
			out[i] = expanded
		}
		return out, nil
	default:
		return v, nil
	}
}

// ExpandAttributes returns a copy of attrs with every placeholder resolved.
func (e *Expander) ExpandAttributes(attrs map[string]any, lookup Lookup) (map[string]any, error) {
	if attrs == nil {
		return nil, nil
	}
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		expanded, err := e.ExpandValue(v, lookup)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", k, err)
		}
		out[k] = expanded
	}
	return out, nil
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// UndefinedVariableError is returned when MissingError is set and one or
// more paths were not found.
type UndefinedVariableError struct {
	// Names is the list of undefined paths.
	Names []string
}

// Error implements the error interface.
func (e *UndefinedVariableError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("undefined variable: %s", e.Names[0])
	}
	return fmt.Sprintf("undefined variables: %s", strings.Join(e.Names, ", "))
}

var defaultExpander = NewExpander()

// ExpandAttributes resolves attrs with the default expander. The default
// expander keeps missing placeholders and never fails.
func ExpandAttributes(attrs map[string]any, lookup Lookup) map[string]any {
	out, _ := defaultExpander.ExpandAttributes(attrs, lookup)
	return out
}

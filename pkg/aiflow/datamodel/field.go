package datamodel

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// FieldType names the schema a field's values must satisfy.
type FieldType string

// Supported field types. An empty type behaves like TypeAny.
const (
	TypeAny     FieldType = "any"
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeInteger FieldType = "integer"
	TypeBoolean FieldType = "boolean"
	TypeObject  FieldType = "object"
	TypeArray   FieldType = "array"
)

// FieldDefinition describes a single data-model field.
type FieldDefinition struct {
	Type         FieldType `json:"type,omitempty"`
	DefaultValue any       `json:"defaultValue,omitempty"`
	Readonly     bool      `json:"readonly,omitempty"`

	// FromRequest marks a value supplied by the inbound request. Such fields
	// are implicitly readonly and are never restored from a dump.
	FromRequest   bool   `json:"fromRequest,omitempty"`
	ParentStateID string `json:"parentStateId,omitempty"`

	// Enum, when non-empty, restricts values to the listed literals.
	Enum []any `json:"enum,omitempty"`
}

// IsReadonly reports whether writes to the field are rejected.
func (d FieldDefinition) IsReadonly() bool {
	return d.Readonly || d.FromRequest
}

// Validate checks v against the field's declared type and enum.
// A nil value is always accepted and means "undefined".
func (d FieldDefinition) Validate(v any) error {
	if v == nil {
		return nil
	}

	if !d.matchesType(v) {
		return fmt.Errorf("expected %s, got %T", d.Type, v)
	}

	if len(d.Enum) > 0 {
		for _, allowed := range d.Enum {
			if looselyEqual(allowed, v) {
				return nil
			}
		}
		return fmt.Errorf("value %v is not one of %v", v, d.Enum)
	}
	return nil
}

func (d FieldDefinition) matchesType(v any) bool {
	switch d.Type {
	case "", TypeAny:
		return true
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeNumber:
		_, ok := toFloat(v)
		return ok
	case TypeInteger:
		f, ok := toFloat(v)
		return ok && f == math.Trunc(f)
	case TypeObject:
		rv := reflect.ValueOf(v)
		return rv.Kind() == reflect.Map || rv.Kind() == reflect.Struct ||
			(rv.Kind() == reflect.Pointer && rv.Elem().Kind() == reflect.Struct)
	case TypeArray:
		rv := reflect.ValueOf(v)
		return rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array
	default:
		return false
	}
}

// toFloat converts any Go numeric kind (and json.Number) to float64.
func toFloat(v any) (float64, bool) {
	if n, ok := v.(json.Number); ok {
		f, err := n.Float64()
		return f, err == nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}

// looselyEqual compares numbers by value so that enum literals decoded from
// JSON (float64) still match ints supplied by Go callers.
func looselyEqual(a, b any) bool {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

// cloneValue copies JSON-like containers so defaults are never shared
// between scopes or registrations.
func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

package datamodel

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFieldDefinition_Validate(t *testing.T) {
	type point struct{ X int }

	tests := []struct {
		name  string
		def   FieldDefinition
		value any
		ok    bool
	}{
		{"nil always valid", FieldDefinition{Type: TypeString}, nil, true},
		{"any accepts struct", FieldDefinition{}, point{}, true},
		{"string", FieldDefinition{Type: TypeString}, "x", true},
		{"string rejects int", FieldDefinition{Type: TypeString}, 1, false},
		{"number int", FieldDefinition{Type: TypeNumber}, 3, true},
		{"number float32", FieldDefinition{Type: TypeNumber}, float32(1.5), true},
		{"number json.Number", FieldDefinition{Type: TypeNumber}, json.Number("4.2"), true},
		{"integer rejects fraction", FieldDefinition{Type: TypeInteger}, 1.5, false},
		{"integer accepts whole float", FieldDefinition{Type: TypeInteger}, 2.0, true},
		{"boolean", FieldDefinition{Type: TypeBoolean}, false, true},
		{"object map", FieldDefinition{Type: TypeObject}, map[string]any{}, true},
		{"object struct pointer", FieldDefinition{Type: TypeObject}, &point{}, true},
		{"object rejects slice", FieldDefinition{Type: TypeObject}, []any{}, false},
		{"array", FieldDefinition{Type: TypeArray}, []string{"a"}, true},
		{"unknown type", FieldDefinition{Type: "date"}, "2024", false},
		{"enum match", FieldDefinition{Type: TypeString, Enum: []any{"a", "b"}}, "b", true},
		{"enum miss", FieldDefinition{Type: TypeString, Enum: []any{"a", "b"}}, "c", false},
		{"enum numeric", FieldDefinition{Type: TypeNumber, Enum: []any{1.0, 2.0}}, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate(tt.value)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestFieldDefinition_IsReadonly(t *testing.T) {
	assert.False(t, FieldDefinition{}.IsReadonly())
	assert.True(t, FieldDefinition{Readonly: true}.IsReadonly())
	assert.True(t, FieldDefinition{FromRequest: true}.IsReadonly())
}

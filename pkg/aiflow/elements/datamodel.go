package elements

import (
	"fmt"
	"strings"

	"github.com/randalmurphal/aiflow/pkg/aiflow"
	"github.com/randalmurphal/aiflow/pkg/aiflow/datamodel"
)

// Data attribute names.
const (
	AttrType         = "type"
	AttrDefaultValue = "defaultValue"
	AttrExpr         = "expr"
	AttrReadonly     = "readonly"
	AttrFromRequest  = "fromRequest"
	AttrEnum         = "enum"
)

// constructDataModel registers its data children in the enclosing scope and
// emits no node. One datamodel per state; a second one replaces the first.
func constructDataModel(bc *aiflow.BuildContext) (*aiflow.ExecutionGraphElement, error) {
	var parentID string
	if p := bc.Parent(); p != nil {
		parentID = p.ID
	}

	fields := make(map[string]datamodel.FieldDefinition)
	for _, c := range bc.Children() {
		if c.SubType != TagData {
			bc.AddDiagnostic(fmt.Sprintf("ignoring <%s> inside datamodel", c.Tag), nil)
			continue
		}
		name := strings.TrimSpace(c.StringAttr(AttrID))
		if name == "" {
			return nil, fmt.Errorf("%w: data element %q has no id", aiflow.ErrInvalidAttribute, c.Key)
		}
		def, err := fieldDefinition(c)
		if err != nil {
			return nil, err
		}
		def.ParentStateID = parentID
		fields[name] = def
	}

	if err := bc.DataModels().AddDataModel(bc.ScopePath(), fields); err != nil {
		return nil, err
	}
	return nil, nil
}

func fieldDefinition(el *aiflow.Element) (datamodel.FieldDefinition, error) {
	def := datamodel.FieldDefinition{
		Type: datamodel.FieldType(strings.TrimSpace(el.StringAttr(AttrType))),
	}
	if v, ok := el.Attr(AttrDefaultValue); ok {
		def.DefaultValue = v
	} else if v, ok := el.Attr(AttrExpr); ok {
		def.DefaultValue = v
	}

	var err error
	if def.Readonly, err = boolAttr(el, AttrReadonly); err != nil {
		return def, err
	}
	if def.FromRequest, err = boolAttr(el, AttrFromRequest); err != nil {
		return def, err
	}

	if v, ok := el.Attr(AttrEnum); ok && v != nil {
		switch list := v.(type) {
		case []any:
			def.Enum = list
		case []string:
			for _, s := range list {
				def.Enum = append(def.Enum, s)
			}
		case string:
			for _, s := range strings.Split(list, ",") {
				def.Enum = append(def.Enum, strings.TrimSpace(s))
			}
		default:
			return def, fmt.Errorf("%w: enum has type %T", aiflow.ErrInvalidAttribute, v)
		}
	}
	return def, nil
}

func boolAttr(el *aiflow.Element, name string) (bool, error) {
	v, ok := el.Attr(name)
	if !ok || v == nil {
		return false, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: %s=%v is not a boolean", aiflow.ErrInvalidAttribute, name, v)
}

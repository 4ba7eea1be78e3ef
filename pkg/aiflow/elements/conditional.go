package elements

import (
	"fmt"
	"strings"

	"github.com/randalmurphal/aiflow/pkg/aiflow"
)

// constructIf emits an "if" node with one "if-part" child per branch. Each
// part's guard is the short-circuit condition of its branch, so at most one
// part is enabled for any environment.
//
// elseif/else markers are children of the if. Content following a marker
// belongs to it until the next marker; a marker's own children come first.
func constructIf(bc *aiflow.BuildContext) (*aiflow.ExecutionGraphElement, error) {
	node := bc.Node(aiflow.TypeAction, TagIf)

	conds := []string{bc.Element().StringAttr(AttrCond)}
	parts := [][]*aiflow.Element{nil}
	hasElse := false

	for _, c := range bc.Children() {
		switch c.SubType {
		case TagElseIf:
			if hasElse {
				return nil, fmt.Errorf("%w: elseif after else", ErrMalformedConditional)
			}
			conds = append(conds, c.StringAttr(AttrCond))
			parts = append(parts, append([]*aiflow.Element(nil), c.Children...))
		case TagElse:
			if hasElse {
				return nil, fmt.Errorf("%w: more than one else", ErrMalformedConditional)
			}
			hasElse = true
			parts = append(parts, append([]*aiflow.Element(nil), c.Children...))
		default:
			parts[len(parts)-1] = append(parts[len(parts)-1], c)
		}
	}
	for i, cond := range conds {
		if strings.TrimSpace(cond) == "" {
			return nil, fmt.Errorf("%w: branch %d has no condition", ErrMalformedConditional, i)
		}
	}

	for i, content := range parts {
		part := &aiflow.ExecutionGraphElement{
			Key:     fmt.Sprintf("%s.part%d", bc.Key(), i),
			Type:    aiflow.TypeAction,
			SubType: SubTypeIfPart,
			Scope:   bc.Scope(),
		}
		if err := bc.SetWhen(part, bc.ShortCircuitCondition(conds, i)); err != nil {
			return nil, err
		}
		next, err := bc.BuildChildren(content)
		if err != nil {
			return nil, err
		}
		part.Next = next
		node.Next = append(node.Next, part)
	}
	return node, nil
}

// constructMarker handles elseif/else found outside an if.
func constructMarker(bc *aiflow.BuildContext) (*aiflow.ExecutionGraphElement, error) {
	return nil, fmt.Errorf("%w: %s outside of if", ErrMalformedConditional, bc.Element().SubType)
}

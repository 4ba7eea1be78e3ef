package elements

import (
	"fmt"
	"strings"

	"github.com/randalmurphal/aiflow/pkg/aiflow"
)

// constructTransition emits an action node whose When is the "cond"
// attribute. Executable children run first, then the target. A transition
// without a target only runs its children.
//
// Target nodes are memoized under the target's key and id so every
// transition into the same state shares one node.
func constructTransition(bc *aiflow.BuildContext) (*aiflow.ExecutionGraphElement, error) {
	node := bc.Node(aiflow.TypeAction, TagTransition)
	if cond := strings.TrimSpace(bc.Element().StringAttr(AttrCond)); cond != "" {
		if err := bc.SetWhen(node, cond); err != nil {
			return nil, err
		}
	}

	content, err := bc.BuildChildren(bc.Children())
	if err != nil {
		return nil, err
	}
	node.Next = content

	ref := strings.TrimSpace(bc.Element().StringAttr(AttrTarget))
	if ref == "" {
		return node, nil
	}
	target, ok := bc.FindElementByKey(ref)
	if !ok {
		return nil, &aiflow.BuildError{
			Key: bc.Key(),
			Op:  "transition",
			Err: fmt.Errorf("%w: %q", aiflow.ErrTargetNotFound, ref),
		}
	}

	targetNode, ok := bc.GetCachedGraphElement(target.Key, target.ID)
	if !ok {
		targetNode, err = bc.Build(target)
		if err != nil {
			return nil, err
		}
		if targetNode == nil {
			// Build ended in error further down; nothing left to link.
			return nil, nil
		}
		if !bc.EndedInError() {
			bc.SetCachedGraphElement(targetNode, target.Key, target.ID)
		}
	}
	node.Next = append(node.Next, targetNode)
	return node, nil
}

package elements

import (
	"fmt"
	"strings"

	"github.com/randalmurphal/aiflow/pkg/aiflow"
)

// partition splits children into executable content, child states, and
// transitions with and without a condition, each in document order.
type partition struct {
	actions     []*aiflow.Element
	states      []*aiflow.Element
	conditioned []*aiflow.Element
	always      []*aiflow.Element
}

func partitionChildren(children []*aiflow.Element) partition {
	var p partition
	for _, c := range children {
		switch {
		case c.SubType == TagTransition:
			if strings.TrimSpace(c.StringAttr(AttrCond)) != "" {
				p.conditioned = append(p.conditioned, c)
			} else {
				p.always = append(p.always, c)
			}
		case c.IsState():
			p.states = append(p.states, c)
		default:
			p.actions = append(p.actions, c)
		}
	}
	return p
}

func (p partition) transitions() []*aiflow.Element {
	out := make([]*aiflow.Element, 0, len(p.conditioned)+len(p.always))
	out = append(out, p.conditioned...)
	return append(out, p.always...)
}

// initialState picks the child entered first: the one named by the
// "initial" attribute, otherwise the first child state.
func initialState(bc *aiflow.BuildContext, states []*aiflow.Element) (*aiflow.Element, error) {
	name := strings.TrimSpace(bc.Element().StringAttr(AttrInitial))
	if name == "" {
		if len(states) == 0 {
			return nil, nil
		}
		return states[0], nil
	}
	for _, s := range states {
		if s.ID == name || s.Key == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrInitialNotFound, name)
}

func inParallel(bc *aiflow.BuildContext) bool {
	p := bc.Parent()
	return p != nil && p.SubType == TagParallel
}

// buildSequence appends, in order: executable content, the initial child
// state, conditioned transitions, then unconditioned transitions. The
// transitions are left out when skipTransitions is set.
func buildSequence(bc *aiflow.BuildContext, node *aiflow.ExecutionGraphElement, skipTransitions bool) error {
	p := partitionChildren(bc.Children())

	actions, err := bc.BuildChildren(p.actions)
	if err != nil {
		return err
	}
	node.Next = append(node.Next, actions...)

	initial, err := initialState(bc, p.states)
	if err != nil {
		return err
	}
	if initial != nil {
		child, err := bc.Build(initial)
		if err != nil {
			return err
		}
		if child != nil {
			node.Next = append(node.Next, child)
		}
	}

	if skipTransitions {
		return nil
	}
	transitions, err := bc.BuildChildren(p.transitions())
	if err != nil {
		return err
	}
	node.Next = append(node.Next, transitions...)
	return nil
}

func constructWorkflow(bc *aiflow.BuildContext) (*aiflow.ExecutionGraphElement, error) {
	node := bc.Node(aiflow.TypeUserInput, TagWorkflow)
	if err := buildSequence(bc, node, false); err != nil {
		return nil, err
	}
	return node, nil
}

func constructState(bc *aiflow.BuildContext) (*aiflow.ExecutionGraphElement, error) {
	node := bc.Node(aiflow.TypeState, TagState)
	if err := buildSequence(bc, node, inParallel(bc)); err != nil {
		return nil, err
	}
	return node, nil
}

func constructFinal(bc *aiflow.BuildContext) (*aiflow.ExecutionGraphElement, error) {
	node := bc.Node(aiflow.TypeOutput, TagFinal)
	if err := buildSequence(bc, node, false); err != nil {
		return nil, err
	}
	return node, nil
}

// constructParallel puts child states into Parallel. Their transitions are
// built after every region exists and appended to the owning child's Next.
// The region's own content and transitions run after the join, via Next.
func constructParallel(bc *aiflow.BuildContext) (*aiflow.ExecutionGraphElement, error) {
	node := bc.Node(aiflow.TypeState, TagParallel)
	p := partitionChildren(bc.Children())

	regions := make([]*aiflow.Element, 0, len(p.states))
	for _, s := range p.states {
		if bc.EndedInError() {
			break
		}
		child, err := bc.Build(s)
		if err != nil {
			return nil, err
		}
		if child != nil {
			node.Parallel = append(node.Parallel, child)
			regions = append(regions, s)
		}
	}

	for i, s := range regions {
		transitions, err := bc.BuildChildren(partitionChildren(s.Children).transitions())
		if err != nil {
			return nil, err
		}
		node.Parallel[i].Next = append(node.Parallel[i].Next, transitions...)
	}

	actions, err := bc.BuildChildren(p.actions)
	if err != nil {
		return nil, err
	}
	node.Next = append(node.Next, actions...)

	transitions, err := bc.BuildChildren(p.transitions())
	if err != nil {
		return nil, err
	}
	node.Next = append(node.Next, transitions...)
	return node, nil
}

// constructAction emits a generic action node. Children become Next in
// document order. A "runAfter" attribute (comma separated or a list) fills
// RunAfter.
func constructAction(bc *aiflow.BuildContext) (*aiflow.ExecutionGraphElement, error) {
	el := bc.Element()
	sub := el.SubType
	if sub == "" {
		sub = el.Tag
	}
	node := bc.Node(aiflow.TypeAction, sub)
	node.RunAfter = runAfter(el)

	next, err := bc.BuildChildren(bc.Children())
	if err != nil {
		return nil, err
	}
	node.Next = next
	return node, nil
}

func runAfter(el *aiflow.Element) []string {
	v, ok := el.Attr(AttrRunAfter)
	if !ok || v == nil {
		return nil
	}
	var raw []string
	switch list := v.(type) {
	case string:
		raw = strings.Split(list, ",")
	case []string:
		raw = list
	case []any:
		for _, item := range list {
			raw = append(raw, fmt.Sprint(item))
		}
	default:
		raw = []string{fmt.Sprint(v)}
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func constructNothing(*aiflow.BuildContext) (*aiflow.ExecutionGraphElement, error) {
	return nil, nil
}

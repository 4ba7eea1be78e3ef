package aiflow

import (
	"github.com/randalmurphal/aiflow/pkg/aiflow/guard"
)

// ExecutionGraphElement is one node of the executable graph.
//
// Next holds sequential children in order, Parallel holds children the
// engine runs concurrently, and RunAfter names extra predecessor keys.
// When, if set, is a guard expression evaluated against the data-model
// scope active at the node.
type ExecutionGraphElement struct {
	ID         string                   `json:"id"`
	Key        string                   `json:"key"`
	Type       ElementType              `json:"type"`
	SubType    string                   `json:"subType,omitempty"`
	Attributes map[string]any           `json:"attributes,omitempty"`
	Scope      []string                 `json:"scope,omitempty"`
	When       string                   `json:"when,omitempty"`
	Next       []*ExecutionGraphElement `json:"next,omitempty"`
	Parallel   []*ExecutionGraphElement `json:"parallel,omitempty"`
	RunAfter   []string                 `json:"runAfter,omitempty"`

	guard *guard.Guard
}

// Guard returns the compiled When guard, or nil when When is empty or the
// node was not produced by a builder.
func (n *ExecutionGraphElement) Guard() *guard.Guard {
	return n.guard
}

// Enabled evaluates When against env. A node without a guard is enabled.
func (n *ExecutionGraphElement) Enabled(env map[string]any) (bool, error) {
	if n.When == "" {
		return true, nil
	}
	g := n.guard
	if g == nil {
		var err error
		if g, err = guard.Compile(n.When); err != nil {
			return false, err
		}
	}
	return g.Evaluate(env)
}

// Walk visits every node reachable from n once, depth-first, Next before
// Parallel. Returning false from fn stops the walk.
func (n *ExecutionGraphElement) Walk(fn func(*ExecutionGraphElement) bool) {
	seen := make(map[*ExecutionGraphElement]struct{})
	var visit func(*ExecutionGraphElement) bool
	visit = func(node *ExecutionGraphElement) bool {
		if node == nil {
			return true
		}
		if _, ok := seen[node]; ok {
			return true
		}
		seen[node] = struct{}{}
		if !fn(node) {
			return false
		}
		for _, child := range node.Next {
			if !visit(child) {
				return false
			}
		}
		for _, child := range node.Parallel {
			if !visit(child) {
				return false
			}
		}
		return true
	}
	visit(n)
}

// Find returns the first reachable node with key.
func (n *ExecutionGraphElement) Find(key string) *ExecutionGraphElement {
	var found *ExecutionGraphElement
	n.Walk(func(node *ExecutionGraphElement) bool {
		if node.Key == key {
			found = node
			return false
		}
		return true
	})
	return found
}

// FindAll returns every reachable node matching pred.
func (n *ExecutionGraphElement) FindAll(pred func(*ExecutionGraphElement) bool) []*ExecutionGraphElement {
	var out []*ExecutionGraphElement
	n.Walk(func(node *ExecutionGraphElement) bool {
		if pred(node) {
			out = append(out, node)
		}
		return true
	})
	return out
}

// Count returns the number of distinct reachable nodes.
func (n *ExecutionGraphElement) Count() int {
	count := 0
	n.Walk(func(*ExecutionGraphElement) bool {
		count++
		return true
	})
	return count
}

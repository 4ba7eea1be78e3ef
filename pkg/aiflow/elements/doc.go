// Package elements provides the structural element constructors: workflow,
// state, parallel, final, transition, if/elseif/else, datamodel and generic
// actions.
//
// The builder functions return *aiflow.Element values wired to their
// constructors, so a tree can be written directly in Go:
//
//	elements.Workflow("wf",
//	    elements.State("ask",
//	        elements.Action("llm", map[string]any{"prompt": "${question}"}),
//	        elements.Transition("done", "input != ''"),
//	    ),
//	    elements.Final("done"),
//	)
//
// New builds an element from a tag name and attributes, which is what a
// markup parser would call.
package elements

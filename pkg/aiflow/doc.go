/*
Package aiflow is the execution core of an AI-workflow runtime.

# Overview

A workflow arrives as a tree of Elements (states, transitions,
conditionals, parallel regions, data declarations). GraphBuilder lowers the
tree into an executable graph of ExecutionGraphElements, which an external
engine walks. The values steps produce are collected by the value package.

	tree := elements.Workflow("support",
	    elements.DataModel(
	        elements.Data("tier", map[string]any{"type": "string", "defaultValue": "free"}),
	    ),
	    elements.State("triage",
	        elements.If("tier == 'pro'",
	            elements.Action("llm", map[string]any{"model": "large"}),
	            elements.Else(elements.Action("llm", map[string]any{"model": "small"})),
	        ),
	        elements.Transition("answer", ""),
	    ),
	    elements.Final("answer"),
	)

	builder := aiflow.NewGraphBuilder(aiflow.WithMaxRecursion(8))
	session, err := builder.NewSession(ctx, tree)
	if err != nil {
	    log.Fatal(err)
	}
	graph, err := session.Build()

# Construction

Each element is constructed once per visit through its Constructor, which
receives a BuildContext. The BuildContext exposes the element, its children
and scope, the shared cache, and Build for recursing into other elements.
Completed nodes are cached by key, so a transition target reached from
several places is built once.

Every visit increments a per-key counter. When it reaches the limit
(DefaultMaxRecursion, or the element's maxRecursion attribute) the subtree
is replaced by a node of type "error", the session records a Diagnostic
and ends in error, and remaining siblings are skipped. Build still returns
a graph in that case; check BuildSession.EndedInError.

# Execution

ExecutionContext carries run metadata, the data-model scope of the current
node, and an expression environment used for When guards and ${path}
attribute placeholders.
*/
package aiflow

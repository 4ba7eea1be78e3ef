/*
Package guard compiles and evaluates the boolean expressions that gate
graph traversal (the `when` of an execution graph element).

Expressions are compiled once with github.com/expr-lang/expr into a
sandboxed program: no reflection into host objects beyond the supplied
environment, no I/O, no statements. Compiled guards are cached per
Compiler, so a guard shared by many elements is parsed a single time.

# Basic Usage

	g, err := guard.Compile("score >= 80 && status == 'open'")
	if err != nil {
	    return err
	}
	ok, err := g.Evaluate(map[string]any{"score": 91, "status": "open"})

Undefined variables evaluate to nil rather than failing, so guards can be
checked against a partially populated data model.

# Composition

Conditional partitions are composed with Truthy, Not and And. ShortCircuit
builds the guard of the i-th branch of an if/elseif/else chain so that only
the first matching branch (in document order) can be entered:

	guard.ShortCircuit([]string{"a", "b"}, 1) // truthy(b) && !truthy(a)
	guard.ShortCircuit([]string{"a", "b"}, 2) // !truthy(a) && !truthy(b)

truthy() is registered in every program and applies IsTruthy, so branch
conditions that yield strings or numbers compose like booleans.
*/
package guard

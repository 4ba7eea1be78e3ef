/*
Package template resolves ${path} placeholders inside element attributes.

Attribute values authored in a workflow may reference data-model fields
and run metadata:

	<llm prompt="Summarise ${input} for ${user.name}" />

The expander walks attribute maps (including nested maps and slices) and
replaces every placeholder with the value returned by a Lookup. Paths may be
dotted; MapLookup traverses nested maps with gabs.

An attribute that consists of a single placeholder keeps the referenced
value's type instead of being stringified:

	exp.ExpandValue("${items}", lookup) // []any{...}, not "[...]"

Missing paths are kept as-is by default; see WithMissingAction.
*/
package template

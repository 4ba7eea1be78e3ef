package guard

import "strings"

// Truthy wraps cond so it yields a boolean under IsTruthy semantics.
func Truthy(cond string) string {
	return "truthy(" + strings.TrimSpace(cond) + ")"
}

// Not negates cond under IsTruthy semantics.
func Not(cond string) string {
	return "!" + Truthy(cond)
}

// And joins the non-empty parts with &&. No parts yields "true".
func And(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return "true"
	}
	return strings.Join(kept, " && ")
}

// ShortCircuit returns the guard of branch index in an if/elseif chain with
// the given conditions: the branch's own condition and the negation of every
// earlier one. An index equal to len(conds) is the trailing else branch,
// guarded by the negation of all conditions.
func ShortCircuit(conds []string, index int) string {
	if index < 0 {
		index = 0
	}
	if index > len(conds) {
		index = len(conds)
	}

	parts := make([]string, 0, index+1)
	if index < len(conds) {
		parts = append(parts, Truthy(conds[index]))
	}
	for _, prior := range conds[:index] {
		parts = append(parts, Not(prior))
	}
	return And(parts...)
}

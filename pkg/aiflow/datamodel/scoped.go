package datamodel

import "sort"

// Scoped is a view of the registry from one scope path. Reads resolve
// through the chain of registered ancestors; writes land in the scope that
// declares the field.
type Scoped struct {
	registry *Registry
	path     string
	segments []string
}

// Path returns the scope path of the view.
func (s *Scoped) Path() string {
	return s.path
}

// Get returns the field's value and whether any scope in the chain declares
// it. A declared field without a value returns (nil, true).
func (s *Scoped) Get(field string) (any, bool) {
	store, _, ok := findOwner(s.registry.ancestors(s.segments), field)
	if !ok {
		return nil, false
	}
	store.mu.RLock()
	defer store.mu.RUnlock()
	return store.values[field], true
}

// Value returns the field's value, or nil when it is undeclared or unset.
func (s *Scoped) Value(field string) any {
	v, _ := s.Get(field)
	return v
}

// Has reports whether the field is declared anywhere in the chain.
func (s *Scoped) Has(field string) bool {
	_, _, ok := findOwner(s.registry.ancestors(s.segments), field)
	return ok
}

// Definition returns the definition of the field in its owning scope.
func (s *Scoped) Definition(field string) (FieldDefinition, bool) {
	_, def, ok := findOwner(s.registry.ancestors(s.segments), field)
	return def, ok
}

// OwnerScope returns the path of the scope that declares field.
func (s *Scoped) OwnerScope(field string) (string, bool) {
	store, _, ok := findOwner(s.registry.ancestors(s.segments), field)
	if !ok {
		return "", false
	}
	return store.path, true
}

// Set writes value to the scope that owns field.
//
// Returns a *FieldError wrapping ErrFieldNotFound, ErrReadonly or a
// *ValidationError. On error the stored value is unchanged.
func (s *Scoped) Set(field string, value any) error {
	store, _, ok := findOwner(s.registry.ancestors(s.segments), field)
	if !ok {
		return &FieldError{Scope: s.path, Field: field, Op: "set", Err: ErrFieldNotFound}
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	// Re-read under the write lock; the scope may have been re-registered.
	def, ok := store.fields[field]
	if !ok {
		return &FieldError{Scope: s.path, Field: field, Op: "set", Err: ErrFieldNotFound}
	}
	if def.IsReadonly() {
		return &FieldError{Scope: s.path, Field: field, Op: "set", Err: ErrReadonly}
	}
	if err := def.Validate(value); err != nil {
		return &FieldError{
			Scope: s.path,
			Field: field,
			Op:    "set",
			Err:   &ValidationError{Scope: store.path, Field: field, Value: value, Reason: err},
		}
	}

	store.values[field] = value
	return nil
}

// Fields returns every field name visible from this scope, sorted.
func (s *Scoped) Fields() []string {
	seen := make(map[string]struct{})
	for _, store := range s.registry.ancestors(s.segments) {
		store.mu.RLock()
		for name := range store.fields {
			seen[name] = struct{}{}
		}
		store.mu.RUnlock()
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns the effective field values visible from this scope,
// the most specific scope winning on collisions. Undefined fields are
// included with a nil value.
func (s *Scoped) Snapshot() map[string]any {
	out := make(map[string]any)
	chain := s.registry.ancestors(s.segments)
	// Least specific first so deeper scopes overwrite.
	for i := len(chain) - 1; i >= 0; i-- {
		store := chain[i]
		store.mu.RLock()
		for name := range store.fields {
			out[name] = store.values[name]
		}
		store.mu.RUnlock()
	}
	return out
}

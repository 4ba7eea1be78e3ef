package datamodel

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// scopeStore holds the definitions and values registered for one scope.
// Each store has its own lock so parallel branches writing to different
// scopes never contend.
type scopeStore struct {
	mu       sync.RWMutex
	path     string
	segments []string
	fields   map[string]FieldDefinition
	values   map[string]any
}

// Registry owns every registered scope, keyed by dot path.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	scopes map[string]*scopeStore
	logger *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for rehydration warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		scopes: make(map[string]*scopeStore),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddDataModel registers field definitions for scope and seeds their values
// from each field's DefaultValue. Registering a scope again replaces its
// field set and values.
func (r *Registry) AddDataModel(scope string, fields map[string]FieldDefinition) error {
	segments, err := splitScope(scope)
	if err != nil {
		return err
	}

	store := &scopeStore{
		path:     scope,
		segments: segments,
		fields:   make(map[string]FieldDefinition, len(fields)),
		values:   make(map[string]any, len(fields)),
	}

	for name, def := range fields {
		if err := def.Validate(def.DefaultValue); err != nil {
			return &FieldError{
				Scope: scope,
				Field: name,
				Op:    "register",
				Err:   &ValidationError{Scope: scope, Field: name, Value: def.DefaultValue, Reason: err},
			}
		}
		store.fields[name] = def
		if def.DefaultValue != nil {
			store.values[name] = cloneValue(def.DefaultValue)
		}
	}

	r.mu.Lock()
	r.scopes[scope] = store
	r.mu.Unlock()
	return nil
}

// HasScope reports whether scope has been registered directly.
func (r *Registry) HasScope(scope string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.scopes[scope]
	return ok
}

// Scopes returns the registered scope paths in sorted order.
func (r *Registry) Scopes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	paths := make([]string, 0, len(r.scopes))
	for path := range r.scopes {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// GetScopedDataModel returns a view over scope. The scope does not need to
// be registered; fields resolve from its nearest registered ancestors.
func (r *Registry) GetScopedDataModel(scope string) *Scoped {
	segments, _ := splitScope(scope)
	return &Scoped{
		registry: r,
		path:     scope,
		segments: segments,
	}
}

// InjectRequestValues seeds fromRequest fields visible from scope. It is the
// only way such fields receive a value; every other write is rejected.
func (r *Registry) InjectRequestValues(scope string, values map[string]any) error {
	segments, err := splitScope(scope)
	if err != nil {
		return err
	}

	chain := r.ancestors(segments)
	for name, v := range values {
		store, def, ok := findOwner(chain, name)
		if !ok {
			return &FieldError{Scope: scope, Field: name, Op: "inject", Err: ErrFieldNotFound}
		}
		if !def.FromRequest {
			return &FieldError{Scope: scope, Field: name, Op: "inject", Err: ErrNotFromRequest}
		}
		if err := def.Validate(v); err != nil {
			return &FieldError{
				Scope: scope,
				Field: name,
				Op:    "inject",
				Err:   &ValidationError{Scope: store.path, Field: name, Value: v, Reason: err},
			}
		}
		store.mu.Lock()
		store.values[name] = v
		store.mu.Unlock()
	}
	return nil
}

// ancestors returns the registered scopes whose segments prefix segments,
// most specific first: deeper scopes win, then longer paths.
func (r *Registry) ancestors(segments []string) []*scopeStore {
	r.mu.RLock()
	var chain []*scopeStore
	for _, store := range r.scopes {
		if isPrefix(store.segments, segments) {
			chain = append(chain, store)
		}
	}
	r.mu.RUnlock()

	sort.Slice(chain, func(i, j int) bool {
		if len(chain[i].segments) != len(chain[j].segments) {
			return len(chain[i].segments) > len(chain[j].segments)
		}
		return len(chain[i].path) > len(chain[j].path)
	})
	return chain
}

// findOwner returns the first store in chain that declares field.
func findOwner(chain []*scopeStore, field string) (*scopeStore, FieldDefinition, bool) {
	for _, store := range chain {
		store.mu.RLock()
		def, ok := store.fields[field]
		store.mu.RUnlock()
		if ok {
			return store, def, true
		}
	}
	return nil, FieldDefinition{}, false
}

func splitScope(scope string) ([]string, error) {
	if strings.TrimSpace(scope) == "" {
		return nil, ErrInvalidScope
	}
	segments := strings.Split(scope, ".")
	for _, s := range segments {
		if s == "" {
			return nil, ErrInvalidScope
		}
	}
	return segments, nil
}

func isPrefix(prefix, full []string) bool {
	if len(prefix) > len(full) {
		return false
	}
	for i := range prefix {
		if prefix[i] != full[i] {
			return false
		}
	}
	return true
}

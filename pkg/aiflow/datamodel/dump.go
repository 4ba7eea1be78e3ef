package datamodel

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/randalmurphal/aiflow/pkg/aiflow/observability"
	"github.com/randalmurphal/aiflow/pkg/aiflow/snapshot"
)

// SnapshotKind is the snapshot kind under which registry dumps are stored.
const SnapshotKind = "datamodel"

// Dump is the persisted form of a registry.
type Dump struct {
	ScopedDataModels map[string]map[string]FieldDefinition `json:"scopedDataModels"`
	FieldValues      map[string]map[string]any             `json:"fieldValues"`
}

// Dump captures every registered definition and value, including values of
// fromRequest fields.
func (r *Registry) Dump() Dump {
	d := Dump{
		ScopedDataModels: make(map[string]map[string]FieldDefinition),
		FieldValues:      make(map[string]map[string]any),
	}

	r.mu.RLock()
	stores := make([]*scopeStore, 0, len(r.scopes))
	for _, store := range r.scopes {
		stores = append(stores, store)
	}
	r.mu.RUnlock()

	for _, store := range stores {
		store.mu.RLock()
		defs := make(map[string]FieldDefinition, len(store.fields))
		for name, def := range store.fields {
			defs[name] = def
		}
		values := make(map[string]any, len(store.values))
		for name, v := range store.values {
			values[name] = cloneValue(v)
		}
		store.mu.RUnlock()

		d.ScopedDataModels[store.path] = defs
		d.FieldValues[store.path] = values
	}
	return d
}

// MarshalJSON encodes the registry as its Dump.
func (r *Registry) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Dump())
}

// Rehydrate replaces the registry contents with d. Values of fromRequest
// fields are never restored; they must be injected by the new request.
// Stored values failing validation are dropped with a warning.
func (r *Registry) Rehydrate(d Dump) error {
	scopes := make(map[string]*scopeStore, len(d.ScopedDataModels))

	paths := make([]string, 0, len(d.ScopedDataModels))
	for path := range d.ScopedDataModels {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		segments, err := splitScope(path)
		if err != nil {
			return fmt.Errorf("rehydrate scope %q: %w", path, err)
		}
		defs := d.ScopedDataModels[path]
		store := &scopeStore{
			path:     path,
			segments: segments,
			fields:   make(map[string]FieldDefinition, len(defs)),
			values:   make(map[string]any, len(defs)),
		}

		stored := d.FieldValues[path]
		for name, def := range defs {
			store.fields[name] = def
			if def.FromRequest {
				continue
			}
			v, ok := stored[name]
			if !ok || v == nil {
				continue
			}
			if err := def.Validate(v); err != nil {
				observability.LogRehydrateDrop(r.logger, path, name, err)
				continue
			}
			store.values[name] = cloneValue(v)
		}
		scopes[path] = store
	}

	r.mu.Lock()
	r.scopes = scopes
	r.mu.Unlock()
	return nil
}

// RehydrateFromDump builds a new registry from d.
func RehydrateFromDump(d Dump, opts ...Option) (*Registry, error) {
	r := NewRegistry(opts...)
	if err := r.Rehydrate(d); err != nil {
		return nil, err
	}
	return r, nil
}

// ParseDump decodes a JSON dump.
func ParseDump(data []byte) (Dump, error) {
	var d Dump
	if err := json.Unmarshal(data, &d); err != nil {
		return Dump{}, fmt.Errorf("parse data-model dump: %w", err)
	}
	return d, nil
}

// SaveSnapshot persists the registry dump for runID.
func (r *Registry) SaveSnapshot(store snapshot.Store, runID string) error {
	data, err := json.Marshal(r.Dump())
	if err != nil {
		return fmt.Errorf("marshal data-model dump: %w", err)
	}
	env, err := snapshot.New(runID, SnapshotKind, data).Marshal()
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return store.Save(runID, SnapshotKind, env)
}

// LoadSnapshot restores a registry previously saved with SaveSnapshot.
func LoadSnapshot(store snapshot.Store, runID string, opts ...Option) (*Registry, error) {
	raw, err := store.Load(runID, SnapshotKind)
	if err != nil {
		return nil, err
	}
	env, err := snapshot.Unmarshal(raw)
	if err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if env.Version != snapshot.Version {
		return nil, fmt.Errorf("%w: got %d, want %d", snapshot.ErrVersionMismatch, env.Version, snapshot.Version)
	}
	d, err := ParseDump(env.Data)
	if err != nil {
		return nil, err
	}
	return RehydrateFromDump(d, opts...)
}

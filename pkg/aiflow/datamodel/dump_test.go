package datamodel

import (
	"testing"

	"github.com/randalmurphal/aiflow/pkg/aiflow/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_SaveAndLoad(t *testing.T) {
	store, err := snapshot.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	r := newTestRegistry(t)
	require.NoError(t, r.GetScopedDataModel("A").Set("greeting", "persisted"))
	require.NoError(t, r.InjectRequestValues("A", map[string]any{"apiKey": "secret"}))
	require.NoError(t, r.SaveSnapshot(store, "run-1"))

	restored, err := LoadSnapshot(store, "run-1")
	require.NoError(t, err)

	scoped := restored.GetScopedDataModel("A.B")
	assert.Equal(t, "persisted", scoped.Value("greeting"))
	assert.Nil(t, scoped.Value("apiKey"))

	require.NoError(t, restored.InjectRequestValues("A", map[string]any{"apiKey": "fresh"}))
	assert.Equal(t, "fresh", scoped.Value("apiKey"))
}

func TestLoadSnapshot_Missing(t *testing.T) {
	_, err := LoadSnapshot(snapshot.NewMemoryStore(), "nope")
	assert.ErrorIs(t, err, snapshot.ErrNotFound)
}

func TestDump_Shape(t *testing.T) {
	r := newTestRegistry(t)
	d := r.Dump()

	require.Contains(t, d.ScopedDataModels, "A")
	assert.Equal(t, TypeString, d.ScopedDataModels["A"]["greeting"].Type)
	assert.Equal(t, "hello", d.FieldValues["A"]["greeting"])
	assert.NotContains(t, d.FieldValues["A"], "apiKey")
}

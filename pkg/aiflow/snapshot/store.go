// Package snapshot persists run state (data-model dumps, step tables) so a
// run can be inspected or rehydrated later.
package snapshot

import (
	"errors"
	"time"
)

// Store persists snapshots keyed by run and kind.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores data for (runID, kind), overwriting any previous value.
	Save(runID, kind string, data []byte) error

	// Load retrieves a snapshot.
	// Returns ErrNotFound if it doesn't exist.
	Load(runID, kind string) ([]byte, error)

	// List returns metadata for every snapshot of a run, oldest write first.
	// Returns an empty slice (not error) if the run has none.
	List(runID string) ([]Info, error)

	// Runs returns the ids of runs holding a snapshot of kind, least
	// recently written first.
	Runs(kind string) ([]string, error)

	// Delete removes one snapshot. Returns nil if it doesn't exist.
	Delete(runID, kind string) error

	// DeleteRun removes every snapshot of a run.
	DeleteRun(runID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Info describes a stored snapshot without loading it.
type Info struct {
	RunID     string
	Kind      string
	Sequence  int
	Timestamp time.Time
	Size      int64
}

// Sentinel errors for snapshot operations.
var (
	// ErrNotFound indicates a snapshot doesn't exist.
	ErrNotFound = errors.New("snapshot not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("snapshot store closed")

	// ErrVersionMismatch indicates an envelope written by an incompatible version.
	ErrVersionMismatch = errors.New("snapshot version mismatch")
)

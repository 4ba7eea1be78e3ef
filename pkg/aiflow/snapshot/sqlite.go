package snapshot

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// schema holds one row per (run, kind). Sequence is a store-wide write
// counter so List can order a run's snapshots by last write.
const schema = `
CREATE TABLE IF NOT EXISTS run_snapshots (
	run_id     TEXT    NOT NULL,
	kind       TEXT    NOT NULL,
	sequence   INTEGER NOT NULL,
	written_at TEXT    NOT NULL,
	data       BLOB    NOT NULL,
	PRIMARY KEY (run_id, kind)
);
CREATE INDEX IF NOT EXISTS idx_run_snapshots_kind ON run_snapshots(kind, run_id);
CREATE TABLE IF NOT EXISTS snapshot_sequence (
	id    INTEGER PRIMARY KEY CHECK (id = 1),
	value INTEGER NOT NULL
);
INSERT OR IGNORE INTO snapshot_sequence (id, value) VALUES (1, 0);
`

// SQLiteStore persists snapshots to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool

	bump, save, load, list, runs, del, delRun *sql.Stmt
}

// NewSQLiteStore opens (or creates) a store at path.
// Use ":memory:" for a throwaway database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &SQLiteStore{db: db}
	stmts := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.bump, `UPDATE snapshot_sequence SET value = value + 1 WHERE id = 1 RETURNING value`},
		{&s.save, `INSERT INTO run_snapshots (run_id, kind, sequence, written_at, data)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(run_id, kind) DO UPDATE SET
				sequence = excluded.sequence,
				written_at = excluded.written_at,
				data = excluded.data`},
		{&s.load, `SELECT data FROM run_snapshots WHERE run_id = ? AND kind = ?`},
		{&s.list, `SELECT kind, sequence, written_at, LENGTH(data)
			FROM run_snapshots WHERE run_id = ? ORDER BY sequence`},
		{&s.runs, `SELECT run_id FROM run_snapshots WHERE kind = ? ORDER BY sequence`},
		{&s.del, `DELETE FROM run_snapshots WHERE run_id = ? AND kind = ?`},
		{&s.delRun, `DELETE FROM run_snapshots WHERE run_id = ?`},
	}
	for _, st := range stmts {
		prepared, err := db.Prepare(st.query)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("prepare statement: %w", err)
		}
		*st.dst = prepared
	}
	return s, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(runID, kind string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var seq int
	if err := tx.Stmt(s.bump).QueryRow().Scan(&seq); err != nil {
		return fmt.Errorf("save snapshot: next sequence: %w", err)
	}
	writtenAt := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.Stmt(s.save).Exec(runID, kind, seq, writtenAt, data); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save snapshot: commit: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(runID, kind string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var data []byte
	err := s.load.QueryRow(runID, kind).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return data, nil
}

// List implements Store.
func (s *SQLiteStore) List(runID string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.list.Query(runID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	infos := []Info{}
	for rows.Next() {
		info := Info{RunID: runID}
		var writtenAt string
		if err := rows.Scan(&info.Kind, &info.Sequence, &writtenAt, &info.Size); err != nil {
			return nil, fmt.Errorf("scan snapshot info: %w", err)
		}
		info.Timestamp, _ = time.Parse(time.RFC3339Nano, writtenAt)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return infos, nil
}

// Runs implements Store.
func (s *SQLiteStore) Runs(kind string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.runs.Query(kind)
	if err != nil {
		return nil, fmt.Errorf("list runs with %s: %w", kind, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return ids, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(runID, kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if _, err := s.del.Exec(runID, kind); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// DeleteRun implements Store.
func (s *SQLiteStore) DeleteRun(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if _, err := s.delRun.Exec(runID); err != nil {
		return fmt.Errorf("delete run snapshots: %w", err)
	}
	return nil
}

// Close implements Store. Closing twice is a no-op.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	for _, st := range []*sql.Stmt{s.bump, s.save, s.load, s.list, s.runs, s.del, s.delRun} {
		st.Close()
	}
	return s.db.Close()
}

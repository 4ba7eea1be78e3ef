package snapshot

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps snapshots in process memory. Data is lost on exit.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]map[string]entry // runID -> kind -> entry
	seq    int
	closed bool
}

type entry struct {
	data      []byte
	sequence  int
	timestamp time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs: make(map[string]map[string]entry),
	}
}

// Save implements Store.
func (m *MemoryStore) Save(runID, kind string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	if m.runs[runID] == nil {
		m.runs[runID] = make(map[string]entry)
	}

	m.seq++
	stored := make([]byte, len(data))
	copy(stored, data)
	m.runs[runID][kind] = entry{
		data:      stored,
		sequence:  m.seq,
		timestamp: time.Now().UTC(),
	}
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(runID, kind string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	e, ok := m.runs[runID][kind]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, nil
}

// List implements Store.
func (m *MemoryStore) List(runID string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	run := m.runs[runID]
	infos := make([]Info, 0, len(run))
	for kind, e := range run {
		infos = append(infos, Info{
			RunID:     runID,
			Kind:      kind,
			Sequence:  e.sequence,
			Timestamp: e.timestamp,
			Size:      int64(len(e.data)),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Sequence < infos[j].Sequence
	})
	return infos, nil
}

// Runs implements Store.
func (m *MemoryStore) Runs(kind string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	type hit struct {
		runID    string
		sequence int
	}
	var hits []hit
	for runID, kinds := range m.runs {
		if e, ok := kinds[kind]; ok {
			hits = append(hits, hit{runID, e.sequence})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].sequence < hits[j].sequence })
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.runID
	}
	return ids, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(runID, kind string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.runs[runID], kind)
	return nil
}

// DeleteRun implements Store.
func (m *MemoryStore) DeleteRun(runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.runs, runID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.runs = nil
	return nil
}

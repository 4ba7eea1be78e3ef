package snapshot

import (
	"encoding/json"
	"time"
)

// Version is the current snapshot envelope version.
// Increment when making breaking changes to the envelope.
const Version = 1

// Snapshot is the persisted envelope around one piece of run state,
// such as a data-model dump or a run's step table.
type Snapshot struct {
	Version   int       `json:"version"`
	RunID     string    `json:"run_id"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`

	Data json.RawMessage `json:"data"`
}

// New creates an envelope for data, which must already be JSON.
func New(runID, kind string, data []byte) *Snapshot {
	return &Snapshot{
		Version:   Version,
		RunID:     runID,
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// Marshal serializes the envelope to JSON.
func (s *Snapshot) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// Unmarshal deserializes an envelope from JSON.
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

package value

import (
	"encoding/json"
	"fmt"

	"github.com/randalmurphal/aiflow/pkg/aiflow/snapshot"
)

// SnapshotKind is the snapshot kind under which run records are stored.
const SnapshotKind = "run"

// RunRecord is the persisted form of a run's step table. Outputs are
// included only for steps whose value had resolved when it was saved.
type RunRecord struct {
	RunID    string          `json:"runId"`
	Finished bool            `json:"finished"`
	Usage    TokenUsage      `json:"usage"`
	Steps    []StepRecord    `json:"steps"`
	Final    json.RawMessage `json:"final,omitempty"`
}

// StepRecord is one persisted step.
type StepRecord struct {
	RunStep
	OutputType ResultType      `json:"outputType,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
}

// Record captures the run's current state.
func (r *RunValue) Record() (RunRecord, error) {
	rec := RunRecord{
		RunID:    r.id,
		Finished: r.Finished(),
		Usage:    r.Usage(),
	}
	for _, step := range r.Steps() {
		sr := StepRecord{RunStep: step}
		if step.Output != nil && step.Output.ValueReady() {
			out, err := readyResultJSON(step.Output)
			if err != nil {
				return RunRecord{}, fmt.Errorf("encode output of %s: %w", step.ID, err)
			}
			sr.OutputType = step.Output.resultType()
			sr.Output = out
		}
		rec.Steps = append(rec.Steps, sr)
	}
	if final := r.FinalOutput(); final != nil && final.ValueReady() {
		out, err := readyResultJSON(final)
		if err != nil {
			return RunRecord{}, fmt.Errorf("encode final output: %w", err)
		}
		rec.Final = out
	}
	return rec, nil
}

func readyResultJSON(s *StepValue) (json.RawMessage, error) {
	s.mu.Lock()
	r := s.result
	s.mu.Unlock()
	return json.Marshal(r)
}

// SaveSnapshot persists the run record under the run id.
func (r *RunValue) SaveSnapshot(store snapshot.Store) error {
	rec, err := r.Record()
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	env, err := snapshot.New(r.id, SnapshotKind, data).Marshal()
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return store.Save(r.id, SnapshotKind, env)
}

// LoadRunRecord reads a run record saved with SaveSnapshot.
func LoadRunRecord(store snapshot.Store, runID string) (RunRecord, error) {
	raw, err := store.Load(runID, SnapshotKind)
	if err != nil {
		return RunRecord{}, err
	}
	env, err := snapshot.Unmarshal(raw)
	if err != nil {
		return RunRecord{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if env.Version != snapshot.Version {
		return RunRecord{}, fmt.Errorf("%w: got %d, want %d", snapshot.ErrVersionMismatch, env.Version, snapshot.Version)
	}
	var rec RunRecord
	if err := json.Unmarshal(env.Data, &rec); err != nil {
		return RunRecord{}, fmt.Errorf("parse run record: %w", err)
	}
	return rec, nil
}

package value

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/randalmurphal/aiflow/pkg/aiflow/observability"
)

// Timing defaults.
const (
	DefaultSettleTimeout      = 500 * time.Millisecond
	DefaultFinalOutputTimeout = 15 * time.Second
)

// ElementTypeFinal marks the step whose output is the run's final output.
const ElementTypeFinal = "final"

// StepStatus is the lifecycle state of a run step.
type StepStatus string

// Step statuses.
const (
	StepActive   StepStatus = "active"
	StepFinished StepStatus = "finished"
)

// RunStep is one row of a run's step table.
type RunStep struct {
	ID          string     `json:"id"`
	Path        string     `json:"path"`
	ElementType string     `json:"elementType"`
	Status      StepStatus `json:"status"`
	Input       *StepValue `json:"-"`
	Output      *StepValue `json:"-"`
	StartedAt   time.Time  `json:"startedAt"`
	FinishedAt  time.Time  `json:"finishedAt,omitzero"`
}

// RunValue aggregates the steps of one run into its final output, token
// usage and response stream.
//
// RunValue is safe for concurrent use.
type RunValue struct {
	id            string
	logger        *slog.Logger
	metrics       observability.MetricsRecorder
	spans         observability.SpanManager
	dedup         bool
	settleTimeout time.Duration
	finalTimeout  time.Duration

	mu        sync.Mutex
	steps     []*RunStep
	index     map[string]*RunStep
	generated []*StepValue
	final     *StepValue
	usage     TokenUsage

	finalSet     chan struct{}
	finalOnce    sync.Once
	finished     atomic.Bool
	finalizeOnce sync.Once
}

// RunOption configures a RunValue.
type RunOption func(*RunValue)

// WithRunLogger sets the logger.
func WithRunLogger(logger *slog.Logger) RunOption {
	return func(r *RunValue) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRunMetrics sets the metrics recorder.
func WithRunMetrics(m observability.MetricsRecorder) RunOption {
	return func(r *RunValue) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithRunTracing sets the span manager used around Finalize.
func WithRunTracing(sm observability.SpanManager) RunOption {
	return func(r *RunValue) {
		if sm != nil {
			r.spans = sm
		}
	}
}

// WithDeduplication controls whether ResponseIterator drops repeated,
// structurally identical non-terminal chunks.
//
// Default: true
func WithDeduplication(enabled bool) RunOption {
	return func(r *RunValue) {
		r.dedup = enabled
	}
}

// WithSettleTimeout bounds how long Finalize waits for generated values.
//
// Default: 500ms
func WithSettleTimeout(d time.Duration) RunOption {
	return func(r *RunValue) {
		if d > 0 {
			r.settleTimeout = d
		}
	}
}

// WithFinalOutputTimeout sets the default WaitForFinalOutput timeout.
//
// Default: 15s
func WithFinalOutputTimeout(d time.Duration) RunOption {
	return func(r *RunValue) {
		if d > 0 {
			r.finalTimeout = d
		}
	}
}

// NewRunValue creates a RunValue. An empty runID is replaced by a UUID.
func NewRunValue(runID string, opts ...RunOption) *RunValue {
	if runID == "" {
		runID = uuid.NewString()
	}
	r := &RunValue{
		id:            runID,
		logger:        slog.Default(),
		metrics:       observability.NoopMetrics{},
		spans:         observability.NoopSpanManager{},
		dedup:         true,
		settleTimeout: DefaultSettleTimeout,
		finalTimeout:  DefaultFinalOutputTimeout,
		index:         make(map[string]*RunStep),
		finalSet:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(slog.String("run_id", runID))
	return r
}

// ID returns the run id.
func (r *RunValue) ID() string {
	return r.id
}

// AddActiveStep appends step to the step table as active and returns its
// id, generating one when empty. An Output already set on step is attached
// as if by SetStepOutput.
func (r *RunValue) AddActiveStep(step RunStep) string {
	if step.ID == "" {
		step.ID = uuid.NewString()
	}
	if step.StartedAt.IsZero() {
		step.StartedAt = time.Now()
	}
	step.Status = StepActive
	output := step.Output
	step.Output = nil

	s := &step
	r.mu.Lock()
	r.steps = append(r.steps, s)
	r.index[s.ID] = s
	r.attachLocked(s, output)
	r.mu.Unlock()
	return s.ID
}

// SetStepOutput attaches output to the step. The output of a final step
// becomes the candidate final output; any other output is appended to the
// generated values.
func (r *RunValue) SetStepOutput(id string, output *StepValue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.index[id]
	if !ok {
		return fmt.Errorf("set output of %s: %w", id, ErrStepNotFound)
	}
	r.attachLocked(s, output)
	return nil
}

// MarkStepAsFinished marks the step finished, attaching output if non-nil.
func (r *RunValue) MarkStepAsFinished(id string, output *StepValue) error {
	r.mu.Lock()
	s, ok := r.index[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("finish %s: %w", id, ErrStepNotFound)
	}
	r.attachLocked(s, output)
	s.Status = StepFinished
	s.FinishedAt = time.Now()
	elementType := s.ElementType
	r.mu.Unlock()

	observability.LogStepFinished(r.logger, id, elementType, string(StepFinished))
	return nil
}

func (r *RunValue) attachLocked(s *RunStep, output *StepValue) {
	if output == nil || s.Output == output {
		return
	}
	s.Output = output
	if s.ElementType == ElementTypeFinal {
		r.final = output
		r.finalOnce.Do(func() { close(r.finalSet) })
		return
	}
	r.generated = append(r.generated, output)
}

// Steps returns a copy of the step table in insertion order.
func (r *RunValue) Steps() []RunStep {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RunStep, len(r.steps))
	for i, s := range r.steps {
		out[i] = *s
	}
	return out
}

// GeneratedValues returns the non-final outputs in arrival order.
func (r *RunValue) GeneratedValues() []*StepValue {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*StepValue, len(r.generated))
	copy(out, r.generated)
	return out
}

// FinalOutput returns the current final output candidate, or nil.
func (r *RunValue) FinalOutput() *StepValue {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.final
}

// Finished reports whether Finalize has been called. It never reverts.
func (r *RunValue) Finished() bool {
	return r.finished.Load()
}

// Usage returns the token usage attributed by Finalize.
func (r *RunValue) Usage() TokenUsage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usage
}

// Finalize marks the run finished, waits briefly for pending generated
// values, and attributes token usage. Only the first call does work.
// Failures are logged, never returned.
func (r *RunValue) Finalize(ctx context.Context) {
	r.finished.Store(true)
	r.finalizeOnce.Do(func() {
		r.finalize(ctx)
	})
}

func (r *RunValue) finalize(ctx context.Context) {
	ctx, span := r.spans.StartFinalizeSpan(ctx, r.id)
	done := observability.TimedOperation()
	var finalizeErr error
	defer func() {
		if p := recover(); p != nil {
			finalizeErr = fmt.Errorf("finalize panic: %v", p)
			observability.LogFinalizeError(r.logger, finalizeErr)
		}
		r.spans.EndSpanWithError(span, finalizeErr)
	}()

	values := r.GeneratedValues()
	if err := r.settle(ctx, values); err != nil {
		finalizeErr = err
		observability.LogFinalizeError(r.logger, err)
	}

	usage := AttributeUsage(values)
	r.mu.Lock()
	r.usage = usage
	r.mu.Unlock()

	r.metrics.RecordTokenUsage(ctx, int64(usage.PromptTokens), int64(usage.CompletionTokens), int64(usage.ReasoningTokens))
	r.metrics.RecordFinalize(ctx, len(values), time.Duration(done()*float64(time.Millisecond)))
	observability.LogFinalize(r.logger, usage.PromptTokens, usage.CompletionTokens, usage.ReasoningTokens)
}

// settle waits, bounded by the settle timeout, for every value to resolve.
func (r *RunValue) settle(ctx context.Context, values []*StepValue) error {
	timer := time.NewTimer(r.settleTimeout)
	defer timer.Stop()
	for _, v := range values {
		select {
		case <-v.Done():
		case <-timer.C:
			return fmt.Errorf("settle generated values: %w", ErrStreamsPending)
		case <-ctx.Done():
			return fmt.Errorf("settle generated values: %w", ctx.Err())
		}
	}
	return nil
}

// AttributeUsage splits the usage of a chain of generated values. A single
// value counts directly. For a longer chain the first value's prompt tokens
// and the last value's completion tokens face the caller; everything else
// counts as reasoning. Values must already be settled; usage still
// streaming in is not counted.
func AttributeUsage(values []*StepValue) TokenUsage {
	var u TokenUsage
	switch len(values) {
	case 0:
	case 1:
		s := values[0].Stats().TokenUsage
		u.PromptTokens = s.PromptTokens
		u.CompletionTokens = s.CompletionTokens
		u.ReasoningTokens = s.ReasoningTokens
	default:
		first := values[0].Stats().TokenUsage
		last := values[len(values)-1].Stats().TokenUsage
		u.PromptTokens = first.PromptTokens
		u.ReasoningTokens = first.CompletionTokens + last.PromptTokens
		u.CompletionTokens = last.CompletionTokens
		for _, v := range values[1 : len(values)-1] {
			mid := v.Stats().TokenUsage
			u.ReasoningTokens += mid.PromptTokens + mid.CompletionTokens
		}
	}
	u.TotalTokens = u.PromptTokens + u.CompletionTokens + u.ReasoningTokens
	return u
}

// WaitForFinalOutput returns the final output candidate as soon as one
// exists, which may still be streaming. If none appears within timeout
// (the configured default when timeout <= 0) an error value is synthesized
// and cached as the final output.
func (r *RunValue) WaitForFinalOutput(ctx context.Context, timeout time.Duration) *StepValue {
	if final := r.FinalOutput(); final != nil {
		return final
	}
	if timeout <= 0 {
		timeout = r.finalTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-r.finalSet:
		return r.FinalOutput()
	case <-timer.C:
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.final == nil {
			r.final = NewErrorStepValue(
				fmt.Sprintf("no final output within %s", timeout), CodeTimeout)
			r.finalOnce.Do(func() { close(r.finalSet) })
		}
		return r.final
	case <-ctx.Done():
		return NewErrorStepValue(ctx.Err().Error(), CodeCancelled)
	}
}

// WaitForStateStreamsToFinish waits until every generated value and the
// final output have resolved, or timeout elapses.
func (r *RunValue) WaitForStateStreamsToFinish(ctx context.Context, timeout time.Duration) error {
	values := r.GeneratedValues()
	if final := r.FinalOutput(); final != nil {
		values = append(values, final)
	}
	if timeout <= 0 {
		timeout = r.finalTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for _, v := range values {
		if err := v.WaitForValue(ctx); err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("wait for streams: %w", ErrStreamsPending)
			}
			return err
		}
	}
	return nil
}

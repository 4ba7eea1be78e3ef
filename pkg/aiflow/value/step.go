package value

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// errIncomplete is the message of a stream that ended without content.
const errIncomplete = "final delta(s) never sent"

// Stats holds counters gathered while a step resolved.
type Stats struct {
	TokenUsage TokenUsage `json:"tokenUsage"`
}

// StepValue is the result of one executed graph node. Construction never
// blocks; stream inputs are consumed in the background. The resolved value
// is set at most once.
//
// StepValue is safe for concurrent use.
type StepValue struct {
	id     string
	logger *slog.Logger

	mu      sync.Mutex
	log     []Chunk
	drained bool
	notify  chan struct{}
	usage   TokenUsage
	result  *Result

	ready     chan struct{}
	readyOnce sync.Once
}

// StepOption configures a StepValue.
type StepOption func(*StepValue)

// WithStepID overrides the generated id.
func WithStepID(id string) StepOption {
	return func(s *StepValue) {
		if id != "" {
			s.id = id
		}
	}
}

// WithStepLogger sets the logger used for stream failures.
func WithStepLogger(logger *slog.Logger) StepOption {
	return func(s *StepValue) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStepValue normalizes input into a StepValue.
//
// Accepted inputs: string or []byte (text), slices (items), result-shaped
// maps such as {"text": ...} or {"type": "error", ...}, *Result, error,
// other maps and structs (object), and the stream sources
// iter.Seq2[Chunk, error], iter.Seq[Chunk], <-chan Chunk and io.Reader.
//
// Cancelling ctx stops a stream consumer and resolves the value with a
// "cancelled" error if it was not already resolved.
func NewStepValue(ctx context.Context, input any, opts ...StepOption) *StepValue {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &StepValue{
		id:     uuid.NewString(),
		logger: slog.Default(),
		notify: make(chan struct{}),
		ready:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	switch in := input.(type) {
	case iter.Seq2[Chunk, error]:
		go s.consume(ctx, in)
	case func(func(Chunk, error) bool):
		go s.consume(ctx, in)
	case iter.Seq[Chunk]:
		go s.consume(ctx, seqSource(in))
	case func(func(Chunk) bool):
		go s.consume(ctx, seqSource(in))
	case <-chan Chunk:
		go s.consume(ctx, chanSource(ctx, in))
	case chan Chunk:
		go s.consume(ctx, chanSource(ctx, in))
	case io.Reader:
		go s.consume(ctx, readerSource(in))
	default:
		s.settle(normalize(input))
	}
	return s
}

// NewErrorStepValue returns an already resolved error value.
func NewErrorStepValue(message, code string) *StepValue {
	return NewStepValue(context.Background(), NewErrorResult(message, code))
}

// normalize converts a non-stream input into a Result.
func normalize(input any) *Result {
	switch v := input.(type) {
	case nil:
		return TextResult("")
	case string:
		return TextResult(v)
	case []byte:
		return TextResult(string(v))
	case *Result:
		if v == nil {
			return TextResult("")
		}
		return v
	case Result:
		return &v
	case *ErrorResult:
		return ErrResult(v)
	case error:
		return ErrResult(NewErrorResult(v.Error(), CodeError))
	case map[string]any:
		if isResultShaped(v) {
			return resultFromMap(v)
		}
		return ObjectResult(v)
	}
	if items, ok := toItems(input); ok {
		return ItemsResult(items)
	}
	return ObjectResult(input)
}

// toItems converts any slice or array to []any.
func toItems(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

// settle resolves a static value and records its equivalent chunk log.
func (s *StepValue) settle(r *Result) {
	s.mu.Lock()
	s.log = r.chunks()
	s.drained = true
	close(s.notify)
	s.mu.Unlock()
	s.resolve(r)
}

// resolve sets the value once and releases waiters.
func (s *StepValue) resolve(r *Result) {
	s.readyOnce.Do(func() {
		s.mu.Lock()
		s.result = r
		s.mu.Unlock()
		close(s.ready)
	})
}

// record appends c to the chunk log. It returns false once the log is closed.
func (s *StepValue) record(c Chunk) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drained {
		return false
	}
	s.log = append(s.log, c)
	if c.Usage != nil && (c.Type == ChunkFinish || c.Type == ChunkStepFinish) {
		s.usage = s.usage.Add(*c.Usage)
	}
	close(s.notify)
	s.notify = make(chan struct{})
	return true
}

// close ends the chunk log. A failed value whose log does not already end
// in an error chunk gets one appended.
func (s *StepValue) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drained {
		return
	}
	if r := s.result; r != nil && r.Type() == TypeError && r.Err != nil {
		if n := len(s.log); n == 0 || s.log[n-1].Type != ChunkError {
			s.log = append(s.log, ErrorChunk(r.Err.Message, r.Err.Code))
		}
	}
	s.drained = true
	close(s.notify)
}

// fail resolves the value with an error unless it already resolved, then
// ends the chunk log.
func (s *StepValue) fail(message, code string) {
	s.resolve(ErrResult(NewErrorResult(message, code)))
	s.close()
}

// consume drains src into the chunk log and folds it into a value.
func (s *StepValue) consume(ctx context.Context, src iter.Seq2[Chunk, error]) {
	stop := context.AfterFunc(ctx, func() {
		s.fail("step cancelled", CodeCancelled)
	})
	defer stop()

	var acc accumulator
	for c, err := range src {
		if ctx.Err() != nil {
			break
		}
		if err != nil {
			s.logger.Debug("step stream failed",
				slog.String("step_id", s.id),
				slog.String("error", err.Error()),
			)
			s.fail(err.Error(), CodeStreamFailure)
			return
		}
		if !s.record(c) {
			return
		}

		switch c.Type {
		case ChunkTextDelta:
			acc.text.WriteString(c.TextDelta)
			acc.seen = true
		case ChunkToolCall:
			acc.toolCalls = append(acc.toolCalls, ToolCall{ToolCallID: c.ToolCallID, ToolName: c.ToolName, Args: c.Args})
			acc.seen = true
		case ChunkToolResult:
			acc.toolResults = append(acc.toolResults, ToolResult{ToolCallID: c.ToolCallID, ToolName: c.ToolName, Result: c.Result})
			acc.seen = true
		case ChunkObject:
			acc.object = c.Object
			acc.hasObject = true
			acc.seen = true
		case ChunkFinish, ChunkStepFinish:
			s.resolve(acc.commit())
		case ChunkError:
			msg := c.Error
			if msg == "" {
				msg = "stream reported an error"
			}
			code := c.Code
			if code == "" {
				code = CodeError
			}
			s.fail(msg, code)
			return
		}
	}

	if ctx.Err() != nil {
		s.fail("step cancelled", CodeCancelled)
		return
	}
	if acc.seen {
		s.resolve(acc.result())
	} else {
		s.resolve(ErrResult(NewErrorResult(errIncomplete, CodeIncomplete)))
	}
	s.close()
}

// accumulator folds stream chunks into a partial value.
type accumulator struct {
	text        strings.Builder
	toolCalls   []ToolCall
	toolResults []ToolResult
	object      any
	hasObject   bool
	seen        bool
}

func (a *accumulator) result() *Result {
	r := &Result{
		Text:        a.text.String(),
		Object:      a.object,
		ToolCalls:   a.toolCalls,
		ToolResults: a.toolResults,
	}
	if a.hasObject {
		r.Kind = TypeObject
	}
	return r
}

// commit returns the partial value, or the incomplete error when nothing
// was seen.
func (a *accumulator) commit() *Result {
	if !a.seen {
		return ErrResult(NewErrorResult(errIncomplete, CodeIncomplete))
	}
	return a.result()
}

// ID returns the step value's id.
func (s *StepValue) ID() string {
	return s.id
}

// Done returns a channel closed once the value is resolved.
func (s *StepValue) Done() <-chan struct{} {
	return s.ready
}

// ValueReady reports whether the value has resolved. It never reverts.
func (s *StepValue) ValueReady() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// WaitForValue blocks until the value resolves or ctx ends.
func (s *StepValue) WaitForValue(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Value waits for and returns the resolved value. The returned error is
// non-nil only when ctx ended first; step failures are reported as a
// TypeError result.
func (s *StepValue) Value(ctx context.Context) (*Result, error) {
	if err := s.WaitForValue(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, nil
}

// Type waits for the value and returns its classification.
func (s *StepValue) Type(ctx context.Context) (ResultType, error) {
	r, err := s.Value(ctx)
	if err != nil {
		return "", err
	}
	return r.Type(), nil
}

// SimpleValue waits for the value and unwraps it to the bare text, object,
// item list, tool-call list or *ErrorResult.
func (s *StepValue) SimpleValue(ctx context.Context) (any, error) {
	r, err := s.Value(ctx)
	if err != nil {
		return nil, err
	}
	return r.Simple(), nil
}

// ValueAsText waits for the value and renders it as a string.
func (s *StepValue) ValueAsText(ctx context.Context) (string, error) {
	r, err := s.Value(ctx)
	if err != nil {
		return "", err
	}
	return r.AsText(), nil
}

// Err waits for the value and returns its *ErrorResult, if any.
func (s *StepValue) Err(ctx context.Context) error {
	r, err := s.Value(ctx)
	if err != nil {
		return err
	}
	if r.Type() != TypeError || r.Err == nil {
		return nil
	}
	return r.Err
}

// Stats returns the counters gathered so far.
func (s *StepValue) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{TokenUsage: s.usage}
}

// StreamIterator replays the recorded chunk log from the start, then
// follows it live until the source is drained. A terminal failure appears
// as a final error chunk. The iterator's error is non-nil only when ctx
// ends before the log is drained.
func (s *StepValue) StreamIterator(ctx context.Context) iter.Seq2[Chunk, error] {
	return s.follow(ctx, 0)
}

// follow is StreamIterator with an optional idle bound: when idle > 0 and
// no chunk arrives for that long, iteration ends with ErrStreamStalled.
func (s *StepValue) follow(ctx context.Context, idle time.Duration) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		next := 0
		for {
			s.mu.Lock()
			pending := s.log[next:]
			drained := s.drained
			notify := s.notify
			s.mu.Unlock()

			for _, c := range pending {
				next++
				if !yield(c, nil) {
					return
				}
			}
			if len(pending) > 0 {
				continue
			}
			if drained {
				return
			}

			var stalled <-chan time.Time
			var timer *time.Timer
			if idle > 0 {
				timer = time.NewTimer(idle)
				stalled = timer.C
			}
			select {
			case <-notify:
			case <-stalled:
				yield(Chunk{}, fmt.Errorf("no chunk within %s: %w", idle, ErrStreamStalled))
				return
			case <-ctx.Done():
				yield(Chunk{}, ctx.Err())
				return
			}
			if timer != nil {
				timer.Stop()
			}
		}
	}
}

// Chunks returns a copy of the chunk log recorded so far.
func (s *StepValue) Chunks() []Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Chunk, len(s.log))
	copy(out, s.log)
	return out
}

func seqSource(seq iter.Seq[Chunk]) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		for c := range seq {
			if !yield(c, nil) {
				return
			}
		}
	}
}

func chanSource(ctx context.Context, ch <-chan Chunk) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		for {
			select {
			case c, ok := <-ch:
				if !ok {
					return
				}
				if !yield(c, nil) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}

// readerSource emits text deltas split on rune boundaries, then a finish
// chunk at EOF.
func readerSource(r io.Reader) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		if closer, ok := r.(io.Closer); ok {
			defer closer.Close()
		}
		buf := make([]byte, 4096)
		var carry []byte
		for {
			n, err := r.Read(buf)
			if n > 0 {
				data := append(carry, buf[:n]...)
				cut := completeRunes(data)
				carry = append([]byte(nil), data[cut:]...)
				if cut > 0 && !yield(TextDelta(string(data[:cut])), nil) {
					return
				}
			}
			if errors.Is(err, io.EOF) {
				if len(carry) > 0 && !yield(TextDelta(string(carry)), nil) {
					return
				}
				yield(Finish("stop", nil), nil)
				return
			}
			if err != nil {
				yield(Chunk{}, err)
				return
			}
		}
	}
}

// completeRunes returns the length of the longest prefix of b that does
// not end inside a multi-byte rune.
func completeRunes(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}

// resultType returns the resolved type without waiting; callers must have
// checked ValueReady.
func (s *StepValue) resultType() ResultType {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return ""
	}
	return s.result.Type()
}

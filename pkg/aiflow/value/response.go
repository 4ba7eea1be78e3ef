package value

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
)

// Wire protocol segments.
const (
	DataPrefix  = "[data] "
	DoneSegment = "[done]"
)

// ResponseIterator yields the final output's chunks. A finish chunk
// triggers Finalize, is annotated with the run's attributed usage, and
// ends the iteration; if the final value nevertheless resolved to an error,
// that error chunk is yielded instead. An error chunk also ends it. If the
// stream ends without either, a step-complete chunk is synthesized.
//
// A final output that goes quiet for longer than the final-output timeout
// is replaced by a timeout error value, whose chunk ends the iteration.
func (r *RunValue) ResponseIterator(ctx context.Context) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		final := r.WaitForFinalOutput(ctx, 0)
		seen := make(map[string]struct{})

		for c, err := range final.follow(ctx, r.finalTimeout) {
			if err != nil {
				if errors.Is(err, ErrStreamStalled) {
					r.replaceFinal(final, NewErrorStepValue(err.Error(), CodeTimeout))
					yield(ErrorChunk(err.Error(), CodeTimeout))
					return
				}
				yield(ErrorChunk(err.Error(), CodeCancelled))
				return
			}
			switch c.Type {
			case ChunkFinish:
				if res, err := final.Value(ctx); err == nil && res.Type() == TypeError && res.Err != nil {
					yield(ErrorChunk(res.Err.Message, res.Err.Code))
					return
				}
				r.Finalize(ctx)
				usage := r.Usage()
				c.Usage = &usage
				yield(c)
				return
			case ChunkError:
				yield(c)
				return
			}
			if r.dedup {
				key, err := json.Marshal(c)
				if err == nil {
					if _, dup := seen[string(key)]; dup {
						continue
					}
					seen[string(key)] = struct{}{}
				}
			}
			if !yield(c) {
				return
			}
		}
		yield(Chunk{Type: ChunkStepComplete})
	}
}

// replaceFinal swaps the cached final output for replacement if it is
// still stalled.
func (r *RunValue) replaceFinal(stalled, replacement *StepValue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.final == stalled {
		r.final = replacement
	}
}

// ResponseSegments yields "[data] <json>" segments for every response
// chunk followed by exactly one "[done]" segment. An encoding failure is
// reported as an error segment before "[done]".
func (r *RunValue) ResponseSegments(ctx context.Context) iter.Seq[string] {
	return func(yield func(string) bool) {
		for c := range r.ResponseIterator(ctx) {
			data, err := json.Marshal(c)
			if err != nil {
				data, _ = json.Marshal(ErrorChunk("encode chunk: "+err.Error(), CodeError))
				if !yield(DataPrefix + string(data)) {
					return
				}
				break
			}
			if !yield(DataPrefix + string(data)) {
				return
			}
		}
		yield(DoneSegment)
	}
}

// ResponseStream writes ResponseSegments as newline-terminated lines.
// The newline is framing for byte consumers; ResponseSegments is the exact
// segment sequence. Closing the reader stops production.
func (r *RunValue) ResponseStream(ctx context.Context) io.ReadCloser {
	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	go func() {
		defer cancel()
		for segment := range r.ResponseSegments(ctx) {
			if _, err := io.WriteString(pw, segment+"\n"); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		pw.Close()
	}()
	return &responseReader{PipeReader: pr, cancel: cancel}
}

type responseReader struct {
	*io.PipeReader
	cancel context.CancelFunc
}

func (r *responseReader) Close() error {
	r.cancel()
	return r.PipeReader.Close()
}

package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHandler captures log records as JSON lines.
type testHandler struct {
	buf   *bytes.Buffer
	level slog.Level
	attrs []slog.Attr
}

func newTestHandler() *testHandler {
	return &testHandler{buf: &bytes.Buffer{}, level: slog.LevelDebug}
}

func (h *testHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *testHandler) Handle(_ context.Context, r slog.Record) error {
	data := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}
	for _, attr := range h.attrs {
		data[attr.Key] = attr.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})
	return json.NewEncoder(h.buf).Encode(data)
}

func (h *testHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newH := &testHandler{buf: h.buf, level: h.level, attrs: make([]slog.Attr, 0, len(h.attrs)+len(attrs))}
	newH.attrs = append(newH.attrs, h.attrs...)
	newH.attrs = append(newH.attrs, attrs...)
	return newH
}

func (h *testHandler) WithGroup(_ string) slog.Handler {
	return h
}

func (h *testHandler) lastRecord() map[string]any {
	lines := bytes.Split(h.buf.Bytes(), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		if len(lines[i]) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(lines[i], &m); err == nil {
			return m
		}
	}
	return nil
}

func TestEnrichLogger(t *testing.T) {
	t.Run("adds run_id and element_key", func(t *testing.T) {
		h := newTestHandler()
		enriched := EnrichLogger(slog.New(h), "run-123", "root.review")
		enriched.Info("test message")

		record := h.lastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "run-123", record["run_id"])
		assert.Equal(t, "root.review", record["element_key"])
		assert.Equal(t, "test message", record["msg"])
	})

	t.Run("nil logger returns nil", func(t *testing.T) {
		assert.Nil(t, EnrichLogger(nil, "run-123", "k"))
	})
}

func TestLogHelpers(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name  string
		log   func(*slog.Logger)
		msg   string
		level string
		attrs map[string]any
	}{
		{
			name:  "build start",
			log:   func(l *slog.Logger) { LogBuildStart(l, "root") },
			msg:   "graph build starting",
			level: "DEBUG",
			attrs: map[string]any{"root_key": "root"},
		},
		{
			name:  "build complete",
			log:   func(l *slog.Logger) { LogBuildComplete(l, "root", 12, 4, true) },
			msg:   "graph build completed",
			level: "INFO",
			attrs: map[string]any{"root_key": "root", "nodes": float64(4), "ended_in_error": true},
		},
		{
			name:  "build error",
			log:   func(l *slog.Logger) { LogBuildError(l, "root", boom) },
			msg:   "graph build failed",
			level: "ERROR",
			attrs: map[string]any{"error": "boom"},
		},
		{
			name:  "recursion limit",
			log:   func(l *slog.Logger) { LogRecursionLimit(l, "loop", 10) },
			msg:   "recursion limit reached",
			level: "WARN",
			attrs: map[string]any{"element_key": "loop", "limit": float64(10)},
		},
		{
			name:  "step finished",
			log:   func(l *slog.Logger) { LogStepFinished(l, "s1", "final", "finished") },
			msg:   "step finished",
			level: "DEBUG",
			attrs: map[string]any{"step_id": "s1", "element_type": "final", "status": "finished"},
		},
		{
			name:  "finalize",
			log:   func(l *slog.Logger) { LogFinalize(runScoped(l), 10, 8, 7) },
			msg:   "run finalized",
			level: "INFO",
			attrs: map[string]any{"prompt_tokens": float64(10), "completion_tokens": float64(8), "reasoning_tokens": float64(7)},
		},
		{
			name:  "finalize error",
			log:   func(l *slog.Logger) { LogFinalizeError(runScoped(l), boom) },
			msg:   "run finalize incomplete",
			level: "WARN",
			attrs: map[string]any{"run_id": "run-1", "error": "boom"},
		},
		{
			name:  "rehydrate drop",
			log:   func(l *slog.Logger) { LogRehydrateDrop(l, "root", "count", boom) },
			msg:   "dropping invalid data-model value on rehydrate",
			level: "WARN",
			attrs: map[string]any{"scope": "root", "field": "count"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler()
			tt.log(slog.New(h))

			record := h.lastRecord()
			require.NotNil(t, record)
			assert.Equal(t, tt.msg, record["msg"])
			assert.Equal(t, tt.level, record["level"])
			for k, v := range tt.attrs {
				assert.Equal(t, v, record[k], "attribute %s", k)
			}
		})

		t.Run(tt.name+" nil logger", func(t *testing.T) {
			assert.NotPanics(t, func() { tt.log(nil) })
		})
	}
}

func TestTimedOperation(t *testing.T) {
	done := TimedOperation()
	time.Sleep(15 * time.Millisecond)
	assert.GreaterOrEqual(t, done(), float64(10))
}

func runScoped(l *slog.Logger) *slog.Logger {
	if l == nil {
		return nil
	}
	return l.With(slog.String("run_id", "run-1"))
}

package aiflow_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/randalmurphal/aiflow/pkg/aiflow"
)

// sequence builds every child into Next.
var sequence = aiflow.ConstructorFunc(func(bc *aiflow.BuildContext) (*aiflow.ExecutionGraphElement, error) {
	node := bc.Node(bc.Element().Type, bc.Element().Tag)
	next, err := bc.BuildChildren(bc.Children())
	if err != nil {
		return nil, err
	}
	node.Next = next
	return node, nil
})

func el(tag string, typ aiflow.ElementType, id string, children ...*aiflow.Element) *aiflow.Element {
	return &aiflow.Element{ID: id, Tag: tag, Type: typ, Children: children, Constructor: sequence}
}

// recordingMetrics captures recorder calls.
type recordingMetrics struct {
	mu        sync.Mutex
	builds    int
	nodes     int
	buildErrs int
	aborts    []string
}

func (m *recordingMetrics) RecordBuild(_ context.Context, nodeCount int, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.builds++
	m.nodes = nodeCount
	if err != nil {
		m.buildErrs++
	}
}

func (m *recordingMetrics) RecordRecursionAbort(_ context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborts = append(m.aborts, key)
}

func (m *recordingMetrics) RecordTokenUsage(context.Context, int64, int64, int64) {}

func (m *recordingMetrics) RecordFinalize(context.Context, int, time.Duration) {}

// recordingSpans captures span lifecycle calls.
type recordingSpans struct {
	mu      sync.Mutex
	started []string
	ended   []error
	events  []string
}

func (s *recordingSpans) StartBuildSpan(ctx context.Context, rootKey string) (context.Context, trace.Span) {
	s.mu.Lock()
	s.started = append(s.started, rootKey)
	s.mu.Unlock()
	return noop.NewTracerProvider().Tracer("test").Start(ctx, "build")
}

func (s *recordingSpans) StartFinalizeSpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	return noop.NewTracerProvider().Tracer("test").Start(ctx, "finalize")
}

func (s *recordingSpans) EndSpanWithError(span trace.Span, err error) {
	s.mu.Lock()
	s.ended = append(s.ended, err)
	s.mu.Unlock()
	span.End()
}

func (s *recordingSpans) AddSpanEvent(_ context.Context, name string, _ ...attribute.KeyValue) {
	s.mu.Lock()
	s.events = append(s.events, name)
	s.mu.Unlock()
}

func TestNewSession_AssignsKeysAndScopes(t *testing.T) {
	llm := el("llm", aiflow.TypeAction, "")
	review := el("state", aiflow.TypeState, "review", llm)
	log := el("log", aiflow.TypeAction, "")
	root := el("workflow", aiflow.TypeUserInput, "", review, log)

	_, err := aiflow.NewGraphBuilder().NewSession(context.Background(), root)
	require.NoError(t, err)

	tests := []struct {
		el    *aiflow.Element
		key   string
		scope []string
	}{
		{root, "root", []string{"root"}},
		{review, "review", []string{"root", "review"}},
		{llm, "review.llm0", []string{"root", "review"}},
		{log, "root.log1", []string{"root"}},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.key, tt.el.Key)
			assert.Equal(t, tt.scope, tt.el.Scope)
		})
	}
}

func TestNewSession_Errors(t *testing.T) {
	tests := []struct {
		name string
		root *aiflow.Element
		want error
	}{
		{
			name: "duplicate id",
			root: el("workflow", aiflow.TypeUserInput, "", el("a", aiflow.TypeAction, "x"), el("b", aiflow.TypeAction, "x")),
			want: aiflow.ErrDuplicateKey,
		},
		{
			name: "nil child",
			root: el("workflow", aiflow.TypeUserInput, "", nil),
			want: aiflow.ErrNilElement,
		},
		{
			name: "nil root",
			root: nil,
			want: aiflow.ErrNilElement,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := aiflow.NewGraphBuilder().NewSession(context.Background(), tt.root)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBuild_WrapsNonInputRoot(t *testing.T) {
	root := el("state", aiflow.TypeState, "solo")

	g, err := aiflow.NewGraphBuilder().Build(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, aiflow.TypeUserInput, g.Type)
	assert.Equal(t, "solo:input", g.Key)
	require.Len(t, g.Next, 1)
	assert.Equal(t, aiflow.TypeState, g.Next[0].Type)
}

func TestBuild_KeepsInputRoot(t *testing.T) {
	root := el("workflow", aiflow.TypeUserInput, "wf", el("a", aiflow.TypeAction, ""))

	g, err := aiflow.NewGraphBuilder().Build(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, "wf", g.Key)
	assert.Equal(t, 2, g.Count())
	assert.NotNil(t, g.Find("wf.a0"))
}

func TestBuild_MissingConstructor(t *testing.T) {
	bare := &aiflow.Element{Tag: "custom", Type: aiflow.TypeAction}
	root := el("workflow", aiflow.TypeUserInput, "", bare)

	_, err := aiflow.NewGraphBuilder().Build(context.Background(), root)
	require.ErrorIs(t, err, aiflow.ErrNoConstructor)
	var be *aiflow.BuildError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "root.custom0", be.Key)

	fallback := aiflow.ConstructorFunc(func(bc *aiflow.BuildContext) (*aiflow.ExecutionGraphElement, error) {
		return bc.Node(aiflow.TypeAction, "fallback"), nil
	})
	bare = &aiflow.Element{Tag: "custom", Type: aiflow.TypeAction}
	root = el("workflow", aiflow.TypeUserInput, "", bare)
	g, err := aiflow.NewGraphBuilder(aiflow.WithFallbackConstructor(fallback)).Build(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, "fallback", g.Next[0].SubType)
}

func TestBuild_RootWithoutNode(t *testing.T) {
	root := &aiflow.Element{
		Tag: "empty",
		Constructor: aiflow.ConstructorFunc(func(*aiflow.BuildContext) (*aiflow.ExecutionGraphElement, error) {
			return nil, nil
		}),
	}
	_, err := aiflow.NewGraphBuilder().Build(context.Background(), root)
	require.Error(t, err)
}

func TestBuildSession_SingleUse(t *testing.T) {
	s, err := aiflow.NewGraphBuilder().NewSession(context.Background(), el("workflow", aiflow.TypeUserInput, ""))
	require.NoError(t, err)

	_, err = s.Build()
	require.NoError(t, err)
	_, err = s.Build()
	assert.ErrorIs(t, err, aiflow.ErrSessionUsed)
}

func TestBuild_CachesCompletedNodes(t *testing.T) {
	calls := 0
	shared := &aiflow.Element{
		ID:  "shared",
		Tag: "shared",
		Constructor: aiflow.ConstructorFunc(func(bc *aiflow.BuildContext) (*aiflow.ExecutionGraphElement, error) {
			calls++
			return bc.Node(aiflow.TypeAction, "shared"), nil
		}),
	}
	twice := &aiflow.Element{
		Tag: "twice",
		Constructor: aiflow.ConstructorFunc(func(bc *aiflow.BuildContext) (*aiflow.ExecutionGraphElement, error) {
			target, ok := bc.FindElementByKey("shared")
			if !ok {
				return nil, aiflow.ErrTargetNotFound
			}
			a, err := bc.Build(target)
			if err != nil {
				return nil, err
			}
			b, err := bc.Build(target)
			if err != nil {
				return nil, err
			}
			node := bc.Node(aiflow.TypeAction, "twice")
			node.Next = []*aiflow.ExecutionGraphElement{a, b}
			return node, nil
		}),
	}
	root := el("workflow", aiflow.TypeUserInput, "", twice, shared)

	g, err := aiflow.NewGraphBuilder().Build(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	n := g.Find("root.twice0")
	require.Len(t, n.Next, 2)
	assert.Same(t, n.Next[0], n.Next[1])
	assert.Same(t, n.Next[0], g.Next[1])
}

func TestBuildContext_CacheAliases(t *testing.T) {
	var hit bool
	target := el("target", aiflow.TypeState, "t")
	first := &aiflow.Element{
		Tag: "first",
		Constructor: aiflow.ConstructorFunc(func(bc *aiflow.BuildContext) (*aiflow.ExecutionGraphElement, error) {
			node := bc.Node(aiflow.TypeAction, "first")
			bc.SetCachedGraphElement(node, "alias", "")
			return node, nil
		}),
	}
	second := &aiflow.Element{
		Tag: "second",
		Constructor: aiflow.ConstructorFunc(func(bc *aiflow.BuildContext) (*aiflow.ExecutionGraphElement, error) {
			_, hit = bc.GetCachedGraphElement("missing", "alias")
			return bc.Node(aiflow.TypeAction, "second"), nil
		}),
	}
	root := el("workflow", aiflow.TypeUserInput, "", first, second, target)

	_, err := aiflow.NewGraphBuilder().Build(context.Background(), root)
	require.NoError(t, err)
	assert.True(t, hit)
}

func selfRecursive(attrs map[string]any) *aiflow.Element {
	return &aiflow.Element{
		ID:         "loop",
		Tag:        "loop",
		Type:       aiflow.TypeState,
		Attributes: attrs,
		Constructor: aiflow.ConstructorFunc(func(bc *aiflow.BuildContext) (*aiflow.ExecutionGraphElement, error) {
			inner, err := bc.Build(bc.Element())
			if err != nil {
				return nil, err
			}
			node := bc.Node(aiflow.TypeState, "loop")
			if inner != nil {
				node.Next = []*aiflow.ExecutionGraphElement{inner}
			}
			return node, nil
		}),
	}
}

func TestBuild_RecursionLimit(t *testing.T) {
	metrics := &recordingMetrics{}
	spans := &recordingSpans{}
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s, err := aiflow.NewGraphBuilder(
		aiflow.WithMaxRecursion(3),
		aiflow.WithMetrics(metrics),
		aiflow.WithTracing(spans),
		aiflow.WithLogger(logger),
	).NewSession(context.Background(), el("workflow", aiflow.TypeUserInput, "", selfRecursive(nil)))
	require.NoError(t, err)

	g, err := s.Build()
	require.NoError(t, err)
	assert.True(t, s.EndedInError())

	errNodes := g.FindAll(func(n *aiflow.ExecutionGraphElement) bool { return n.Type == aiflow.TypeError })
	require.Len(t, errNodes, 1)
	assert.Equal(t, "loop:error", errNodes[0].Key)
	assert.Contains(t, errNodes[0].Attributes["message"], "recursion limit of 3")

	// root -> loop -> loop -> error
	assert.Equal(t, 4, g.Count())

	assert.Equal(t, []string{"loop"}, metrics.aborts)
	assert.Equal(t, 1, metrics.builds)
	assert.Equal(t, 4, metrics.nodes)
	assert.Equal(t, []string{"root"}, spans.started)
	assert.Equal(t, []error{nil}, spans.ended)
	assert.Equal(t, []string{"recursion_limit"}, spans.events)

	assert.Contains(t, buf.String(), "recursion limit reached")
	assert.Contains(t, buf.String(), "graph build completed")
	assert.ErrorIs(t, s.Err(), aiflow.ErrRecursionLimit)
}

func TestBuild_RecursionLimitAttribute(t *testing.T) {
	s, err := aiflow.NewGraphBuilder().NewSession(context.Background(),
		el("workflow", aiflow.TypeUserInput, "", selfRecursive(map[string]any{aiflow.MaxRecursionAttr: "2"})))
	require.NoError(t, err)

	g, err := s.Build()
	require.NoError(t, err)
	assert.True(t, s.EndedInError())
	assert.Equal(t, 3, g.Count())

	_, err = aiflow.NewGraphBuilder().Build(context.Background(),
		el("workflow", aiflow.TypeUserInput, "", selfRecursive(map[string]any{aiflow.MaxRecursionAttr: "lots"})))
	assert.ErrorIs(t, err, aiflow.ErrInvalidAttribute)
}

func TestBuild_StopsAfterAbort(t *testing.T) {
	built := false
	after := &aiflow.Element{
		Tag: "after",
		Constructor: aiflow.ConstructorFunc(func(bc *aiflow.BuildContext) (*aiflow.ExecutionGraphElement, error) {
			built = true
			return bc.Node(aiflow.TypeAction, "after"), nil
		}),
	}
	root := el("workflow", aiflow.TypeUserInput, "", selfRecursive(nil), after)

	g, err := aiflow.NewGraphBuilder(aiflow.WithMaxRecursion(2)).Build(context.Background(), root)
	require.NoError(t, err)
	assert.False(t, built)
	assert.Len(t, g.Next, 1)
}

func TestBuild_ErrorsAreReported(t *testing.T) {
	metrics := &recordingMetrics{}
	boom := errors.New("boom")
	bad := &aiflow.Element{
		Tag: "bad",
		Constructor: aiflow.ConstructorFunc(func(*aiflow.BuildContext) (*aiflow.ExecutionGraphElement, error) {
			return nil, boom
		}),
	}
	_, err := aiflow.NewGraphBuilder(aiflow.WithMetrics(metrics)).
		Build(context.Background(), el("workflow", aiflow.TypeUserInput, "", bad))

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, metrics.buildErrs)
}

func TestBuild_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := aiflow.NewGraphBuilder().Build(ctx, el("workflow", aiflow.TypeUserInput, ""))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuild_InvalidGuard(t *testing.T) {
	guarded := &aiflow.Element{
		Tag: "guarded",
		Constructor: aiflow.ConstructorFunc(func(bc *aiflow.BuildContext) (*aiflow.ExecutionGraphElement, error) {
			node := bc.Node(aiflow.TypeAction, "guarded")
			node.When = "a &&"
			return node, nil
		}),
	}
	_, err := aiflow.NewGraphBuilder().Build(context.Background(), el("workflow", aiflow.TypeUserInput, "", guarded))

	var be *aiflow.BuildError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "guard", be.Op)
}

func TestBuildContext_Navigation(t *testing.T) {
	var (
		parentKey string
		siblings  []string
		scope     string
		found     bool
	)
	inspector := &aiflow.Element{
		Tag:        "inspector",
		Attributes: map[string]any{"model": "small"},
		Constructor: aiflow.ConstructorFunc(func(bc *aiflow.BuildContext) (*aiflow.ExecutionGraphElement, error) {
			parentKey = bc.Parent().Key
			for _, s := range bc.Siblings() {
				siblings = append(siblings, s.Key)
			}
			scope = bc.ScopePath()
			_, found = bc.FindElementByKey("other")
			bc.AddDiagnostic("looked around", nil)

			node := bc.Node(aiflow.TypeAction, "inspector")
			node.Attributes["model"] = "large"
			return node, nil
		}),
	}
	state := el("state", aiflow.TypeState, "s", inspector, el("other", aiflow.TypeAction, "other"))
	s, err := aiflow.NewGraphBuilder().NewSession(context.Background(), el("workflow", aiflow.TypeUserInput, "", state))
	require.NoError(t, err)

	_, err = s.Build()
	require.NoError(t, err)

	assert.Equal(t, "s", parentKey)
	assert.Equal(t, []string{"other"}, siblings)
	assert.Equal(t, "root.s", scope)
	assert.True(t, found)
	assert.Equal(t, "small", inspector.Attributes["model"], "node attributes are a copy")

	diags := s.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, "s.inspector0", diags[0].Key)
	assert.Contains(t, s.Err().Error(), "looked around")
}

func TestExecutionGraphElement_Enabled(t *testing.T) {
	n := &aiflow.ExecutionGraphElement{Key: "k"}
	ok, err := n.Enabled(nil)
	require.NoError(t, err)
	assert.True(t, ok)

	n.When = "count > 2"
	ok, err = n.Enabled(map[string]any{"count": 3})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = n.Enabled(map[string]any{"count": 1})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, n.Guard())
}

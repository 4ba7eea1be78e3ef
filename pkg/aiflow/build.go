package aiflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/randalmurphal/aiflow/pkg/aiflow/datamodel"
	"github.com/randalmurphal/aiflow/pkg/aiflow/observability"
)

// GraphBuilder lowers element trees into executable graphs.
// A GraphBuilder is immutable and may be shared; each build runs in its own
// BuildSession.
type GraphBuilder struct {
	cfg builderConfig
}

// NewGraphBuilder creates a builder.
//
// Example:
//
//	b := aiflow.NewGraphBuilder(aiflow.WithMaxRecursion(5))
//	graph, err := b.Build(ctx, elements.Workflow(...))
func NewGraphBuilder(opts ...BuilderOption) *GraphBuilder {
	cfg := defaultBuilderConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &GraphBuilder{cfg: cfg}
}

// Build lowers root into a graph whose root node has type user-input.
func (b *GraphBuilder) Build(ctx context.Context, root *Element) (*ExecutionGraphElement, error) {
	s, err := b.NewSession(ctx, root)
	if err != nil {
		return nil, err
	}
	return s.Build()
}

// NewSession indexes root and returns a session ready to build. Elements
// without a Key or Scope get one assigned in place.
func (b *GraphBuilder) NewSession(ctx context.Context, root *Element) (*BuildSession, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	registry := b.cfg.registry
	if registry == nil {
		registry = datamodel.NewRegistry(datamodel.WithLogger(b.cfg.logger))
	}
	s := &BuildSession{
		ctx:      ctx,
		cfg:      b.cfg,
		root:     root,
		registry: registry,
		elements: make(map[string]*Element),
		ids:      make(map[string]string),
		parents:  make(map[string]string),
		cache:    make(map[string]*ExecutionGraphElement),
		visits:   make(map[string]int),
	}
	if err := s.index(root, nil, 0); err != nil {
		return nil, err
	}
	return s, nil
}

// BuildSession owns the state of one build: the element arena, the parent
// index, the graph-element cache, and per-key visit counters.
//
// A session builds once. Its methods are safe for concurrent use by
// constructors.
type BuildSession struct {
	ctx      context.Context
	cfg      builderConfig
	root     *Element
	registry *datamodel.Registry

	elements map[string]*Element // key -> element
	ids      map[string]string   // id -> key
	parents  map[string]string   // key -> parent key

	mu           sync.Mutex
	cache        map[string]*ExecutionGraphElement
	visits       map[string]int
	endedInError bool
	diagnostics  []Diagnostic
	used         bool
}

// index assigns keys and scopes and fills the arena.
func (s *BuildSession) index(el, parent *Element, pos int) error {
	if el == nil {
		key := "root"
		if parent != nil {
			key = parent.Key
		}
		return &BuildError{Key: key, Op: "index", Err: ErrNilElement}
	}

	if el.Key == "" {
		switch {
		case el.ID != "":
			el.Key = el.ID
		case parent == nil:
			el.Key = "root"
		default:
			tag := el.Tag
			if tag == "" {
				tag = "element"
			}
			el.Key = fmt.Sprintf("%s.%s%d", parent.Key, tag, pos)
		}
	}
	if _, dup := s.elements[el.Key]; dup {
		return &BuildError{Key: el.Key, Op: "index", Err: ErrDuplicateKey}
	}

	if el.Scope == nil {
		switch {
		case parent == nil:
			el.Scope = []string{"root"}
		case el.IsState() && el.ID != "":
			el.Scope = append(append([]string(nil), parent.Scope...), el.ID)
		default:
			el.Scope = append([]string(nil), parent.Scope...)
		}
	}

	s.elements[el.Key] = el
	if el.ID != "" {
		if _, seen := s.ids[el.ID]; !seen {
			s.ids[el.ID] = el.Key
		}
	}
	if parent != nil {
		s.parents[el.Key] = parent.Key
	}

	for i, child := range el.Children {
		if err := s.index(child, el, i); err != nil {
			return err
		}
	}
	return nil
}

// Build constructs the graph. A recursion-limit abort is not an error: the
// offending subtree becomes a type "error" node and EndedInError reports
// true.
func (s *BuildSession) Build() (*ExecutionGraphElement, error) {
	s.mu.Lock()
	if s.used {
		s.mu.Unlock()
		return nil, ErrSessionUsed
	}
	s.used = true
	s.mu.Unlock()

	ctx, span := s.cfg.spans.StartBuildSpan(s.ctx, s.root.Key)
	s.ctx = ctx
	observability.LogBuildStart(s.cfg.logger, s.root.Key)
	start := time.Now()

	node, err := s.build(s.root)
	if err == nil && node == nil {
		err = &BuildError{Key: s.root.Key, Op: "construct", Err: errors.New("root produced no node")}
	}
	if err == nil && node.Type != TypeUserInput {
		node = &ExecutionGraphElement{
			ID:    s.root.ID,
			Key:   s.root.Key + ":input",
			Type:  TypeUserInput,
			Scope: s.root.Scope,
			Next:  []*ExecutionGraphElement{node},
		}
	}

	count := 0
	if node != nil {
		count = node.Count()
	}
	s.cfg.metrics.RecordBuild(ctx, count, time.Since(start), err)
	s.cfg.spans.EndSpanWithError(span, err)
	if err != nil {
		observability.LogBuildError(s.cfg.logger, s.root.Key, err)
		return nil, err
	}
	observability.LogBuildComplete(s.cfg.logger, s.root.Key,
		float64(time.Since(start).Milliseconds()), count, s.EndedInError())
	return node, nil
}

// build constructs el under the recursion guard. Completed nodes are cached
// by key, so shared targets are built once.
func (s *BuildSession) build(el *Element) (*ExecutionGraphElement, error) {
	if s.EndedInError() {
		return nil, nil
	}
	if cached, ok := s.cached(el.Key); ok {
		return cached, nil
	}
	if err := s.ctx.Err(); err != nil {
		return nil, &BuildError{Key: el.Key, Op: "construct", Err: err}
	}

	limit, err := s.limitFor(el)
	if err != nil {
		return nil, &BuildError{Key: el.Key, Op: "construct", Err: err}
	}

	s.mu.Lock()
	s.visits[el.Key]++
	visits := s.visits[el.Key]
	s.mu.Unlock()

	if visits >= limit {
		return s.abort(el, limit), nil
	}

	ctor := el.Constructor
	if ctor == nil {
		ctor = s.cfg.fallback
	}
	if ctor == nil {
		return nil, &BuildError{Key: el.Key, Op: "construct", Err: ErrNoConstructor}
	}

	node, err := ctor.Construct(&BuildContext{session: s, element: el})

	s.mu.Lock()
	s.visits[el.Key]--
	s.mu.Unlock()

	if err != nil {
		var be *BuildError
		if errors.As(err, &be) {
			return nil, err
		}
		return nil, &BuildError{Key: el.Key, Op: "construct", Err: err}
	}
	if node == nil {
		return nil, nil
	}

	if node.Key == "" {
		node.Key = el.Key
	}
	if node.ID == "" {
		node.ID = el.ID
	}
	if node.Scope == nil {
		node.Scope = el.Scope
	}
	if node.When != "" && node.guard == nil {
		g, err := s.cfg.guards.Compile(node.When)
		if err != nil {
			return nil, &BuildError{Key: el.Key, Op: "guard", Err: err}
		}
		node.guard = g
	}

	s.mu.Lock()
	if _, ok := s.cache[el.Key]; !ok {
		s.cache[el.Key] = node
	}
	s.mu.Unlock()
	return node, nil
}

// limitFor returns the visit limit for el.
func (s *BuildSession) limitFor(el *Element) (int, error) {
	n, ok, err := el.IntAttr(MaxRecursionAttr)
	if err != nil {
		return 0, err
	}
	if ok && n > 0 {
		return n, nil
	}
	return s.cfg.maxRecursion, nil
}

// abort replaces el's subtree with an error node and ends the build.
func (s *BuildSession) abort(el *Element, limit int) *ExecutionGraphElement {
	msg := fmt.Sprintf("recursion limit of %d reached while constructing %q", limit, el.Key)

	s.mu.Lock()
	s.endedInError = true
	s.diagnostics = append(s.diagnostics, Diagnostic{
		Key:     el.Key,
		Message: msg,
		Err:     ErrRecursionLimit,
	})
	s.mu.Unlock()

	observability.LogRecursionLimit(s.cfg.logger, el.Key, limit)
	s.cfg.metrics.RecordRecursionAbort(s.ctx, el.Key)
	s.cfg.spans.AddSpanEvent(s.ctx, "recursion_limit", attribute.String("element.key", el.Key))

	return &ExecutionGraphElement{
		ID:      el.ID,
		Key:     el.Key + ":error",
		Type:    TypeError,
		SubType: "recursion-limit",
		Scope:   el.Scope,
		Attributes: map[string]any{
			"message":    msg,
			"elementKey": el.Key,
		},
	}
}

func (s *BuildSession) cached(keys ...string) (*ExecutionGraphElement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		if k == "" {
			continue
		}
		if node, ok := s.cache[k]; ok {
			return node, true
		}
	}
	return nil, false
}

// EndedInError reports whether a recursion limit aborted the build.
func (s *BuildSession) EndedInError() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedInError
}

// Diagnostics returns the findings recorded so far.
func (s *BuildSession) Diagnostics() []Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Diagnostic, len(s.diagnostics))
	copy(out, s.diagnostics)
	return out
}

// Err joins every diagnostic into one error, or returns nil.
func (s *BuildSession) Err() error {
	diags := s.Diagnostics()
	if len(diags) == 0 {
		return nil
	}
	errs := make([]error, len(diags))
	for i, d := range diags {
		err := errors.New(d.Message)
		if d.Err != nil {
			err = fmt.Errorf("%s: %w", d.Message, d.Err)
		}
		errs[i] = &BuildError{Key: d.Key, Op: "construct", Err: err}
	}
	return errors.Join(errs...)
}

// DataModels returns the registry datamodel elements register into.
func (s *BuildSession) DataModels() *datamodel.Registry {
	return s.registry
}

// Element returns the element with key.
func (s *BuildSession) Element(key string) (*Element, bool) {
	el, ok := s.elements[key]
	return el, ok
}

// Resolve finds an element by key, falling back to id.
func (s *BuildSession) Resolve(ref string) (*Element, bool) {
	ref = strings.TrimSpace(ref)
	if el, ok := s.elements[ref]; ok {
		return el, true
	}
	if key, ok := s.ids[ref]; ok {
		return s.elements[key], true
	}
	return nil, false
}

// Parent returns the parent of the element with key.
func (s *BuildSession) Parent(key string) (*Element, bool) {
	pk, ok := s.parents[key]
	if !ok {
		return nil, false
	}
	return s.elements[pk], true
}

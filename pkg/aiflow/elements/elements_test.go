package elements_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/aiflow/pkg/aiflow"
	"github.com/randalmurphal/aiflow/pkg/aiflow/datamodel"
	"github.com/randalmurphal/aiflow/pkg/aiflow/elements"
)

func build(t *testing.T, root *aiflow.Element, opts ...aiflow.BuilderOption) (*aiflow.ExecutionGraphElement, *aiflow.BuildSession) {
	t.Helper()
	s, err := aiflow.NewGraphBuilder(opts...).NewSession(context.Background(), root)
	require.NoError(t, err)
	g, err := s.Build()
	require.NoError(t, err)
	require.NotNil(t, g)
	return g, s
}

func keys(nodes []*aiflow.ExecutionGraphElement) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Key
	}
	return out
}

func TestWorkflow_RootIsUserInput(t *testing.T) {
	g, _ := build(t, elements.Workflow("wf", elements.State("ask")))

	assert.Equal(t, aiflow.TypeUserInput, g.Type)
	assert.Equal(t, "wf", g.Key)
	assert.Equal(t, []string{"ask"}, keys(g.Next))
}

func TestBuild_WrapsNonInputRoot(t *testing.T) {
	g, _ := build(t, elements.State("solo"))

	assert.Equal(t, aiflow.TypeUserInput, g.Type)
	assert.Equal(t, "solo:input", g.Key)
	require.Len(t, g.Next, 1)
	assert.Equal(t, "solo", g.Next[0].Key)
}

func TestState_NextOrdering(t *testing.T) {
	root := elements.Workflow("wf",
		elements.State("s",
			elements.Transition("x", ""),
			elements.Action("log", nil),
			elements.Transition("y", "ready"),
			elements.State("c1"),
			elements.State("c2"),
		),
		elements.Final("x"),
		elements.Final("y"),
	)
	g, _ := build(t, root)

	s := g.Find("s")
	require.NotNil(t, s)
	want := []string{"s.log1", "c1", "s.transition2", "s.transition0"}
	if diff := cmp.Diff(want, keys(s.Next)); diff != "" {
		t.Errorf("state Next mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "ready", s.Next[2].When)
	assert.Empty(t, s.Next[3].When)
	assert.Nil(t, g.Find("c2"), "only the initial child state is entered")
}

func TestState_InitialAttribute(t *testing.T) {
	root := elements.Workflow("wf",
		elements.StateWith("s", map[string]any{"initial": "c2"},
			elements.State("c1"),
			elements.State("c2"),
		),
	)
	g, _ := build(t, root)
	assert.Equal(t, []string{"c2"}, keys(g.Find("s").Next))

	bad := elements.Workflow("wf",
		elements.StateWith("s", map[string]any{"initial": "nope"}, elements.State("c1")),
	)
	_, err := aiflow.NewGraphBuilder().Build(context.Background(), bad)
	assert.ErrorIs(t, err, elements.ErrInitialNotFound)
}

func TestIf_BranchesAreExclusive(t *testing.T) {
	root := elements.Workflow("wf",
		elements.If("c1",
			elements.Action("a", nil),
			elements.ElseIf("c2"),
			elements.Action("b", nil),
			elements.ElseIf("c3", elements.Action("c", nil)),
			elements.Else(),
			elements.Action("d", nil),
		),
	)
	g, _ := build(t, root)

	ifNode := g.Find("wf.if0")
	require.NotNil(t, ifNode)
	require.Len(t, ifNode.Next, 4)
	for i, part := range ifNode.Next {
		assert.Equal(t, elements.SubTypeIfPart, part.SubType)
		assert.Len(t, part.Next, 1, "partition %d", i)
	}
	assert.Equal(t, "wf.if0.elseif3.c0", ifNode.Next[2].Next[0].Key)

	tests := []struct {
		name string
		env  map[string]any
		want int
	}{
		{"all true", map[string]any{"c1": true, "c2": true, "c3": true}, 0},
		{"second", map[string]any{"c1": false, "c2": "yes", "c3": true}, 1},
		{"third", map[string]any{"c1": 0, "c2": "", "c3": 1}, 2},
		{"else", map[string]any{"c1": nil, "c2": false, "c3": false}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var enabled []int
			for i, part := range ifNode.Next {
				ok, err := part.Enabled(tt.env)
				require.NoError(t, err)
				if ok {
					enabled = append(enabled, i)
				}
			}
			assert.Equal(t, []int{tt.want}, enabled)
		})
	}
}

func TestIf_FieldNamedLikeBuiltin(t *testing.T) {
	registry := datamodel.NewRegistry()
	root := elements.Workflow("wf",
		elements.DataModel(
			elements.Data("count", map[string]any{"type": "number", "defaultValue": 3}),
		),
		elements.If("count > 2", elements.Action("log", nil)),
	)
	g, _ := build(t, root, aiflow.WithDataModels(registry))

	part := g.Find("wf.if1.part0")
	require.NotNil(t, part)
	env := registry.GetScopedDataModel("root").Snapshot()
	ok, err := part.Enabled(env)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = part.Enabled(map[string]any{"count": 1})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIf_Malformed(t *testing.T) {
	tests := []struct {
		name string
		root *aiflow.Element
	}{
		{"elseif after else", elements.Workflow("wf", elements.If("a", elements.Else(), elements.ElseIf("b")))},
		{"two elses", elements.Workflow("wf", elements.If("a", elements.Else(), elements.Else()))},
		{"empty cond", elements.Workflow("wf", elements.If("a", elements.ElseIf("")))},
		{"marker outside if", elements.Workflow("wf", elements.State("s", elements.Else()))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := aiflow.NewGraphBuilder().Build(context.Background(), tt.root)
			assert.ErrorIs(t, err, elements.ErrMalformedConditional)
		})
	}
}

func TestParallel_RegionsAndTransitions(t *testing.T) {
	root := elements.Workflow("wf",
		elements.Parallel("p",
			elements.State("r1", elements.Action("work", nil), elements.Transition("done", "")),
			elements.State("r2", elements.Action("work", nil)),
			elements.Transition("done", "finished"),
		),
		elements.Final("done"),
	)
	g, _ := build(t, root)

	p := g.Find("p")
	require.NotNil(t, p)
	assert.Equal(t, []string{"r1", "r2"}, keys(p.Parallel))
	assert.Equal(t, []string{"r1.work0", "r1.transition1"}, keys(p.Parallel[0].Next))
	assert.Equal(t, []string{"r2.work0"}, keys(p.Parallel[1].Next))
	assert.Equal(t, []string{"p.transition2"}, keys(p.Next))

	regionExit := p.Parallel[0].Next[1]
	joinExit := p.Next[0]
	assert.Same(t, regionExit.Next[0], joinExit.Next[0])
}

func TestTransition_SharesTargetNode(t *testing.T) {
	root := elements.Workflow("wf",
		elements.State("a",
			elements.Transition("done", "x > 1"),
			elements.Transition("done", ""),
		),
		elements.Final("done", elements.Action("emit", nil)),
	)
	g, _ := build(t, root)

	a := g.Find("a")
	require.Len(t, a.Next, 2)
	assert.Same(t, a.Next[0].Next[0], a.Next[1].Next[0])
	assert.Equal(t, aiflow.TypeOutput, a.Next[0].Next[0].Type)
	assert.Equal(t, elements.TagFinal, a.Next[0].Next[0].SubType)
	assert.NotNil(t, a.Next[0].Guard())
}

func TestTransition_MissingTarget(t *testing.T) {
	root := elements.Workflow("wf", elements.State("a", elements.Transition("ghost", "")))
	_, err := aiflow.NewGraphBuilder().Build(context.Background(), root)

	require.Error(t, err)
	assert.ErrorIs(t, err, aiflow.ErrTargetNotFound)
	var be *aiflow.BuildError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "a.transition0", be.Key)
}

func TestTransition_InvalidCondition(t *testing.T) {
	root := elements.Workflow("wf",
		elements.State("a", elements.Transition("b", "x >")),
		elements.State("b"),
	)
	_, err := aiflow.NewGraphBuilder().Build(context.Background(), root)
	require.Error(t, err)
}

func TestCycle_EndsInSingleErrorNode(t *testing.T) {
	root := elements.Workflow("wf",
		elements.State("a", elements.Transition("b", "")),
		elements.State("b", elements.Transition("a", "")),
	)
	g, s := build(t, root)

	assert.True(t, s.EndedInError())
	errs := g.FindAll(func(n *aiflow.ExecutionGraphElement) bool { return n.Type == aiflow.TypeError })
	require.Len(t, errs, 1)
	assert.Equal(t, "a:error", errs[0].Key)
	assert.Equal(t, "recursion-limit", errs[0].SubType)
	assert.Equal(t, "a", errs[0].Attributes["elementKey"])

	diags := s.Diagnostics()
	require.Len(t, diags, 1)
	assert.ErrorIs(t, s.Err(), aiflow.ErrRecursionLimit)
}

func TestCycle_HonorsElementLimit(t *testing.T) {
	root := elements.Workflow("wf",
		elements.StateWith("loop", map[string]any{"maxRecursion": 3},
			elements.Transition("loop", "again"),
		),
	)
	g, s := build(t, root)

	require.True(t, s.EndedInError())
	assert.Contains(t, s.Diagnostics()[0].Message, "limit of 3")

	depth := 0
	for n := g.Find("loop"); n != nil && n.Type != aiflow.TypeError; depth++ {
		require.NotEmpty(t, n.Next)
		n = n.Next[len(n.Next)-1].Next[0]
	}
	assert.Equal(t, 2, depth)
}

func TestDataModel_RegistersScopes(t *testing.T) {
	registry := datamodel.NewRegistry()
	root := elements.Workflow("wf",
		elements.DataModel(
			elements.Data("topic", map[string]any{"type": "string", "defaultValue": "go"}),
			elements.Data("user", map[string]any{"fromRequest": true}),
		),
		elements.State("ask",
			elements.DataModel(
				elements.Data("answer", map[string]any{"type": "string"}),
				elements.Data("mode", map[string]any{"enum": "short,long", "defaultValue": "short", "readonly": "true"}),
			),
			elements.Action("llm", nil),
		),
	)
	g, _ := build(t, root, aiflow.WithDataModels(registry))

	assert.Equal(t, []string{"root", "root.ask"}, registry.Scopes())
	assert.Equal(t, []string{"ask"}, keys(g.Next), "datamodel emits no node")
	assert.Equal(t, []string{"ask.llm1"}, keys(g.Find("ask").Next))

	scoped := registry.GetScopedDataModel("root.ask")
	assert.Equal(t, "go", scoped.Value("topic"))
	def, ok := scoped.Definition("answer")
	require.True(t, ok)
	assert.Equal(t, datamodel.TypeString, def.Type)
	assert.Equal(t, "ask", def.ParentStateID)

	mode, _ := scoped.Definition("mode")
	assert.True(t, mode.Readonly)
	assert.Equal(t, []any{"short", "long"}, mode.Enum)

	user, _ := scoped.Definition("user")
	assert.True(t, user.FromRequest)
	assert.ErrorIs(t, scoped.Set("user", "bob"), datamodel.ErrReadonly)
}

func TestDataModel_RejectsBadDefinitions(t *testing.T) {
	tests := []struct {
		name string
		data *aiflow.Element
		want error
	}{
		{"missing id", elements.Data("", nil), aiflow.ErrInvalidAttribute},
		{"bad readonly", elements.Data("x", map[string]any{"readonly": "maybe"}), aiflow.ErrInvalidAttribute},
		{"default violates type", elements.Data("x", map[string]any{"type": "integer", "defaultValue": "one"}), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := elements.Workflow("wf", elements.DataModel(tt.data))
			_, err := aiflow.NewGraphBuilder().Build(context.Background(), root)
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestAction_RunAfterAndChildren(t *testing.T) {
	root := elements.Workflow("wf",
		elements.Action("llm", map[string]any{"runAfter": "a, b", "model": "small"},
			elements.Action("log", nil),
		),
	)
	g, _ := build(t, root)

	llm := g.Find("wf.llm0")
	require.NotNil(t, llm)
	assert.Equal(t, aiflow.TypeAction, llm.Type)
	assert.Equal(t, "llm", llm.SubType)
	assert.Equal(t, []string{"a", "b"}, llm.RunAfter)
	assert.Equal(t, "small", llm.Attributes["model"])
	assert.Equal(t, []string{"wf.llm0.log0"}, keys(llm.Next))
}

func TestByTag_Fallback(t *testing.T) {
	root := &aiflow.Element{
		ID:      "wf",
		Tag:     elements.TagWorkflow,
		Type:    aiflow.TypeUserInput,
		SubType: elements.TagWorkflow,
		Children: []*aiflow.Element{
			{ID: "s", Tag: elements.TagState, Type: aiflow.TypeState, SubType: elements.TagState},
		},
	}
	g, _ := build(t, root, aiflow.WithFallbackConstructor(elements.ByTag()))

	assert.Equal(t, []string{"s"}, keys(g.Next))
	assert.Equal(t, aiflow.TypeState, g.Next[0].Type)
}

func TestRegistry_CustomTag(t *testing.T) {
	r := elements.NewRegistry()
	assert.Contains(t, r.Tags(), elements.TagIf)

	r.Register("llm", elements.Definition{
		Constructor: aiflow.ConstructorFunc(func(bc *aiflow.BuildContext) (*aiflow.ExecutionGraphElement, error) {
			node := bc.Node(aiflow.TypeAction, "llm")
			node.Attributes["provider"] = "stub"
			return node, nil
		}),
	})
	def, ok := r.Lookup("llm")
	require.True(t, ok)
	assert.Equal(t, aiflow.TypeAction, def.Type)
	assert.Equal(t, "llm", def.SubType)

	root := r.New(elements.TagWorkflow, map[string]any{"id": "wf"},
		r.New("llm", map[string]any{"model": "small"}),
		r.New("unknown", nil),
	)
	g, _ := build(t, root)

	assert.Equal(t, "stub", g.Find("wf.llm0").Attributes["provider"])
	assert.Equal(t, "unknown", g.Find("wf.unknown1").SubType)

	_, ok = elements.NewRegistry().Lookup("llm")
	assert.False(t, ok, "registries are independent")
}

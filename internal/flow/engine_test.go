package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxytap/core/internal/components"
	"github.com/proxytap/core/internal/model"
	"github.com/proxytap/core/internal/store"
)

func newTestRegistry(t *testing.T) *components.Registry {
	docs, err := store.NewDocuments[components.Definition](t.TempDir())
	require.NoError(t, err)
	return components.NewRegistry(docs)
}

type stubEvaluator struct {
	result bool
	err    error
}

func (s *stubEvaluator) EvaluateCondition(expression string, ctx *components.Context) (bool, error) {
	return s.result, s.err
}

func TestMatchSelectsFirstFlowByHostAndPathGlob(t *testing.T) {
	flows := []FlowDefinition{
		{
			ID: "a",
			Nodes: []Node{
				{ID: "entry", Kind: NodeEntry, Match: MatchRule{HostGlobs: []string{"other.test"}}},
				{ID: "term", Kind: NodeTerminator},
			},
			Edges: []Edge{{From: "entry", To: "term"}},
		},
		{
			ID: "b",
			Nodes: []Node{
				{ID: "entry", Kind: NodeEntry, Match: MatchRule{HostGlobs: []string{"api.*"}, PathGlobs: []string{"/v1/*"}}},
				{ID: "term", Kind: NodeTerminator},
			},
			Edges: []Edge{{From: "entry", To: "term"}},
		},
	}

	req := &model.HTTPRequest{Method: "GET", URL: "https://api.example.com/v1/users"}
	matched, ok := Match(flows, req)
	require.True(t, ok)
	require.Equal(t, "b", matched.ID)
}

func TestMatchReturnsFalseWhenNoFlowMatches(t *testing.T) {
	flows := []FlowDefinition{
		{
			ID: "a",
			Nodes: []Node{
				{ID: "entry", Kind: NodeEntry, Match: MatchRule{Methods: []string{"POST"}}},
				{ID: "term", Kind: NodeTerminator},
			},
			Edges: []Edge{{From: "entry", To: "term"}},
		},
	}
	req := &model.HTTPRequest{Method: "GET", URL: "https://x.test/"}
	_, ok := Match(flows, req)
	require.False(t, ok)
}

func TestExecuteRunsComponentNodeAndReturnsMutatedRequest(t *testing.T) {
	registry := newTestRegistry(t)
	def, ok, err := registry.GetByID("builtin:header-rewrite")
	require.NoError(t, err)
	require.True(t, ok)

	f := FlowDefinition{
		ID: "f1",
		Nodes: []Node{
			{ID: "entry", Kind: NodeEntry},
			{ID: "comp", Kind: NodeComponent, ComponentID: def.ID, Params: map[string]components.Value{
				"addHeaderName":  components.StringValue("X-Tag"),
				"addHeaderValue": components.StringValue("v"),
			}},
			{ID: "term", Kind: NodeTerminator, Mode: TerminatorPassThrough},
		},
		Edges: []Edge{
			{From: "entry", To: "comp"},
			{From: "comp", To: "term"},
		},
	}

	engine := New(registry, nil)
	req := &model.HTTPRequest{Headers: model.Header{}}
	outcome := engine.Execute(f, req, nil)

	require.Equal(t, "v", outcome.Request.Headers.Get("X-Tag"))
	require.Equal(t, "f1", outcome.MatchedFlow)
}

func TestExecuteTerminatingComponentExitsBeforeReachingTerminator(t *testing.T) {
	registry := newTestRegistry(t)
	def, _, _ := registry.GetByID("builtin:mock-response")

	f := FlowDefinition{
		ID: "f1",
		Nodes: []Node{
			{ID: "entry", Kind: NodeEntry},
			{ID: "comp", Kind: NodeComponent, ComponentID: def.ID},
			{ID: "term", Kind: NodeTerminator, Mode: TerminatorPassThrough},
		},
		Edges: []Edge{
			{From: "entry", To: "comp"},
			{From: "comp", To: "term"},
		},
	}

	engine := New(registry, nil)
	outcome := engine.Execute(f, &model.HTTPRequest{Headers: model.Header{}}, nil)
	require.NotNil(t, outcome.Response, "a terminating component must stop the walk before the pass_through terminator can clear its response")
}

func TestExecutePassThroughTerminatorClearsResponseWhenNoComponentTerminated(t *testing.T) {
	registry := newTestRegistry(t)

	f := FlowDefinition{
		ID: "f1",
		Nodes: []Node{
			{ID: "entry", Kind: NodeEntry},
			{ID: "term", Kind: NodeTerminator, Mode: TerminatorPassThrough},
		},
		Edges: []Edge{
			{From: "entry", To: "term"},
		},
	}

	engine := New(registry, nil)
	req := &model.HTTPRequest{Headers: model.Header{}}
	ctx := components.NewContext(req, nil)
	ctx.Response = &model.HTTPResponse{StatusCode: 200}
	engine.walk(f, ctx)
	require.Nil(t, ctx.Response, "pass_through terminator must clear a response left over without a terminating component")
}

func TestExecuteEndWithResponseTerminatorKeepsSynthesizedResponse(t *testing.T) {
	registry := newTestRegistry(t)
	def, _, _ := registry.GetByID("builtin:mock-response")

	f := FlowDefinition{
		ID: "f1",
		Nodes: []Node{
			{ID: "entry", Kind: NodeEntry},
			{ID: "comp", Kind: NodeComponent, ComponentID: def.ID},
			{ID: "term", Kind: NodeTerminator, Mode: TerminatorEndWithResponse},
		},
		Edges: []Edge{
			{From: "entry", To: "comp"},
			{From: "comp", To: "term"},
		},
	}

	engine := New(registry, nil)
	outcome := engine.Execute(f, &model.HTTPRequest{Headers: model.Header{}}, nil)
	require.NotNil(t, outcome.Response)
}

func TestExecuteConditionNodeFollowsLabeledEdge(t *testing.T) {
	registry := newTestRegistry(t)
	mockDef, _, _ := registry.GetByID("builtin:mock-response")

	f := FlowDefinition{
		ID: "f1",
		Nodes: []Node{
			{ID: "entry", Kind: NodeEntry},
			{ID: "cond", Kind: NodeCondition, Expression: "true"},
			{ID: "comp", Kind: NodeComponent, ComponentID: mockDef.ID},
			{ID: "term1", Kind: NodeTerminator, Mode: TerminatorEndWithResponse},
			{ID: "term2", Kind: NodeTerminator, Mode: TerminatorPassThrough},
		},
		Edges: []Edge{
			{From: "entry", To: "cond"},
			{From: "cond", To: "comp", Label: "true"},
			{From: "comp", To: "term1"},
			{From: "cond", To: "term2", Label: "false"},
		},
	}

	engine := New(registry, &stubEvaluator{result: true})
	outcome := engine.Execute(f, &model.HTTPRequest{Headers: model.Header{}}, nil)
	require.NotNil(t, outcome.Response)

	engine = New(registry, &stubEvaluator{result: false})
	outcome = engine.Execute(f, &model.HTTPRequest{Headers: model.Header{}}, nil)
	require.Nil(t, outcome.Response)
}

func TestExecuteConditionEvaluationErrorTreatedAsFalse(t *testing.T) {
	registry := newTestRegistry(t)
	f := FlowDefinition{
		ID: "f1",
		Nodes: []Node{
			{ID: "entry", Kind: NodeEntry},
			{ID: "cond", Kind: NodeCondition, Expression: "broken"},
			{ID: "termTrue", Kind: NodeTerminator, Mode: TerminatorEndWithResponse},
			{ID: "termFalse", Kind: NodeTerminator, Mode: TerminatorPassThrough},
		},
		Edges: []Edge{
			{From: "entry", To: "cond"},
			{From: "cond", To: "termTrue", Label: "true"},
			{From: "cond", To: "termFalse", Label: "false"},
		},
	}

	engine := New(registry, &stubEvaluator{err: assert.AnError})
	sink := &components.SliceLogSink{}
	outcome := engine.Execute(f, &model.HTTPRequest{Headers: model.Header{}}, sink)
	require.Nil(t, outcome.Response)
	require.NotEmpty(t, sink.Lines)
}

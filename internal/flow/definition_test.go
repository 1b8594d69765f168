package flow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func simpleValidFlow() FlowDefinition {
	return FlowDefinition{
		ID: "f1",
		Nodes: []Node{
			{ID: "entry", Kind: NodeEntry},
			{ID: "term", Kind: NodeTerminator, Mode: TerminatorPassThrough},
		},
		Edges: []Edge{{From: "entry", To: "term"}},
	}
}

func TestValidateAcceptsMinimalValidFlow(t *testing.T) {
	require.NoError(t, simpleValidFlow().Validate())
}

func TestValidateRejectsMissingEntry(t *testing.T) {
	f := simpleValidFlow()
	f.Nodes[0].Kind = NodeComponent
	require.Error(t, f.Validate())
}

func TestValidateRejectsMultipleEntries(t *testing.T) {
	f := simpleValidFlow()
	f.Nodes = append(f.Nodes, Node{ID: "entry2", Kind: NodeEntry})
	require.Error(t, f.Validate())
}

func TestValidateRejectsTerminatorWithOutgoingEdge(t *testing.T) {
	f := simpleValidFlow()
	f.Nodes = append(f.Nodes, Node{ID: "extra", Kind: NodeTerminator})
	f.Edges = append(f.Edges, Edge{From: "term", To: "extra"})
	require.Error(t, f.Validate())
}

func TestValidateRejectsUnreachableNode(t *testing.T) {
	f := simpleValidFlow()
	f.Nodes = append(f.Nodes, Node{ID: "orphan", Kind: NodeTerminator})
	require.Error(t, f.Validate())
}

func TestValidateRejectsConditionWithDuplicateLabels(t *testing.T) {
	f := FlowDefinition{
		ID: "f2",
		Nodes: []Node{
			{ID: "entry", Kind: NodeEntry},
			{ID: "cond", Kind: NodeCondition, Expression: "true"},
			{ID: "term1", Kind: NodeTerminator},
			{ID: "term2", Kind: NodeTerminator},
		},
		Edges: []Edge{
			{From: "entry", To: "cond"},
			{From: "cond", To: "term1", Label: "true"},
			{From: "cond", To: "term2", Label: "true"},
		},
	}
	require.Error(t, f.Validate())
}

func TestValidateRejectsComponentWithMultipleOutgoingEdges(t *testing.T) {
	f := FlowDefinition{
		ID: "f3",
		Nodes: []Node{
			{ID: "entry", Kind: NodeEntry},
			{ID: "comp", Kind: NodeComponent},
			{ID: "t1", Kind: NodeTerminator},
			{ID: "t2", Kind: NodeTerminator},
		},
		Edges: []Edge{
			{From: "entry", To: "comp"},
			{From: "comp", To: "t1"},
			{From: "comp", To: "t2"},
		},
	}
	require.Error(t, f.Validate())
}

// Package flow implements the Flow Engine: matching a request against a
// FlowDefinition's Entry node and walking its directed graph node-by-node.
package flow

import (
	"fmt"
	"time"

	"github.com/proxytap/core/internal/components"
)

// NodeKind distinguishes the four FlowNode variants.
type NodeKind string

const (
	NodeEntry      NodeKind = "entry"
	NodeComponent  NodeKind = "component"
	NodeCondition  NodeKind = "condition"
	NodeTerminator NodeKind = "terminator"
)

// TerminatorMode selects a Terminator node's behavior.
type TerminatorMode string

const (
	TerminatorPassThrough     TerminatorMode = "pass_through"
	TerminatorEndWithResponse TerminatorMode = "end_with_response"
)

// MatchRule is an Entry node's match predicate: optional method whitelist,
// optional host glob list, optional path glob list; omission means match
// anything for that dimension.
type MatchRule struct {
	Methods   []string `json:"methods,omitempty"`
	HostGlobs []string `json:"hostGlobs,omitempty"`
	PathGlobs []string `json:"pathGlobs,omitempty"`
}

// Node is one FlowNode, using the variant fields relevant to Kind and
// leaving the rest zero. Nodes are addressed by stable string IDs unique
// within a FlowDefinition instead of array indices, so edits that
// add/remove nodes never renumber surviving ones.
type Node struct {
	ID   string   `json:"id"`
	Kind NodeKind `json:"kind"`

	// Entry
	Match MatchRule `json:"match,omitempty"`

	// Component
	ComponentID string                       `json:"componentId,omitempty"`
	Params      map[string]components.Value `json:"params,omitempty"`

	// Condition
	Expression string `json:"expression,omitempty"`

	// Terminator
	Mode TerminatorMode `json:"mode,omitempty"`
}

// Edge is a directed edge between two node IDs within one FlowDefinition.
// Label is meaningful only for edges leaving a Condition node (outgoing
// edges labeled with distinct branch names, typically true/false); it is
// empty for edges leaving Entry or Component nodes.
type Edge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label,omitempty"`
}

// FlowDefinition is a named, versioned directed graph of nodes and edges.
type FlowDefinition struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Enabled   bool      `json:"enabled"`
	Nodes     []Node    `json:"nodes"`
	Edges     []Edge    `json:"edges"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DocumentID implements store.Identified.
func (f FlowDefinition) DocumentID() string { return f.ID }

func (f FlowDefinition) nodeByID(id string) (Node, bool) {
	for _, n := range f.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

func (f FlowDefinition) outEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range f.Edges {
		if e.From == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// Validate enforces every FlowDefinition invariant: exactly one Entry;
// every non-Entry node reachable from Entry; Terminators have no outgoing
// edges; a Component has at most one in and one out edge; a Condition has
// at most one in edge and distinctly-labeled out edges; an Entry has
// exactly one outgoing edge.
func (f FlowDefinition) Validate() error {
	var entries []Node
	inCount := make(map[string]int)
	outCount := make(map[string]int)
	for _, e := range f.Edges {
		outCount[e.From]++
		inCount[e.To]++
	}

	byID := make(map[string]Node, len(f.Nodes))
	for _, n := range f.Nodes {
		byID[n.ID] = n
		if n.Kind == NodeEntry {
			entries = append(entries, n)
		}
	}

	if len(entries) != 1 {
		return fmt.Errorf("flow %s: must have exactly one entry node, found %d", f.ID, len(entries))
	}
	entry := entries[0]
	if outCount[entry.ID] != 1 {
		return fmt.Errorf("flow %s: entry node must have exactly one outgoing edge, found %d", f.ID, outCount[entry.ID])
	}

	for _, n := range f.Nodes {
		switch n.Kind {
		case NodeTerminator:
			if outCount[n.ID] != 0 {
				return fmt.Errorf("flow %s: terminator node %s must have no outgoing edges", f.ID, n.ID)
			}
		case NodeComponent:
			if inCount[n.ID] > 1 {
				return fmt.Errorf("flow %s: component node %s has more than one incoming edge", f.ID, n.ID)
			}
			if outCount[n.ID] > 1 {
				return fmt.Errorf("flow %s: component node %s has more than one outgoing edge", f.ID, n.ID)
			}
		case NodeCondition:
			if inCount[n.ID] > 1 {
				return fmt.Errorf("flow %s: condition node %s has more than one incoming edge", f.ID, n.ID)
			}
			seen := make(map[string]bool)
			for _, e := range f.outEdges(n.ID) {
				if seen[e.Label] {
					return fmt.Errorf("flow %s: condition node %s has duplicate branch label %q", f.ID, n.ID, e.Label)
				}
				seen[e.Label] = true
			}
		}
	}

	reachable := map[string]bool{entry.ID: true}
	queue := []string{entry.ID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range f.outEdges(cur) {
			if !reachable[e.To] {
				reachable[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}
	for _, n := range f.Nodes {
		if !reachable[n.ID] {
			return fmt.Errorf("flow %s: node %s is not reachable from entry", f.ID, n.ID)
		}
	}

	return nil
}

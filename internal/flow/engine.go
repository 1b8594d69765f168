package flow

import (
	"net/url"
	"strings"

	"github.com/proxytap/core/internal/components"
	"github.com/proxytap/core/internal/glob"
	"github.com/proxytap/core/internal/model"
)

// ConditionEvaluator evaluates a Condition node's boolean expression.
// Implemented by package sandbox; declared here, not there, so flow never
// imports sandbox (sandbox satisfies this by method signature alone).
type ConditionEvaluator interface {
	EvaluateCondition(expression string, ctx *components.Context) (bool, error)
}

// Engine is the Flow Engine: it matches requests to flows and walks a
// matched flow's graph.
type Engine struct {
	Registry  *components.Registry
	Evaluator ConditionEvaluator
}

// New wires a Flow Engine against the Component Registry and the injected
// condition evaluator.
func New(registry *components.Registry, evaluator ConditionEvaluator) *Engine {
	return &Engine{Registry: registry, Evaluator: evaluator}
}

// Match reports the first enabled flow (in flows' given order — callers
// pass Store.EnabledSortedByID's deterministic order) whose Entry node
// matches req: method in methods (or no method list), URL hostname
// matches at least one host glob (or no list), URL path matches at least
// one path glob (or no list).
func Match(flows []FlowDefinition, req *model.HTTPRequest) (FlowDefinition, bool) {
	host, path := hostAndPath(req.URL)
	for _, f := range flows {
		entry, ok := entryNode(f)
		if !ok {
			continue
		}
		if matchRule(entry.Match, req.Method, host, path) {
			return f, true
		}
	}
	return FlowDefinition{}, false
}

func entryNode(f FlowDefinition) (Node, bool) {
	for _, n := range f.Nodes {
		if n.Kind == NodeEntry {
			return n, true
		}
	}
	return Node{}, false
}

func matchRule(m MatchRule, method, host, path string) bool {
	if len(m.Methods) > 0 {
		found := false
		for _, allowed := range m.Methods {
			if strings.EqualFold(allowed, method) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !glob.MatchAny(m.HostGlobs, host) {
		return false
	}
	if !glob.MatchAny(m.PathGlobs, path) {
		return false
	}
	return true
}

func hostAndPath(rawURL string) (host, path string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", ""
	}
	return u.Hostname(), u.Path
}

// Outcome is the result of walking a flow's graph to completion.
type Outcome struct {
	Request     *model.HTTPRequest
	Response    *model.HTTPResponse
	MatchedFlow string
}

// Execute walks f's graph starting at its Entry, dispatching Component
// nodes to the Registry and Condition nodes to the Evaluator. log receives
// lines appended by components.log/console.log during the walk; pass nil
// to discard them.
func (e *Engine) Execute(f FlowDefinition, req *model.HTTPRequest, log components.LogSink) Outcome {
	ctx := components.NewContext(req, log)
	e.walk(f, ctx)
	return Outcome{Request: ctx.Request, Response: ctx.Response, MatchedFlow: f.ID}
}

// Debug runs f against req without touching the network or the Recorder,
// collecting logs into a SliceLogSink and returning the final context
// snapshot.
func (e *Engine) Debug(f FlowDefinition, req *model.HTTPRequest) (*components.Context, []string) {
	sink := &components.SliceLogSink{}
	ctx := components.NewContext(req, sink)
	e.walk(f, ctx)
	return ctx, sink.Lines
}

// walk performs the node-by-node graph traversal. Execution errors are
// logged and treated gracefully: a failed Component dispatch yields an
// empty Result and execution continues along the node's normal successor
// edge; a Condition evaluation error is treated as false.
func (e *Engine) walk(f FlowDefinition, ctx *components.Context) {
	entry, ok := entryNode(f)
	if !ok {
		return
	}
	cur := entry.ID
	for {
		node, ok := f.nodeByID(cur)
		if !ok {
			return
		}
		switch node.Kind {
		case NodeEntry:
			next, ok := firstEdge(f, cur)
			if !ok {
				return
			}
			cur = next
		case NodeComponent:
			if e.runComponent(node, ctx) {
				return
			}
			next, ok := firstEdge(f, cur)
			if !ok {
				return
			}
			cur = next
		case NodeCondition:
			result, err := false, error(nil)
			if e.Evaluator != nil {
				result, err = e.Evaluator.EvaluateCondition(node.Expression, ctx)
			}
			if err != nil {
				ctx.LogLine("condition " + node.ID + ": " + err.Error())
				result = false
			}
			label := "false"
			if result {
				label = "true"
			}
			next, ok := labeledEdge(f, cur, label)
			if !ok {
				return
			}
			cur = next
		case NodeTerminator:
			if node.Mode != TerminatorEndWithResponse {
				ctx.Response = nil
			}
			return
		default:
			return
		}
	}
}

// runComponent dispatches node's component and merges its result into ctx,
// reporting whether the result asked the walk to terminate immediately.
func (e *Engine) runComponent(node Node, ctx *components.Context) bool {
	if e.Registry == nil {
		return false
	}
	def, ok, err := e.Registry.GetByID(node.ComponentID)
	if err != nil || !ok {
		ctx.LogLine("component " + node.ComponentID + ": not found")
		return false
	}
	res, err := e.Registry.Dispatch(def, node.Params, ctx)
	if err != nil {
		ctx.LogLine("component " + node.ComponentID + ": " + err.Error())
		return false
	}
	return ctx.Merge(res)
}

func firstEdge(f FlowDefinition, from string) (string, bool) {
	edges := f.outEdges(from)
	if len(edges) == 0 {
		return "", false
	}
	return edges[0].To, true
}

func labeledEdge(f FlowDefinition, from, label string) (string, bool) {
	for _, e := range f.outEdges(from) {
		if e.Label == label {
			return e.To, true
		}
	}
	return "", false
}

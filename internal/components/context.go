package components

import "github.com/proxytap/core/internal/model"

// LogSink receives log lines appended by components and scripts during a
// flow run. In live execution it is typically the structured process
// logger; in debug execution it is a simple in-memory slice collector.
type LogSink interface {
	Log(line string)
}

// SliceLogSink collects lines in order, used by the Flow Engine's debug
// execution entry point.
type SliceLogSink struct {
	Lines []string
}

func (s *SliceLogSink) Log(line string) { s.Lines = append(s.Lines, line) }

// FuncLogSink adapts a plain function, used to route live execution into
// the structured process logger without this package depending on zerolog.
type FuncLogSink func(line string)

func (f FuncLogSink) Log(line string) { f(line) }

// Context is the live request, the optional response, a free-form variable
// bag scoped to a single flow execution, and a log sink.
type Context struct {
	Request  *model.HTTPRequest
	Response *model.HTTPResponse
	Vars     map[string]Value
	Log      LogSink
}

// NewContext initializes a context for one flow execution: a cloned
// request, no response, an empty variable bag, and the given log sink.
func NewContext(req *model.HTTPRequest, log LogSink) *Context {
	return &Context{
		Request: req.Clone(),
		Vars:    make(map[string]Value),
		Log:     log,
	}
}

func (c *Context) logf(line string) {
	if c.Log != nil {
		c.Log.Log(line)
	}
}

// LogLine appends line to the context's log sink, exported for callers
// outside this package (the Flow Engine logging dispatch failures and
// condition-evaluation errors).
func (c *Context) LogLine(line string) { c.logf(line) }

// Result is any subset of: replacement request, synthesized response,
// variable updates, terminate flag.
type Result struct {
	ReplacementRequest *model.HTTPRequest
	Response            *model.HTTPResponse
	VarUpdates          map[string]Value
	Terminate           bool
}

// Merge applies res onto ctx per the component-node merge rule: a new
// request replaces the live one, a new response installs on the context,
// and variable updates merge over existing vars. It reports res.Terminate
// so the caller (the Flow Engine's walk) can exit the graph immediately
// instead of running the node's outgoing edge.
func (c *Context) Merge(res *Result) bool {
	if res == nil {
		return false
	}
	if res.ReplacementRequest != nil {
		c.Request = res.ReplacementRequest
	}
	if res.Response != nil {
		c.Response = res.Response
	}
	for k, v := range res.VarUpdates {
		c.Vars[k] = v
	}
	return res.Terminate
}

// Package sandbox implements the Script Sandbox: a time-boxed, pure-Go
// ECMAScript VM (dop251/goja) that runs a component's user-supplied script
// against a config bag and a components.Context, following the
// "run(config, ctx)" convention.
package sandbox

import (
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/proxytap/core/internal/components"
	"github.com/proxytap/core/internal/model"
)

// DefaultTimeout bounds a single script invocation: a runaway script must
// not stall the flow it is part of.
const DefaultTimeout = 250 * time.Millisecond

// Runner is the components.ScriptRunner implementation wired into the
// Component Registry and, via EvaluateCondition, into the Flow Engine's
// Condition nodes.
type Runner struct {
	Timeout time.Duration
}

// New builds a Runner with timeout, falling back to DefaultTimeout when
// timeout is zero.
func New(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{Timeout: timeout}
}

// Run implements components.ScriptRunner. It evaluates source against a
// config bag and ctx. If source defines a top-level `function run(config,
// ctx) { .. }`, that function's return value is treated as the
// components.Result. Otherwise the post-execution ctx object (mutated
// in-place by top-level script statements) is projected into one.
func (r *Runner) Run(source string, config map[string]components.Value, ctx *components.Context) (*components.Result, error) {
	vm := goja.New()
	timer := time.AfterFunc(r.Timeout, func() {
		vm.Interrupt(fmt.Sprintf("script exceeded %s execution budget", r.Timeout))
	})
	defer timer.Stop()

	logFn := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			parts[i] = a.String()
		}
		if ctx.Log != nil {
			ctx.Log.Log(join(parts))
		}
		return goja.Undefined()
	}
	console := vm.NewObject()
	_ = console.Set("log", logFn)
	_ = console.Set("error", logFn)
	if err := vm.Set("console", console); err != nil {
		return nil, fmt.Errorf("sandbox: binding console: %w", err)
	}

	configObj := vm.ToValue(valuesToAny(config))
	ctxObj := buildContextObject(vm, ctx)
	_ = ctxObj.Set("log", logFn)
	if err := vm.Set("ctx", ctxObj); err != nil {
		return nil, fmt.Errorf("sandbox: binding ctx: %w", err)
	}

	if _, err := vm.RunString(source); err != nil {
		return nil, fmt.Errorf("sandbox: loading script: %w", err)
	}

	runFn, ok := goja.AssertFunction(vm.Get("run"))
	if !ok {
		return resultFromObject(ctxObj), nil
	}

	runVal, err := runFn(goja.Undefined(), configObj, ctxObj)
	if err != nil {
		return nil, fmt.Errorf("sandbox: running script: %w", err)
	}
	if runVal == nil || goja.IsUndefined(runVal) || goja.IsNull(runVal) {
		return &components.Result{VarUpdates: map[string]components.Value{}}, nil
	}
	return resultFromObject(runVal.ToObject(vm)), nil
}

func join(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}

func valuesToAny(m map[string]components.Value) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.ToAny()
	}
	return out
}

// buildContextObject mirrors ctx.Request/Response/Vars/Terminate into a
// live goja.Object. Because goja objects are reference types, mutations the
// script makes to ctx.request/ctx.response/ctx.vars/ctx.terminate are
// visible on this exact object after the call returns.
func buildContextObject(vm *goja.Runtime, ctx *components.Context) *goja.Object {
	obj := vm.NewObject()

	reqObj := vm.NewObject()
	_ = reqObj.Set("method", ctx.Request.Method)
	_ = reqObj.Set("url", ctx.Request.URL)
	_ = reqObj.Set("headers", headersToAny(ctx.Request.Headers))
	_ = reqObj.Set("body", ctx.Request.Body)
	_ = obj.Set("request", reqObj)

	if ctx.Response != nil {
		respObj := vm.NewObject()
		_ = respObj.Set("statusCode", ctx.Response.StatusCode)
		_ = respObj.Set("headers", headersToAny(ctx.Response.Headers))
		_ = respObj.Set("body", ctx.Response.Body)
		_ = obj.Set("response", respObj)
	} else {
		_ = obj.Set("response", goja.Null())
	}

	vars := make(map[string]any, len(ctx.Vars))
	for k, v := range ctx.Vars {
		vars[k] = v.ToAny()
	}
	_ = obj.Set("vars", vm.ToValue(vars))
	_ = obj.Set("terminate", false)
	return obj
}

func headersToAny(h model.Header) map[string]any {
	out := make(map[string]any, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

// resultFromObject exports an object's request/response/vars/terminate
// fields into a components.Result, per the component-node merge rule. obj
// is either the post-execution ctx object (no run function defined) or
// run's own return value.
func resultFromObject(obj *goja.Object) *components.Result {
	res := &components.Result{VarUpdates: map[string]components.Value{}}

	if reqVal := obj.Get("request"); reqVal != nil && !goja.IsUndefined(reqVal) && !goja.IsNull(reqVal) {
		reqObj := reqVal.ToObject(nil)
		req := &model.HTTPRequest{
			Method:  exportString(reqObj.Get("method")),
			URL:     exportString(reqObj.Get("url")),
			Headers: exportHeaders(reqObj.Get("headers")),
			Body:    exportString(reqObj.Get("body")),
		}
		res.ReplacementRequest = req
	}

	if respVal := obj.Get("response"); respVal != nil && !goja.IsUndefined(respVal) && !goja.IsNull(respVal) {
		respObj := respVal.ToObject(nil)
		status := 200
		if sc := respObj.Get("statusCode"); sc != nil && !goja.IsUndefined(sc) {
			status = int(sc.ToInteger())
		}
		res.Response = &model.HTTPResponse{
			StatusCode: status,
			Headers:    exportHeaders(respObj.Get("headers")),
			Body:       exportString(respObj.Get("body")),
		}
	}

	if varsVal := obj.Get("vars"); varsVal != nil && !goja.IsUndefined(varsVal) && !goja.IsNull(varsVal) {
		exported := varsVal.Export()
		if m, ok := exported.(map[string]any); ok {
			for k, v := range m {
				res.VarUpdates[k] = components.FromAny(v)
			}
		}
	}

	if tVal := obj.Get("terminate"); tVal != nil && !goja.IsUndefined(tVal) {
		res.Terminate = tVal.ToBoolean()
	}

	return res
}

func exportString(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

func exportHeaders(v goja.Value) model.Header {
	h := model.Header{}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return h
	}
	exported := v.Export()
	m, ok := exported.(map[string]any)
	if !ok {
		return h
	}
	for k, vv := range m {
		h.Set(k, fmt.Sprintf("%v", vv))
	}
	return h
}

var _ components.ScriptRunner = (*Runner)(nil)

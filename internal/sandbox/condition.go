package sandbox

import (
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/proxytap/core/internal/components"
)

// EvaluateCondition runs a Condition node's boolean expression: a boolean
// predicate over the context exposing at least
// ctx.request.{method,url,headers,body} and ctx.response.* when present,
// and ctx.vars.*. Evaluation failure is treated as false by the caller. It
// satisfies the flow package's ConditionEvaluator interface by method
// signature alone, keeping flow free of any import of sandbox.
func (r *Runner) EvaluateCondition(expression string, ctx *components.Context) (bool, error) {
	vm := goja.New()
	timer := time.AfterFunc(r.Timeout, func() {
		vm.Interrupt(fmt.Sprintf("condition exceeded %s execution budget", r.Timeout))
	})
	defer timer.Stop()

	ctxObj := buildContextObject(vm, ctx)
	if err := vm.Set("ctx", ctxObj); err != nil {
		return false, fmt.Errorf("sandbox: binding ctx: %w", err)
	}

	result, err := vm.RunString(expression)
	if err != nil {
		return false, fmt.Errorf("sandbox: evaluating condition: %w", err)
	}
	return result.ToBoolean(), nil
}

package components

import (
	"fmt"
	"time"

	"github.com/proxytap/core/internal/store"
)

// BuiltinHandler implements one row of the canonical builtin table.
type BuiltinHandler func(params map[string]Value, ctx *Context) (*Result, error)

// ScriptRunner executes a component's script source against a context. It
// is implemented by package sandbox; kept as an interface here so
// components never imports sandbox (sandbox imports components for the
// Context/Result shape, avoiding an import cycle).
type ScriptRunner interface {
	Run(source string, config map[string]Value, ctx *Context) (*Result, error)
}

// Registry is the Component Registry: a catalog of built-in handlers and
// user scripts, each with a declared parameter schema. Builtin definitions
// cannot be overwritten or deleted.
type Registry struct {
	docs     *store.Documents[Definition]
	builtins map[string]BuiltinHandler
	scripts  ScriptRunner
}

// NewRegistry wires a document store (for script definitions persisted by
// the caller) and registers every canonical builtin.
func NewRegistry(docs *store.Documents[Definition]) *Registry {
	r := &Registry{docs: docs, builtins: make(map[string]BuiltinHandler)}
	registerBuiltins(r)
	return r
}

// SetScriptRunner wires the sandbox implementation. Left unset, script
// components fail to dispatch with a clear error rather than panicking.
func (r *Registry) SetScriptRunner(sr ScriptRunner) { r.scripts = sr }

func (r *Registry) registerBuiltin(name string, schema []ParamSpec, handler BuiltinHandler) {
	r.builtins[name] = handler
	now := time.Now()
	def := Definition{
		ID:        "builtin:" + name,
		Name:      name,
		Kind:      KindBuiltin,
		Builtin:   name,
		Params:    schema,
		IsBuiltin: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if r.docs != nil {
		_ = r.docs.Save(def) // builtins are reseeded idempotently on every startup
	}
}

// GetByID resolves a component definition from the document store, which
// holds both user scripts and the builtin definitions seeded by
// NewRegistry.
func (r *Registry) GetByID(id string) (Definition, bool, error) {
	if r.docs == nil {
		return Definition{}, false, nil
	}
	return r.docs.GetByID(id)
}

// ListAll returns every known component definition.
func (r *Registry) ListAll() ([]Definition, []error) {
	if r.docs == nil {
		return nil, nil
	}
	return r.docs.ListAll()
}

// SaveScript upserts a user script definition. Builtins cannot be
// overwritten through this path.
func (r *Registry) SaveScript(def Definition) error {
	if def.IsBuiltin {
		return fmt.Errorf("cannot save over a builtin component definition %s", def.ID)
	}
	if existing, ok, err := r.GetByID(def.ID); err == nil && ok && existing.IsBuiltin {
		return fmt.Errorf("cannot save over a builtin component definition %s", def.ID)
	}
	def.Kind = KindScript
	def.UpdatedAt = time.Now()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = def.UpdatedAt
	}
	return r.docs.Save(def)
}

// Delete removes a user script definition; deleting a builtin is rejected.
func (r *Registry) Delete(id string) error {
	def, ok, err := r.GetByID(id)
	if err != nil {
		return err
	}
	if ok && def.IsBuiltin {
		return fmt.Errorf("cannot delete builtin component %s", id)
	}
	return r.docs.Delete(id)
}

// Dispatch resolves def's kind and runs it: a builtin handler directly, or
// a script through the wired ScriptRunner. rawParams are the FlowNode's
// stored parameter map, coerced against def's schema before dispatch.
func (r *Registry) Dispatch(def Definition, rawParams map[string]Value, ctx *Context) (*Result, error) {
	params, err := def.ResolveParams(rawParams)
	if err != nil {
		return nil, err
	}
	switch def.Kind {
	case KindBuiltin:
		handler, ok := r.builtins[def.Builtin]
		if !ok {
			return nil, fmt.Errorf("unknown builtin handler %q", def.Builtin)
		}
		return handler(params, ctx)
	case KindScript:
		if r.scripts == nil {
			return nil, fmt.Errorf("no script runner configured for component %s", def.ID)
		}
		return r.scripts.Run(def.Source, params, ctx)
	default:
		return nil, fmt.Errorf("component %s has unknown kind %q", def.ID, def.Kind)
	}
}

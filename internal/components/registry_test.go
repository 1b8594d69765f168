package components

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/proxytap/core/internal/model"
	"github.com/proxytap/core/internal/store"
)

func newTestRegistry(t *testing.T) *Registry {
	docs, err := store.NewDocuments[Definition](t.TempDir())
	require.NoError(t, err)
	return NewRegistry(docs)
}

func TestNewRegistrySeedsBuiltinCatalog(t *testing.T) {
	r := newTestRegistry(t)
	all, errs := r.ListAll()
	require.Empty(t, errs)
	require.NotEmpty(t, all)

	ids := make(map[string]bool, len(all))
	for _, d := range all {
		ids[d.ID] = true
	}
	for _, want := range []string{
		"builtin:header-rewrite",
		"builtin:mock-response",
		"builtin:delay",
		"builtin:url-host-rewrite",
		"builtin:json-body-modify",
		"builtin:tag-request",
	} {
		require.True(t, ids[want], "expected builtin %s to be registered", want)
	}

	def, ok, err := r.GetByID("builtin:delay")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, def.IsBuiltin)
	require.Equal(t, KindBuiltin, def.Kind)
}

func TestRegistryRejectsOverwritingOrDeletingBuiltins(t *testing.T) {
	r := newTestRegistry(t)
	def, _, _ := r.GetByID("builtin:delay")
	err := r.SaveScript(def)
	require.Error(t, err)
	err = r.Delete("builtin:delay")
	require.Error(t, err)
}

func TestRegistryDispatchBuiltin(t *testing.T) {
	r := newTestRegistry(t)
	def, ok, err := r.GetByID("builtin:header-rewrite")
	require.NoError(t, err)
	require.True(t, ok)

	req := &model.HTTPRequest{Headers: model.Header{}}
	ctx := NewContext(req, nil)
	res, err := r.Dispatch(def, map[string]Value{
		"addHeaderName":  StringValue("X-Tag"),
		"addHeaderValue": StringValue("v1"),
	}, ctx)
	require.NoError(t, err)
	require.NotNil(t, res.ReplacementRequest)
	require.Equal(t, "v1", res.ReplacementRequest.Headers.Get("X-Tag"))
}

func TestRegistryDispatchScriptWithoutRunnerErrors(t *testing.T) {
	r := newTestRegistry(t)
	def := Definition{ID: "script:custom", Kind: KindScript, Source: "function run(c,ctx){}"}
	require.NoError(t, r.SaveScript(def))

	ctx := NewContext(&model.HTTPRequest{Headers: model.Header{}}, nil)
	_, err := r.Dispatch(def, nil, ctx)
	require.Error(t, err)
}

type stubRunner struct {
	called bool
}

func (s *stubRunner) Run(source string, config map[string]Value, ctx *Context) (*Result, error) {
	s.called = true
	return &Result{}, nil
}

func TestRegistryDispatchScriptUsesWiredRunner(t *testing.T) {
	r := newTestRegistry(t)
	runner := &stubRunner{}
	r.SetScriptRunner(runner)
	def := Definition{ID: "script:custom", Kind: KindScript, Source: "function run(c,ctx){}"}
	require.NoError(t, r.SaveScript(def))

	ctx := NewContext(&model.HTTPRequest{Headers: model.Header{}}, nil)
	_, err := r.Dispatch(def, nil, ctx)
	require.NoError(t, err)
	require.True(t, runner.called)
}

package components

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveParamsAppliesDefaultsAndCoerces(t *testing.T) {
	def := Definition{
		ID: "builtin:delay",
		Params: []ParamSpec{
			{Name: "ms", Type: ParamNumber, Default: numPtr(100)},
			{Name: "verbose", Type: ParamBoolean, Default: boolPtr(false)},
		},
	}
	resolved, err := def.ResolveParams(map[string]Value{"ms": StringValue("250"), "verbose": StringValue("true")})
	require.NoError(t, err)
	require.Equal(t, NumberValue(250), resolved["ms"])
	require.Equal(t, BoolValue(true), resolved["verbose"])

	resolved, err = def.ResolveParams(nil)
	require.NoError(t, err)
	require.Equal(t, NumberValue(100), resolved["ms"])
	require.Equal(t, BoolValue(false), resolved["verbose"])
}

func TestResolveParamsMissingRequired(t *testing.T) {
	def := Definition{
		ID:     "builtin:auth-inject",
		Params: []ParamSpec{{Name: "token", Type: ParamString, Required: true}},
	}
	_, err := def.ResolveParams(nil)
	require.Error(t, err)
	var missing *MissingParamError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "token", missing.Param)
}

func TestResolveParamsPassesThroughUndeclaredKeys(t *testing.T) {
	def := Definition{ID: "script:custom", Params: nil}
	resolved, err := def.ResolveParams(map[string]Value{"extra": StringValue("v")})
	require.NoError(t, err)
	require.Equal(t, StringValue("v"), resolved["extra"])
}

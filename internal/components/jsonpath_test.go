package components

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToGJSONPathTranslatesDotAndBracketSegments(t *testing.T) {
	require.Equal(t, "user.name", toGJSONPath("user.name"))
	require.Equal(t, "items.0.price", toGJSONPath("items[0].price"))
	require.Equal(t, "a.b.2.c", toGJSONPath("a.b[2].c"))
}

func TestApplyJSONPathOpSetCreatesMissingIntermediateObjects(t *testing.T) {
	out, err := applyJSONPathOp(`{}`, "user.name", "set", `"a"`)
	require.NoError(t, err)
	require.JSONEq(t, `{"user":{"name":"a"}}`, out)
}

func TestApplyJSONPathOpRemoveDeletesKey(t *testing.T) {
	out, err := applyJSONPathOp(`{"a":1,"b":2}`, "a", "remove", "null")
	require.NoError(t, err)
	require.JSONEq(t, `{"b":2}`, out)
}

func TestApplyJSONPathOpAppendWrapsScalarIntoList(t *testing.T) {
	out, err := applyJSONPathOp(`{"tags":"x"}`, "tags", "append", `"y"`)
	require.NoError(t, err)
	require.JSONEq(t, `{"tags":["x","y"]}`, out)
}

func TestApplyJSONPathOpAppendOnExistingArray(t *testing.T) {
	out, err := applyJSONPathOp(`{"tags":["x"]}`, "tags", "append", `"y"`)
	require.NoError(t, err)
	require.JSONEq(t, `{"tags":["x","y"]}`, out)
}

func TestApplyJSONPathOpAppendOnMissingPathCreatesList(t *testing.T) {
	out, err := applyJSONPathOp(`{}`, "tags", "append", `"y"`)
	require.NoError(t, err)
	require.JSONEq(t, `{"tags":["y"]}`, out)
}

package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderSetGetIsCaseInsensitive(t *testing.T) {
	h := Header{}
	h.Set("content-type", "text/plain")
	require.Equal(t, "text/plain", h.Get("Content-Type"))
}

func TestHeaderAddAppends(t *testing.T) {
	h := Header{}
	h.Add("X-Multi", "a")
	h.Add("x-multi", "b")
	require.Equal(t, []string{"a", "b"}, h["X-Multi"])
}

func TestHeaderDel(t *testing.T) {
	h := Header{}
	h.Set("X-Drop", "v")
	h.Del("x-drop")
	require.Equal(t, "", h.Get("X-Drop"))
}

func TestHeaderCloneIsDeepCopy(t *testing.T) {
	h := Header{}
	h.Set("X-A", "1")
	clone := h.Clone()
	clone.Set("X-A", "2")
	require.Equal(t, "1", h.Get("X-A"))
	require.Equal(t, "2", clone.Get("X-A"))
}

func TestHTTPRequestCloneIsIndependent(t *testing.T) {
	req := &HTTPRequest{Method: "GET", Headers: Header{}}
	req.Headers.Set("X-A", "1")

	clone := req.Clone()
	clone.Headers.Set("X-A", "2")
	clone.Method = "POST"

	require.Equal(t, "1", req.Headers.Get("X-A"))
	require.Equal(t, "GET", req.Method)
	require.Equal(t, "2", clone.Headers.Get("X-A"))
}

func TestHTTPResponseCloneHandlesNil(t *testing.T) {
	var resp *HTTPResponse
	require.Nil(t, resp.Clone())
}

package osintegration

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoopApplySystemProxyReturnsNil(t *testing.T) {
	require.NoError(t, Noop{}.ApplySystemProxy(true, "127.0.0.1", 8888))
}

func TestNoopDetectSystemProxyReportsSourceNoop(t *testing.T) {
	status, err := Noop{}.DetectSystemProxy()
	require.NoError(t, err)
	require.Equal(t, "noop", status.Source)
	require.False(t, status.Enabled)
}

func TestNoopInstallRootCAReportsFailure(t *testing.T) {
	result, err := Noop{}.InstallRootCA([]byte("cert"))
	require.NoError(t, err)
	require.False(t, result.Success)
}

func TestNoopIsCertTrustedReportsUnknown(t *testing.T) {
	trusted, detail, err := Noop{}.IsCertTrusted("example.test")
	require.NoError(t, err)
	require.Equal(t, TrustUnknown, trusted)
	require.NotEmpty(t, detail)
}

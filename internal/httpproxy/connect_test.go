package httpproxy

import (
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasPortDetectsTrailingPort(t *testing.T) {
	require.True(t, hasPort("example.test:443"))
	require.False(t, hasPort("example.test"))
}

func TestStripPortRemovesPortWhenPresent(t *testing.T) {
	require.Equal(t, "example.test", stripPort("example.test:443"))
	require.Equal(t, "example.test", stripPort("example.test"))
}

func TestSpliceCopiesBothDirectionsAndClosesBoth(t *testing.T) {
	aServer, aClient := net.Pipe()
	bServer, bClient := net.Pipe()

	go splice(aServer, bServer)

	go func() {
		_, _ = aClient.Write([]byte("ping"))
		_ = aClient.Close()
	}()

	buf := make([]byte, 4)
	n, err := io.ReadFull(bClient, buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf[:n]))
	_ = bClient.Close()
}

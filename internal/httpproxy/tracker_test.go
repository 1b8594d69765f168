package httpproxy

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrackedConnRemovesItselfOnClose(t *testing.T) {
	tracker := newConnTracker()
	server, client := net.Pipe()
	defer client.Close()

	tracked := tracker.track(server)
	require.Len(t, tracker.conns, 1)

	require.NoError(t, tracked.Close())
	require.Len(t, tracker.conns, 0)
}

func TestCloseAllClosesEveryTrackedConnection(t *testing.T) {
	tracker := newConnTracker()
	s1, c1 := net.Pipe()
	s2, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	tracker.track(s1)
	tracker.track(s2)
	require.Len(t, tracker.conns, 2)

	tracker.closeAll()
	require.Len(t, tracker.conns, 0)

	_, err := s1.Write([]byte("x"))
	require.Error(t, err, "closeAll must close the underlying connection")
}

func TestTrackedListenerTracksAcceptedConnections(t *testing.T) {
	tracker := newConnTracker()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	tl := &trackedListener{Listener: ln, tracker: tracker}

	done := make(chan struct{})
	go func() {
		conn, err := tl.Accept()
		require.NoError(t, err)
		_ = conn
		close(done)
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	<-done
	require.Len(t, tracker.conns, 1)
}

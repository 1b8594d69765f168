package httpproxy

import (
	"net"
	"sync"
)

// connTracker is the Proxy Engine's live-socket registry: stop aggressively,
// destroying all tracked live sockets before closing the listener. Every
// connection accepted by the main or a MITM listener, every raw-tunnel
// upstream, and every dial to a local MITM endpoint passes through track so
// Stop can force-close all of them in one pass. Connections opened by the
// upstream http.Client for plain forwarding are not tracked.
type connTracker struct {
	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

func newConnTracker() *connTracker {
	return &connTracker{conns: make(map[net.Conn]struct{})}
}

// track wraps c so its Close deregisters it, and registers it immediately.
func (t *connTracker) track(c net.Conn) net.Conn {
	tc := &trackedConn{Conn: c, tracker: t}
	t.add(tc)
	return tc
}

func (t *connTracker) add(c net.Conn) {
	t.mu.Lock()
	t.conns[c] = struct{}{}
	t.mu.Unlock()
}

func (t *connTracker) remove(c net.Conn) {
	t.mu.Lock()
	delete(t.conns, c)
	t.mu.Unlock()
}

// closeAll force-closes every tracked socket. It is safe to call Close twice
// on the same underlying connection; net.Conn implementations return a
// harmless error the second time, which callers here ignore.
func (t *connTracker) closeAll() {
	t.mu.Lock()
	conns := make([]net.Conn, 0, len(t.conns))
	for c := range t.conns {
		conns = append(conns, c)
	}
	t.conns = make(map[net.Conn]struct{})
	t.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

// trackedConn removes itself from its tracker on Close, so connections that
// end normally (keep-alive HTTP, a finished tunnel) do not linger in the
// registry.
type trackedConn struct {
	net.Conn
	tracker *connTracker
}

func (c *trackedConn) Close() error {
	c.tracker.remove(c)
	return c.Conn.Close()
}

// trackedListener wraps a net.Listener so every accepted connection is
// registered with tracker, covering both the main proxy listener and each
// per-host MITM TLS listener.
type trackedListener struct {
	net.Listener
	tracker *connTracker
}

func (l *trackedListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return l.tracker.track(c), nil
}

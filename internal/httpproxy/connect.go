package httpproxy

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"sync"
	"time"
)

var hasPortRe = regexp.MustCompile(`:\d+$`)

// handleConnect implements CONNECT classification: raw tunnel when MITM is
// disabled, per-host MITM otherwise.
func (p *Proxy) handleConnect(w http.ResponseWriter, r *http.Request) {
	hij, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "hijack unsupported", http.StatusInternalServerError)
		return
	}
	clientConn, _, err := hij.Hijack()
	if err != nil {
		p.log.Warn().Err(err).Msg("hijack failed on CONNECT")
		return
	}

	host := r.Host
	if !hasPort(host) {
		host += ":443"
	}

	if !p.mitmEnabled.Load() {
		p.tunnelConnect(clientConn, host)
		return
	}
	p.mitmConnect(clientConn, host)
}

// tunnelConnect implements the CONNECT path in tunnel mode: a raw TCP splice
// with no records produced for traffic inside it.
func (p *Proxy) tunnelConnect(clientConn net.Conn, host string) {
	upstream, err := net.DialTimeout("tcp", host, 10*time.Second)
	if err != nil {
		_ = writeErrorResponse(clientConn, http.StatusBadGateway, "Bad Gateway", err.Error())
		_ = clientConn.Close()
		return
	}

	clientConn = p.tracker.track(clientConn)
	upstream = p.tracker.track(upstream)
	p.metrics.tunnelsTotal.Inc()

	if _, err := clientConn.Write([]byte("HTTP/1.1 200 Connection Established\r\nProxy-Agent: proxytap\r\n\r\n")); err != nil {
		_ = clientConn.Close()
		_ = upstream.Close()
		return
	}

	splice(clientConn, upstream)
}

// mitmConnect implements the CONNECT path in MITM mode: ensure a local TLS
// endpoint exists for host, respond 200, then splice the client socket to a
// freshly opened connection to that local endpoint. The endpoint's own
// http.Serve loop performs the handshake and re-enters handlePlain with the
// URL reconstructed from the decrypted request.
func (p *Proxy) mitmConnect(clientConn net.Conn, host string) {
	hostname := stripPort(host)

	ep, err := p.getOrCreateMITMEndpoint(hostname)
	if err != nil {
		_ = writeErrorResponse(clientConn, http.StatusInternalServerError, "Internal Server Error", err.Error())
		_ = clientConn.Close()
		return
	}

	localConn, err := net.DialTimeout("tcp", ep.addr, 5*time.Second)
	if err != nil {
		_ = writeErrorResponse(clientConn, http.StatusInternalServerError, "Internal Server Error", err.Error())
		_ = clientConn.Close()
		return
	}

	clientConn = p.tracker.track(clientConn)
	localConn = p.tracker.track(localConn)

	if _, err := clientConn.Write([]byte("HTTP/1.1 200 Connection Established\r\nProxy-Agent: proxytap\r\n\r\n")); err != nil {
		_ = clientConn.Close()
		_ = localConn.Close()
		return
	}

	splice(clientConn, localConn)
}

func splice(a, b net.Conn) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _, _ = io.Copy(a, b) }()
	go func() { defer wg.Done(); _, _ = io.Copy(b, a) }()
	wg.Wait()
	_ = a.Close()
	_ = b.Close()
}

// getOrCreateMITMEndpoint implements the hostname-to-locally-listening-MITM-
// endpoint table: getOrCreate is idempotent under concurrent calls (the CA's
// own per-host lock in internal/ca/cache.go already serializes leaf minting;
// the mitmMu lock here serializes listener creation the same way).
func (p *Proxy) getOrCreateMITMEndpoint(hostname string) (*mitmEndpoint, error) {
	p.mitmMu.Lock()
	defer p.mitmMu.Unlock()

	if ep, ok := p.mitmEndpoints[hostname]; ok {
		return ep, nil
	}

	leaf, err := p.ca.CertificateFor(hostname)
	if err != nil {
		return nil, fmt.Errorf("issuing leaf for %s: %w", hostname, err)
	}

	tlsConfig := &tls.Config{Certificates: []tls.Certificate{*leaf}}
	raw, err := tls.Listen("tcp", "127.0.0.1:0", tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("binding MITM listener for %s: %w", hostname, err)
	}
	ln := &trackedListener{Listener: raw, tracker: p.tracker}

	ep := &mitmEndpoint{listener: ln, addr: ln.Addr().String()}
	p.mitmEndpoints[hostname] = ep
	p.metrics.mitmEndpoints.Set(float64(len(p.mitmEndpoints)))

	go func() {
		if err := http.Serve(ln, http.HandlerFunc(p.ServeHTTP)); err != nil {
			p.log.Debug().Err(err).Str("host", hostname).Msg("MITM endpoint closed")
		}
	}()

	return ep, nil
}

func hasPort(hostport string) bool {
	return hasPortRe.MatchString(hostport)
}

func stripPort(hostport string) string {
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return h
	}
	return hostport
}

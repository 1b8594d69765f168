// Package httpproxy implements the Proxy Engine: listening for HTTP,
// distinguishing plain requests from CONNECT, driving per-host MITM,
// forwarding, and emitting records. Grounded throughout on goproxy's
// proxy.go/https.go/connect.go trio (elazarl-goproxy), rearchitected around
// a chosen MITM strategy: rather than a direct tls.Server on the hijacked
// CONNECT socket, each MITM'd host gets its own locally-bound tls.Listener
// that is itself served by this same handler, so decrypted traffic
// re-enters the identical plain-HTTP code path the rest of the engine
// already exercises.
package httpproxy

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/proxytap/core/internal/ca"
	"github.com/proxytap/core/internal/components"
	"github.com/proxytap/core/internal/flow"
	"github.com/proxytap/core/internal/recorder"
)

type mitmEndpoint struct {
	listener net.Listener
	addr     string
}

// Proxy is the Proxy Engine. One instance owns the main listener, the
// per-host MITM endpoint table, and the live-socket tracker that makes Stop
// bounded and aggressive.
type Proxy struct {
	port        int
	ca          *ca.Authority
	registry    *components.Registry
	flows       *flow.Store
	engine      *flow.Engine
	recorder    *recorder.Recorder
	log         zerolog.Logger
	mitmEnabled atomic.Bool

	tracker    *connTracker
	metrics    *metrics
	upstream   *http.Client
	wsDialer   *websocket.Dialer
	wsUpgrader *websocket.Upgrader

	mu            sync.Mutex
	listener      net.Listener
	server        *http.Server
	mitmMu        sync.Mutex
	mitmEndpoints map[string]*mitmEndpoint
}

// Dependencies bundles Proxy's collaborators, constructed once by the
// application root and handed in by reference.
type Dependencies struct {
	Port        int
	MITMEnabled bool
	CA          *ca.Authority
	Registry    *components.Registry
	Flows       *flow.Store
	Engine      *flow.Engine
	Recorder    *recorder.Recorder
	Log         zerolog.Logger
	MetricsReg  prometheus.Registerer

	// DNSResolver, when non-empty ("host:port"), routes upstream hostname
	// resolution through that DNS server instead of the OS resolver.
	DNSResolver string
}

// New constructs a Proxy. Start must be called to begin listening.
func New(d Dependencies) *Proxy {
	p := &Proxy{
		port:          d.Port,
		ca:            d.CA,
		registry:      d.Registry,
		flows:         d.Flows,
		engine:        d.Engine,
		recorder:      d.Recorder,
		log:           d.Log,
		tracker:       newConnTracker(),
		metrics:       newMetrics(d.MetricsReg),
		mitmEndpoints: make(map[string]*mitmEndpoint),
		upstream: &http.Client{
			Transport: &http.Transport{
				Proxy:                 nil,
				DialContext:           dialContext(d.DNSResolver),
				MaxIdleConns:          100,
				IdleConnTimeout:       30 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
			// The engine reads the whole response body itself to decide
			// textuality and record it; it must not follow redirects on
			// the client's behalf.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		wsDialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		wsUpgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	p.mitmEnabled.Store(d.MITMEnabled)
	return p
}

// SetMITMEnabled flips the runtime "httpsMitmEnabled" knob: mutable while
// running, and disabling does not tear down existing tunnels.
func (p *Proxy) SetMITMEnabled(enabled bool) { p.mitmEnabled.Store(enabled) }

// MITMEnabled reports the current runtime knob value.
func (p *Proxy) MITMEnabled() bool { return p.mitmEnabled.Load() }

// Start binds the configured port and begins serving: TCP, HTTP/1.1,
// absolute- and origin-form targets.
func (p *Proxy) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", p.port))
	if err != nil {
		return fmt.Errorf("proxy listener bind on port %d: %w", p.port, err)
	}
	p.listener = &trackedListener{Listener: ln, tracker: p.tracker}
	p.server = &http.Server{Handler: http.HandlerFunc(p.ServeHTTP)}

	go func() {
		if err := p.server.Serve(p.listener); err != nil && err != http.ErrServerClosed {
			p.log.Error().Err(err).Msg("proxy listener stopped")
		}
	}()

	p.log.Info().Int("port", p.port).Msg("proxy engine listening")
	return nil
}

// Stop destroys every tracked live socket before closing the listener and
// every per-host MITM endpoint: bounded even with long-lived tunnels, no
// graceful drain.
func (p *Proxy) Stop() {
	p.tracker.closeAll()

	p.mu.Lock()
	if p.listener != nil {
		_ = p.listener.Close()
	}
	p.mu.Unlock()

	p.mitmMu.Lock()
	for host, ep := range p.mitmEndpoints {
		_ = ep.listener.Close()
		delete(p.mitmEndpoints, host)
	}
	p.mitmMu.Unlock()
	p.metrics.mitmEndpoints.Set(0)
}

// ServeHTTP classifies every inbound request: CONNECT enters the
// tunnel/MITM path, a WebSocket upgrade is relayed directly, anything else
// is the plain HTTP path (which also serves decrypted MITM traffic
// re-entering through a local TLS listener).
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodConnect:
		p.handleConnect(w, r)
	case websocket.IsWebSocketUpgrade(r):
		p.handleWebSocket(w, r)
	default:
		p.handlePlain(w, r)
	}
}

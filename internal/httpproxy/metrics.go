package httpproxy

import "github.com/prometheus/client_golang/prometheus"

// metrics are the Proxy Engine's prometheus instruments, grounded on
// goproxy's own client_golang dependency (declared but unwired in goproxy's
// go.mod) — wired here against the components this module actually has:
// requests served, forwarding duration, live MITM endpoints, and raw
// CONNECT tunnels opened.
type metrics struct {
	requestsTotal   *prometheus.CounterVec
	forwardDuration *prometheus.HistogramVec
	mitmEndpoints   prometheus.Gauge
	tunnelsTotal    prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proxytap_requests_total",
			Help: "HTTP requests handled by the proxy engine, by outcome.",
		}, []string{"outcome"}),
		forwardDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "proxytap_forward_duration_seconds",
			Help:    "Time spent forwarding a request upstream.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		mitmEndpoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "proxytap_mitm_endpoints",
			Help: "Number of live per-host MITM TLS listeners.",
		}),
		tunnelsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxytap_raw_tunnels_total",
			Help: "CONNECT tunnels opened with MITM disabled.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.requestsTotal, m.forwardDuration, m.mitmEndpoints, m.tunnelsTotal)
	}
	return m
}

package httpproxy

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func TestDNSResolverLookupReturnsIPLiteralUnchanged(t *testing.T) {
	r := newDNSResolver("127.0.0.1:1")
	ip, err := r.lookup(context.Background(), "10.0.0.5")
	require.NoError(t, err)
	require.Equal(t, "10.0.0.5", ip)
}

func TestDNSResolverLookupQueriesConfiguredServer(t *testing.T) {
	mux := dns.NewServeMux()
	mux.HandleFunc("example.test.", func(w dns.ResponseWriter, req *dns.Msg) {
		msg := new(dns.Msg)
		msg.SetReply(req)
		if len(req.Question) > 0 && req.Question[0].Qtype == dns.TypeA {
			rr, err := dns.NewRR("example.test. 60 IN A 203.0.113.9")
			require.NoError(t, err)
			msg.Answer = append(msg.Answer, rr)
		}
		_ = w.WriteMsg(msg)
	})

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	server := &dns.Server{PacketConn: pc, Handler: mux}
	go func() { _ = server.ActivateAndServe() }()
	defer server.Shutdown()

	r := newDNSResolver(pc.LocalAddr().String())
	ip, err := r.lookup(context.Background(), "example.test")
	require.NoError(t, err)
	require.Equal(t, "203.0.113.9", ip)
}

func TestDialContextWithResolverFallsBackWhenLookupFails(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	r := newDNSResolver("127.0.0.1:1")
	r.client.Timeout = 200 * time.Millisecond

	dial := dialContextWithResolver(&net.Dialer{Timeout: time.Second}, r)
	conn, err := dial(context.Background(), "tcp", ln.Addr().String())
	require.NoError(t, err)
	_ = conn.Close()
}

func TestDialContextReturnsPlainDialerWhenNoServerConfigured(t *testing.T) {
	fn := dialContext("")
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	conn, err := fn(context.Background(), "tcp", ln.Addr().String())
	require.NoError(t, err)
	_ = conn.Close()
}

package httpproxy

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// dnsResolver resolves upstream hostnames against a single configured DNS
// server instead of the OS resolver, so a proxy run can be pointed at an
// internal or test resolver without touching the host's network config.
type dnsResolver struct {
	server string
	client *dns.Client
}

func newDNSResolver(server string) *dnsResolver {
	return &dnsResolver{
		server: server,
		client: &dns.Client{Timeout: 5 * time.Second},
	}
}

// lookup returns the first A (falling back to AAAA) record for host.
func (r *dnsResolver) lookup(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}
	fqdn := dns.Fqdn(host)
	if ip, ok := r.query(ctx, fqdn, dns.TypeA); ok {
		return ip, nil
	}
	if ip, ok := r.query(ctx, fqdn, dns.TypeAAAA); ok {
		return ip, nil
	}
	return "", fmt.Errorf("dnsResolver: no A/AAAA record for %s from %s", host, r.server)
}

func (r *dnsResolver) query(ctx context.Context, fqdn string, qtype uint16) (string, bool) {
	msg := new(dns.Msg)
	msg.SetQuestion(fqdn, qtype)
	msg.RecursionDesired = true
	resp, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil || resp == nil {
		return "", false
	}
	for _, rr := range resp.Answer {
		switch rec := rr.(type) {
		case *dns.A:
			return rec.A.String(), true
		case *dns.AAAA:
			return rec.AAAA.String(), true
		}
	}
	return "", false
}

// dialContextWithResolver wraps a net.Dialer so outbound dials resolve the
// hostname through resolver first, preserving the original port.
func dialContextWithResolver(dialer *net.Dialer, resolver *dnsResolver) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			host, port = addr, ""
		}
		ip, err := resolver.lookup(ctx, host)
		if err != nil {
			return dialer.DialContext(ctx, network, addr)
		}
		resolved := ip
		if port != "" {
			resolved = net.JoinHostPort(ip, port)
		}
		return dialer.DialContext(ctx, network, resolved)
	}
}

// dialContext builds the upstream Transport's DialContext: a plain dialer
// when dnsServer is empty, or one that resolves through dnsServer first.
func dialContext(dnsServer string) func(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	if dnsServer == "" {
		return dialer.DialContext
	}
	return dialContextWithResolver(dialer, newDNSResolver(dnsServer))
}

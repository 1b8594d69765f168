// Package osintegration declares the three opaque, platform-specific
// capabilities treated as external collaborators: driving the OS
// system-proxy setting, detecting its current state, and installing the
// root CA into the host trust store. The core never implements these; it
// only invokes them through this interface.
package osintegration

// ProxyStatus is the result of DetectSystemProxy.
type ProxyStatus struct {
	Enabled                 bool
	MatchesExpectedHostPort bool
	ObservedHost            string
	ObservedPort            int
	Source                  string
	RawOutput               string
}

// TrustResult is the result of InstallRootCA. The trust-store lookup
// (IsCertTrusted) reports a Trusted value and a detail string instead.
type TrustResult struct {
	Success bool
	Message string
}

// Trusted mirrors the CA Status()'s {trusted: true/false/unknown} shape.
type Trusted int

const (
	TrustUnknown Trusted = iota
	TrustedYes
	TrustedNo
)

// Integration is implemented per-OS outside this module; the core depends
// only on this interface.
type Integration interface {
	ApplySystemProxy(enabled bool, host string, port int) error
	DetectSystemProxy() (ProxyStatus, error)
	InstallRootCA(certPEM []byte) (TrustResult, error)
	// IsCertTrusted performs a best-effort lookup of a certificate with the
	// given subject common name in the host trust store.
	IsCertTrusted(commonName string) (Trusted, string, error)
}

// Noop is a zero-effect Integration used when no OS collaborator is wired,
// e.g. in tests or on platforms without an implementation yet.
type Noop struct{}

func (Noop) ApplySystemProxy(bool, string, int) error { return nil }

func (Noop) DetectSystemProxy() (ProxyStatus, error) {
	return ProxyStatus{Source: "noop"}, nil
}

func (Noop) InstallRootCA([]byte) (TrustResult, error) {
	return TrustResult{Success: false, Message: "no OS integration configured"}, nil
}

func (Noop) IsCertTrusted(string) (Trusted, string, error) {
	return TrustUnknown, "no OS integration configured", nil
}

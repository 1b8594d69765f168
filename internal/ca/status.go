package ca

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/proxytap/core/internal/osintegration"
)

// Status reports whether a root is loaded, its subject common name, its
// validity window, the durable path of the certificate, and a best-effort
// OS trust-store check.
type Status struct {
	Loaded      bool
	CommonName  string
	NotBefore   time.Time
	NotAfter    time.Time
	CertPath    string
	Trusted     osintegration.Trusted
	TrustDetail string
}

// Status reports the authority's current state. osi may be nil, in which
// case the trust check reports TrustUnknown.
func (a *Authority) Status(osi osintegration.Integration) Status {
	a.mu.RLock()
	defer a.mu.RUnlock()

	st := Status{CertPath: filepath.Join(a.dir, rootCertFile)}
	if a.rootCert == nil {
		return st
	}

	st.Loaded = true
	st.CommonName = a.rootCert.Subject.CommonName
	st.NotBefore = a.rootCert.NotBefore
	st.NotAfter = a.rootCert.NotAfter

	if osi == nil {
		st.Trusted = osintegration.TrustUnknown
		st.TrustDetail = "no OS integration configured"
		return st
	}

	trusted, detail, err := osi.IsCertTrusted(st.CommonName)
	if err != nil {
		st.Trusted = osintegration.TrustUnknown
		st.TrustDetail = fmt.Sprintf("trust check failed: %v", err)
		return st
	}
	st.Trusted = trusted
	st.TrustDetail = detail
	return st
}

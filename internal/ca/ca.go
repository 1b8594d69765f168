// Package ca implements the Certificate Authority component: a long-lived
// root signer, loaded or minted once, and a per-hostname leaf cache.
// Grounded on goproxy's signer.go/cached_signer.go/certs.go trio,
// generalized from a single package-level GoproxyCa global into an owned,
// constructible Authority.
package ca

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	rootKeyBits  = 2048
	rootValidity = 10 * 365 * 24 * time.Hour
	leafBits     = 2048
	leafValidity = 365 * 24 * time.Hour

	rootKeyFile  = "ca-key.pem"
	rootCertFile = "ca-cert.pem"
)

// Authority owns the root key material and the per-hostname leaf cache. It
// is constructed once by the application root and handed by reference to
// the Proxy Engine and Flow Engine's dependents.
type Authority struct {
	dir string

	mu       sync.RWMutex
	rootCert *x509.Certificate
	rootKey  *rsa.PrivateKey
	rootTLS  tls.Certificate

	leaves *leafCache
}

// New constructs an Authority rooted at dir, without loading or minting
// anything yet; call Initialize to do that.
func New(dir string) *Authority {
	return &Authority{dir: dir, leaves: newLeafCache()}
}

// Initialize loads the persisted root from dir if present, otherwise mints a
// fresh self-signed root and persists it.
func (a *Authority) Initialize() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	keyPath := filepath.Join(a.dir, rootKeyFile)
	certPath := filepath.Join(a.dir, rootCertFile)

	if fileExists(keyPath) && fileExists(certPath) {
		keyPEM, err := os.ReadFile(keyPath)
		if err != nil {
			return fmt.Errorf("reading root key: %w", err)
		}
		certPEM, err := os.ReadFile(certPath)
		if err != nil {
			return fmt.Errorf("reading root cert: %w", err)
		}
		return a.loadLocked(keyPEM, certPEM)
	}

	keyPEM, certPEM, err := generateRoot()
	if err != nil {
		return fmt.Errorf("generating root CA: %w", err)
	}
	if err := os.MkdirAll(a.dir, 0o700); err != nil {
		return fmt.Errorf("creating CA dir: %w", err)
	}
	if err := writeFileAtomic(keyPath, keyPEM, 0o600); err != nil {
		return err
	}
	if err := writeFileAtomic(certPath, certPEM, 0o644); err != nil {
		return err
	}
	return a.loadLocked(keyPEM, certPEM)
}

// Import replaces the in-memory root with externally supplied PEM blobs and
// persists them atomically.
func (a *Authority) Import(keyPEM, certPEM []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.loadLocked(keyPEM, certPEM); err != nil {
		return err
	}
	if err := os.MkdirAll(a.dir, 0o700); err != nil {
		return fmt.Errorf("creating CA dir: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(a.dir, rootKeyFile), keyPEM, 0o600); err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(a.dir, rootCertFile), certPEM, 0o644); err != nil {
		return err
	}
	a.leaves.reset()
	return nil
}

func (a *Authority) loadLocked(keyPEM, certPEM []byte) error {
	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return fmt.Errorf("parsing root key pair: %w", err)
	}
	cert, err := x509.ParseCertificate(tlsCert.Certificate[0])
	if err != nil {
		return fmt.Errorf("parsing root certificate: %w", err)
	}
	key, ok := tlsCert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("root private key is not RSA")
	}
	a.rootTLS = tlsCert
	a.rootCert = cert
	a.rootKey = key
	return nil
}

// CertificateFor returns the cached leaf for hostname, minting and caching
// one on first use.
func (a *Authority) CertificateFor(hostname string) (*tls.Certificate, error) {
	a.mu.RLock()
	root := a.rootCert
	rootKey := a.rootKey
	a.mu.RUnlock()

	if root == nil || rootKey == nil {
		return nil, fmt.Errorf("certificate authority has no loaded root")
	}

	return a.leaves.Fetch(hostname, func() (*tls.Certificate, error) {
		return signLeaf(root, rootKey, hostname)
	})
}

// RootCertPEM returns the current root certificate, PEM-encoded, for callers
// that need to hand it to a client (e.g. the OS trust-store installer).
func (a *Authority) RootCertPEM() ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.rootCert == nil {
		return nil, fmt.Errorf("certificate authority has no loaded root")
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: a.rootCert.Raw}), nil
}

func generateRoot() (keyPEM, certPEM []byte, err error) {
	key, err := rsa.GenerateKey(rand.Reader, rootKeyBits)
	if err != nil {
		return nil, nil, err
	}

	serial, err := randSerial()
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"proxytap untrusted MITM proxy"},
			CommonName:   "proxytap root CA",
		},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(rootValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, err
	}

	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	return keyPEM, certPEM, nil
}

func signLeaf(root *x509.Certificate, rootKey *rsa.PrivateKey, hostname string) (*tls.Certificate, error) {
	leafKey, err := rsa.GenerateKey(rand.Reader, leafBits)
	if err != nil {
		return nil, err
	}

	serial, err := randSerial()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"proxytap untrusted MITM proxy"},
			CommonName:   hostname,
		},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(leafValidity),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	if ip := net.ParseIP(hostname); ip != nil {
		template.IPAddresses = []net.IP{ip}
	} else {
		template.DNSNames = []string{hostname}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, root, &leafKey.PublicKey, rootKey)
	if err != nil {
		return nil, fmt.Errorf("signing leaf for %s: %w", hostname, err)
	}

	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}

	return &tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  leafKey,
		Leaf:        leaf,
	}, nil
}

func randSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	return rand.Int(rand.Reader, limit)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", tmp, path, err)
	}
	return nil
}

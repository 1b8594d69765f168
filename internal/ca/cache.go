package ca

import (
	"crypto/tls"
	"sync"
)

// leafCache is the per-hostname leaf certificate cache: a cache miss mints a
// new leaf, and entries are functionally immutable for their validity
// window. We block concurrent misses on the same host behind a per-host
// lock, grounded on the Fetch(hostname, gen) shape from goproxy's sibling
// example (examples/goproxy-certstorage/storage.go).
type leafCache struct {
	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	entries sync.Map // hostname -> *tls.Certificate
}

func newLeafCache() *leafCache {
	return &leafCache{locks: make(map[string]*sync.Mutex)}
}

// Fetch returns the cached leaf for hostname, calling gen to mint one on a
// first miss. Concurrent Fetch calls for the same hostname serialize on a
// per-host lock so only one mint happens; calls for different hostnames
// never block each other.
func (c *leafCache) Fetch(hostname string, gen func() (*tls.Certificate, error)) (*tls.Certificate, error) {
	if v, ok := c.entries.Load(hostname); ok {
		return v.(*tls.Certificate), nil
	}

	lock := c.lockFor(hostname)
	lock.Lock()
	defer lock.Unlock()

	if v, ok := c.entries.Load(hostname); ok {
		return v.(*tls.Certificate), nil
	}

	cert, err := gen()
	if err != nil {
		return nil, err
	}
	c.entries.Store(hostname, cert)
	return cert, nil
}

func (c *leafCache) lockFor(hostname string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.locks[hostname]; ok {
		return l
	}
	l := &sync.Mutex{}
	c.locks[hostname] = l
	return l
}

func (c *leafCache) reset() {
	c.mu.Lock()
	c.locks = make(map[string]*sync.Mutex)
	c.mu.Unlock()
	c.entries.Range(func(k, _ any) bool {
		c.entries.Delete(k)
		return true
	})
}

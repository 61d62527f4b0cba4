package executor

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"IntentLane/internal/sigcheck"
)

// Registry manages one execution proxy per user identity. Proxies share the
// domain scope, the execution store, and the capability token; each acts only
// under its own user's authority.
type Registry struct {
	domainID   uint64
	store      ExecutionStore
	verifier   sigcheck.Verifier
	capability Capability
	opts       []ProxyOption

	mu      sync.Mutex
	proxies map[common.Address]*Proxy
}

// NewRegistry constructs a proxy registry.
func NewRegistry(domainID uint64, store ExecutionStore, verifier sigcheck.Verifier, capability Capability, opts ...ProxyOption) *Registry {
	return &Registry{
		domainID:   domainID,
		store:      store,
		verifier:   verifier,
		capability: capability,
		opts:       opts,
		proxies:    make(map[common.Address]*Proxy),
	}
}

// ProxyFor returns the proxy bound to the user, creating it on first use.
func (r *Registry) ProxyFor(user common.Address) *Proxy {
	r.mu.Lock()
	defer r.mu.Unlock()
	if proxy, ok := r.proxies[user]; ok {
		return proxy
	}
	proxy := NewProxy(user, r.domainID, r.store, r.verifier, r.capability, r.opts...)
	r.proxies[user] = proxy
	return proxy
}

// Close releases the shared execution store.
func (r *Registry) Close() error {
	if r == nil || r.store == nil {
		return nil
	}
	return r.store.Close()
}

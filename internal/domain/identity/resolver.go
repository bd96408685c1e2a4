package identity

import (
	"errors"
	"net/url"
	"sync"

	"github.com/dataview-hq/dataview/internal/shared/id"
)

// ErrNotReady is returned when a cache namespace is requested before
// identity resolution has completed.
var ErrNotReady = errors.New("identity not resolved")

// Resolver holds the resolved cache namespace for the current user.
//
// Every cache read and write in the gateway is partitioned by this
// namespace, and none may happen before resolution completes: callers
// must go through Namespace and treat ErrNotReady as "not yet" rather
// than racing the resolution. The namespace is fixed for the process
// lifetime once set; it is never mutated in place.
type Resolver struct {
	mu    sync.RWMutex
	ns    string
	ready bool
}

// NewResolver creates a resolver in the NotReady state.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve marks the resolver Ready with the given namespace. A second
// call is ignored; the first resolution wins.
func (r *Resolver) Resolve(ns string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready {
		return
	}
	r.ns = ns
	r.ready = true
}

// Namespace returns the resolved namespace or ErrNotReady.
func (r *Resolver) Namespace() (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.ready {
		return "", ErrNotReady
	}
	return r.ns, nil
}

// IsReady reports whether resolution has completed.
func (r *Resolver) IsReady() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready
}

// Derive produces the stable namespace for a named user. The same user
// always maps to the same namespace across restarts.
func Derive(user string) string {
	return "user-" + url.PathEscape(user)
}

// Mint produces a fresh anonymous namespace.
func Mint() string {
	return id.NewNamespaceID().String()
}

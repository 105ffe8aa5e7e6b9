package rxgrid

import (
	"time"

	"github.com/vk/rxgridgo/internal/nodeid"
)

// cacheMode selects the memoization behavior of a node.
type cacheMode int

const (
	cacheManual cacheMode = iota
	cacheNone
	cacheTTL
)

// CachePolicy controls when a node's cached value stops being trusted.
type CachePolicy struct {
	mode cacheMode
	ttl  time.Duration
}

// PolicyManual keeps a value until an explicit invalidate or refresh.
// This is the default.
var PolicyManual = CachePolicy{mode: cacheManual}

// PolicyNone never trusts the cache for unobserved nodes: every read of a
// node with no active watchers rebuilds it. While watched, the value is kept
// current by invalidation propagation and reads serve the cache.
var PolicyNone = CachePolicy{mode: cacheNone}

// PolicyTTL keeps a value fresh for d after each successful build; the first
// read past the deadline rebuilds. Expiry is checked lazily on read, no
// timers are involved.
func PolicyTTL(d time.Duration) CachePolicy {
	return CachePolicy{mode: cacheTTL, ttl: d}
}

// options is the per-registration configuration shared by all node kinds.
type options struct {
	autoDispose  bool
	cache        CachePolicy
	keepPrevious bool
	keyFn        nodeid.KeyFunc
}

// Option configures a provider registration.
type Option func(*options)

// WithAutoDispose reclaims the node once it has no remaining watchers or
// dependents, after a one-tick grace window.
func WithAutoDispose() Option {
	return func(o *options) { o.autoDispose = true }
}

// WithCachePolicy selects the node's memoization policy.
func WithCachePolicy(p CachePolicy) Option {
	return func(o *options) { o.cache = p }
}

// WithKeepPrevious selects refresh semantics for async and stream providers:
// while a rebuild is in flight, the AsyncValue keeps exposing the last Ready
// value instead of resetting. Sync providers ignore it.
func WithKeepPrevious() Option {
	return func(o *options) { o.keepPrevious = true }
}

// WithKeyFunc overrides a family's argument canonicalization. The default
// performs deep structural comparison; supply a key function when arguments
// carry non-structural state (functions, untagged structs) or need custom
// equality. Non-family providers ignore it.
func WithKeyFunc(fn func(arg any) (string, error)) Option {
	return func(o *options) { o.keyFn = fn }
}

func applyOptions(opts []Option) options {
	o := options{cache: PolicyManual}
	for _, apply := range opts {
		apply(&o)
	}
	return o
}

package rxgrid

import (
	"time"

	"github.com/vk/rxgridgo/config"
)

// WithSettings applies loaded settings to the container: the default cache
// policy for providers that did not choose one, and per-provider tuning by
// registration name. Tuning binds at node creation, so settings must be
// installed before the first read.
func WithSettings(s *config.Settings) ContainerOption {
	return func(c *Container) {
		if s == nil {
			return
		}
		if p, ok := policyFromConfig(s.DefaultCache, s.DefaultTTL); ok {
			c.defaultCache = &p
		}
		for name, t := range s.Providers {
			var nt nodeTuning
			if p, ok := policyFromConfig(t.Cache, t.TTL); ok {
				nt.cache = &p
			}
			nt.autoDispose = t.AutoDispose
			c.tunings[name] = nt
		}
	}
}

func policyFromConfig(mode string, ttl time.Duration) (CachePolicy, bool) {
	switch mode {
	case config.CacheManual:
		return PolicyManual, true
	case config.CacheNone:
		return PolicyNone, true
	case config.CacheTTL:
		return PolicyTTL(ttl), true
	default:
		return CachePolicy{}, false
	}
}

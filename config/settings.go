// Package config loads runtime tuning for a provider container from HCL:
// logging, the default cache policy, and per-provider overrides. All of it
// is optional; a container built without settings behaves identically to
// one loaded from an empty file.
package config

import (
	"fmt"
	"time"
)

// Cache mode names accepted in settings files.
const (
	CacheManual = "manual"
	CacheNone   = "none"
	CacheTTL    = "ttl"
)

// Settings is the validated, format-agnostic settings model.
type Settings struct {
	LogLevel  string
	LogFormat string

	// DefaultCache applies to providers that did not choose a policy at
	// registration. Empty means leave registrations untouched.
	DefaultCache string
	DefaultTTL   time.Duration

	// Providers overrides individual providers by registration name. Family
	// instances share their family's name and tuning.
	Providers map[string]ProviderTuning
}

// ProviderTuning is the per-provider override set. Nil/empty fields leave
// the registration's own choice in place.
type ProviderTuning struct {
	Cache       string
	TTL         time.Duration
	AutoDispose *bool
}

// Validate checks the settings for internal consistency. It is called by
// Load; construct-by-hand callers should run it themselves.
func (s *Settings) Validate() error {
	switch s.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q (want debug, info, warn or error)", s.LogLevel)
	}
	switch s.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log_format %q (want text or json)", s.LogFormat)
	}
	if err := validateCache("default_cache", s.DefaultCache, s.DefaultTTL); err != nil {
		return err
	}
	for name, t := range s.Providers {
		if name == "" {
			return fmt.Errorf("provider block requires a non-empty name label")
		}
		if err := validateCache(fmt.Sprintf("provider %q cache", name), t.Cache, t.TTL); err != nil {
			return err
		}
	}
	return nil
}

func validateCache(field, mode string, ttl time.Duration) error {
	switch mode {
	case "":
		return nil
	case CacheManual, CacheNone:
		return nil
	case CacheTTL:
		if ttl <= 0 {
			return fmt.Errorf("%s is %q but ttl is not a positive duration", field, mode)
		}
		return nil
	default:
		return fmt.Errorf("invalid %s %q (want %s, %s or %s)", field, mode, CacheManual, CacheNone, CacheTTL)
	}
}

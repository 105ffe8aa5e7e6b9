package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// fileRoot decodes all top-level blocks a settings file may carry.
type fileRoot struct {
	Container *containerBlock  `hcl:"container,block"`
	Providers []*providerBlock `hcl:"provider,block"`
}

type containerBlock struct {
	LogLevel     *string `hcl:"log_level,optional"`
	LogFormat    *string `hcl:"log_format,optional"`
	DefaultCache *string `hcl:"default_cache,optional"`
	DefaultTTL   *string `hcl:"default_ttl,optional"`
}

type providerBlock struct {
	Name        string  `hcl:"name,label"`
	Cache       *string `hcl:"cache,optional"`
	TTL         *string `hcl:"ttl,optional"`
	AutoDispose *bool   `hcl:"auto_dispose,optional"`
}

// Load parses and validates one HCL settings file.
func Load(path string) (*Settings, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing settings file %s: %w", path, diags)
	}

	var root fileRoot
	diags = gohcl.DecodeBody(file.Body, nil, &root)
	if diags.HasErrors() {
		return nil, fmt.Errorf("decoding settings file %s: %w", path, diags)
	}
	return translate(&root)
}

// LoadBytes parses and validates in-memory HCL source, for tests and
// embedded defaults. filename only labels diagnostics.
func LoadBytes(src []byte, filename string) (*Settings, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing settings %s: %w", filename, diags)
	}

	var root fileRoot
	diags = gohcl.DecodeBody(file.Body, nil, &root)
	if diags.HasErrors() {
		return nil, fmt.Errorf("decoding settings %s: %w", filename, diags)
	}
	return translate(&root)
}

func translate(root *fileRoot) (*Settings, error) {
	s := &Settings{Providers: make(map[string]ProviderTuning)}

	if cb := root.Container; cb != nil {
		s.LogLevel = deref(cb.LogLevel)
		s.LogFormat = deref(cb.LogFormat)
		s.DefaultCache = deref(cb.DefaultCache)
		if cb.DefaultTTL != nil {
			d, err := time.ParseDuration(*cb.DefaultTTL)
			if err != nil {
				return nil, fmt.Errorf("invalid default_ttl: %w", err)
			}
			s.DefaultTTL = d
		}
	}

	for _, pb := range root.Providers {
		if _, dup := s.Providers[pb.Name]; dup {
			return nil, fmt.Errorf("duplicate provider block %q", pb.Name)
		}
		t := ProviderTuning{
			Cache:       deref(pb.Cache),
			AutoDispose: pb.AutoDispose,
		}
		if pb.TTL != nil {
			d, err := time.ParseDuration(*pb.TTL)
			if err != nil {
				return nil, fmt.Errorf("provider %q: invalid ttl: %w", pb.Name, err)
			}
			t.TTL = d
		}
		s.Providers[pb.Name] = t
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

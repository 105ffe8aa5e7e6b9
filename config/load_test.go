package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBytes(t *testing.T) {
	src := `
container {
  log_level     = "debug"
  log_format    = "json"
  default_cache = "ttl"
  default_ttl   = "30s"
}

provider "session" {
  cache = "manual"
}

provider "weather" {
  cache        = "ttl"
  ttl          = "1m"
  auto_dispose = true
}
`
	s, err := LoadBytes([]byte(src), "settings.hcl")
	require.NoError(t, err)

	assert.Equal(t, "debug", s.LogLevel)
	assert.Equal(t, "json", s.LogFormat)
	assert.Equal(t, CacheTTL, s.DefaultCache)
	assert.Equal(t, 30*time.Second, s.DefaultTTL)

	require.Len(t, s.Providers, 2)
	assert.Equal(t, CacheManual, s.Providers["session"].Cache)

	weather := s.Providers["weather"]
	assert.Equal(t, CacheTTL, weather.Cache)
	assert.Equal(t, time.Minute, weather.TTL)
	require.NotNil(t, weather.AutoDispose)
	assert.True(t, *weather.AutoDispose)
}

func TestLoadBytesEmpty(t *testing.T) {
	s, err := LoadBytes(nil, "empty.hcl")
	require.NoError(t, err)
	assert.Empty(t, s.LogLevel)
	assert.Empty(t, s.DefaultCache)
	assert.Empty(t, s.Providers)
}

func TestLoadBytesErrors(t *testing.T) {
	t.Run("unknown cache mode", func(t *testing.T) {
		_, err := LoadBytes([]byte(`provider "a" { cache = "forever" }`), "bad.hcl")
		assert.ErrorContains(t, err, "invalid")
	})

	t.Run("ttl mode without duration", func(t *testing.T) {
		_, err := LoadBytes([]byte(`provider "a" { cache = "ttl" }`), "bad.hcl")
		assert.ErrorContains(t, err, "ttl")
	})

	t.Run("unparseable duration", func(t *testing.T) {
		_, err := LoadBytes([]byte(`provider "a" { ttl = "soon" }`), "bad.hcl")
		assert.ErrorContains(t, err, "invalid ttl")
	})

	t.Run("duplicate provider block", func(t *testing.T) {
		src := `
provider "a" { cache = "manual" }
provider "a" { cache = "none" }
`
		_, err := LoadBytes([]byte(src), "bad.hcl")
		assert.ErrorContains(t, err, "duplicate provider block")
	})

	t.Run("bad log level", func(t *testing.T) {
		_, err := LoadBytes([]byte(`container { log_level = "loud" }`), "bad.hcl")
		assert.ErrorContains(t, err, "log_level")
	})
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`container { log_level = "warn" }`), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", s.LogLevel)

	_, err = Load(filepath.Join(dir, "missing.hcl"))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLogger("debug", "text", &buf)
	logger.Debug("visible")
	assert.Contains(t, buf.String(), "visible")

	buf.Reset()
	logger = NewLogger("error", "json", &buf)
	logger.Info("hidden")
	assert.Empty(t, buf.String())
	logger.Error("surfaced")
	assert.Contains(t, buf.String(), `"surfaced"`)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault_PassesValidation(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "stallwatch.db", cfg.Database.Path)
	assert.Equal(t, 4, cfg.Pool.Size)
	assert.Equal(t, 5*time.Second, cfg.Pool.AcquireTimeout)
	assert.Equal(t, 4, cfg.Retry.MaxRetries)
	assert.Equal(t, 24*time.Hour, cfg.Report.Window)
	assert.Equal(t, 50, cfg.Report.Limit)
}

func TestLoad_ParsesYAMLWithDurations(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /data/traders.db
  busy_timeout: 3s
pool:
  size: 8
  acquire_timeout: 500ms
  max_age: 2h
retry:
  max_retries: 6
  base_delay: 25ms
cache:
  evict_min_hits: 3
  evict_max_age: 72h
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/traders.db", cfg.Database.Path)
	assert.Equal(t, 3*time.Second, cfg.Database.BusyTimeout)
	assert.Equal(t, 8, cfg.Pool.Size)
	assert.Equal(t, 500*time.Millisecond, cfg.Pool.AcquireTimeout)
	assert.Equal(t, 2*time.Hour, cfg.Pool.MaxAge)
	assert.Equal(t, 6, cfg.Retry.MaxRetries)
	assert.Equal(t, 25*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 3, cfg.Cache.EvictMinHits)
	assert.Equal(t, 72*time.Hour, cfg.Cache.EvictMaxAge)
}

func TestLoad_ExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("STALLWATCH_DB_DIR", "/var/lib/stallwatch")

	path := writeConfig(t, `
database:
  path: ${STALLWATCH_DB_DIR}/traders.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/stallwatch/traders.db", cfg.Database.Path)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "pool: [not a mapping")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadAndValidate_EmptyPathYieldsDefaults(t *testing.T) {
	cfg, err := LoadAndValidate("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadAndValidate_FillsUnsetFields(t *testing.T) {
	path := writeConfig(t, `
pool:
  size: 2
`)

	cfg, err := LoadAndValidate(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Pool.Size)
	assert.Equal(t, "stallwatch.db", cfg.Database.Path)
	assert.Equal(t, time.Minute, cfg.Pool.SweepInterval)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty path", func(c *Config) { c.Database.Path = "" }},
		{"idle exceeds age", func(c *Config) {
			c.Pool.MaxAge = time.Minute
			c.Pool.MaxIdle = time.Hour
		}},
		{"jitter above one", func(c *Config) { c.Retry.JitterFraction = 1.5 }},
		{"jitter negative", func(c *Config) { c.Retry.JitterFraction = -0.1 }},
		{"base delay exceeds max", func(c *Config) {
			c.Retry.BaseDelay = 10 * time.Second
			c.Retry.MaxDelay = time.Second
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

// Package config holds the stallwatch runtime configuration.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Pool     PoolConfig     `yaml:"pool"`
	Retry    RetryConfig    `yaml:"retry"`
	Cache    CacheConfig    `yaml:"cache"`
	Report   ReportConfig   `yaml:"report"`
}

// DatabaseConfig locates and tunes the embedded database.
type DatabaseConfig struct {
	Path        string        `yaml:"path"`
	CacheSizeKB int           `yaml:"cache_size_kb"`
	MmapSize    int64         `yaml:"mmap_size"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	Size           int           `yaml:"size"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	MaxAge         time.Duration `yaml:"max_age"`
	MaxIdle        time.Duration `yaml:"max_idle"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
}

// RetryConfig holds the write retry policy.
type RetryConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	JitterFraction float64       `yaml:"jitter_fraction"`
}

// CacheConfig holds ocr_cache eviction settings.
type CacheConfig struct {
	EvictMinHits int           `yaml:"evict_min_hits"`
	EvictMaxAge  time.Duration `yaml:"evict_max_age"`
}

// ReportConfig holds defaults for read-only queries.
type ReportConfig struct {
	Window time.Duration `yaml:"window"`
	Limit  int           `yaml:"limit"`
}

// applyDefaults fills zero-valued fields.
func (c *Config) applyDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = "stallwatch.db"
	}
	if c.Database.CacheSizeKB <= 0 {
		c.Database.CacheSizeKB = 64 * 1024
	}
	if c.Database.MmapSize <= 0 {
		c.Database.MmapSize = 256 * 1024 * 1024
	}
	if c.Database.BusyTimeout <= 0 {
		c.Database.BusyTimeout = 5 * time.Second
	}

	if c.Pool.Size <= 0 {
		c.Pool.Size = 4
	}
	if c.Pool.AcquireTimeout <= 0 {
		c.Pool.AcquireTimeout = 5 * time.Second
	}
	if c.Pool.MaxAge <= 0 {
		c.Pool.MaxAge = time.Hour
	}
	if c.Pool.MaxIdle <= 0 {
		c.Pool.MaxIdle = 5 * time.Minute
	}
	if c.Pool.SweepInterval <= 0 {
		c.Pool.SweepInterval = time.Minute
	}
	if c.Pool.ProbeTimeout <= 0 {
		c.Pool.ProbeTimeout = time.Second
	}

	if c.Retry.MaxRetries <= 0 {
		c.Retry.MaxRetries = 4
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = 50 * time.Millisecond
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = 2 * time.Second
	}
	if c.Retry.JitterFraction <= 0 {
		c.Retry.JitterFraction = 0.25
	}

	if c.Cache.EvictMinHits <= 0 {
		c.Cache.EvictMinHits = 2
	}
	if c.Cache.EvictMaxAge <= 0 {
		c.Cache.EvictMaxAge = 24 * time.Hour
	}

	if c.Report.Window <= 0 {
		c.Report.Window = 24 * time.Hour
	}
	if c.Report.Limit <= 0 {
		c.Report.Limit = 50
	}
}

// Validate checks for configuration that cannot work.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Pool.Size < 1 {
		return fmt.Errorf("pool.size must be at least 1, got %d", c.Pool.Size)
	}
	if c.Pool.MaxIdle > c.Pool.MaxAge {
		return fmt.Errorf("pool.max_idle (%s) must not exceed pool.max_age (%s)",
			c.Pool.MaxIdle, c.Pool.MaxAge)
	}
	if c.Retry.JitterFraction < 0 || c.Retry.JitterFraction > 1 {
		return fmt.Errorf("retry.jitter_fraction must be in [0,1], got %g", c.Retry.JitterFraction)
	}
	if c.Retry.BaseDelay > c.Retry.MaxDelay {
		return fmt.Errorf("retry.base_delay (%s) must not exceed retry.max_delay (%s)",
			c.Retry.BaseDelay, c.Retry.MaxDelay)
	}
	return nil
}

// Package config loads the cycledlist process's JSON configuration file:
// start from sensible defaults, overlay whatever the file sets, let flags
// overlay that again.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// RetryConfig controls the executor's retry budget and back-off curve for
// every step in the workflow.
type RetryConfig struct {
	MaxRetries  int    `json:"max_retries,omitempty"`
	BackoffBase string `json:"backoff_base,omitempty"`
	BackoffMax  string `json:"backoff_max,omitempty"`
}

// Config holds everything main needs to wire one cycled list.
type Config struct {
	Name          string      `json:"name,omitempty"`
	StoreName     string      `json:"store,omitempty"`
	Addr          string      `json:"addr,omitempty"`
	MaxCycles     int         `json:"max_cycles,omitempty"`
	CycleInterval string      `json:"cycle_interval,omitempty"`
	PostgresURL   string      `json:"postgres_url,omitempty"`
	RedisAddr     string      `json:"redis_addr,omitempty"`
	QuotaTag      string      `json:"quota_tag,omitempty"`
	Retry         RetryConfig `json:"retry,omitempty"`
	Verbose       bool        `json:"verbose,omitempty"`
}

// DefaultConfig returns a Config with every subsystem set to a value that
// works with zero external setup (in-memory store, unbounded cycles).
func DefaultConfig() Config {
	return Config{
		Name:          "eodhd-daily-sync",
		StoreName:     "memory",
		Addr:          ":8080",
		CycleInterval: "15m",
		RedisAddr:     "localhost:6379",
		QuotaTag:      "EODHD_DAILY_LIMIT",
		Retry: RetryConfig{
			MaxRetries:  3,
			BackoffBase: "1s",
			BackoffMax:  "30s",
		},
	}
}

// Merge overlays every non-zero field of source onto c.
func (c *Config) Merge(source *Config) {
	if source.Name != "" {
		c.Name = source.Name
	}
	if source.StoreName != "" {
		c.StoreName = source.StoreName
	}
	if source.Addr != "" {
		c.Addr = source.Addr
	}
	if source.MaxCycles > 0 {
		c.MaxCycles = source.MaxCycles
	}
	if source.CycleInterval != "" {
		c.CycleInterval = source.CycleInterval
	}
	if source.PostgresURL != "" {
		c.PostgresURL = source.PostgresURL
	}
	if source.RedisAddr != "" {
		c.RedisAddr = source.RedisAddr
	}
	if source.QuotaTag != "" {
		c.QuotaTag = source.QuotaTag
	}
	if source.Retry.MaxRetries > 0 {
		c.Retry.MaxRetries = source.Retry.MaxRetries
	}
	if source.Retry.BackoffBase != "" {
		c.Retry.BackoffBase = source.Retry.BackoffBase
	}
	if source.Retry.BackoffMax != "" {
		c.Retry.BackoffMax = source.Retry.BackoffMax
	}
	if source.Verbose {
		c.Verbose = source.Verbose
	}
}

// LoadConfig reads a JSON config file and merges it onto DefaultConfig.
// A missing filename (empty string) returns the defaults unchanged.
func LoadConfig(filename string) (Config, error) {
	cfg := DefaultConfig()
	if filename == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", filename, err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", filename, err)
	}

	cfg.Merge(&loaded)
	return cfg, nil
}

// CycleIntervalDuration parses CycleInterval, defaulting to zero (no
// inter-cycle sleep) on an empty or invalid value.
func (c Config) CycleIntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.CycleInterval)
	if err != nil {
		return 0
	}
	return d
}

// RetryBackoffBounds parses Retry.BackoffBase/BackoffMax, falling back to
// 1s/30s on an empty or invalid value.
func (c Config) RetryBackoffBounds() (base, max time.Duration) {
	base, err := time.ParseDuration(c.Retry.BackoffBase)
	if err != nil {
		base = time.Second
	}
	max, err = time.ParseDuration(c.Retry.BackoffMax)
	if err != nil {
		max = 30 * time.Second
	}
	return base, max
}

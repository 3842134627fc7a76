// Package config loads the terminal client's configuration from an optional
// YAML file with environment variable overrides. Every field has a working
// default so the client runs with no config at all.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full client configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Sync    SyncConfig    `yaml:"sync"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig locates the Open Rooms server.
type ServerConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// SyncConfig tunes the synchronization engine.
type SyncConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval"`
	DrainInterval time.Duration `yaml:"drain_interval"`
	FetchLimit    int           `yaml:"fetch_limit"`
	BackfillLimit int           `yaml:"backfill_limit"`
}

// MetricsConfig controls the optional Prometheus listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			URL:     "http://localhost:8080",
			Timeout: 15 * time.Second,
		},
		Sync: SyncConfig{
			PollInterval:  2 * time.Second,
			DrainInterval: 200 * time.Millisecond,
			FetchLimit:    100,
			BackfillLimit: 100,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty; a missing file is an error, an empty path is not),
// then environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv layers ORC_* environment variables over the current values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("ORC_SERVER_URL"); v != "" {
		cfg.Server.URL = v
	}
	if v := os.Getenv("ORC_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Server.Timeout = d
		}
	}
	if v := os.Getenv("ORC_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Sync.PollInterval = d
		}
	}
	if v := os.Getenv("ORC_DRAIN_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Sync.DrainInterval = d
		}
	}
	if v := os.Getenv("ORC_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("ORC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the fields that would otherwise fail at first use.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: server.url %q is not a valid absolute URL", c.Server.URL)
	}
	if c.Sync.FetchLimit <= 0 {
		return fmt.Errorf("config: sync.fetch_limit must be positive")
	}
	if c.Sync.BackfillLimit <= 0 {
		return fmt.Errorf("config: sync.backfill_limit must be positive")
	}
	return nil
}

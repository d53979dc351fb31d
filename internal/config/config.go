// Package config loads the daemon configuration from a YAML file with
// defaults suitable for local development.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`
	// DBPath is the SQLite database path. Empty uses the XDG default.
	DBPath string `yaml:"db_path"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	IdP struct {
		// BaseURL of the identity provider's API.
		BaseURL string `yaml:"base_url"`
		// WebhookSecret authenticates session-event notifications.
		// Empty disables the endpoint.
		WebhookSecret string `yaml:"webhook_secret"`
		// Timeout bounds each provider call.
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"idp"`

	Cache struct {
		// TTL is how long allow-list snapshots stay fresh. Zero or
		// negative disables caching.
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"cache"`

	// StoreTimeout bounds each per-request store call.
	StoreTimeout time.Duration `yaml:"store_timeout"`

	// EdgePrecheck enables the browser edge allow-list pre-check that
	// redirects deniers to /not-invited.
	EdgePrecheck bool `yaml:"edge_precheck"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{
		Listen:       ":8080",
		LogLevel:     "info",
		StoreTimeout: 5 * time.Second,
		EdgePrecheck: true,
	}
	cfg.IdP.Timeout = 5 * time.Second
	cfg.Cache.TTL = 5 * time.Minute
	return cfg
}

// Load reads the YAML file at path over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/leseb/ogc-gw/pkg/layer"
	"github.com/leseb/ogc-gw/pkg/provider"
	"github.com/leseb/ogc-gw/pkg/style"
)

// Config represents the main configuration
type Config struct {
	Server   ServerConfig           `yaml:"server"`
	Logging  LoggingConfig          `yaml:"logging"`
	Records  RecordsConfig          `yaml:"records"`
	Registry RegistryConfig         `yaml:"registry"`
	Layers   []provider.Declaration `yaml:"layers"`
	Styles   []provider.Declaration `yaml:"styles"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host    string        `yaml:"host"`
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`

	// AuthSecret signs admin bearer tokens (HS256); empty disables auth
	AuthSecret  string   `yaml:"auth_secret"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// LoggingConfig contains logger configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// RecordsConfig selects where provider registrations are persisted
type RecordsConfig struct {
	Type string `yaml:"type"` // "memory" (default), "sqlite" or "postgres"
	DSN  string `yaml:"dsn"`  // file path for sqlite, connection string for postgres
}

// RegistryConfig tunes the category registries
type RegistryConfig struct {
	BuildTimeout    time.Duration `yaml:"build_timeout"`
	CleanupTimeout  time.Duration `yaml:"cleanup_timeout"`
	LoadConcurrency int           `yaml:"load_concurrency"`
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns default configuration
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8080,
			Timeout: 60 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Records: RecordsConfig{Type: "memory"},
		Registry: RegistryConfig{
			BuildTimeout:    provider.DefaultBuildTimeout,
			CleanupTimeout:  10 * time.Second,
			LoadConcurrency: 4,
		},
	}
	applyEnv(cfg)
	return cfg
}

// Declarations groups the configured providers by registry category.
func (c *Config) Declarations() map[string][]provider.Declaration {
	return map[string][]provider.Declaration{
		layer.Category: c.Layers,
		style.Category: c.Styles,
	}
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Records.Type {
	case "memory":
	case "sqlite", "postgres":
		if c.Records.DSN == "" {
			return fmt.Errorf("records: %s requires a dsn", c.Records.Type)
		}
	default:
		return fmt.Errorf("records: unknown type %q", c.Records.Type)
	}
	for section, decls := range map[string][]provider.Declaration{"layers": c.Layers, "styles": c.Styles} {
		seen := make(map[string]bool, len(decls))
		for i, d := range decls {
			if d.ID == "" {
				return fmt.Errorf("%s[%d]: id is required", section, i)
			}
			if seen[d.ID] {
				return fmt.Errorf("%s[%d]: duplicate id %q", section, i, d.ID)
			}
			seen[d.ID] = true
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("OGC_GW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("OGC_GW_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("OGC_GW_AUTH_SECRET"); v != "" {
		cfg.Server.AuthSecret = v
	}
	if v := os.Getenv("OGC_GW_RECORDS_TYPE"); v != "" {
		cfg.Records.Type = v
	}
	if v := os.Getenv("OGC_GW_RECORDS_DSN"); v != "" {
		cfg.Records.DSN = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Records.Type == "" {
		cfg.Records.Type = "memory"
	}
	if cfg.Registry.LoadConcurrency <= 0 {
		cfg.Registry.LoadConcurrency = 4
	}
	if cfg.Registry.BuildTimeout <= 0 {
		cfg.Registry.BuildTimeout = provider.DefaultBuildTimeout
	}
	if cfg.Registry.CleanupTimeout <= 0 {
		cfg.Registry.CleanupTimeout = 10 * time.Second
	}
}

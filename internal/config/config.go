// Package config handles loading and validating the nfury.yaml
// configuration. The server runs with zero config (sensible defaults);
// the file and environment overrides exist for deployments.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the top-level nfury.yaml configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DatabaseConfig locates the on-disk catalog.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SchedulerConfig controls the cron schedule evaluator.
type SchedulerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// DefaultConfig returns the zero-config defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        5000,
			CORSOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Path: "nfury.db",
		},
		Scheduler: SchedulerConfig{
			Enabled:  true,
			Interval: 30 * time.Second,
		},
	}
}

// Load parses an nfury.yaml file, applies defaults for unset fields, and
// validates it. If path is empty, returns defaults. Environment variables
// PORT and NFURY_DB override the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolvePath finds the config file path.
// Priority: NFURY_CONFIG env var > ./nfury.yaml > "" (no config).
func ResolvePath() string {
	if p := os.Getenv("NFURY_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("nfury.yaml"); err == nil {
		return "nfury.yaml"
	}
	return ""
}

func applyEnvOverrides(cfg *Config) {
	if p := os.Getenv("PORT"); p != "" {
		if port, err := strconv.Atoi(p); err == nil {
			cfg.Server.Port = port
		}
	}
	if db := os.Getenv("NFURY_DB"); db != "" {
		cfg.Database.Path = db
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval < time.Second {
		return fmt.Errorf("scheduler.interval %s too small (minimum 1s)", c.Scheduler.Interval)
	}
	return nil
}

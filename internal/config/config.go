// Package config loads chronicled configuration. Values are layered:
// built-in defaults, then the YAML config file, then CHRONICLE_*
// environment variables. Command-line flags are applied on top by the
// CLI layer.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the capture server.
type Config struct {
	// Addr is the TCP listen address for the HTTP/WebSocket API.
	Addr string `yaml:"addr"`

	// SocketPath, when set, additionally serves the API on a unix
	// socket. Useful for same-host hook scripts.
	SocketPath string `yaml:"socket_path"`

	// DBPath is the SQLite database file. The directory is created if
	// missing.
	DBPath string `yaml:"db_path"`

	// RemoteURL is the base URL of a hosted chronicle API to use as the
	// primary backend. Empty means local-only.
	RemoteURL string `yaml:"remote_url"`

	// RemoteAPIKey authenticates against the remote backend.
	RemoteAPIKey string `yaml:"remote_api_key"`

	// AdminKey gates destructive admin operations (event delete).
	// Generated by `chronicled init`; requests without it get 401.
	AdminKey string `yaml:"admin_key"`

	// RetentionDays is how long terminated sessions are kept before the
	// cleanup loop removes them (events cascade). 0 disables cleanup.
	RetentionDays int `yaml:"retention_days"`

	// PollInterval is the broadcaster's store tail interval.
	PollInterval time.Duration `yaml:"poll_interval"`

	// CheckpointInterval is how often the WAL is truncated.
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`

	// HeartbeatInterval is the WebSocket ping cadence.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// Default returns the built-in configuration.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		Addr:               "127.0.0.1:7633",
		DBPath:             filepath.Join(home, ".chronicle", "chronicle.db"),
		RetentionDays:      90,
		PollInterval:       100 * time.Millisecond,
		CheckpointInterval: 5 * time.Minute,
		HeartbeatInterval:  30 * time.Second,
	}
}

// Path returns the config file location: $CHRONICLE_CONFIG if set, else
// ~/.chronicle/config.yaml.
func Path() string {
	if v := strings.TrimSpace(os.Getenv("CHRONICLE_CONFIG")); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".chronicle", "config.yaml")
}

// Load builds the effective configuration: defaults, overlaid with the
// file at path (missing file is fine), overlaid with environment
// variables.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = Path()
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes the configuration to path, creating parent directories.
// Mode 0600 because the file carries the admin key.
func (c Config) Save(path string) error {
	if path == "" {
		path = Path()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setStr := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setStr(&c.Addr, "CHRONICLE_ADDR")
	setStr(&c.SocketPath, "CHRONICLE_SOCKET_PATH")
	setStr(&c.DBPath, "CHRONICLE_DB_PATH")
	setStr(&c.RemoteURL, "CHRONICLE_REMOTE_URL")
	setStr(&c.RemoteAPIKey, "CHRONICLE_REMOTE_API_KEY")
	setStr(&c.AdminKey, "CHRONICLE_ADMIN_KEY")

	if v := strings.TrimSpace(os.Getenv("CHRONICLE_RETENTION_DAYS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CHRONICLE_RETENTION_DAYS: %w", err)
		}
		c.RetentionDays = n
	}
	if v := strings.TrimSpace(os.Getenv("CHRONICLE_POLL_INTERVAL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CHRONICLE_POLL_INTERVAL: %w", err)
		}
		c.PollInterval = d
	}
	return nil
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	return nil
}

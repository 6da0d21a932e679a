// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and manages daybook configuration.
//
// Configuration lives in TOML at ~/.daybook/config.toml, with sensible
// defaults and environment variable overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete daybook configuration.
type Config struct {
	// Mode selects how the app reaches its backend: "local" runs everything
	// in-process, "remote" talks to a daybook daemon over HTTP.
	Mode string `toml:"mode"`

	// DBPath is the SQLite database location (empty = ~/.daybook/daybook.db).
	DBPath string `toml:"db_path"`

	Daemon   DaemonConfig   `toml:"daemon"`
	Provider ProviderConfig `toml:"provider"`
	UI       UIConfig       `toml:"ui"`
}

// DaemonConfig covers both sides of daemon mode: where `daybook serve`
// listens and where remote clients connect.
type DaemonConfig struct {
	// Host to bind when serving (default: 127.0.0.1).
	Host string `toml:"host"`
	// Port to listen on (default: 7133).
	Port int `toml:"port"`
	// URL remote clients connect to (default: http://127.0.0.1:7133).
	URL string `toml:"url"`
	// TimeoutSecs for request/response calls (default: 30). Streams are not
	// bounded by this.
	TimeoutSecs int `toml:"timeout_secs"`
	// RequestsPerSecond is the daemon's per-IP rate limit (default: 20).
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// ProviderConfig contains model provider settings.
type ProviderConfig struct {
	// Name of the provider (default: "ollama").
	Name string `toml:"name"`
	// URL of the Ollama-compatible API (default: http://127.0.0.1:11434).
	URL string `toml:"url"`
	// TimeoutSecs for non-streaming provider calls (default: 30).
	TimeoutSecs int `toml:"timeout_secs"`
}

// UIConfig contains TUI settings.
type UIConfig struct {
	// Theme is "dark", "light", or "auto" (default: dark).
	Theme string `toml:"theme"`
	// ShowTokens displays token usage under assistant messages.
	ShowTokens bool `toml:"show_tokens"`
	// CompactMode tightens message spacing.
	CompactMode bool `toml:"compact_mode"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Mode: "local",
		Daemon: DaemonConfig{
			Host:              "127.0.0.1",
			Port:              7133,
			URL:               "http://127.0.0.1:7133",
			TimeoutSecs:       30,
			RequestsPerSecond: 20,
		},
		Provider: ProviderConfig{
			Name:        "ollama",
			URL:         "http://127.0.0.1:11434",
			TimeoutSecs: 30,
		},
		UI: UIConfig{
			Theme:      "dark",
			ShowTokens: true,
		},
	}
}

// fillDefaults fills missing values with defaults.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Mode == "" {
		cfg.Mode = defaults.Mode
	}
	if cfg.Daemon.Host == "" {
		cfg.Daemon.Host = defaults.Daemon.Host
	}
	if cfg.Daemon.Port == 0 {
		cfg.Daemon.Port = defaults.Daemon.Port
	}
	if cfg.Daemon.URL == "" {
		cfg.Daemon.URL = defaults.Daemon.URL
	}
	if cfg.Daemon.TimeoutSecs == 0 {
		cfg.Daemon.TimeoutSecs = defaults.Daemon.TimeoutSecs
	}
	if cfg.Daemon.RequestsPerSecond == 0 {
		cfg.Daemon.RequestsPerSecond = defaults.Daemon.RequestsPerSecond
	}
	if cfg.Provider.Name == "" {
		cfg.Provider.Name = defaults.Provider.Name
	}
	if cfg.Provider.URL == "" {
		cfg.Provider.URL = defaults.Provider.URL
	}
	if cfg.Provider.TimeoutSecs == 0 {
		cfg.Provider.TimeoutSecs = defaults.Provider.TimeoutSecs
	}
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}
}

// =============================================================================
// PATHS
// =============================================================================

// Dir returns the daybook configuration directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".daybook"), nil
}

// Path returns the config file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureDir ensures the config directory exists.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// DatabasePath resolves the configured database path, defaulting to the
// config directory.
func (c *Config) DatabasePath() (string, error) {
	if c.DBPath != "" {
		return c.DBPath, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "daybook.db"), nil
}

// ProviderTimeout returns the provider timeout as a duration.
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Provider.TimeoutSecs) * time.Second
}

// DaemonTimeout returns the daemon client timeout as a duration.
func (c *Config) DaemonTimeout() time.Duration {
	return time.Duration(c.Daemon.TimeoutSecs) * time.Second
}

// =============================================================================
// LOAD AND SAVE
// =============================================================================

// Load reads the configuration file, falling back to defaults when it does
// not exist. Environment overrides apply last.
func Load() (*Config, error) {
	cfg := Default()

	path, err := Path()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			if err := LoadFromPath(cfg, path); err != nil {
				return nil, err
			}
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath decodes a TOML config file into cfg and fills defaults.
func LoadFromPath(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode config file: %w", err)
	}
	fillDefaults(cfg)
	return nil
}

// Save writes the configuration to the default config file with owner-only
// permissions.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveToPath(cfg, path)
}

// SaveToPath writes the configuration as TOML to path.
func SaveToPath(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	fmt.Fprintln(file, "# daybook configuration file")
	fmt.Fprintln(file, "")

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the configuration for inconsistent values.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Mode) {
	case "local", "remote":
	default:
		return fmt.Errorf("mode must be local or remote, got %q", c.Mode)
	}

	if c.Daemon.Port < 1 || c.Daemon.Port > 65535 {
		return fmt.Errorf("daemon.port must be 1-65535, got %d", c.Daemon.Port)
	}
	if _, err := url.Parse(c.Daemon.URL); err != nil {
		return fmt.Errorf("daemon.url is not a valid URL: %w", err)
	}
	if _, err := url.Parse(c.Provider.URL); err != nil {
		return fmt.Errorf("provider.url is not a valid URL: %w", err)
	}
	if c.Daemon.RequestsPerSecond < 0 {
		return fmt.Errorf("daemon.requests_per_second cannot be negative")
	}

	validThemes := map[string]bool{"dark": true, "light": true, "auto": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		return fmt.Errorf("ui.theme must be dark, light, or auto, got %q", c.UI.Theme)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported variables:
//   - DAYBOOK_MODE: overrides mode ("local" or "remote")
//   - DAYBOOK_DB: overrides db_path
//   - DAYBOOK_DAEMON_URL: overrides daemon.url
//   - DAYBOOK_DAEMON_PORT: overrides daemon.port
//   - DAYBOOK_PROVIDER_URL: overrides provider.url
func (c *Config) ApplyEnvOverrides() {
	if mode := os.Getenv("DAYBOOK_MODE"); mode != "" {
		c.Mode = mode
	}
	if db := os.Getenv("DAYBOOK_DB"); db != "" {
		c.DBPath = db
	}
	if u := os.Getenv("DAYBOOK_DAEMON_URL"); u != "" {
		c.Daemon.URL = u
	}
	if port := os.Getenv("DAYBOOK_DAEMON_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			c.Daemon.Port = n
		}
	}
	if u := os.Getenv("DAYBOOK_PROVIDER_URL"); u != "" {
		c.Provider.URL = u
	}
}

// =============================================================================
// GLOBAL INSTANCE
// =============================================================================

var (
	globalConfig *Config
	globalOnce   sync.Once
	globalMu     sync.RWMutex
)

// Global returns the process-wide configuration, loading it on first access.
func Global() *Config {
	globalOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalMu.Lock()
		globalConfig = cfg
		globalMu.Unlock()
	})

	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalConfig
}

// SetGlobal replaces the process-wide configuration.
func SetGlobal(cfg *Config) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalConfig = cfg
}

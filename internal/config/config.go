// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for braid.
//
// Configuration is TOML with sensible defaults and environment variable
// overrides. There is no global instance: callers load a Config and pass
// it down explicitly.
//
// File location: ~/.braid/config.toml (overridable on the command line).
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete braid configuration.
type Config struct {
	// Model configuration
	Model ModelConfig `toml:"model"`

	// Storage configuration
	Storage StorageConfig `toml:"storage"`

	// Export configuration
	Export ExportConfig `toml:"export"`

	// UI configuration
	UI UIConfig `toml:"ui"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging"`
}

// ModelConfig contains model endpoint configuration.
type ModelConfig struct {
	// BaseURL is the OpenAI-compatible endpoint to talk to.
	BaseURL string `toml:"base_url"`
	// APIKey is the bearer token for the endpoint. Local servers ignore it.
	APIKey string `toml:"api_key"`
	// Default is the model used when none is selected in the session.
	Default string `toml:"default"`
	// Temperature is the sampling temperature, 0 to 2.
	Temperature float64 `toml:"temperature"`
	// MaxTokens caps completion length. 0 means server default.
	MaxTokens int `toml:"max_tokens"`
	// TimeoutSecs bounds a single request.
	TimeoutSecs int `toml:"timeout_secs"`
}

// StorageConfig contains conversation store configuration.
type StorageConfig struct {
	// DBPath is the sqlite database file (empty = ~/.braid/braid.db).
	DBPath string `toml:"db_path"`
}

// ExportConfig contains file export configuration.
type ExportConfig struct {
	// Dir is the root directory exported files are written under
	// (empty = ~/.braid/exports).
	Dir string `toml:"dir"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "mono".
	Theme string `toml:"theme"`
	// ShowTokens displays token counts in the status bar.
	ShowTokens bool `toml:"show_tokens"`
}

// LoggingConfig contains log output configuration.
type LoggingConfig struct {
	// Path is the log file (empty = ~/.braid/logs/braid.log).
	Path string `toml:"path"`
	// Level is the minimum level: "debug", "info", "warn", "error".
	Level string `toml:"level"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			BaseURL:     "http://127.0.0.1:11434/v1",
			Default:     "qwen2.5:14b",
			Temperature: 0.7,
			MaxTokens:   0,
			TimeoutSecs: 120,
		},
		UI: UIConfig{
			Theme:      "dark",
			ShowTokens: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// =============================================================================
// PATH HELPERS
// =============================================================================

// Dir returns the braid configuration directory path.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".braid"), nil
}

// DefaultPath returns the path to the default TOML config file.
func DefaultPath() (string, error) {
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

// DBPath resolves the configured database path, defaulting under Dir().
func (c *Config) DBPath() (string, error) {
	if c.Storage.DBPath != "" {
		return c.Storage.DBPath, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "braid.db"), nil
}

// ExportDir resolves the configured export root, defaulting under Dir().
func (c *Config) ExportDir() (string, error) {
	if c.Export.Dir != "" {
		return c.Export.Dir, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "exports"), nil
}

// LogPath resolves the configured log file, defaulting under Dir().
func (c *Config) LogPath() (string, error) {
	if c.Logging.Path != "" {
		return c.Logging.Path, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs", "braid.log"), nil
}

// Timeout returns the request timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Model.TimeoutSecs) * time.Second
}

// =============================================================================
// LOADING
// =============================================================================

// Load loads configuration from the default location, falling back to
// defaults when no file exists. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); statErr != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads and validates configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	cfg.fillDefaults()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// fillDefaults fills in any missing values with defaults. Decoding over
// Default() covers most fields; zero values that decode can produce for
// absent sections are restored here.
func (c *Config) fillDefaults() {
	defaults := Default()
	if c.Model.BaseURL == "" {
		c.Model.BaseURL = defaults.Model.BaseURL
	}
	if c.Model.Default == "" {
		c.Model.Default = defaults.Model.Default
	}
	if c.Model.TimeoutSecs == 0 {
		c.Model.TimeoutSecs = defaults.Model.TimeoutSecs
	}
	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
}

// =============================================================================
// SAVING
// =============================================================================

// Save writes the configuration to a TOML file with owner-only permissions;
// the file may hold an API key.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	fmt.Fprintln(file, "# braid configuration file")
	fmt.Fprintln(file, "")

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Model.BaseURL != "" {
		if _, err := url.Parse(c.Model.BaseURL); err != nil {
			errs = append(errs, ValidationError{
				Field:   "model.base_url",
				Message: fmt.Sprintf("invalid URL: %v", err),
			})
		}
	}

	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		errs = append(errs, ValidationError{
			Field:   "model.temperature",
			Message: fmt.Sprintf("must be between 0 and 2, got %g", c.Model.Temperature),
		})
	}

	if c.Model.MaxTokens < 0 {
		errs = append(errs, ValidationError{
			Field:   "model.max_tokens",
			Message: "must be non-negative",
		})
	}

	if c.Model.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{
			Field:   "model.timeout_secs",
			Message: "must be non-negative",
		})
	}

	validThemes := map[string]bool{"dark": true, "light": true, "mono": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, mono", c.UI.Theme),
		})
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - BRAID_BASE_URL: overrides model.base_url
//   - BRAID_API_KEY: overrides model.api_key
//   - BRAID_MODEL: overrides model.default
//   - BRAID_DB: overrides storage.db_path
//   - BRAID_EXPORT_DIR: overrides export.dir
//   - BRAID_THEME: overrides ui.theme
//   - BRAID_LOG_LEVEL: overrides logging.level
//   - BRAID_TIMEOUT_SECS: overrides model.timeout_secs
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("BRAID_BASE_URL"); v != "" {
		c.Model.BaseURL = v
	}
	if v := os.Getenv("BRAID_API_KEY"); v != "" {
		c.Model.APIKey = v
	}
	if v := os.Getenv("BRAID_MODEL"); v != "" {
		c.Model.Default = v
	}
	if v := os.Getenv("BRAID_DB"); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv("BRAID_EXPORT_DIR"); v != "" {
		c.Export.Dir = v
	}
	if v := os.Getenv("BRAID_THEME"); v != "" {
		c.UI.Theme = v
	}
	if v := os.Getenv("BRAID_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("BRAID_TIMEOUT_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Model.TimeoutSecs = n
		}
	}
}

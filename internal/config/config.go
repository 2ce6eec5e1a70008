// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for
// promptpilot.
//
// Configuration is TOML with sensible defaults and environment variable
// overrides. Locations (in order of precedence):
//   - ~/.promptpilot/config.toml
//   - Built-in defaults
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

	"github.com/jeranaias/promptpilot/internal/model"
	"github.com/jeranaias/promptpilot/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete promptpilot configuration.
type Config struct {
	// BaseURL is the chat backend endpoint.
	BaseURL string `toml:"base_url"`

	// UserID identifies the user to the backend. Empty derives an ID
	// from the system username.
	UserID string `toml:"user_id"`

	// DefaultModel is the model used for new sessions. Accepts an alias
	// ("flash", "pro") or a full model ID.
	DefaultModel string `toml:"default_model"`

	// DefaultAgent is the agent persona for new sessions.
	DefaultAgent string `toml:"default_agent"`

	// WebSearch enables backend web search for new sessions.
	WebSearch bool `toml:"web_search"`

	// DatabasePath is where chat history is stored (empty = default
	// ~/.promptpilot/promptpilot.db).
	DatabasePath string `toml:"database_path"`

	// RequestsPerMinute caps outgoing backend requests (0 = unlimited).
	RequestsPerMinute int `toml:"requests_per_minute"`

	// Timeouts configures the network timing knobs.
	Timeouts TimeoutConfig `toml:"timeouts"`
}

// TimeoutConfig holds the network timing knobs, all in seconds.
type TimeoutConfig struct {
	// ConnectSecs is the TCP connect timeout.
	ConnectSecs int `toml:"connect_secs"`
	// ReadSecs bounds non-streaming requests end to end.
	ReadSecs int `toml:"read_secs"`
	// IdleSecs is the maximum gap between stream events.
	IdleSecs int `toml:"idle_secs"`
	// OverallSecs bounds a whole streaming send, wall clock.
	OverallSecs int `toml:"overall_secs"`
	// UploadSecs bounds attachment uploads.
	UploadSecs int `toml:"upload_secs"`
}

// Duration helpers.

func (t TimeoutConfig) Connect() time.Duration { return time.Duration(t.ConnectSecs) * time.Second }
func (t TimeoutConfig) Read() time.Duration    { return time.Duration(t.ReadSecs) * time.Second }
func (t TimeoutConfig) Idle() time.Duration    { return time.Duration(t.IdleSecs) * time.Second }
func (t TimeoutConfig) Overall() time.Duration { return time.Duration(t.OverallSecs) * time.Second }
func (t TimeoutConfig) Upload() time.Duration  { return time.Duration(t.UploadSecs) * time.Second }

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		BaseURL:           "https://promptpilot-backend-o5fj.onrender.com",
		DefaultModel:      model.DefaultModel,
		DefaultAgent:      model.AgentGeneral.String(),
		RequestsPerMinute: 60,
		Timeouts: TimeoutConfig{
			ConnectSecs: 30,
			ReadSecs:    180,
			IdleSecs:    120,
			OverallSecs: 120,
			UploadSecs:  30,
		},
	}
}

// =============================================================================
// CONFIG FILE PATHS
// =============================================================================

// ConfigDir returns the promptpilot configuration directory (~/.promptpilot).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".promptpilot"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DefaultDatabasePath returns where history is stored when database_path
// is unset.
func DefaultDatabasePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "promptpilot.db"), nil
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file, falling back to defaults
// when the file is absent. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
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

// LoadFromPath loads configuration from a specific TOML file with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode TOML file: %w", err)
	}
	cfg.fillDefaults()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// fillDefaults fills in any missing values with defaults.
func (c *Config) fillDefaults() {
	defaults := Default()

	if c.BaseURL == "" {
		c.BaseURL = defaults.BaseURL
	}
	if c.DefaultModel == "" {
		c.DefaultModel = defaults.DefaultModel
	}
	if c.DefaultAgent == "" {
		c.DefaultAgent = defaults.DefaultAgent
	}
	if c.RequestsPerMinute == 0 {
		c.RequestsPerMinute = defaults.RequestsPerMinute
	}
	if c.Timeouts.ConnectSecs == 0 {
		c.Timeouts.ConnectSecs = defaults.Timeouts.ConnectSecs
	}
	if c.Timeouts.ReadSecs == 0 {
		c.Timeouts.ReadSecs = defaults.Timeouts.ReadSecs
	}
	if c.Timeouts.IdleSecs == 0 {
		c.Timeouts.IdleSecs = defaults.Timeouts.IdleSecs
	}
	if c.Timeouts.OverallSecs == 0 {
		c.Timeouts.OverallSecs = defaults.Timeouts.OverallSecs
	}
	if c.Timeouts.UploadSecs == 0 {
		c.Timeouts.UploadSecs = defaults.Timeouts.UploadSecs
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file. Writes are atomic
// so a crash never leaves a truncated config behind.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(cfg, path)
}

// SaveTo saves the configuration to a specific path.
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf strings.Builder
	buf.WriteString("# promptpilot configuration file\n")
	buf.WriteString("# Edit with care; invalid values fall back to defaults on load\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, []byte(buf.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes a single invalid config field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks config values, clamping where a safe bound exists and
// erroring where none does.
func (c *Config) Validate() error {
	parsed, err := url.Parse(c.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ValidationError{Field: "base_url", Message: "must be an absolute URL"}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ValidationError{Field: "base_url", Message: "scheme must be http or https"}
	}

	if !model.AgentType(c.DefaultAgent).IsValid() {
		return ValidationError{Field: "default_agent", Message: "unknown agent type"}
	}

	if c.RequestsPerMinute < 0 {
		c.RequestsPerMinute = 0
	}
	clamp := func(v *int, min int) {
		if *v < min {
			*v = min
		}
	}
	clamp(&c.Timeouts.ConnectSecs, 1)
	clamp(&c.Timeouts.ReadSecs, 1)
	clamp(&c.Timeouts.IdleSecs, 1)
	clamp(&c.Timeouts.OverallSecs, 1)
	clamp(&c.Timeouts.UploadSecs, 1)
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - PROMPTPILOT_BASE_URL: overrides base_url
//   - PROMPTPILOT_UID: overrides user_id
//   - PROMPTPILOT_MODEL: overrides default_model
//   - PROMPTPILOT_AGENT: overrides default_agent
//   - PROMPTPILOT_DB: overrides database_path
//   - PROMPTPILOT_WEB_SEARCH: set to "1" or "true" to enable web search
//   - PROMPTPILOT_RPM: overrides requests_per_minute
func (c *Config) ApplyEnvOverrides() {
	if baseURL := os.Getenv("PROMPTPILOT_BASE_URL"); baseURL != "" {
		c.BaseURL = baseURL
	}
	if uid := os.Getenv("PROMPTPILOT_UID"); uid != "" {
		c.UserID = uid
	}
	if modelID := os.Getenv("PROMPTPILOT_MODEL"); modelID != "" {
		c.DefaultModel = modelID
	}
	if agent := os.Getenv("PROMPTPILOT_AGENT"); agent != "" {
		c.DefaultAgent = strings.ToUpper(agent)
	}
	if db := os.Getenv("PROMPTPILOT_DB"); db != "" {
		c.DatabasePath = db
	}
	if search := os.Getenv("PROMPTPILOT_WEB_SEARCH"); search != "" {
		c.WebSearch = search == "1" || strings.ToLower(search) == "true"
	}
	if rpm := os.Getenv("PROMPTPILOT_RPM"); rpm != "" {
		if n, err := strconv.Atoi(rpm); err == nil {
			c.RequestsPerMinute = n
		}
	}
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

// ResolvedUserID returns the configured user ID, deriving one from the
// system username when unset.
func (c *Config) ResolvedUserID() string {
	if c.UserID != "" {
		return c.UserID
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	if user := os.Getenv("USERNAME"); user != "" {
		return user
	}
	return "anonymous"
}

// ResolvedDatabasePath returns the configured history path, falling back
// to the default location.
func (c *Config) ResolvedDatabasePath() (string, error) {
	if c.DatabasePath != "" {
		return c.DatabasePath, nil
	}
	return DefaultDatabasePath()
}

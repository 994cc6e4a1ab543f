// Package config loads and validates the AtlasBridge configuration file.
//
// The config must never be able to weaken the safety posture: auto-answer
// defaults for prompts are rejected at load time, not at evaluation time.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigDir  = ".atlasbridge"
	DefaultConfigFile = "config.yaml"
	DefaultPolicyFile = "policy.yaml"
	DefaultDBFile     = "atlasbridge.db"
	DefaultTraceFile  = "autopilot_decisions.jsonl"

	// Reply timeout bounds. A timeout under the floor would expire prompts
	// before a human can plausibly answer.
	MinTimeoutSeconds = 30
	MaxTimeoutSeconds = 86400
	DefaultTimeout    = 300
)

// ErrNotFound wraps a missing config file so callers can offer setup help.
var ErrNotFound = errors.New("config file not found")

type PromptsConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
	// YesNoSafeDefault must stay empty. Any value here would auto-approve
	// prompts without a human decision, so load rejects it outright.
	YesNoSafeDefault string `yaml:"yes_no_safe_default,omitempty"`
}

type DatabaseConfig struct {
	Path string `yaml:"path,omitempty"`
}

type LoggingConfig struct {
	Level string `yaml:"level,omitempty"`
}

type Config struct {
	ConfigVersion int            `yaml:"config_version"`
	Prompts       PromptsConfig  `yaml:"prompts"`
	Database      DatabaseConfig `yaml:"database,omitempty"`
	Logging       LoggingConfig  `yaml:"logging,omitempty"`
	PolicyPath    string         `yaml:"policy_path,omitempty"`

	configDir string
}

// DefaultDir returns ~/.atlasbridge.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultConfigDir), nil
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// Load reads and validates the config at path. Environment overrides
// (ATLASBRIDGE_LOG_LEVEL, ATLASBRIDGE_DB_PATH) apply after the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.configDir = filepath.Dir(path)

	if cfg.Prompts.TimeoutSeconds == 0 {
		cfg.Prompts.TimeoutSeconds = DefaultTimeout
	}
	if level := os.Getenv("ATLASBRIDGE_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if dbPath := os.Getenv("ATLASBRIDGE_DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the safety constraints on a config.
func (c *Config) Validate() error {
	if c.Prompts.YesNoSafeDefault != "" {
		return fmt.Errorf(
			"prompts.yes_no_safe_default is not allowed: auto-approving prompts bypasses human review")
	}
	if c.Prompts.TimeoutSeconds < MinTimeoutSeconds || c.Prompts.TimeoutSeconds > MaxTimeoutSeconds {
		return fmt.Errorf("prompts.timeout_seconds must be between %d and %d, got %d",
			MinTimeoutSeconds, MaxTimeoutSeconds, c.Prompts.TimeoutSeconds)
	}
	return nil
}

// Save writes the config with owner-only permissions.
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// DBPath returns the configured database path, or the default under the
// config directory.
func (c *Config) DBPath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.configDir, DefaultDBFile)
}

// TracePath returns the decision trace path under the config directory.
func (c *Config) TracePath() string {
	return filepath.Join(c.configDir, DefaultTraceFile)
}

// PolicyFilePath returns the configured policy path, or the default under
// the config directory.
func (c *Config) PolicyFilePath() string {
	if c.PolicyPath != "" {
		return c.PolicyPath
	}
	return filepath.Join(c.configDir, DefaultPolicyFile)
}

// LoadOrDefault loads the config at path, or returns a valid default config
// rooted at the path's directory when no file exists.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, ErrNotFound) {
		def := &Config{
			ConfigVersion: 1,
			Prompts:       PromptsConfig{TimeoutSeconds: DefaultTimeout},
			configDir:     filepath.Dir(path),
		}
		if level := os.Getenv("ATLASBRIDGE_LOG_LEVEL"); level != "" {
			def.Logging.Level = level
		}
		if dbPath := os.Getenv("ATLASBRIDGE_DB_PATH"); dbPath != "" {
			def.Database.Path = dbPath
		}
		return def, nil
	}
	return cfg, err
}

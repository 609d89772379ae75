// Package config loads tandem's configuration from an optional YAML file
// with environment overrides for credentials.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure for tandem.
type Config struct {
	Models    ModelsConfig    `yaml:"models"`
	Providers ProvidersConfig `yaml:"providers"`
	Session   SessionConfig   `yaml:"session"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ModelsConfig names the default models per agent.
type ModelsConfig struct {
	Instructor string `yaml:"instructor"`
	Worker     string `yaml:"worker"`

	// ThinkingBudgetTokens caps the thinking budget. Zero picks the
	// provider default.
	ThinkingBudgetTokens int `yaml:"thinking_budget_tokens"`
	// MaxTokens per response. Zero picks the provider default.
	MaxTokens int `yaml:"max_tokens"`
}

// ProvidersConfig holds per-provider credentials and endpoints.
type ProvidersConfig struct {
	Anthropic ProviderConfig `yaml:"anthropic"`
	Qwen      ProviderConfig `yaml:"qwen"`
}

// ProviderConfig is one provider's credentials. Environment variables take
// precedence over file values.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// SessionConfig controls session persistence.
type SessionConfig struct {
	// Dir is where session journals live. Default: ~/.tandem/sessions.
	Dir string `yaml:"dir"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultPath returns the default config file location, ~/.tandem/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".tandem", "config.yaml")
}

// Load reads the configuration. A missing file is not an error: defaults
// and environment variables alone are a valid configuration.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		path = DefaultPath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to defaults
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}
	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Providers.Anthropic.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_BASE_URL"); v != "" {
		cfg.Providers.Anthropic.BaseURL = v
	}
	if v := os.Getenv("DASHSCOPE_API_KEY"); v != "" {
		cfg.Providers.Qwen.APIKey = v
	}
	if v := os.Getenv("DASHSCOPE_BASE_URL"); v != "" {
		cfg.Providers.Qwen.BaseURL = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Models.Instructor == "" {
		cfg.Models.Instructor = "sonnet"
	}
	if cfg.Models.Worker == "" {
		cfg.Models.Worker = "sonnet"
	}
	if cfg.Models.ThinkingBudgetTokens == 0 {
		cfg.Models.ThinkingBudgetTokens = 10000
	}
	if cfg.Session.Dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Session.Dir = filepath.Join(home, ".tandem", "sessions")
		} else {
			cfg.Session.Dir = ".tandem-sessions"
		}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

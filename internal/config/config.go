// Package config provides application configuration.
package config

import (
	"fmt"
	"net"

	"github.com/caarlos0/env/v6"
)

// Config holds all application configuration.
type Config struct {
	Host              string   `env:"HOST" envDefault:"0.0.0.0"`
	Port              string   `env:"PORT" envDefault:"5001"`
	RulesPath         string   `env:"RULES_PATH" envDefault:"rules.json"`
	HistoryPath       string   `env:"HISTORY_PATH" envDefault:"history.json"`
	TerminationPhrase string   `env:"TERMINATION_PHRASE" envDefault:"trpg 마치기"`
	AllowedOrigins    []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	OpenAI            OpenAIConfig
	Archive           ArchiveConfig
}

// OpenAIConfig controls the chat completion provider.
type OpenAIConfig struct {
	APIKey      string  `env:"OPENAI_API_KEY,required"`
	BaseURL     string  `env:"OPENAI_BASE_URL"`
	Model       string  `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	MaxTokens   int     `env:"OPENAI_MAX_TOKENS" envDefault:"8000"`
	Temperature float32 `env:"OPENAI_TEMPERATURE" envDefault:"0.5"`
}

// ArchiveConfig controls the SQLite archive of ended sessions.
type ArchiveConfig struct {
	Enabled bool   `env:"ARCHIVE_ENABLED" envDefault:"true"`
	DBPath  string `env:"ARCHIVE_DB_PATH" envDefault:"./data/archive.db"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.RulesPath == "" {
		return fmt.Errorf("RULES_PATH cannot be empty")
	}
	if c.HistoryPath == "" {
		return fmt.Errorf("HISTORY_PATH cannot be empty")
	}
	if c.TerminationPhrase == "" {
		return fmt.Errorf("TERMINATION_PHRASE cannot be empty")
	}
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY cannot be empty")
	}
	if c.OpenAI.Model == "" {
		return fmt.Errorf("OPENAI_MODEL cannot be empty")
	}
	if c.OpenAI.MaxTokens <= 0 {
		return fmt.Errorf("OPENAI_MAX_TOKENS must be > 0")
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		return fmt.Errorf("OPENAI_TEMPERATURE must be between 0 and 2")
	}
	if c.Archive.Enabled && c.Archive.DBPath == "" {
		return fmt.Errorf("ARCHIVE_DB_PATH cannot be empty when the archive is enabled")
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

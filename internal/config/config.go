// Package config holds application configuration. Flags in cmd provide the
// defaults; an optional YAML file and CHATSYNC_* environment variables
// override them in that order.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL     = "http://localhost:8000"
	DefaultDBPath      = "chatsync.db"
	DefaultModel       = "llama3:latest"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1024
)

// Config holds application configuration
type Config struct {
	BaseURL     string  `yaml:"base_url"`
	APIToken    string  `yaml:"api_token"`
	DBPath      string  `yaml:"db_path"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Debug       bool    `yaml:"debug"`
}

// Default returns a config populated with defaults.
func Default() Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		DBPath:      DefaultDBPath,
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
}

// LoadFile merges the YAML file at path into c. Fields absent from the
// file keep their current values because the file is decoded on top of
// the existing config.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides config fields from CHATSYNC_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("CHATSYNC_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("CHATSYNC_API_TOKEN"); v != "" {
		c.APIToken = v
	}
	if v := os.Getenv("CHATSYNC_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("CHATSYNC_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("CHATSYNC_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid CHATSYNC_TEMPERATURE=%q: %w", v, err)
		}
		c.Temperature = f
	}
	if v := os.Getenv("CHATSYNC_MAX_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CHATSYNC_MAX_TOKENS=%q: %w", v, err)
		}
		c.MaxTokens = n
	}
	if v := os.Getenv("CHATSYNC_DEBUG"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid CHATSYNC_DEBUG=%q: %w", v, err)
		}
		c.Debug = b
	}
	return nil
}

// Package config loads and persists mnemo's configuration. Configuration
// lives at ~/.mnemo/config.yaml by default and can be overridden by
// MNEMO_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Embedding EmbeddingConfig `mapstructure:"embedding" yaml:"embedding"`
	Search    SearchConfig    `mapstructure:"search" yaml:"search"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// StoreConfig configures the memory store.
type StoreConfig struct {
	// Path is the SQLite database file.
	Path string `mapstructure:"path" yaml:"path"`

	// MaxMemoriesPerOwner caps records per owner; the oldest are evicted
	// first when the cap is exceeded.
	MaxMemoriesPerOwner int `mapstructure:"max_memories_per_owner" yaml:"max_memories_per_owner"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Host is the Ollama API endpoint.
	Host string `mapstructure:"host" yaml:"host"`

	// Model is the embedding model name.
	Model string `mapstructure:"model" yaml:"model"`

	// TimeoutSeconds bounds a single embedding request.
	TimeoutSeconds int `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`

	// CacheDisabled turns off the in-process embedding cache.
	CacheDisabled bool `mapstructure:"cache_disabled" yaml:"cache_disabled"`
}

// SearchConfig configures retrieval defaults.
type SearchConfig struct {
	// DefaultLimit is the result cap when the caller does not set one.
	DefaultLimit int `mapstructure:"default_limit" yaml:"default_limit"`

	// MinConfidence filters low-confidence results.
	MinConfidence float64 `mapstructure:"min_confidence" yaml:"min_confidence"`

	// DefaultStrategy is one of hierarchical, semantic, hybrid, keyword, fuzzy.
	DefaultStrategy string `mapstructure:"default_strategy" yaml:"default_strategy"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level" yaml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Path:                "~/.mnemo/memories.db",
			MaxMemoriesPerOwner: 1000,
		},
		Embedding: EmbeddingConfig{
			Host:           "http://127.0.0.1:11434",
			Model:          "nomic-embed-text",
			TimeoutSeconds: 30,
		},
		Search: SearchConfig{
			DefaultLimit:    5,
			MinConfidence:   0.1,
			DefaultStrategy: "hierarchical",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the default location (~/.mnemo/config.yaml)
// and merges environment variables. A missing config file is created with
// defaults.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return LoadFromPath(filepath.Join(homeDir, ".mnemo", "config.yaml"))
}

// LoadFromPath reads configuration from a specific file, creating it with
// defaults when absent.
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeConfigFile(path, Default()); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Example: MNEMO_EMBEDDING_HOST overrides embedding.host.
	v.SetEnvPrefix("MNEMO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Store.Path = expandPath(cfg.Store.Path)
	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults fills in zero values so a hand-edited partial config still
// yields a working setup.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Store.Path == "" {
		c.Store.Path = expandPath(defaults.Store.Path)
	}
	if c.Store.MaxMemoriesPerOwner <= 0 {
		c.Store.MaxMemoriesPerOwner = defaults.Store.MaxMemoriesPerOwner
	}
	if c.Embedding.Host == "" {
		c.Embedding.Host = defaults.Embedding.Host
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = defaults.Embedding.Model
	}
	if c.Embedding.TimeoutSeconds <= 0 {
		c.Embedding.TimeoutSeconds = defaults.Embedding.TimeoutSeconds
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = defaults.Search.DefaultLimit
	}
	if c.Search.MinConfidence <= 0 {
		c.Search.MinConfidence = defaults.Search.MinConfidence
	}
	if c.Search.DefaultStrategy == "" {
		c.Search.DefaultStrategy = defaults.Search.DefaultStrategy
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
}

// SaveToPath writes the configuration to a specific file path.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return writeConfigFile(path, c)
}

func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// expandPath expands ~ to the user's home directory in a path string.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

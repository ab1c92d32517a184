package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/normanking/resonance/internal/llm"
	"github.com/normanking/resonance/pkg/brain"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all application configuration for resonance.
// It is loaded from ~/.resonance/config.yaml and can be overridden by environment variables.
type Config struct {
	// DataDir holds the database and logs.
	DataDir string        `mapstructure:"data_dir" yaml:"data_dir"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Brain   brain.Config  `mapstructure:"brain" yaml:"brain"`
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// PhrasesPath optionally replaces the embedded phrase table.
	PhrasesPath string `mapstructure:"phrases_path" yaml:"phrases_path"`
}

// StorageConfig selects where associative memory is persisted.
type StorageConfig struct {
	// Driver is the database/sql driver name: "sqlite" (pure Go) or "sqlite3" (cgo).
	Driver string `mapstructure:"driver" yaml:"driver"`
	// DBPath is the SQLite file; empty keeps memory in process only.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
}

// LLMConfig configures the optional generation backend.
type LLMConfig struct {
	// Enabled routes direct and fusion generation through the provider.
	// When false the phrase table renders every strategy.
	Enabled  bool               `mapstructure:"enabled" yaml:"enabled"`
	Provider llm.ProviderConfig `mapstructure:"provider" yaml:"provider"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	// Format is "console" or "json".
	Format string `mapstructure:"format" yaml:"format"`
	// File additionally writes logs to this path when set.
	File string `mapstructure:"file" yaml:"file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".resonance")

	return &Config{
		DataDir: dataDir,
		Storage: StorageConfig{
			Driver: "sqlite",
			DBPath: filepath.Join(dataDir, "resonance.db"),
		},
		Brain: brain.DefaultConfig(),
		LLM: LLMConfig{
			Enabled:  false,
			Provider: *llm.DefaultConfig("ollama"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from the default location (~/.resonance/config.yaml)
// and merges with environment variables. If no config file exists, it creates
// one with default values.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return LoadFromPath(filepath.Join(homeDir, ".resonance", "config.yaml"))
}

// LoadFromPath reads configuration from a specific file path and merges with
// environment variables. If the file doesn't exist, it creates one with default values.
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

	// Example: RESONANCE_LOGGING_LEVEL=debug
	v.SetEnvPrefix("RESONANCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start from defaults so keys missing from an older file keep their values.
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.DataDir = expandPath(cfg.DataDir)
	cfg.Storage.DBPath = expandPath(cfg.Storage.DBPath)
	cfg.Logging.File = expandPath(cfg.Logging.File)
	cfg.PhrasesPath = expandPath(cfg.PhrasesPath)
	return cfg, nil
}

// SaveToPath writes the current configuration to a specific file path.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return writeConfigFile(path, c)
}

// Validate checks the configuration for errors and inconsistencies.
func (c *Config) Validate() error {
	if err := c.Brain.Validate(); err != nil {
		return fmt.Errorf("%w: brain.%v", ErrInvalid, err)
	}

	syn := c.Brain.Synthesis
	if !(syn.FallbackConfidence < syn.FusionThreshold && syn.FusionThreshold < syn.DirectThreshold) {
		return fmt.Errorf("%w: synthesis thresholds must satisfy fallback < fusion < direct", ErrInvalid)
	}

	tiers := c.Brain.Learning.Tiers
	for i := 1; i < len(tiers); i++ {
		if tiers[i].Threshold > tiers[i-1].Threshold {
			return fmt.Errorf("%w: learning tiers must not increase (tier %d)", ErrInvalid, i)
		}
	}

	switch c.Storage.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("%w: storage driver %q, must be sqlite or sqlite3", ErrInvalid, c.Storage.Driver)
	}

	if c.LLM.Enabled && c.LLM.Provider.Endpoint == "" {
		return fmt.Errorf("%w: llm.provider.endpoint cannot be empty when llm is enabled", ErrInvalid)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("%w: log level %q, must be one of: debug, info, warn, error", ErrInvalid, c.Logging.Level)
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("%w: log format %q, must be console or json", ErrInvalid, c.Logging.Format)
	}
	return nil
}

// writeConfigFile writes a Config struct to a YAML file.
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

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("expected default driver 'sqlite', got '%s'", cfg.Storage.Driver)
	}
	if filepath.Base(cfg.Storage.DBPath) != "resonance.db" {
		t.Errorf("expected db file 'resonance.db', got '%s'", cfg.Storage.DBPath)
	}
	if cfg.LLM.Enabled {
		t.Error("expected llm to be disabled by default")
	}
	if cfg.LLM.Provider.Endpoint != "http://127.0.0.1:11434" {
		t.Errorf("expected ollama endpoint 'http://127.0.0.1:11434', got '%s'", cfg.LLM.Provider.Endpoint)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got '%s'", cfg.Logging.Level)
	}
	if cfg.Brain.Synthesis.DirectThreshold != 0.65 {
		t.Errorf("expected direct threshold 0.65, got %v", cfg.Brain.Synthesis.DirectThreshold)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), ".resonance", "config.yaml")

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}

	cfg2, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("failed to load existing config: %v", err)
	}
	if cfg2.Brain.Synthesis.GenerateTimeout != cfg.Brain.Synthesis.GenerateTimeout {
		t.Errorf("generate timeout changed on reload: %v vs %v",
			cfg.Brain.Synthesis.GenerateTimeout, cfg2.Brain.Synthesis.GenerateTimeout)
	}
	if len(cfg2.Brain.Learning.Tiers) != len(Default().Brain.Learning.Tiers) {
		t.Errorf("expected %d tiers after reload, got %d", len(Default().Brain.Learning.Tiers), len(cfg2.Brain.Learning.Tiers))
	}
	if err := cfg2.Validate(); err != nil {
		t.Errorf("reloaded config should be valid: %v", err)
	}
}

func TestSaveToPath(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Logging.Level = "debug"
	cfg.LLM.Enabled = true
	cfg.LLM.Provider.Model = "mistral"
	cfg.Brain.Synthesis.GenerateTimeout = 2 * time.Second

	if err := cfg.SaveToPath(configPath); err != nil {
		t.Fatalf("failed to save config: %v", err)
	}

	loaded, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}
	if loaded.Logging.Level != "debug" {
		t.Errorf("expected log level 'debug', got '%s'", loaded.Logging.Level)
	}
	if !loaded.LLM.Enabled || loaded.LLM.Provider.Model != "mistral" {
		t.Errorf("llm settings not persisted: %+v", loaded.LLM)
	}
	if loaded.Brain.Synthesis.GenerateTimeout != 2*time.Second {
		t.Errorf("expected generate timeout 2s, got %v", loaded.Brain.Synthesis.GenerateTimeout)
	}
}

func TestEnvironmentOverride(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("RESONANCE_LOGGING_LEVEL", "warn")
	t.Setenv("RESONANCE_STORAGE_DRIVER", "sqlite3")

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected env override 'warn', got '%s'", cfg.Logging.Level)
	}
	if cfg.Storage.Driver != "sqlite3" {
		t.Errorf("expected env override 'sqlite3', got '%s'", cfg.Storage.Driver)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"weights off", func(c *Config) { c.Brain.Convergence.Weights.Delta += 0.2 }},
		{"moment band inverted", func(c *Config) { c.Brain.Convergence.Moment.EnergyLow = 0.5 }},
		{"thresholds unordered", func(c *Config) { c.Brain.Synthesis.FusionThreshold = 0.7 }},
		{"tiers increase", func(c *Config) { c.Brain.Learning.Tiers[1].Threshold = 0.99 }},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "postgres" }},
		{"llm without endpoint", func(c *Config) { c.LLM.Enabled = true; c.LLM.Provider.Endpoint = "" }},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		in, want string
	}{
		{"~/.resonance/resonance.db", filepath.Join(homeDir, ".resonance", "resonance.db")},
		{"/abs/path", "/abs/path"},
		{"relative/path", "relative/path"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := expandPath(tt.in); got != tt.want {
			t.Errorf("expandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

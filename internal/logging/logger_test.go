package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// restoreGlobal puts the global logger back after a test replaces it.
func restoreGlobal(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"unknown", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSetup_JSONLevelFilter(t *testing.T) {
	restoreGlobal(t)
	var buf bytes.Buffer

	closer, err := Setup(Options{Level: "warn", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	defer closer.Close()

	log.Info().Msg("hidden")
	log.Warn().Str("zone", "5").Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["message"] != "shown" || entry["zone"] != "5" || entry["level"] != "warn" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestSetup_VerboseAddsCaller(t *testing.T) {
	restoreGlobal(t)
	var buf bytes.Buffer

	closer, err := Setup(Options{Level: "error", Format: "json", Verbose: true, Output: &buf})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	defer closer.Close()

	log.Debug().Msg("debug visible")
	if !strings.Contains(buf.String(), "debug visible") {
		t.Error("verbose should enable debug")
	}
	if !strings.Contains(buf.String(), `"caller"`) {
		t.Error("verbose should add caller information")
	}
}

func TestSetup_ConsoleFormat(t *testing.T) {
	restoreGlobal(t)
	var buf bytes.Buffer

	closer, err := Setup(Options{Output: &buf})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	defer closer.Close()

	log.Info().Msg("console line")
	out := buf.String()
	if !strings.Contains(out, "console line") {
		t.Errorf("missing message in %q", out)
	}
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("console output should not be JSON: %q", out)
	}
}

func TestSetup_FileSink(t *testing.T) {
	restoreGlobal(t)
	path := filepath.Join(t.TempDir(), "logs", "resonance.log")
	var buf bytes.Buffer

	closer, err := Setup(Options{Format: "json", File: path, Output: &buf})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	log.Info().Msg("to file")
	if err := closer.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file missing message: %q", data)
	}
	if !strings.Contains(buf.String(), "to file") {
		t.Error("primary output missing message")
	}
}

func TestComponent(t *testing.T) {
	restoreGlobal(t)
	var buf bytes.Buffer
	if _, err := Setup(Options{Format: "json", Output: &buf}); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	logger := Component("storage")
	logger.Info().Msg("saved")
	if !strings.Contains(buf.String(), `"component":"storage"`) {
		t.Errorf("missing component field: %q", buf.String())
	}
}

package utils

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaultConfig tests the DefaultConfig function
func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config == nil {
		t.Fatal("DefaultConfig() returned nil")
	}

	if config.MaxCycles == 0 {
		t.Error("MaxCycles should be set")
	}

	if config.ExecutionTimeout <= 0 {
		t.Error("ExecutionTimeout should be positive")
	}

	if config.HashFunction == "" {
		t.Error("HashFunction should not be empty")
	}

	if err := config.Validate(); err != nil {
		t.Errorf("DefaultConfig() should be valid: %v", err)
	}
}

// TestConfigValidate tests the Validate method
func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		config    *Config
		expectErr bool
	}{
		{"valid default config", DefaultConfig(), false},
		{"unbounded cycles", DefaultConfig().WithMaxCycles(0), false},
		{"no timeout", DefaultConfig().WithExecutionTimeout(0), false},
		{"negative timeout", DefaultConfig().WithExecutionTimeout(-time.Second), true},
		{"zero input limit", DefaultConfig().WithMaxInputBytes(0), true},
		{"zero journal limit", DefaultConfig().WithMaxJournalBytes(0), true},
		{"zero wasm pages", DefaultConfig().WithWasmMemoryLimitPages(0), true},
		{"too many wasm pages", DefaultConfig().WithWasmMemoryLimitPages(65537), true},
		{"bad receipt version", DefaultConfig().WithReceiptVersion("one"), true},
		{"bad constraint", DefaultConfig().WithAcceptedVersions("not-a-constraint!"), true},
		{"version outside constraint", DefaultConfig().WithReceiptVersion("2.0.0"), true},
		{"version inside widened constraint", DefaultConfig().WithReceiptVersion("2.1.0").WithAcceptedVersions(">=1.0.0, <3.0.0"), false},
		{"sha256 transcript", DefaultConfig().WithHashFunction("sha256"), false},
		{"unknown hash", DefaultConfig().WithHashFunction("md5"), true},
		{"unknown log level", DefaultConfig().WithLogLevel("loud"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.expectErr && err == nil {
				t.Error("Expected error but got nil")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

// TestConfigClone tests that Clone produces an independent copy
func TestConfigClone(t *testing.T) {
	original := DefaultConfig()
	clone := original.Clone()

	clone.WithMaxCycles(7).WithLogLevel("debug")

	if original.MaxCycles == 7 {
		t.Error("modifying clone changed original MaxCycles")
	}
	if original.LogLevel == "debug" {
		t.Error("modifying clone changed original LogLevel")
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	t.Run("partial file keeps defaults", func(t *testing.T) {
		path := filepath.Join(dir, "partial.yaml")
		body := "max_cycles: 5000\nexecution_timeout: 2s\nlog_level: debug\n"
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}

		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.MaxCycles != 5000 {
			t.Errorf("MaxCycles = %d, want 5000", cfg.MaxCycles)
		}
		if cfg.ExecutionTimeout != 2*time.Second {
			t.Errorf("ExecutionTimeout = %s, want 2s", cfg.ExecutionTimeout)
		}
		if cfg.MaxJournalBytes != DefaultConfig().MaxJournalBytes {
			t.Errorf("MaxJournalBytes = %d, want default", cfg.MaxJournalBytes)
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		path := filepath.Join(dir, "unknown.yaml")
		if err := os.WriteFile(path, []byte("max_cycle: 1\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Error("LoadConfig should reject unknown fields")
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		path := filepath.Join(dir, "invalid.yaml")
		if err := os.WriteFile(path, []byte("hash_function: md5\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Error("LoadConfig should validate the result")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(dir, "absent.yaml")); err == nil {
			t.Error("LoadConfig should fail for a missing file")
		}
	})
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLogLevel(in)
		if err != nil {
			t.Errorf("ParseLogLevel(%q) error: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

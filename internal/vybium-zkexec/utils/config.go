package utils

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// Config holds the execution engine and receipt parameters.
type Config struct {
	// Resource limits. MaxCycles is in counter units: nanoseconds with the
	// default monotonic counter, so it then acts as a second time limit.
	MaxCycles        uint64        `yaml:"max_cycles"`        // cycle budget per session, 0 disables the cap
	ExecutionTimeout time.Duration `yaml:"execution_timeout"` // wall-clock limit per session, 0 disables it
	MaxInputBytes    int           `yaml:"max_input_bytes"`
	MaxJournalBytes  int           `yaml:"max_journal_bytes"`

	// WebAssembly backend
	WasmMemoryLimitPages uint32 `yaml:"wasm_memory_limit_pages"` // 64 KiB pages

	// Receipt parameters
	ReceiptVersion   string `yaml:"receipt_version"`
	AcceptedVersions string `yaml:"accepted_versions"` // semver constraint checked by verifiers

	// Transcript hash function
	HashFunction string `yaml:"hash_function"` // "sha3" or "sha256"

	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the configuration used by the CLI and the examples.
func DefaultConfig() *Config {
	return &Config{
		MaxCycles:            1 << 40,
		ExecutionTimeout:     30 * time.Second,
		MaxInputBytes:        1 << 20,
		MaxJournalBytes:      1 << 16,
		WasmMemoryLimitPages: 256,
		ReceiptVersion:       "1.0.0",
		AcceptedVersions:     "^1.0.0",
		HashFunction:         "sha3",
		LogLevel:             "info",
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.ExecutionTimeout < 0 {
		return fmt.Errorf("execution timeout must not be negative")
	}

	if c.MaxInputBytes <= 0 {
		return fmt.Errorf("max input bytes must be positive")
	}

	if c.MaxJournalBytes <= 0 {
		return fmt.Errorf("max journal bytes must be positive")
	}

	if c.WasmMemoryLimitPages == 0 || c.WasmMemoryLimitPages > 65536 {
		return fmt.Errorf("wasm memory limit must be between 1 and 65536 pages, got %d", c.WasmMemoryLimitPages)
	}

	version, err := semver.NewVersion(c.ReceiptVersion)
	if err != nil {
		return fmt.Errorf("invalid receipt version %q: %w", c.ReceiptVersion, err)
	}
	constraint, err := semver.NewConstraint(c.AcceptedVersions)
	if err != nil {
		return fmt.Errorf("invalid accepted versions %q: %w", c.AcceptedVersions, err)
	}
	if !constraint.Check(version) {
		return fmt.Errorf("receipt version %s does not satisfy accepted versions %q", version, c.AcceptedVersions)
	}

	if c.HashFunction != "sha256" && c.HashFunction != "sha3" {
		return fmt.Errorf("hash function must be 'sha256' or 'sha3', got '%s'", c.HashFunction)
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

// VersionConstraint parses AcceptedVersions.
func (c *Config) VersionConstraint() (*semver.Constraints, error) {
	return semver.NewConstraint(c.AcceptedVersions)
}

// WithMaxCycles sets the per-session cycle budget
func (c *Config) WithMaxCycles(cycles uint64) *Config {
	c.MaxCycles = cycles
	return c
}

// WithExecutionTimeout sets the per-session wall-clock limit
func (c *Config) WithExecutionTimeout(d time.Duration) *Config {
	c.ExecutionTimeout = d
	return c
}

// WithMaxInputBytes sets the input blob size limit
func (c *Config) WithMaxInputBytes(n int) *Config {
	c.MaxInputBytes = n
	return c
}

// WithMaxJournalBytes sets the journal size limit
func (c *Config) WithMaxJournalBytes(n int) *Config {
	c.MaxJournalBytes = n
	return c
}

// WithWasmMemoryLimitPages sets the wasm memory cap
func (c *Config) WithWasmMemoryLimitPages(pages uint32) *Config {
	c.WasmMemoryLimitPages = pages
	return c
}

// WithReceiptVersion sets the version stamped on new receipts
func (c *Config) WithReceiptVersion(version string) *Config {
	c.ReceiptVersion = version
	return c
}

// WithAcceptedVersions sets the receipt version constraint
func (c *Config) WithAcceptedVersions(constraint string) *Config {
	c.AcceptedVersions = constraint
	return c
}

// WithHashFunction sets the hash function
func (c *Config) WithHashFunction(hashFunc string) *Config {
	c.HashFunction = hashFunc
	return c
}

// WithLogLevel sets the log level
func (c *Config) WithLogLevel(level string) *Config {
	c.LogLevel = level
	return c
}

// Clone creates a copy of the configuration
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// LoadConfig reads a YAML configuration file. Fields missing from the file
// keep their DefaultConfig values; unknown fields are rejected.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	defer f.Close()

	cfg := DefaultConfig()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// ParseLogLevel maps a level name to a slog level.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

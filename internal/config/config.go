// Package config loads restruct settings from YAML.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Output controls the per-function record file.
type Output struct {
	// Format is "jsonl" or "msgpack".
	Format string `yaml:"format"`
	// Compress wraps the record file in zstd.
	Compress bool `yaml:"compress"`
}

// Config holds all settings for a structuring run.
type Config struct {
	// Workers bounds the number of functions reduced concurrently.
	Workers int `yaml:"workers" env:"RESTRUCT_WORKERS"`
	// Mode is "strict" or "best-effort".
	Mode string `yaml:"mode" env:"RESTRUCT_MODE"`
	// Order is the node traversal used by the reducer: "rpo" or "dom-depth".
	Order string `yaml:"order"`

	// Tail duplication of return blocks when reduction is stuck.
	TailDuplication int `yaml:"tail_duplication"`
	MaxTailSize     int `yaml:"max_tail_size"`

	// MaxSteps caps pattern applications per function; 0 keeps the default.
	MaxSteps int `yaml:"max_steps"`
	// Checked validates the graph after every rewrite.
	Checked bool `yaml:"checked"`

	LogLevel string `yaml:"log_level" env:"RESTRUCT_LOG_LEVEL"`

	Output Output `yaml:"output"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Workers:         runtime.GOMAXPROCS(0),
		Mode:            "best-effort",
		Order:           "rpo",
		TailDuplication: 8,
		MaxTailSize:     16,
		LogLevel:        "info",
		Output:          Output{Format: "jsonl"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("config: mkdir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("RESTRUCT_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: RESTRUCT_WORKERS=%q", ErrInvalid, v)
		}
		cfg.Workers = n
	}
	if v := os.Getenv("RESTRUCT_MODE"); v != "" {
		cfg.Mode = v
	}
	if v := os.Getenv("RESTRUCT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	switch c.Mode {
	case "strict", "best-effort":
	default:
		errs = append(errs, fmt.Errorf("mode %q", c.Mode))
	}
	switch c.Order {
	case "rpo", "dom-depth":
	default:
		errs = append(errs, fmt.Errorf("order %q", c.Order))
	}
	if c.TailDuplication < 0 || c.MaxTailSize < 0 || c.MaxSteps < 0 {
		errs = append(errs, errors.New("limits must not be negative"))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	switch c.Output.Format {
	case "jsonl", "msgpack":
	default:
		errs = append(errs, fmt.Errorf("output.format %q", c.Output.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Level maps LogLevel to a slog level.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("log_level %q", c.LogLevel)
	}
	return l, nil
}

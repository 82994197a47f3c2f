// Package config loads chartsynth configuration from an optional YAML file
// with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all chartsynth configuration.
type Config struct {
	Name string `yaml:"name"`

	// Executor settings
	Executor ExecutorConfig `yaml:"executor"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ExecutorConfig tunes the sandboxed evaluation step.
type ExecutorConfig struct {
	// Timeout is a Go duration string bounding one evaluation.
	Timeout string `yaml:"timeout"`
	// MaxSourceBytes rejects oversized generated sources; 0 disables.
	MaxSourceBytes int `yaml:"max_source_bytes"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level       string `yaml:"level"` // debug/info/warn/error
	Development bool   `yaml:"development"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Name: "chartsynth",
		Executor: ExecutorConfig{
			Timeout:        "5s",
			MaxSourceBytes: 256 * 1024,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads path on top of the defaults. A missing file is not an error:
// defaults plus environment overrides apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to env overrides
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)

	if _, err := cfg.ExecTimeout(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers CHARTSYNTH_* variables over the file values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("CHARTSYNTH_EXEC_TIMEOUT"); v != "" {
		cfg.Executor.Timeout = v
	}
	if v := os.Getenv("CHARTSYNTH_MAX_SOURCE_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Executor.MaxSourceBytes = n
		}
	}
	if v := os.Getenv("CHARTSYNTH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// ExecTimeout parses the executor timeout.
func (c *Config) ExecTimeout() (time.Duration, error) {
	if c.Executor.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Executor.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid executor timeout %q: %w", c.Executor.Timeout, err)
	}
	return d, nil
}

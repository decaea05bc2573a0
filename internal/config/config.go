// Package config holds the process-wide configuration for gcc-mcp.
// The Config value is built once in main (defaults, then an optional
// YAML file, then GCC_* environment overrides) and passed into every
// component explicitly. Components never consult the environment or
// fall back to their own defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Git configures the identity and default branch used when a session
// repository is initialized. Existing identity settings are never
// overwritten.
type Git struct {
	Name          string `yaml:"name"`
	Email         string `yaml:"email"`
	DefaultBranch string `yaml:"default_branch"`
}

// Limits bounds user-supplied input sizes and pagination parameters.
type Limits struct {
	MaxBranchNameLen int `yaml:"max_branch_name_length"`
	MaxSessionIDLen  int `yaml:"max_session_id_length"`
	MaxStringLen     int `yaml:"max_string_length"`
	MinLimit         int `yaml:"min_limit"`
	MaxLimit         int `yaml:"max_limit"`
}

// Lock configures the session lock acquisition budget.
type Lock struct {
	Timeout time.Duration `yaml:"timeout"`
	Poll    time.Duration `yaml:"poll"`
}

// Audit configures the operation audit trail.
type Audit struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// Config aggregates all settings.
type Config struct {
	DataRoot string `yaml:"data_root"`
	Git      Git    `yaml:"git"`
	Limits   Limits `yaml:"limits"`
	Lock     Lock   `yaml:"lock"`
	Audit    Audit  `yaml:"audit"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DataRoot: "/data",
		Git: Git{
			Name:          "GCC Agent",
			Email:         "gcc@example.com",
			DefaultBranch: "main",
		},
		Limits: Limits{
			MaxBranchNameLen: 100,
			MaxSessionIDLen:  100,
			MaxStringLen:     10000,
			MinLimit:         1,
			MaxLimit:         1000,
		},
		Lock: Lock{
			Timeout: 10 * time.Second,
			Poll:    100 * time.Millisecond,
		},
		Audit: Audit{
			Enabled: true,
			Dir:     "/var/log/gcc",
		},
	}
}

// Load builds the effective configuration: defaults, overlaid by the YAML
// file at path (when non-empty), overlaid by environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	envStr(&c.DataRoot, "GCC_DATA_ROOT")
	envStr(&c.Git.Name, "GCC_GIT_NAME")
	envStr(&c.Git.Email, "GCC_GIT_EMAIL")
	envStr(&c.Git.DefaultBranch, "GCC_GIT_DEFAULT_BRANCH")
	envInt(&c.Limits.MaxBranchNameLen, "GCC_MAX_BRANCH_LENGTH")
	envInt(&c.Limits.MaxSessionIDLen, "GCC_MAX_SESSION_LENGTH")
	envInt(&c.Limits.MaxStringLen, "GCC_MAX_STRING_LENGTH")
	envInt(&c.Limits.MinLimit, "GCC_MIN_LIMIT")
	envInt(&c.Limits.MaxLimit, "GCC_MAX_LIMIT")
	envDuration(&c.Lock.Timeout, "GCC_LOCK_TIMEOUT")
	envDuration(&c.Lock.Poll, "GCC_LOCK_POLL")
	envBool(&c.Audit.Enabled, "GCC_ENABLE_AUDIT_LOG")
	envStr(&c.Audit.Dir, "GCC_LOG_DIR")
}

func (c *Config) validate() error {
	if c.DataRoot == "" {
		return fmt.Errorf("config: data_root must not be empty")
	}
	if c.Limits.MinLimit < 1 || c.Limits.MaxLimit < c.Limits.MinLimit {
		return fmt.Errorf("config: invalid limit bounds [%d, %d]", c.Limits.MinLimit, c.Limits.MaxLimit)
	}
	if c.Lock.Timeout <= 0 || c.Lock.Poll <= 0 {
		return fmt.Errorf("config: lock timeout and poll must be positive")
	}
	return nil
}

func envStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// Package config implements the Settings surface the dispatch core consumes
// but does not itself persist (spec §1, §6): the init-retry budget, the two
// overlapping timeouts, and per-peer federation settings. Loaded from a
// YAML file with layered defaults, matching the teacher's
// default-then-file-then-env precedence (internal/config/config.go,
// defaults.go, env.go in RevCBH-choo).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FederationPeer configures one Federation Driver instance (spec §6:
// "Federation per-instance: address, allow_idle, over_queue").
type FederationPeer struct {
	Address   string `yaml:"address"`
	AllowIdle bool   `yaml:"allow_idle"`
	OverQueue int    `yaml:"over_queue"`
}

// WorkerConfig configures one locally-managed backend the daemon wires an
// HTTPDriver to at startup. Not itself spec-mandated, but required ambient
// wiring so the daemon binary has a non-federated worker pool to manage.
type WorkerConfig struct {
	Address    string `yaml:"address"`
	DriverType string `yaml:"driver_type"`
}

// Config is the dispatch core's Settings surface (spec §6).
type Config struct {
	// MaxInitAttempts bounds the Dispatcher's init-retry loop (default 3).
	MaxInitAttempts int `yaml:"max_init_attempts"`
	// MaxTimeoutMinutes is the per-backend inactivity threshold that
	// declares a worker stalled (default 20).
	MaxTimeoutMinutes int `yaml:"max_timeout_minutes"`
	// PerRequestTimeoutMinutes bounds time spent waiting for a worker,
	// queueing inclusive (default 10080, one week).
	PerRequestTimeoutMinutes int `yaml:"per_request_timeout_minutes"`

	// Federation lists the peer instances to mirror into the local pool.
	Federation []FederationPeer `yaml:"federation"`
	// Workers lists locally-managed backends wired as plain HTTPDrivers.
	Workers []WorkerConfig `yaml:"workers"`

	// LocalLoopID identifies this process to peers for loop detection
	// (spec §4.E). Generated at daemon startup if left empty in the file.
	LocalLoopID string `yaml:"local_loop_id"`

	// ListenAddress is loaded from the file and environment, but the daemon
	// does not read it: its control plane listens on daemon.Config.SocketPath.
	ListenAddress string `yaml:"listen_address"`
	// LogLevel gates internal/logging's Debugf/Infof/Warnf/Errorf.
	LogLevel string `yaml:"log_level"`
}

const (
	// DefaultMaxInitAttempts matches spec §6's default.
	DefaultMaxInitAttempts = 3
	// DefaultMaxTimeoutMinutes matches spec §6's default.
	DefaultMaxTimeoutMinutes = 20
	// DefaultPerRequestTimeoutMinutes matches spec §6's default.
	DefaultPerRequestTimeoutMinutes = 10080
	// DefaultListenAddress is ListenAddress's default value.
	DefaultListenAddress = "unix:///tmp/dispatchd.sock"
	// DefaultLogLevel matches the teacher's default.
	DefaultLogLevel = "info"
)

// Default returns a Config with every field set to its spec §6 default.
func Default() *Config {
	return &Config{
		MaxInitAttempts:          DefaultMaxInitAttempts,
		MaxTimeoutMinutes:        DefaultMaxTimeoutMinutes,
		PerRequestTimeoutMinutes: DefaultPerRequestTimeoutMinutes,
		ListenAddress:            DefaultListenAddress,
		LogLevel:                 DefaultLogLevel,
	}
}

// Load reads config from path, layering file values over defaults and then
// environment overrides over the file, matching the teacher's
// default-then-file-then-env precedence. A missing file is not an error;
// Load returns the defaults (plus any env overrides) instead, mirroring
// LoadGlobalConfigFromPath's tolerance of a missing ~/.choo/config.yaml.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// use defaults
		case err != nil:
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parsing %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings combinations the dispatch core cannot act on.
func (c *Config) Validate() error {
	if c.MaxInitAttempts <= 0 {
		return fmt.Errorf("config: max_init_attempts must be positive, got %d", c.MaxInitAttempts)
	}
	if c.MaxTimeoutMinutes <= 0 {
		return fmt.Errorf("config: max_timeout_minutes must be positive, got %d", c.MaxTimeoutMinutes)
	}
	if c.PerRequestTimeoutMinutes <= 0 {
		return fmt.Errorf("config: per_request_timeout_minutes must be positive, got %d", c.PerRequestTimeoutMinutes)
	}
	for i, peer := range c.Federation {
		if peer.Address == "" {
			return fmt.Errorf("config: federation[%d].address must not be empty", i)
		}
		if peer.OverQueue < 0 {
			return fmt.Errorf("config: federation[%d].over_queue must not be negative", i)
		}
	}
	for i, w := range c.Workers {
		if w.Address == "" {
			return fmt.Errorf("config: workers[%d].address must not be empty", i)
		}
	}
	return nil
}

// MaxTimeout returns MaxTimeoutMinutes as a time.Duration.
func (c *Config) MaxTimeout() time.Duration {
	return time.Duration(c.MaxTimeoutMinutes) * time.Minute
}

// PerRequestTimeout returns PerRequestTimeoutMinutes as a time.Duration.
func (c *Config) PerRequestTimeout() time.Duration {
	return time.Duration(c.PerRequestTimeoutMinutes) * time.Minute
}

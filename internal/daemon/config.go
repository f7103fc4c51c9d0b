package daemon

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config holds daemon process configuration: where its control socket and
// PID file live, plus a default settings-file path. Mirrors the
// teacher's daemon.Config / DefaultConfig split (internal/daemon/config.go),
// with DBPath and web-server fields dropped since this daemon persists
// nothing of its own (spec's Non-goals exclude durable job history).
type Config struct {
	SocketPath string // Default: ~/.dispatchd/daemon.sock
	PIDFile    string // Default: ~/.dispatchd/daemon.pid
	ConfigPath string // Default: ~/.dispatchd/config.yaml; not read by `daemon start`, which loads settings from its --config flag
	Version    string
}

// DefaultConfig returns a Config with paths resolved under the user's home
// directory.
func DefaultConfig() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("daemon: resolving home directory: %w", err)
	}

	base := filepath.Join(home, ".dispatchd")
	return &Config{
		SocketPath: filepath.Join(base, "daemon.sock"),
		PIDFile:    filepath.Join(base, "daemon.pid"),
		ConfigPath: filepath.Join(base, "config.yaml"),
		Version:    "dev",
	}, nil
}

// Validate rejects a Config the daemon cannot start with.
func (c *Config) Validate() error {
	if !filepath.IsAbs(c.SocketPath) {
		return fmt.Errorf("daemon: SocketPath must be absolute, got %s", c.SocketPath)
	}
	if !filepath.IsAbs(c.PIDFile) {
		return fmt.Errorf("daemon: PIDFile must be absolute, got %s", c.PIDFile)
	}
	return nil
}

// EnsureDirectories creates the parent directories the socket and PID file
// live in.
func (c *Config) EnsureDirectories() error {
	dirs := map[string]bool{
		filepath.Dir(c.SocketPath): true,
		filepath.Dir(c.PIDFile):    true,
	}
	for dir := range dirs {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("daemon: creating directory %s: %w", dir, err)
		}
	}
	return nil
}

package config

import (
	"os"
	"strconv"
)

// envOverrides maps environment variables to config field setters, applied
// after the file layer so the environment always wins (teacher's
// internal/config/env.go pattern).
var envOverrides = []struct {
	envVar string
	apply  func(*Config, string)
}{
	{
		envVar: "DISPATCHD_MAX_INIT_ATTEMPTS",
		apply: func(c *Config, v string) {
			if n, err := strconv.Atoi(v); err == nil {
				c.MaxInitAttempts = n
			}
		},
	},
	{
		envVar: "DISPATCHD_MAX_TIMEOUT_MINUTES",
		apply: func(c *Config, v string) {
			if n, err := strconv.Atoi(v); err == nil {
				c.MaxTimeoutMinutes = n
			}
		},
	},
	{
		envVar: "DISPATCHD_PER_REQUEST_TIMEOUT_MINUTES",
		apply: func(c *Config, v string) {
			if n, err := strconv.Atoi(v); err == nil {
				c.PerRequestTimeoutMinutes = n
			}
		},
	},
	{
		envVar: "DISPATCHD_LISTEN_ADDRESS",
		apply: func(c *Config, v string) {
			c.ListenAddress = v
		},
	},
	{
		envVar: "DISPATCHD_LOG_LEVEL",
		apply: func(c *Config, v string) {
			c.LogLevel = v
		},
	},
	{
		envVar: "DISPATCHD_LOCAL_LOOP_ID",
		apply: func(c *Config, v string) {
			c.LocalLoopID = v
		},
	},
}

// applyEnvOverrides modifies cfg in place with environment variable values.
func applyEnvOverrides(cfg *Config) {
	for _, override := range envOverrides {
		if val := os.Getenv(override.envVar); val != "" {
			override.apply(cfg, val)
		}
	}
}

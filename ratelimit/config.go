// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import "time"

// Config holds rate limiting configuration.
type Config struct {
	Enabled bool `yaml:"enabled"`

	Control ControlConfig `yaml:"control"`
	Submit  SubmitConfig  `yaml:"submit"`
}

// ControlConfig holds per-IP control connection limits.
type ControlConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Rate            float64       `yaml:"rate"`             // connections per second per IP
	Burst           int           `yaml:"burst"`            // burst allowance
	CleanupInterval time.Duration `yaml:"cleanup_interval"` // cleanup interval for stale entries
}

// SubmitConfig holds per-identity submit limits.
type SubmitConfig struct {
	Enabled bool    `yaml:"enabled"`
	Rate    float64 `yaml:"rate"`  // submits per second per identity
	Burst   int     `yaml:"burst"` // burst allowance
}

// DefaultConfig returns the default rate limiting configuration.
func DefaultConfig() Config {
	return Config{
		Enabled: false,
		Control: ControlConfig{
			Enabled:         true,
			Rate:            100.0 / 60.0,
			Burst:           20,
			CleanupInterval: 5 * time.Minute,
		},
		Submit: SubmitConfig{
			Enabled: true,
			Rate:    1000,
			Burst:   100,
		},
	}
}

// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/absmach/mtqueue/queue"
	"github.com/absmach/mtqueue/ratelimit"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the MT queue server.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Queue     QueueConfig      `yaml:"queue"`
	Stats     StatsConfig      `yaml:"stats"`
	Redis     RedisConfig      `yaml:"redis"`
	Database  DatabaseConfig   `yaml:"database"`
	RateLimit ratelimit.Config `yaml:"ratelimit"`
	Log       LogConfig        `yaml:"log"`
}

// ServerConfig holds control and data plane settings.
type ServerConfig struct {
	ID              int           `yaml:"id"`
	Listen          string        `yaml:"listen"` // host workers bind on and advertise
	Port            int           `yaml:"port"`   // control port; workers start at port+1
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ControlWait     time.Duration `yaml:"control_wait"`
	BindAttempts    int           `yaml:"bind_attempts"` // 0 = up to port 65535
	MaxConnections  int           `yaml:"max_connections"`
	MaxFrameSize    int           `yaml:"max_frame_size"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	HealthEnabled   bool          `yaml:"health_enabled"`
	HealthAddr      string        `yaml:"health_addr"`
	MetricsEnabled  bool          `yaml:"metrics_enabled"`
	MetricsAddr     string        `yaml:"metrics_addr"` // OTLP endpoint

	// OpenTelemetry configuration
	OtelServiceName     string  `yaml:"otel_service_name"`
	OtelServiceVersion  string  `yaml:"otel_service_version"`
	OtelTracesEnabled   bool    `yaml:"otel_traces_enabled"`
	OtelMetricsEnabled  bool    `yaml:"otel_metrics_enabled"`
	OtelTraceSampleRate float64 `yaml:"otel_trace_sample_rate"` // 0.0 to 1.0
}

// QueueConfig holds per-identity queue limits.
type QueueConfig struct {
	MaxDepth   int    `yaml:"max_depth"`   // 0 = unbounded
	DropPolicy string `yaml:"drop_policy"` // "newest" or "oldest"
}

// StatsConfig holds queue depth publishing settings.
type StatsConfig struct {
	Enabled        bool                 `yaml:"enabled"`
	Interval       time.Duration        `yaml:"interval"`
	Key            string               `yaml:"key"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds circuit breaker configuration for the stats sink.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
}

// RedisConfig holds the Redis connection used by the stats sink and account cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DatabaseConfig holds the account store connection.
type DatabaseConfig struct {
	DSN           string        `yaml:"dsn"` // empty disables account lookups
	CachePrefix   string        `yaml:"cache_prefix"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	LookupTimeout time.Duration `yaml:"lookup_timeout"` // bound on one control-plane account lookup
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ID:              1,
			Listen:          "127.0.0.1",
			Port:            5024,
			IdleTimeout:     30 * time.Second,
			ControlWait:     3 * time.Second,
			BindAttempts:    1000,
			MaxConnections:  1024,
			MaxFrameSize:    64 * 1024,
			ShutdownTimeout: 30 * time.Second,
			HealthEnabled:   true,
			HealthAddr:      ":8081",
			MetricsEnabled:  false,
			MetricsAddr:     "localhost:4317",

			OtelServiceName:     "mt-queue",
			OtelServiceVersion:  "1.0.0",
			OtelMetricsEnabled:  true,
			OtelTracesEnabled:   false,
			OtelTraceSampleRate: 0.1,
		},
		Queue: QueueConfig{
			MaxDepth:   0,
			DropPolicy: string(queue.DropNewest),
		},
		Stats: StatsConfig{
			Enabled:  true,
			Interval: 3 * time.Second,
			Key:      "mt.queue",
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				ResetTimeout:     30 * time.Second,
			},
		},
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
			DB:   0,
		},
		Database: DatabaseConfig{
			CachePrefix:   "account.",
			CacheTTL:      10 * time.Minute,
			LookupTimeout: time.Second,
		},
		RateLimit: ratelimit.DefaultConfig(),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
// If the file doesn't exist, returns default configuration.
func Load(filename string) (*Config, error) {
	if filename == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen cannot be empty")
	}
	if c.Server.Port < 1 || c.Server.Port >= 65535 {
		return fmt.Errorf("server.port must be between 1 and 65534")
	}
	if c.Server.IdleTimeout < time.Second {
		return fmt.Errorf("server.idle_timeout must be at least 1 second")
	}
	if c.Server.ControlWait <= 0 {
		return fmt.Errorf("server.control_wait must be positive")
	}
	if c.Server.BindAttempts < 0 {
		return fmt.Errorf("server.bind_attempts cannot be negative")
	}
	if c.Server.MaxConnections < 0 {
		return fmt.Errorf("server.max_connections cannot be negative")
	}
	if c.Server.MaxFrameSize < 1024 {
		return fmt.Errorf("server.max_frame_size must be at least 1KB")
	}
	if c.Server.HealthEnabled && c.Server.HealthAddr == "" {
		return fmt.Errorf("server.health_addr required when health is enabled")
	}

	if c.Queue.MaxDepth < 0 {
		return fmt.Errorf("queue.max_depth cannot be negative")
	}
	switch queue.DropPolicy(c.Queue.DropPolicy) {
	case queue.DropNewest, queue.DropOldest:
	default:
		return fmt.Errorf("queue.drop_policy must be 'oldest' or 'newest'")
	}

	if c.Stats.Enabled {
		if c.Stats.Interval < 100*time.Millisecond {
			return fmt.Errorf("stats.interval must be at least 100ms")
		}
		if c.Stats.Key == "" {
			return fmt.Errorf("stats.key cannot be empty when stats enabled")
		}
		if c.Stats.CircuitBreaker.FailureThreshold < 1 {
			return fmt.Errorf("stats.circuit_breaker.failure_threshold must be at least 1")
		}
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr required when stats enabled")
		}
	}

	if c.Database.DSN != "" && c.Database.CachePrefix == "" {
		return fmt.Errorf("database.cache_prefix cannot be empty")
	}
	if c.Database.DSN != "" && c.Database.LookupTimeout <= 0 {
		return fmt.Errorf("database.lookup_timeout must be positive")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Control.Enabled && (c.RateLimit.Control.Rate <= 0 || c.RateLimit.Control.Burst < 1) {
			return fmt.Errorf("ratelimit.control rate and burst must be positive")
		}
		if c.RateLimit.Submit.Enabled && (c.RateLimit.Submit.Rate <= 0 || c.RateLimit.Submit.Burst < 1) {
			return fmt.Errorf("ratelimit.submit rate and burst must be positive")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be one of: text, json")
	}

	// OpenTelemetry validation (only if metrics enabled)
	if c.Server.MetricsEnabled {
		if c.Server.OtelServiceName == "" {
			return fmt.Errorf("server.otel_service_name cannot be empty when metrics enabled")
		}
		if c.Server.OtelTraceSampleRate < 0.0 || c.Server.OtelTraceSampleRate > 1.0 {
			return fmt.Errorf("server.otel_trace_sample_rate must be between 0.0 and 1.0")
		}
	}

	return nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

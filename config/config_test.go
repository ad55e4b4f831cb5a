// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 5024 {
		t.Errorf("expected default control port 5024, got %d", cfg.Server.Port)
	}
	if cfg.Server.ControlWait != 3*time.Second {
		t.Errorf("expected control wait 3s, got %v", cfg.Server.ControlWait)
	}
	if cfg.Stats.Interval != 3*time.Second {
		t.Errorf("expected stats interval 3s, got %v", cfg.Stats.Interval)
	}
	if cfg.Stats.Key != "mt.queue" {
		t.Errorf("expected stats key mt.queue, got %s", cfg.Stats.Key)
	}
	if cfg.Queue.DropPolicy != "newest" {
		t.Errorf("expected drop policy newest, got %s", cfg.Queue.DropPolicy)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected log level info, got %s", cfg.Log.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "default config is valid",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "empty listen host",
			modify:  func(c *Config) { c.Server.Listen = "" },
			wantErr: true,
		},
		{
			name:    "port out of range",
			modify:  func(c *Config) { c.Server.Port = 65535 },
			wantErr: true,
		},
		{
			name:    "idle timeout too short",
			modify:  func(c *Config) { c.Server.IdleTimeout = 10 * time.Millisecond },
			wantErr: true,
		},
		{
			name:    "zero control wait",
			modify:  func(c *Config) { c.Server.ControlWait = 0 },
			wantErr: true,
		},
		{
			name:    "frame size too small",
			modify:  func(c *Config) { c.Server.MaxFrameSize = 100 },
			wantErr: true,
		},
		{
			name: "account store without lookup timeout",
			modify: func(c *Config) {
				c.Database.DSN = "postgres://localhost/sms"
				c.Database.LookupTimeout = 0
			},
			wantErr: true,
		},
		{
			name:    "unknown drop policy",
			modify:  func(c *Config) { c.Queue.DropPolicy = "random" },
			wantErr: true,
		},
		{
			name:    "negative queue depth",
			modify:  func(c *Config) { c.Queue.MaxDepth = -1 },
			wantErr: true,
		},
		{
			name:    "stats without redis",
			modify:  func(c *Config) { c.Redis.Addr = "" },
			wantErr: true,
		},
		{
			name: "stats disabled without redis",
			modify: func(c *Config) {
				c.Stats.Enabled = false
				c.Redis.Addr = ""
			},
			wantErr: false,
		},
		{
			name: "submit rate limit without burst",
			modify: func(c *Config) {
				c.RateLimit.Enabled = true
				c.RateLimit.Submit.Burst = 0
			},
			wantErr: true,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.Log.Level = "invalid" },
			wantErr: true,
		},
		{
			name: "invalid sample rate",
			modify: func(c *Config) {
				c.Server.MetricsEnabled = true
				c.Server.OtelTraceSampleRate = 2
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadNonExistent(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	if err != nil {
		t.Fatalf("Load() should return default config and no error when file doesn't exist, got error: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load() should return a default config, got nil")
	}

	if cfg.Server.Port != 5024 {
		t.Errorf("expected default config, got port %d", cfg.Server.Port)
	}
}

func TestLoadPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mt.yaml")
	data := []byte("server:\n  listen: 0.0.0.0\n  port: 6000\nqueue:\n  max_depth: 500\n  drop_policy: oldest\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Listen != "0.0.0.0" || cfg.Server.Port != 6000 {
		t.Errorf("expected 0.0.0.0:6000, got %s:%d", cfg.Server.Listen, cfg.Server.Port)
	}
	if cfg.Queue.MaxDepth != 500 || cfg.Queue.DropPolicy != "oldest" {
		t.Errorf("unexpected queue config %+v", cfg.Queue)
	}
	if cfg.Server.ControlWait != 3*time.Second {
		t.Errorf("unset fields should keep defaults, got control wait %v", cfg.Server.ControlWait)
	}
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mt.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: loud\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}

	if err := os.WriteFile(path, []byte("server: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSaveLoad(t *testing.T) {
	tmpfile := t.TempDir() + "/config.yaml"

	cfg := Default()
	cfg.Server.Port = 7000
	cfg.Stats.Interval = 5 * time.Second
	cfg.Log.Level = "debug"

	if err := cfg.Save(tmpfile); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(tmpfile)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loaded.Server.Port != 7000 {
		t.Errorf("expected port 7000, got %d", loaded.Server.Port)
	}
	if loaded.Stats.Interval != 5*time.Second {
		t.Errorf("expected stats interval 5s, got %v", loaded.Stats.Interval)
	}
	if loaded.Log.Level != "debug" {
		t.Errorf("expected log level debug, got %s", loaded.Log.Level)
	}
}

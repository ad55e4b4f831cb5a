// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit paces control connections per remote IP and submits
// per client identity.
package ratelimit

import (
	"context"
	"net"
	"time"
)

const defaultCleanup = 5 * time.Minute

// NewIPRateLimiter limits control connections per remote IP. Idle IPs are
// forgotten after two cleanup intervals.
func NewIPRateLimiter(r float64, burst int, cleanup time.Duration) *Keyed[string] {
	if cleanup <= 0 {
		cleanup = defaultCleanup
	}
	return NewKeyed[string](r, burst, cleanup)
}

// NewIdentityRateLimiter paces submits per client identity. Producers over
// the rate are slowed down rather than having messages dropped.
func NewIdentityRateLimiter(r float64, burst int) *Keyed[int64] {
	return NewKeyed[int64](r, burst, 0)
}

func extractIP(addr net.Addr) string {
	if addr == nil {
		return ""
	}

	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP.String()
	case *net.UDPAddr:
		return a.IP.String()
	default:
		host, _, err := net.SplitHostPort(addr.String())
		if err != nil {
			return addr.String()
		}
		return host
	}
}

// Manager coordinates the control and submit limiters. A nil or disabled
// Manager allows everything.
type Manager struct {
	ip       *Keyed[string]
	identity *Keyed[int64]
}

// NewManager creates a rate limit manager.
func NewManager(cfg Config) *Manager {
	m := &Manager{}
	if !cfg.Enabled {
		return m
	}
	if cfg.Control.Enabled {
		m.ip = NewIPRateLimiter(cfg.Control.Rate, cfg.Control.Burst, cfg.Control.CleanupInterval)
	}
	if cfg.Submit.Enabled {
		m.identity = NewIdentityRateLimiter(cfg.Submit.Rate, cfg.Submit.Burst)
	}
	return m
}

// Allow reports whether a control connection from addr is allowed.
// Addresses without an IP are always allowed.
func (m *Manager) Allow(addr net.Addr) bool {
	if m == nil || m.ip == nil {
		return true
	}
	ip := extractIP(addr)
	if ip == "" {
		return true
	}
	return m.ip.Allow(ip)
}

// WaitSubmit blocks until a submit from id is allowed.
func (m *Manager) WaitSubmit(ctx context.Context, id int64) error {
	if m == nil || m.identity == nil {
		return nil
	}
	return m.identity.Wait(ctx, id)
}

// Stop releases background resources.
func (m *Manager) Stop() {
	if m != nil && m.ip != nil {
		m.ip.Stop()
	}
}

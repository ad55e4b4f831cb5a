// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package mt implements the MT queue server: the control listener that
// hands out dedicated data endpoints and the push and pull workers that
// serve them.
package mt

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/absmach/mtqueue/queue"
	"github.com/absmach/mtqueue/ratelimit"
	mtotel "github.com/absmach/mtqueue/server/otel"
	"github.com/absmach/mtqueue/transport"
)

// ErrShutdownTimeout is returned when graceful shutdown exceeds the configured timeout.
var ErrShutdownTimeout = errors.New("shutdown timeout exceeded")

// AccountLimits reports how many workers an identity may hold at once.
// A limit of 0 means unlimited.
type AccountLimits interface {
	Concurrent(ctx context.Context, id int64) (int, error)
}

// Config holds the MT server configuration.
type Config struct {
	// Host is bound by the control listener and every worker, and is the
	// host advertised in control responses.
	Host string
	// Port is the control port. Workers bind from Port+1 upwards. 0 picks
	// an ephemeral control port.
	Port int

	Logger          *slog.Logger
	Metrics         *mtotel.Metrics
	RateLimiter     *ratelimit.Manager
	Accounts        AccountLimits
	ShutdownTimeout time.Duration
	IdleTimeout     time.Duration
	ControlWait     time.Duration
	AccountTimeout  time.Duration
	WriteTimeout    time.Duration
	BindAttempts    int
	MaxConnections  int
	MaxFrameSize    int
}

// binder matches transport.Bind.
type binder func(ctx context.Context, host string, start, maxAttempts int) (net.Listener, int, error)

// Server is the MT queue server. It owns the queue pool and every worker
// spawned on behalf of control requests.
type Server struct {
	mu       sync.Mutex
	wg       sync.WaitGroup
	config   Config
	pool     *queue.Pool
	sup      *Supervisor
	listener net.Listener
	port     int
	events   chan controlEvent
	bind     binder
}

// New creates a server serving queues from pool.
func New(cfg Config, pool *queue.Pool) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 30 * time.Second
	}
	if cfg.ControlWait == 0 {
		cfg.ControlWait = 3 * time.Second
	}
	if cfg.AccountTimeout == 0 {
		cfg.AccountTimeout = time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	return &Server{
		config: cfg,
		pool:   pool,
		sup:    NewSupervisor(),
		events: make(chan controlEvent),
		bind:   transport.Bind,
	}
}

// Pool returns the queue pool.
func (s *Server) Pool() *queue.Pool {
	return s.pool
}

// Supervisor returns the worker supervisor.
func (s *Server) Supervisor() *Supervisor {
	return s.sup
}

// Addr returns the control listener's network address.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Ready reports whether the control listener is accepting connections.
func (s *Server) Ready() bool {
	return s.Addr() != nil
}

func (s *Server) controlPort() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Snapshot returns the depth of every queue.
func (s *Server) Snapshot() []queue.Depth {
	return s.pool.Snapshot()
}

// Sessions lists the running workers.
func (s *Server) Sessions() []SessionInfo {
	return s.sup.Sessions()
}

// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/absmach/mtqueue/account"
	"github.com/absmach/mtqueue/queue"
	"github.com/absmach/mtqueue/server/mt"
)

// Config holds health check server configuration.
type Config struct {
	Address         string
	ShutdownTimeout time.Duration
}

// Service is the MT server as seen by the health endpoints.
type Service interface {
	Ready() bool
	Snapshot() []queue.Depth
	Sessions() []mt.SessionInfo
}

// Server provides health check endpoints for monitoring and orchestration.
type Server struct {
	config   Config
	service  Service
	accounts account.Store
	logger   *slog.Logger
	server   *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// New creates a new health check server. accounts may be nil.
func New(cfg Config, svc Service, accounts account.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:   cfg,
		service:  svc,
		accounts: accounts,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/queues", s.handleQueues)
	mux.HandleFunc("/accounts/{id}", s.handleAccount)

	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Addr returns the listener's network address.
// Returns an empty string if server hasn't started listening yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Listen starts the health check server.
func (s *Server) Listen(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("Starting health check server", "address", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("Health check server shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Health check server shutdown error", "error", err)
			return err
		}

		s.logger.Info("Health check server stopped")
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// HealthResponse represents the liveness probe response.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth implements liveness probe.
// Returns 200 OK if the process is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// ReadyResponse represents the readiness probe response.
type ReadyResponse struct {
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

// handleReady implements readiness probe.
// Returns 200 OK once the control listener accepts connections.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.service == nil {
		writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
			Status:  "not_ready",
			Details: "server not initialized",
		})
		return
	}

	if !s.service.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
			Status:  "not_ready",
			Details: "control listener not started",
		})
		return
	}

	writeJSON(w, http.StatusOK, ReadyResponse{Status: "ready"})
}

// QueuesResponse lists queue depths and running workers.
type QueuesResponse struct {
	Queues  []queue.Depth    `json:"queues"`
	Workers []mt.SessionInfo `json:"workers"`
}

// handleQueues returns the depth of every queue and the running workers.
func (s *Server) handleQueues(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.service == nil {
		http.Error(w, "server not initialized", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, QueuesResponse{
		Queues:  s.service.Snapshot(),
		Workers: s.service.Sessions(),
	})
}

// AccountResponse is an account with its channels.
type AccountResponse struct {
	Account  account.Account   `json:"account"`
	Channels []account.Channel `json:"channels"`
}

// cacheInvalidator is implemented by account stores that cache lookups.
type cacheInvalidator interface {
	Invalidate(ctx context.Context, id int64) error
}

// handleAccount returns one account and its channels ordered by weight.
// DELETE drops the cached copy so the next lookup reads the database.
func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.accounts == nil {
		http.Error(w, "account store not configured", http.StatusNotImplemented)
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		http.Error(w, "invalid account id", http.StatusBadRequest)
		return
	}

	if r.Method == http.MethodDelete {
		s.invalidateAccount(w, r, id)
		return
	}

	acc, err := s.accounts.Account(r.Context(), id)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			http.Error(w, "account not found", http.StatusNotFound)
			return
		}
		s.logger.Error("account lookup failed", slog.Int64("id", id), slog.String("error", err.Error()))
		http.Error(w, "account lookup failed", http.StatusInternalServerError)
		return
	}

	channels, err := s.accounts.Channels(r.Context(), id)
	if err != nil {
		s.logger.Error("channel lookup failed", slog.Int64("id", id), slog.String("error", err.Error()))
		http.Error(w, "channel lookup failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, AccountResponse{Account: acc, Channels: channels})
}

func (s *Server) invalidateAccount(w http.ResponseWriter, r *http.Request, id int64) {
	inv, ok := s.accounts.(cacheInvalidator)
	if !ok {
		http.Error(w, "account store has no cache", http.StatusNotImplemented)
		return
	}
	if err := inv.Invalidate(r.Context(), id); err != nil {
		s.logger.Error("account cache invalidation failed", slog.Int64("id", id), slog.String("error", err.Error()))
		http.Error(w, "cache invalidation failed", http.StatusInternalServerError)
		return
	}
	s.logger.Info("account cache invalidated", slog.Int64("id", id))
	w.WriteHeader(http.StatusNoContent)
}

// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/absmach/mtqueue/account"
	"github.com/absmach/mtqueue/queue"
	"github.com/absmach/mtqueue/server/mt"
)

type mockService struct {
	ready    bool
	depths   []queue.Depth
	sessions []mt.SessionInfo
}

func (m *mockService) Ready() bool { return m.ready }

func (m *mockService) Snapshot() []queue.Depth { return m.depths }

func (m *mockService) Sessions() []mt.SessionInfo { return m.sessions }

type mockAccounts struct {
	accounts map[int64]account.Account
	channels map[int64][]account.Channel
	err      error
}

func (m *mockAccounts) Account(_ context.Context, id int64) (account.Account, error) {
	if m.err != nil {
		return account.Account{}, m.err
	}
	a, ok := m.accounts[id]
	if !ok {
		return account.Account{}, fmt.Errorf("%w: %d", account.ErrNotFound, id)
	}
	return a, nil
}

func (m *mockAccounts) Channels(_ context.Context, id int64) ([]account.Channel, error) {
	return m.channels[id], nil
}

// cachingAccounts records cache invalidations.
type cachingAccounts struct {
	mockAccounts
	invalidated []int64
	err         error
}

func (c *cachingAccounts) Invalidate(_ context.Context, id int64) error {
	if c.err != nil {
		return c.err
	}
	c.invalidated = append(c.invalidated, id)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAddrWithoutListener(t *testing.T) {
	server := New(Config{}, nil, nil, slog.Default())
	if server.Addr() != "" {
		t.Fatalf("expected empty address before listen, got %q", server.Addr())
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := New(Config{}, &mockService{}, nil, quietLogger())

	tests := []struct {
		name           string
		method         string
		expectedStatus int
		expectedBody   HealthResponse
	}{
		{
			name:           "GET request returns healthy",
			method:         http.MethodGet,
			expectedStatus: http.StatusOK,
			expectedBody:   HealthResponse{Status: "healthy"},
		},
		{
			name:           "POST request not allowed",
			method:         http.MethodPost,
			expectedStatus: http.StatusMethodNotAllowed,
		},
		{
			name:           "PUT request not allowed",
			method:         http.MethodPut,
			expectedStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "http://test/health", nil)
			rec := httptest.NewRecorder()

			server.handleHealth(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rec.Code)
			}

			if tt.expectedStatus == http.StatusOK {
				var response HealthResponse
				if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}

				if response.Status != tt.expectedBody.Status {
					t.Errorf("expected status %q, got %q", tt.expectedBody.Status, response.Status)
				}
			}
		})
	}
}

func TestReadyEndpoint(t *testing.T) {
	tests := []struct {
		name           string
		service        Service
		method         string
		expectedStatus int
		expectedReason string
	}{
		{
			name:           "service nil - not ready",
			service:        nil,
			method:         http.MethodGet,
			expectedStatus: http.StatusServiceUnavailable,
			expectedReason: "server not initialized",
		},
		{
			name:           "listener not started - not ready",
			service:        &mockService{ready: false},
			method:         http.MethodGet,
			expectedStatus: http.StatusServiceUnavailable,
			expectedReason: "control listener not started",
		},
		{
			name:           "listening - ready",
			service:        &mockService{ready: true},
			method:         http.MethodGet,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "POST request not allowed",
			service:        &mockService{ready: true},
			method:         http.MethodPost,
			expectedStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := New(Config{}, tt.service, nil, quietLogger())

			req := httptest.NewRequest(tt.method, "http://test/ready", nil)
			rec := httptest.NewRecorder()
			server.handleReady(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rec.Code)
			}
			if tt.method != http.MethodGet {
				return
			}

			var response ReadyResponse
			if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if response.Details != tt.expectedReason {
				t.Errorf("expected details %q, got %q", tt.expectedReason, response.Details)
			}
		})
	}
}

func TestQueuesEndpoint(t *testing.T) {
	svc := &mockService{
		ready:  true,
		depths: []queue.Depth{{ID: 5, Depth: 3}, {ID: 6, Depth: 0}},
		sessions: []mt.SessionInfo{
			{ID: "a", Identity: 5, Type: "PUSH", Port: 5025, Started: time.Unix(0, 0).UTC()},
		},
	}
	server := New(Config{}, svc, nil, quietLogger())

	req := httptest.NewRequest(http.MethodGet, "http://test/queues", nil)
	rec := httptest.NewRecorder()
	server.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var response QueuesResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response.Queues) != 2 || response.Queues[0].Depth != 3 || response.Queues[1].ID != 6 {
		t.Errorf("unexpected queues %+v", response.Queues)
	}
	if len(response.Workers) != 1 || response.Workers[0].Port != 5025 {
		t.Errorf("unexpected workers %+v", response.Workers)
	}
}

func TestAccountEndpoint(t *testing.T) {
	store := &mockAccounts{
		accounts: map[int64]account.Account{42: {ID: 42, Username: "acme", Concurrent: 2}},
		channels: map[int64][]account.Channel{42: {{ID: 1, Account: 42, Weight: 1}}},
	}

	tests := []struct {
		name           string
		accounts       account.Store
		path           string
		expectedStatus int
	}{
		{"found", store, "/accounts/42", http.StatusOK},
		{"not found", store, "/accounts/7", http.StatusNotFound},
		{"invalid id", store, "/accounts/abc", http.StatusBadRequest},
		{"zero id", store, "/accounts/0", http.StatusBadRequest},
		{"store failure", &mockAccounts{err: errors.New("db down")}, "/accounts/42", http.StatusInternalServerError},
		{"no store", nil, "/accounts/42", http.StatusNotImplemented},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := New(Config{}, &mockService{}, tt.accounts, quietLogger())

			req := httptest.NewRequest(http.MethodGet, "http://test"+tt.path, nil)
			rec := httptest.NewRecorder()
			server.server.Handler.ServeHTTP(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d", tt.expectedStatus, rec.Code)
			}
			if tt.expectedStatus != http.StatusOK {
				return
			}

			var response AccountResponse
			if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if response.Account.Username != "acme" || len(response.Channels) != 1 {
				t.Errorf("unexpected response %+v", response)
			}
		})
	}
}

func TestListenAndShutdown(t *testing.T) {
	server := New(Config{Address: "127.0.0.1:0", ShutdownTimeout: time.Second}, &mockService{ready: true}, nil, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Listen(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for server.Addr() == "" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := http.Get("http://" + server.Addr() + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}
}

func TestAccountCacheInvalidation(t *testing.T) {
	cached := &cachingAccounts{}

	tests := []struct {
		name           string
		accounts       account.Store
		path           string
		expectedStatus int
	}{
		{"invalidated", cached, "/accounts/42", http.StatusNoContent},
		{"invalid id", cached, "/accounts/x", http.StatusBadRequest},
		{"store without cache", &mockAccounts{}, "/accounts/42", http.StatusNotImplemented},
		{"cache failure", &cachingAccounts{err: errors.New("redis down")}, "/accounts/42", http.StatusInternalServerError},
		{"no store", nil, "/accounts/42", http.StatusNotImplemented},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := New(Config{}, &mockService{}, tt.accounts, quietLogger())

			req := httptest.NewRequest(http.MethodDelete, "http://test"+tt.path, nil)
			rec := httptest.NewRecorder()
			server.server.Handler.ServeHTTP(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d", tt.expectedStatus, rec.Code)
			}
		})
	}

	if len(cached.invalidated) != 1 || cached.invalidated[0] != 42 {
		t.Errorf("expected account 42 invalidated once, got %v", cached.invalidated)
	}
}

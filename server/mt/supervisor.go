// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mt

import (
	"context"
	"sync"
	"time"

	"github.com/absmach/mtqueue/codec"
	"github.com/google/uuid"
)

// SessionInfo describes a running worker.
type SessionInfo struct {
	ID       string    `json:"id"`
	Identity int64     `json:"identity"`
	Type     string    `json:"type"`
	Port     int       `json:"port,omitempty"`
	Started  time.Time `json:"started"`
}

// Session is the handle of one spawned worker.
type Session struct {
	id       string
	identity int64
	kind     codec.RequestType
	started  time.Time
	cancel   context.CancelFunc
	done     chan struct{}

	mu   sync.Mutex
	port int
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Cancel stops the worker.
func (s *Session) Cancel() { s.cancel() }

// Done is closed once the worker has returned.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) setPort(port int) {
	s.mu.Lock()
	s.port = port
	s.mu.Unlock()
}

func (s *Session) info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ID:       s.id,
		Identity: s.identity,
		Type:     s.kind.String(),
		Port:     s.port,
		Started:  s.started,
	}
}

// Supervisor owns every spawned worker. Workers run until they finish on
// their own, are cancelled individually, or the supervisor shuts down.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSupervisor creates an empty supervisor.
func NewSupervisor() *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

// Start runs fn in its own goroutine under a new session. The context
// passed to fn is cancelled by Session.Cancel or Shutdown.
func (s *Supervisor) Start(identity int64, kind codec.RequestType, fn func(ctx context.Context, sess *Session)) *Session {
	ctx, cancel := context.WithCancel(s.ctx)
	sess := &Session{
		id:       uuid.New().String(),
		identity: identity,
		kind:     kind,
		started:  time.Now(),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(sess.done)
		defer s.remove(sess.id)
		defer cancel()
		fn(ctx, sess)
	}()

	return sess
}

func (s *Supervisor) remove(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Cancel stops the session with the given id. It reports whether the
// session was running.
func (s *Supervisor) Cancel(id string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if ok {
		sess.Cancel()
	}
	return ok
}

// Live returns the number of running sessions for identity.
func (s *Supervisor) Live(identity int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, sess := range s.sessions {
		if sess.identity == identity {
			n++
		}
	}
	return n
}

// Len returns the number of running sessions.
func (s *Supervisor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sessions lists the running sessions.
func (s *Supervisor) Sessions() []SessionInfo {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	out := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.info())
	}
	return out
}

// Shutdown cancels every session and waits for them to return or for ctx
// to expire.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ErrShutdownTimeout
	}
}

// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/absmach/mtqueue/account"
	"github.com/absmach/mtqueue/codec"
	"github.com/absmach/mtqueue/transport"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/net/netutil"
)

// controlEvent is one control frame waiting for the event loop.
type controlEvent struct {
	conn  *transport.Conn
	frame codec.Frame
	done  chan struct{}
}

// bindResult is what a worker reports once it is bound or has failed to bind.
type bindResult struct {
	port int
	err  error
}

// Listen starts the control listener and blocks until the context is
// cancelled. Control requests are handled one at a time.
func (s *Server) Listen(ctx context.Context) error {
	listener, err := s.createListener()
	if err != nil {
		return err
	}

	connCtx, connCancel := context.WithCancel(context.Background())
	defer connCancel()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		s.runEventLoop(connCtx)
	}()

	acceptDone := s.runAcceptLoop(ctx, connCtx, listener)

	<-ctx.Done()
	return s.gracefulShutdown(listener, acceptDone, loopDone, connCancel)
}

// createListener binds the control endpoint.
func (s *Server) createListener() (net.Listener, error) {
	address := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	port := listener.Addr().(*net.TCPAddr).Port
	if s.config.MaxConnections > 0 {
		listener = netutil.LimitListener(listener, s.config.MaxConnections)
	}

	s.mu.Lock()
	s.listener = listener
	s.port = port
	s.mu.Unlock()

	s.config.Logger.Info("MT control listener started",
		slog.String("address", listener.Addr().String()),
		slog.Int("worker_start_port", port+1))
	return listener, nil
}

// runAcceptLoop runs the control connection accept loop in a separate goroutine.
func (s *Server) runAcceptLoop(ctx, connCtx context.Context, listener net.Listener) <-chan struct{} {
	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			conn, err := listener.Accept()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return
				}
				s.config.Logger.Error("failed to accept connection", slog.String("error", err.Error()))
				continue
			}

			if !s.config.RateLimiter.Allow(conn.RemoteAddr()) {
				s.config.Logger.Warn("control connection rate limited",
					slog.String("remote", conn.RemoteAddr().String()))
				s.config.Metrics.RecordError("control_rate_limited")
				conn.Close()
				continue
			}

			s.wg.Add(1)
			go s.handleConnection(connCtx, conn)
		}
	}()
	return acceptDone
}

// handleConnection reads control frames from one connection and feeds
// them to the event loop, waiting for each to be handled before reading
// the next.
func (s *Server) handleConnection(connCtx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	stop := context.AfterFunc(connCtx, func() { conn.Close() })
	defer stop()

	remote := conn.RemoteAddr().String()
	s.config.Logger.Debug("control connection established", slog.String("remote", remote))

	c := transport.NewConn(conn, s.config.MaxFrameSize)
	for {
		f, err := c.ReadFrame(0)
		if err != nil {
			if errors.Is(err, codec.ErrMalformedFrame) {
				s.config.Logger.Warn("discarding malformed control frame",
					slog.String("remote", remote), slog.String("error", err.Error()))
				s.config.Metrics.RecordMalformed("control")
				continue
			}
			if !errors.Is(err, io.EOF) && connCtx.Err() == nil {
				s.config.Logger.Debug("control connection read failed",
					slog.String("remote", remote), slog.String("error", err.Error()))
			}
			break
		}

		ev := controlEvent{conn: c, frame: f, done: make(chan struct{})}
		select {
		case s.events <- ev:
		case <-connCtx.Done():
			return
		}
		select {
		case <-ev.done:
		case <-connCtx.Done():
			return
		}
	}

	s.config.Logger.Debug("control connection closed", slog.String("remote", remote))
}

// runEventLoop handles control events strictly one at a time.
func (s *Server) runEventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			s.handleEvent(ctx, ev)
			close(ev.done)
		}
	}
}

// handleEvent validates one control frame, spawns the requested worker and
// replies with its endpoint once the worker is bound. Nothing is sent back
// for invalid requests or when the worker does not report in time.
func (s *Server) handleEvent(ctx context.Context, ev controlEvent) {
	start := time.Now()
	remote := ev.conn.RemoteAddr().String()
	logger := s.config.Logger.With(slog.String("remote", remote))

	if ev.frame.Command != codec.CommandRequest {
		logger.Warn("unexpected control command", slog.String("command", ev.frame.Command.String()))
		s.config.Metrics.RecordMalformed("control")
		return
	}

	req, err := codec.UnmarshalRequest(ev.frame.Payload)
	if err != nil {
		logger.Warn("malformed control request", slog.String("error", err.Error()))
		s.config.Metrics.RecordMalformed("control")
		return
	}

	ctx, span := otel.Tracer("mt-queue").Start(ctx, "mt.control.request")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("mt.id", req.ID),
		attribute.String("mt.type", req.Type.String()),
		attribute.String("mt.addr", req.Addr),
	)

	result := s.handleRequest(ctx, ev.conn, req, logger)
	if result != resultOK {
		span.SetStatus(codes.Error, result)
	}
	s.config.Metrics.RecordControlRequest(req.Type.String(), result,
		float64(time.Since(start).Microseconds())/1000)
}

const (
	resultOK        = "ok"
	resultInvalid   = "invalid"
	resultRefused   = "refused"
	resultBindError = "bind_error"
	resultTimeout   = "timeout"
	resultReplyErr  = "reply_error"
	resultCancelled = "cancelled"
)

func (s *Server) handleRequest(ctx context.Context, conn *transport.Conn, req *codec.Request, logger *slog.Logger) string {
	logger = logger.With(slog.Int64("id", req.ID), slog.String("type", req.Type.String()))

	if req.ID < 1 {
		logger.Warn("rejecting control request with invalid id")
		return resultInvalid
	}
	if req.Type != codec.RequestPush && req.Type != codec.RequestPull {
		logger.Warn("rejecting control request with unknown type")
		return resultInvalid
	}
	if !s.admit(ctx, req.ID, logger) {
		return resultRefused
	}

	q, err := s.pool.GetOrCreate(req.ID)
	if err != nil {
		logger.Warn("failed to get queue", slog.String("error", err.Error()))
		return resultInvalid
	}

	ready := make(chan bindResult, 1)
	w := &worker{
		srv:    s,
		id:     req.ID,
		kind:   req.Type,
		addr:   req.Addr,
		queue:  q,
		ready:  ready,
		logger: s.config.Logger,
	}
	sess := s.sup.Start(req.ID, req.Type, w.run)

	timer := time.NewTimer(s.config.ControlWait)
	defer timer.Stop()

	select {
	case r := <-ready:
		if r.err != nil {
			logger.Error("worker failed to bind", slog.String("error", r.err.Error()))
			s.config.Metrics.RecordError("bind")
			return resultBindError
		}
		sess.setPort(r.port)

		host := "tcp://" + net.JoinHostPort(s.config.Host, strconv.Itoa(r.port))
		resp := &codec.Response{ID: req.ID, Host: host}
		if err := conn.WriteFrame(codec.CommandResponse, resp.Marshal(), s.config.WriteTimeout); err != nil {
			logger.Warn("failed to send control response", slog.String("error", err.Error()))
			sess.Cancel()
			return resultReplyErr
		}
		logger.Info("worker spawned", slog.String("host", host), slog.String("session", sess.ID()))
		return resultOK

	case <-timer.C:
		logger.Warn("worker did not report ready in time, cancelling",
			slog.Duration("wait", s.config.ControlWait), slog.String("session", sess.ID()))
		sess.Cancel()
		return resultTimeout

	case <-ctx.Done():
		sess.Cancel()
		return resultCancelled
	}
}

// admit applies the per-account concurrent worker limit. Unknown accounts
// are refused. Lookup failures, including a lookup that outlives
// AccountTimeout, are logged and the request is allowed.
func (s *Server) admit(ctx context.Context, id int64, logger *slog.Logger) bool {
	if s.config.Accounts == nil {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.AccountTimeout)
	defer cancel()

	limit, err := s.config.Accounts.Concurrent(ctx, id)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			logger.Warn("refusing control request for unknown account")
			return false
		}
		logger.Error("account lookup failed, admitting request", slog.String("error", err.Error()))
		return true
	}

	if limit > 0 && s.sup.Live(id) >= limit {
		logger.Warn("refusing control request, concurrent limit reached", slog.Int("limit", limit))
		return false
	}
	return true
}

// gracefulShutdown stops accepting control connections, then cancels every
// worker and waits for them within the shutdown timeout.
func (s *Server) gracefulShutdown(listener net.Listener, acceptDone, loopDone <-chan struct{}, connCancel context.CancelFunc) error {
	s.config.Logger.Info("shutdown signal received, closing control listener")

	if err := listener.Close(); err != nil {
		s.config.Logger.Error("error closing listener", slog.String("error", err.Error()))
	}
	<-acceptDone

	connCancel()
	<-loopDone

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.config.Logger.Warn("shutdown timeout exceeded waiting for control connections")
		return ErrShutdownTimeout
	}

	if err := s.sup.Shutdown(ctx); err != nil {
		s.config.Logger.Warn("shutdown timeout exceeded waiting for workers")
		return err
	}

	s.config.Logger.Info("all workers stopped")
	return nil
}

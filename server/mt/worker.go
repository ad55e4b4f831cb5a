// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mt

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/absmach/mtqueue/codec"
	"github.com/absmach/mtqueue/queue"
	"github.com/absmach/mtqueue/transport"
)

// sessionEnd tells the worker why a data connection ended.
type sessionEnd int

const (
	endDisconnect sessionEnd = iota
	endBye
	endIdle
	endCancelled
)

// frameHandler handles one data-plane frame other than BYE. It reports
// done when the session must end.
type frameHandler func(ctx context.Context, c *transport.Conn, f codec.Frame, logger *slog.Logger) (end sessionEnd, done bool)

// worker serves one client identity on a dedicated port. It accepts one
// data connection at a time and exits on BYE, on idle timeout, or when its
// session is cancelled. A client that disconnects without BYE may
// reconnect within one idle timeout.
type worker struct {
	srv    *Server
	id     int64
	kind   codec.RequestType
	addr   string
	queue  *queue.Queue
	ready  chan<- bindResult
	logger *slog.Logger
}

func (w *worker) run(ctx context.Context, sess *Session) {
	cfg := w.srv.config
	logger := w.logger.With(
		slog.Int64("id", w.id),
		slog.String("type", w.kind.String()),
		slog.String("session", sess.ID()),
	)
	if w.addr != "" {
		logger = logger.With(slog.String("client_addr", w.addr))
	}

	ln, port, err := w.srv.bind(ctx, cfg.Host, w.srv.controlPort()+1, cfg.BindAttempts)
	if err != nil {
		w.ready <- bindResult{err: err}
		return
	}
	defer ln.Close()
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	kind := w.kind.String()
	cfg.Metrics.RecordWorkerStarted(kind)
	defer cfg.Metrics.RecordWorkerStopped(kind)

	logger = logger.With(slog.Int("port", port))
	logger.Debug("worker bound")
	w.ready <- bindResult{port: port}

	handle := w.handlePush
	if w.kind == codec.RequestPull {
		handle = w.handlePull
	}

	for {
		conn, err := w.accept(ln)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				logger.Debug("worker cancelled")
			case transport.IsTimeout(err):
				logger.Info("no client connected within idle timeout, worker exiting",
					slog.Duration("idle_timeout", cfg.IdleTimeout))
			default:
				logger.Error("failed to accept data connection", slog.String("error", err.Error()))
			}
			return
		}

		switch w.serve(ctx, conn, handle, logger) {
		case endBye:
			logger.Info("session closed by client")
			return
		case endIdle:
			logger.Info("session idle, worker exiting", slog.Duration("idle_timeout", cfg.IdleTimeout))
			return
		case endCancelled:
			logger.Debug("worker cancelled")
			return
		case endDisconnect:
			logger.Debug("client disconnected, waiting for reconnect")
		}
	}
}

func (w *worker) accept(ln net.Listener) (net.Conn, error) {
	if d, ok := ln.(interface{ SetDeadline(time.Time) error }); ok {
		if err := d.SetDeadline(time.Now().Add(w.srv.config.IdleTimeout)); err != nil {
			return nil, err
		}
	}
	return ln.Accept()
}

// serve runs one data connection until it ends.
func (w *worker) serve(ctx context.Context, conn net.Conn, handle frameHandler, logger *slog.Logger) sessionEnd {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}

	remote := conn.RemoteAddr().String()
	logger = logger.With(slog.String("remote", remote))
	logger.Debug("data connection established")

	c := transport.NewConn(conn, w.srv.config.MaxFrameSize)
	for {
		f, err := c.ReadFrame(w.srv.config.IdleTimeout)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return endCancelled
			case errors.Is(err, codec.ErrMalformedFrame):
				logger.Warn("discarding malformed frame", slog.String("error", err.Error()))
				w.srv.config.Metrics.RecordMalformed("data")
				continue
			case transport.IsTimeout(err):
				return endIdle
			case errors.Is(err, io.EOF):
				return endDisconnect
			default:
				logger.Debug("data connection read failed", slog.String("error", err.Error()))
				return endDisconnect
			}
		}

		if f.Command == codec.CommandBye {
			return endBye
		}
		if end, done := handle(ctx, c, f, logger); done {
			return end
		}
	}
}

func messageFromSubmit(s *codec.Submit) *queue.Message {
	m := &queue.Message{
		ID:      s.ID,
		Account: s.Account,
		Company: s.Company,
		SPID:    s.SPID,
		SPCode:  s.SPCode,
		Phone:   s.Phone,
		MsgFmt:  s.MsgFmt,
		Length:  s.Length,
		Content: s.Content,
	}
	return m.Bound()
}

func submitFromMessage(m *queue.Message) *codec.Submit {
	return &codec.Submit{
		ID:      m.ID,
		Account: m.Account,
		Company: m.Company,
		SPID:    m.SPID,
		SPCode:  m.SPCode,
		Phone:   m.Phone,
		MsgFmt:  m.MsgFmt,
		Length:  m.Length,
		Content: m.Content,
	}
}

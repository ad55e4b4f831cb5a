// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package client talks to the MT queue server: it requests a dedicated
// worker on the control plane, then pushes or pulls messages over the
// returned endpoint.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/absmach/mtqueue/codec"
	"github.com/absmach/mtqueue/transport"
)

// Request asks the control server for a worker of the given type and
// returns its endpoint as host:port. An unspecified host in the reply is
// replaced by the control server's host.
func Request(ctx context.Context, opts *Options, typ codec.RequestType) (string, error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}

	dialCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	conn, err := transport.Dial(dialCtx, opts.Server, opts.MaxFrameSize)
	if err != nil {
		return "", fmt.Errorf("failed to connect to control server: %w", err)
	}
	defer conn.Close()

	req := &codec.Request{ID: opts.ID, Type: typ, Addr: opts.Addr}
	if err := conn.WriteFrame(codec.CommandRequest, req.Marshal(), opts.WriteTimeout); err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	f, err := conn.ReadFrame(opts.RequestTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if transport.IsTimeout(err) {
			return "", ErrNoResponse
		}
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if f.Command != codec.CommandResponse {
		return "", fmt.Errorf("%w: %s", ErrUnexpectedFrame, f.Command)
	}

	resp, err := codec.UnmarshalResponse(f.Payload)
	if err != nil {
		return "", err
	}
	return resolveEndpoint(resp.Host, opts.Server)
}

// resolveEndpoint turns tcp://host:port into a dialable address.
func resolveEndpoint(endpoint, server string) (string, error) {
	addr := strings.TrimPrefix(endpoint, "tcp://")
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)
	}

	switch host {
	case "", "*", "0.0.0.0", "::":
		serverHost, _, err := net.SplitHostPort(server)
		if err != nil {
			return "", fmt.Errorf("%w: %q", ErrInvalidEndpoint, server)
		}
		host = serverHost
	}
	return net.JoinHostPort(host, port), nil
}

// session is a data-plane connection to a worker.
type session struct {
	opts *Options

	mu     sync.Mutex
	conn   *transport.Conn
	closed bool
}

func connect(ctx context.Context, opts *Options, typ codec.RequestType) (*session, error) {
	endpoint, err := Request(ctx, opts, typ)
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	conn, err := transport.Dial(dialCtx, endpoint, opts.MaxFrameSize)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to worker %s: %w", endpoint, err)
	}
	return &session{opts: opts, conn: conn}, nil
}

func (s *session) write(cmd codec.Command, payload []byte) error {
	if s.closed {
		return ErrClientClosed
	}
	return s.conn.WriteFrame(cmd, payload, s.opts.WriteTimeout)
}

// Close ends the session with BYE so the worker exits.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	byeErr := s.conn.WriteFrame(codec.CommandBye, nil, s.opts.WriteTimeout)
	return errors.Join(byeErr, s.conn.Close())
}

// Abort drops the connection without BYE. The worker keeps the queue
// endpoint open for a reconnect until its idle timeout.
func (s *session) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

// Producer pushes messages for one identity.
type Producer struct {
	*session
}

// NewProducer requests a push worker and connects to it.
func NewProducer(ctx context.Context, opts *Options) (*Producer, error) {
	s, err := connect(ctx, opts, codec.RequestPush)
	if err != nil {
		return nil, err
	}
	return &Producer{session: s}, nil
}

// Submit sends one message. The server does not acknowledge it.
func (p *Producer) Submit(msg *codec.Submit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.write(codec.CommandSubmit, msg.Marshal())
}

// Consumer pulls messages for one identity.
type Consumer struct {
	*session
}

// NewConsumer requests a pull worker and connects to it.
func NewConsumer(ctx context.Context, opts *Options) (*Consumer, error) {
	s, err := connect(ctx, opts, codec.RequestPull)
	if err != nil {
		return nil, err
	}
	return &Consumer{session: s}, nil
}

// Next fetches the oldest queued message. It returns ErrEmpty when the
// queue has nothing for this identity.
func (c *Consumer) Next() (*codec.Submit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.write(codec.CommandReq, nil); err != nil {
		return nil, err
	}

	f, err := c.conn.ReadFrame(c.opts.ReadTimeout)
	if err != nil {
		return nil, err
	}

	switch f.Command {
	case codec.CommandEmpty:
		return nil, ErrEmpty
	case codec.CommandSubmit:
		return codec.UnmarshalSubmit(f.Payload)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedFrame, f.Command)
	}
}

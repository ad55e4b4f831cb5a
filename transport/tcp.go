// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net"
	"time"

	"github.com/absmach/mtqueue/codec"
)

// Conn wraps a net.Conn to read and write frames.
type Conn struct {
	net.Conn
	maxPayload int
}

// NewConn wraps c. maxPayload bounds inbound frames; 0 uses the codec default.
func NewConn(c net.Conn, maxPayload int) *Conn {
	return &Conn{Conn: c, maxPayload: maxPayload}
}

// Dial connects to a frame endpoint.
func Dial(ctx context.Context, addr string, maxPayload int) (*Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if tcp, ok := c.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	return NewConn(c, maxPayload), nil
}

// ReadFrame reads the next frame. A positive timeout bounds the wait.
func (c *Conn) ReadFrame(timeout time.Duration) (codec.Frame, error) {
	if timeout > 0 {
		if err := c.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return codec.Frame{}, err
		}
	}
	return codec.ReadFrame(c.Conn, c.maxPayload)
}

// WriteFrame writes one frame. A positive timeout bounds the write.
func (c *Conn) WriteFrame(cmd codec.Command, payload []byte, timeout time.Duration) error {
	if timeout > 0 {
		if err := c.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
	}
	return codec.WriteFrame(c.Conn, cmd, payload)
}

// IsTimeout reports whether err is a deadline expiry.
func IsTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import "time"

// Default values.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultRequestTimeout = 5 * time.Second
	DefaultWriteTimeout   = 5 * time.Second
	DefaultReadTimeout    = 10 * time.Second
)

// Options configures a producer or consumer.
type Options struct {
	Server         string        // Control server address (host:port)
	ID             int64         // Client identity, at least 1
	Addr           string        // Client address reported to the server
	ConnectTimeout time.Duration // Timeout for dialing control and data endpoints
	RequestTimeout time.Duration // Timeout waiting for the control response
	WriteTimeout   time.Duration // Timeout for frame writes
	ReadTimeout    time.Duration // Timeout waiting for a pull reply
	MaxFrameSize   int           // Maximum inbound frame payload (0 = codec default)
}

// NewOptions returns options with default timeouts.
func NewOptions(server string, id int64) *Options {
	return &Options{
		Server:         server,
		ID:             id,
		ConnectTimeout: DefaultConnectTimeout,
		RequestTimeout: DefaultRequestTimeout,
		WriteTimeout:   DefaultWriteTimeout,
		ReadTimeout:    DefaultReadTimeout,
	}
}

// Validate checks the options.
func (o *Options) Validate() error {
	if o.Server == "" {
		return ErrNoServer
	}
	if o.ID < 1 {
		return ErrInvalidID
	}
	return nil
}

// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import "errors"

// Client errors.
var (
	// Configuration errors.
	ErrNoServer  = errors.New("no control server configured")
	ErrInvalidID = errors.New("client id must be at least 1")

	// Control plane errors.
	ErrNoResponse      = errors.New("no response from control server")
	ErrInvalidEndpoint = errors.New("invalid worker endpoint")

	// Data plane errors.
	ErrEmpty           = errors.New("queue is empty")
	ErrUnexpectedFrame = errors.New("unexpected frame")
	ErrClientClosed    = errors.New("client has been closed")
)

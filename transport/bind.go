// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"
)

const maxPort = 65535

// ErrPortsExhausted is returned when no free port was found in range.
var ErrPortsExhausted = errors.New("no free port available")

// Bind listens on the first free TCP port at or above start. Ports in use
// are skipped; any other error is returned as is. At most maxAttempts ports
// are tried; maxAttempts <= 0 tries every port up to 65535.
func Bind(ctx context.Context, host string, start, maxAttempts int) (net.Listener, int, error) {
	if start < 1 || start > maxPort {
		return nil, 0, fmt.Errorf("%w: start port %d out of range", ErrPortsExhausted, start)
	}

	last := maxPort
	if maxAttempts > 0 && start+maxAttempts-1 < maxPort {
		last = start + maxAttempts - 1
	}

	var lc net.ListenConfig
	for port := start; port <= last; port++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err == nil {
			return ln, port, nil
		}
		if !portUnavailable(err) {
			return nil, 0, fmt.Errorf("failed to bind %s:%d: %w", host, port, err)
		}
	}

	return nil, 0, fmt.Errorf("%w: tried ports %d-%d", ErrPortsExhausted, start, last)
}

func portUnavailable(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE) || errors.Is(err, syscall.EACCES)
}

// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package bufpool recycles the scratch slices used to assemble outgoing frames.
package bufpool

import "sync"

const (
	minCap = 512
	// Frames are a header plus a Submit record; anything larger came from
	// an oversized payload and is left to the GC.
	maxPooledCap = 16 * 1024
)

var pool = sync.Pool{New: func() any {
	b := make([]byte, 0, minCap)
	return &b
}}

// Get returns a slice of length n. Slices beyond the pooled size are
// allocated directly.
func Get(n int) []byte {
	if n > maxPooledCap {
		return make([]byte, n)
	}
	bp := pool.Get().(*[]byte)
	if cap(*bp) < n {
		return make([]byte, n, max(n, minCap))
	}
	return (*bp)[:n]
}

// Put hands b back for reuse. b must not be used afterwards.
func Put(b []byte) {
	if cap(b) == 0 || cap(b) > maxPooledCap {
		return
	}
	b = b[:0]
	pool.Put(&b)
}

// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package stats publishes queue depths to an external sink.
package stats

import (
	"context"
	"sync"

	"github.com/absmach/mtqueue/queue"
)

// Sink receives queue depths. Each publish starts with Reset so identities
// that disappeared do not linger.
type Sink interface {
	Reset(ctx context.Context) error
	Record(ctx context.Context, id int64, depth int) error
}

// BatchSink is a Sink that can replace every depth in a single call, so
// readers never observe a reset hash that is still being refilled.
type BatchSink interface {
	Sink
	Publish(ctx context.Context, depths []queue.Depth) error
}

// MemorySink keeps the last published depths in memory.
type MemorySink struct {
	mu     sync.Mutex
	depths map[int64]int
	resets int
}

var _ Sink = (*MemorySink)(nil)

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{depths: make(map[int64]int)}
}

// Reset clears all depths.
func (m *MemorySink) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depths = make(map[int64]int)
	m.resets++
	return nil
}

// Record stores the depth of one queue.
func (m *MemorySink) Record(_ context.Context, id int64, depth int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depths[id] = depth
	return nil
}

// Depths returns a copy of the published depths.
func (m *MemorySink) Depths() map[int64]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]int, len(m.depths))
	for k, v := range m.depths {
		out[k] = v
	}
	return out
}

// Resets returns how many times the sink was reset.
func (m *MemorySink) Resets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets
}

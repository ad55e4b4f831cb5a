// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidID is returned for identities below 1.
var ErrInvalidID = errors.New("invalid client identity")

// Depth is a point-in-time view of one queue.
type Depth struct {
	ID      int64  `json:"id"`
	Depth   int    `json:"depth"`
	Dropped uint64 `json:"dropped"`
}

// Pool maps client identities to their queues. Queues are created on first
// use and live for the lifetime of the pool.
type Pool struct {
	opts Options

	mu     sync.Mutex
	queues map[int64]*Queue
	order  []*Queue
}

// NewPool creates an empty pool whose queues use opts.
func NewPool(opts Options) *Pool {
	return &Pool{
		opts:   opts,
		queues: make(map[int64]*Queue),
	}
}

// GetOrCreate returns the queue for id, creating it if needed. Concurrent
// callers with the same id always get the same queue.
func (p *Pool) GetOrCreate(id int64) (*Queue, error) {
	if id < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidID, id)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if q, ok := p.queues[id]; ok {
		return q, nil
	}

	q := New(id, p.opts)
	p.queues[id] = q
	p.order = append(p.order, q)
	return q, nil
}

// Get returns the queue for id if it exists.
func (p *Pool) Get(id int64) (*Queue, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.queues[id]
	return q, ok
}

// Len returns the number of queues.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}

// Snapshot returns the depth of every queue in creation order.
func (p *Pool) Snapshot() []Depth {
	p.mu.Lock()
	queues := make([]*Queue, len(p.order))
	copy(queues, p.order)
	p.mu.Unlock()

	out := make([]Depth, 0, len(queues))
	for _, q := range queues {
		out = append(out, Depth{ID: q.id, Depth: q.Len(), Dropped: q.Dropped()})
	}
	return out
}

// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Keyed holds one token bucket per key. With a positive sweep interval,
// buckets untouched for two intervals are dropped in the background.
type Keyed[K comparable] struct {
	mu      sync.Mutex
	buckets map[K]*bucket
	limit   rate.Limit
	burst   int
	sweep   time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	lim  *rate.Limiter
	used time.Time
}

// NewKeyed creates a keyed limiter allowing r events per second per key.
func NewKeyed[K comparable](r float64, burst int, sweep time.Duration) *Keyed[K] {
	k := &Keyed[K]{
		buckets: make(map[K]*bucket),
		limit:   rate.Limit(r),
		burst:   burst,
		sweep:   sweep,
		stop:    make(chan struct{}),
	}
	if sweep > 0 {
		go k.sweepLoop()
	}
	return k
}

func (k *Keyed[K]) get(key K) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	b, ok := k.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(k.limit, k.burst)}
		k.buckets[key] = b
	}
	b.used = time.Now()
	return b.lim
}

// Allow consumes a token for key if one is available.
func (k *Keyed[K]) Allow(key K) bool {
	return k.get(key).Allow()
}

// Wait blocks until key has a token or ctx is done.
func (k *Keyed[K]) Wait(ctx context.Context, key K) error {
	return k.get(key).Wait(ctx)
}

// Remove forgets the bucket for key.
func (k *Keyed[K]) Remove(key K) {
	k.mu.Lock()
	delete(k.buckets, key)
	k.mu.Unlock()
}

// Len returns the number of tracked keys.
func (k *Keyed[K]) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}

func (k *Keyed[K]) sweepLoop() {
	ticker := time.NewTicker(k.sweep)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			k.evictBefore(now.Add(-2 * k.sweep))
		case <-k.stop:
			return
		}
	}
}

func (k *Keyed[K]) evictBefore(t time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for key, b := range k.buckets {
		if b.used.Before(t) {
			delete(k.buckets, key)
		}
	}
}

// Stop ends the background sweep. Safe to call more than once.
func (k *Keyed[K]) Stop() {
	k.stopOnce.Do(func() { close(k.stop) })
}

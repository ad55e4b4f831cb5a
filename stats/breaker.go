// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package stats

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/mtqueue/queue"
	"github.com/sony/gobreaker"
)

// BreakerSink stops calling a failing sink until it has had time to recover.
// While the breaker is open every call fails with gobreaker.ErrOpenState.
type BreakerSink struct {
	sink Sink
	cb   *gobreaker.CircuitBreaker
}

var _ BatchSink = (*BreakerSink)(nil)

// NewBreakerSink wraps sink. The breaker opens after threshold consecutive
// failures and probes again after resetTimeout.
func NewBreakerSink(sink Sink, threshold int, resetTimeout time.Duration, logger *slog.Logger) *BreakerSink {
	if logger == nil {
		logger = slog.Default()
	}
	if threshold < 1 {
		threshold = 1
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "stats-sink",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     resetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("stats sink circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})

	return &BreakerSink{sink: sink, cb: cb}
}

// Reset resets the wrapped sink.
func (b *BreakerSink) Reset(ctx context.Context) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.sink.Reset(ctx)
	})
	return err
}

// Record records through the wrapped sink.
func (b *BreakerSink) Record(ctx context.Context, id int64, depth int) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.sink.Record(ctx, id, depth)
	})
	return err
}

// Publish replaces the wrapped sink's depths. A whole snapshot counts as one
// breaker request however many queues it holds.
func (b *BreakerSink) Publish(ctx context.Context, depths []queue.Depth) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, Publish(ctx, b.sink, depths)
	})
	return err
}

// State returns the breaker state.
func (b *BreakerSink) State() gobreaker.State {
	return b.cb.State()
}

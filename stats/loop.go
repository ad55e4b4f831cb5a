// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/absmach/mtqueue/queue"
	mtotel "github.com/absmach/mtqueue/server/otel"
)

// DefaultInterval is how often depths are published.
const DefaultInterval = 3 * time.Second

// Snapshotter lists queue depths.
type Snapshotter interface {
	Snapshot() []queue.Depth
}

// Config holds the stats loop configuration.
type Config struct {
	Interval time.Duration
	Logger   *slog.Logger
	Metrics  *mtotel.Metrics
}

// Loop periodically publishes every queue's depth to a sink.
type Loop struct {
	source Snapshotter
	sink   Sink
	config Config
}

// NewLoop creates a stats loop.
func NewLoop(cfg Config, source Snapshotter, sink Sink) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loop{source: source, sink: sink, config: cfg}
}

// Run resets the sink, then publishes on every tick until ctx is cancelled.
// Sink failures are logged and never stop the loop.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.sink.Reset(ctx); err != nil && ctx.Err() == nil {
		l.config.Logger.Warn("failed to reset stats sink", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(l.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := l.Tick(ctx); err != nil && ctx.Err() == nil {
				l.config.Logger.Warn("failed to publish queue stats", slog.String("error", err.Error()))
			}
		}
	}
}

// Tick publishes one snapshot.
func (l *Loop) Tick(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.config.Interval)
	defer cancel()

	snapshot := l.source.Snapshot()
	err := Publish(ctx, l.sink, snapshot)
	l.config.Metrics.RecordStatsPublish(err == nil)
	if err == nil {
		l.config.Logger.Debug("published queue stats", slog.Int("queues", len(snapshot)))
	}
	return err
}

// Publish replaces the contents of sink with depths. A BatchSink does it in
// one call. Any other sink is reset and then given one Record per queue;
// every queue is recorded even when some records fail, and the errors are
// joined.
func Publish(ctx context.Context, sink Sink, depths []queue.Depth) error {
	if b, ok := sink.(BatchSink); ok {
		return b.Publish(ctx, depths)
	}

	if err := sink.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	var errs []error
	for _, d := range depths {
		if err := sink.Record(ctx, d.ID, d.Depth); err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", d.ID, err))
		}
	}
	return errors.Join(errs...)
}

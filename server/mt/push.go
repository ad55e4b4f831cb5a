// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mt

import (
	"context"
	"errors"
	"log/slog"

	"github.com/absmach/mtqueue/codec"
	"github.com/absmach/mtqueue/queue"
	"github.com/absmach/mtqueue/transport"
)

// handlePush enqueues SUBMIT frames from a producer. Nothing is sent back.
func (w *worker) handlePush(ctx context.Context, _ *transport.Conn, f codec.Frame, logger *slog.Logger) (sessionEnd, bool) {
	metrics := w.srv.config.Metrics

	if f.Command != codec.CommandSubmit {
		logger.Debug("discarding unexpected frame", slog.String("command", f.Command.String()))
		metrics.RecordMalformed("data")
		return 0, false
	}

	sub, err := codec.UnmarshalSubmit(f.Payload)
	if err != nil {
		logger.Warn("discarding malformed submit", slog.String("error", err.Error()))
		metrics.RecordMalformed("data")
		return 0, false
	}

	if err := w.srv.config.RateLimiter.WaitSubmit(ctx, w.id); err != nil {
		return endCancelled, true
	}

	msg := messageFromSubmit(sub)
	if _, err := w.queue.Push(msg); err != nil {
		if errors.Is(err, queue.ErrQueueFull) {
			logger.Warn("queue full, message dropped",
				slog.Int64("msg_id", msg.ID), slog.Int("depth", w.queue.Len()))
			return 0, false
		}
		logger.Error("failed to enqueue message", slog.String("error", err.Error()))
		return 0, false
	}

	metrics.RecordPushed(int64(len(msg.Content)))
	return 0, false
}

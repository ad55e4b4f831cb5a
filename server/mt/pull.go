// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mt

import (
	"context"
	"log/slog"

	"github.com/absmach/mtqueue/codec"
	"github.com/absmach/mtqueue/transport"
)

// handlePull answers each REQ frame with the head of the queue as a SUBMIT
// frame, or EMPTY when there is nothing queued.
func (w *worker) handlePull(_ context.Context, c *transport.Conn, f codec.Frame, logger *slog.Logger) (sessionEnd, bool) {
	metrics := w.srv.config.Metrics
	timeout := w.srv.config.WriteTimeout

	if f.Command != codec.CommandReq {
		logger.Debug("discarding unexpected frame", slog.String("command", f.Command.String()))
		metrics.RecordMalformed("data")
		return 0, false
	}

	msg, ok := w.queue.Pop()
	if !ok {
		if err := c.WriteFrame(codec.CommandEmpty, nil, timeout); err != nil {
			logger.Debug("failed to send empty", slog.String("error", err.Error()))
			return endDisconnect, true
		}
		metrics.RecordEmptyPoll()
		return 0, false
	}

	if err := c.WriteFrame(codec.CommandSubmit, submitFromMessage(msg).Marshal(), timeout); err != nil {
		// Put the message back so the next consumer sees it first.
		_ = w.queue.Requeue(msg)
		logger.Warn("failed to deliver message, requeued",
			slog.Int64("msg_id", msg.ID), slog.String("error", err.Error()))
		return endDisconnect, true
	}

	metrics.RecordPopped(int64(len(msg.Content)))
	return 0, false
}

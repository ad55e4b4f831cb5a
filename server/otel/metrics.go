// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds OpenTelemetry metric instruments for the MT queue server.
// All methods are safe on a nil receiver.
type Metrics struct {
	meter metric.Meter

	// Counters
	controlRequests metric.Int64Counter
	messagesPushed  metric.Int64Counter
	messagesPopped  metric.Int64Counter
	messagesDropped metric.Int64Counter
	emptyPolls      metric.Int64Counter
	malformedFrames metric.Int64Counter
	errorsTotal     metric.Int64Counter
	statsPublishes  metric.Int64Counter
	bytesReceived   metric.Int64Counter
	bytesSent       metric.Int64Counter

	// UpDownCounters (Gauges)
	workersActive metric.Int64UpDownCounter
	queuedCurrent metric.Int64UpDownCounter

	// Histograms
	contentSize     metric.Int64Histogram
	controlDuration metric.Float64Histogram
}

// NewMetrics creates a new Metrics instance with all instruments initialized.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{
		meter: otel.Meter("mt-queue"),
	}

	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.controlRequests, "mt.control.requests.total", "Control requests by type and result"},
		{&m.messagesPushed, "mt.messages.pushed.total", "Messages enqueued by producers"},
		{&m.messagesPopped, "mt.messages.popped.total", "Messages handed to consumers"},
		{&m.messagesDropped, "mt.messages.dropped.total", "Messages dropped by a full queue"},
		{&m.emptyPolls, "mt.polls.empty.total", "Consumer requests answered with EMPTY"},
		{&m.malformedFrames, "mt.frames.malformed.total", "Discarded malformed or unexpected frames"},
		{&m.errorsTotal, "mt.errors.total", "Total errors by type"},
		{&m.statsPublishes, "mt.stats.publishes.total", "Stats ticks by result"},
		{&m.bytesReceived, "mt.bytes.received.total", "Total payload bytes received"},
		{&m.bytesSent, "mt.bytes.sent.total", "Total payload bytes sent"},
	}
	for _, c := range counters {
		*c.dst, err = m.meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
	}

	m.workersActive, err = m.meter.Int64UpDownCounter(
		"mt.workers.active",
		metric.WithDescription("Number of running push and pull workers"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create workersActive gauge: %w", err)
	}

	m.queuedCurrent, err = m.meter.Int64UpDownCounter(
		"mt.messages.queued",
		metric.WithDescription("Messages currently held across all queues"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create queuedCurrent gauge: %w", err)
	}

	m.contentSize, err = m.meter.Int64Histogram(
		"mt.content.size.bytes",
		metric.WithDescription("Message content size distribution"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create contentSize histogram: %w", err)
	}

	m.controlDuration, err = m.meter.Float64Histogram(
		"mt.control.duration.ms",
		metric.WithDescription("Control request handling duration in milliseconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create controlDuration histogram: %w", err)
	}

	return m, nil
}

// RecordControlRequest records a handled control request.
func (m *Metrics) RecordControlRequest(kind, result string, durationMs float64) {
	if m == nil {
		return
	}
	ctx := context.Background()
	m.controlRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", kind),
		attribute.String("result", result),
	))
	m.controlDuration.Record(ctx, durationMs)
}

// RecordWorkerStarted records a worker entering service.
func (m *Metrics) RecordWorkerStarted(kind string) {
	if m == nil {
		return
	}
	m.workersActive.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", kind)))
}

// RecordWorkerStopped records a worker exit.
func (m *Metrics) RecordWorkerStopped(kind string) {
	if m == nil {
		return
	}
	m.workersActive.Add(context.Background(), -1, metric.WithAttributes(attribute.String("type", kind)))
}

// RecordPushed records a message enqueued by a producer.
func (m *Metrics) RecordPushed(sizeBytes int64) {
	if m == nil {
		return
	}
	ctx := context.Background()
	m.messagesPushed.Add(ctx, 1)
	m.queuedCurrent.Add(ctx, 1)
	m.bytesReceived.Add(ctx, sizeBytes)
	m.contentSize.Record(ctx, sizeBytes)
}

// RecordPopped records a message delivered to a consumer.
func (m *Metrics) RecordPopped(sizeBytes int64) {
	if m == nil {
		return
	}
	ctx := context.Background()
	m.messagesPopped.Add(ctx, 1)
	m.queuedCurrent.Add(ctx, -1)
	m.bytesSent.Add(ctx, sizeBytes)
}

// RecordDropped records a message lost to the queue capacity policy.
// evicted is true when a queued message was displaced.
func (m *Metrics) RecordDropped(evicted bool) {
	if m == nil {
		return
	}
	ctx := context.Background()
	policy := "newest"
	if evicted {
		policy = "oldest"
		m.queuedCurrent.Add(ctx, -1)
	}
	m.messagesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("policy", policy)))
}

// RecordEmptyPoll records a consumer request on an empty queue.
func (m *Metrics) RecordEmptyPoll() {
	if m == nil {
		return
	}
	m.emptyPolls.Add(context.Background(), 1)
}

// RecordMalformed records a discarded frame.
func (m *Metrics) RecordMalformed(plane string) {
	if m == nil {
		return
	}
	m.malformedFrames.Add(context.Background(), 1, metric.WithAttributes(attribute.String("plane", plane)))
}

// RecordStatsPublish records the outcome of a stats tick.
func (m *Metrics) RecordStatsPublish(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.statsPublishes.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordError records an error by type.
func (m *Metrics) RecordError(errorType string) {
	if m == nil {
		return
	}
	m.errorsTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("type", errorType),
	))
}

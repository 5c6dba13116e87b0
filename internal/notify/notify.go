// Package notify provides async delivery of lifecycle events to a
// configured webhook, with buffering, retry, and circuit breaking.
package notify

import (
	"context"

	"laserops/pkg/cloudevent"
)

// EventSource identifies this service in outgoing CloudEvents.
const EventSource = "laserops/dispatch"

// Notifier handles async delivery of lifecycle events.
type Notifier interface {
	// Publish queues an event for async delivery. Non-blocking; events
	// are dropped (with a metric) when the buffer is full.
	Publish(eventType, subject string, data map[string]any)

	// Stats returns current notifier statistics.
	Stats() Stats

	// Close gracefully shuts down, attempting to deliver queued events.
	// The context deadline controls how long to wait for drain.
	Close(ctx context.Context) error
}

// Stats holds notifier statistics.
type Stats struct {
	QueueDepth   int   // current queue size
	Queued       int64 // total events queued
	Delivered    int64 // successful deliveries
	Failed       int64 // failed after retries
	Dropped      int64 // dropped due to full buffer or max requeues
	Requeued     int64 // requeued due to open circuit
	RetriesTotal int64 // total retry attempts
}

// MetricsRecorder is an optional interface for recording notifier metrics.
type MetricsRecorder interface {
	RecordNotifierDelivered(ctx context.Context, durationSeconds float64)
	RecordNotifierFailed(ctx context.Context)
	RecordNotifierDropped(ctx context.Context)
	RecordNotifierRequeued(ctx context.Context)
	RecordNotifierQueueSize(ctx context.Context, size int64)
}

// Nop is a Notifier that discards every event. Used when no webhook is
// configured.
type Nop struct{}

func (Nop) Publish(eventType, subject string, data map[string]any) {}
func (Nop) Stats() Stats                                           { return Stats{} }
func (Nop) Close(ctx context.Context) error                        { return nil }

var _ Notifier = Nop{}

// event pairs a CloudEvent with its internal requeue counter.
type event struct {
	payload  *cloudevent.CloudEvent
	requeues int
}

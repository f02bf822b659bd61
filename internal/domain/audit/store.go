package audit

import "context"

// Sink persists audit events. Append must never block the caller on I/O: an
// implementation queues internally and applies its own backpressure policy
// (§5: a bounded queue that drops the oldest queued event rather than
// blocking the request path when the sink falls behind).
type Sink interface {
	// Append enqueues an event for persistence. Never blocks on I/O.
	Append(ctx context.Context, event Event)

	// Tail returns up to n most recently appended events, newest first, for
	// the management API's events_tail surface (§6).
	Tail(n int) []Event

	// Flush syncs events already written to storage. Events still queued
	// are written by Close, which drains the queue. Called during shutdown.
	Flush(ctx context.Context) error

	// Close stops the sink's background writer and releases resources.
	Close() error
}

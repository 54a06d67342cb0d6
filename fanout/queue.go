package fanout

import (
	"context"
	"log/slog"

	"github.com/parlorchat/parlor"
)

// queueMaxAttempts bounds redelivery of a failed item. Start/End markers are
// idempotent, so a low cap is enough.
const queueMaxAttempts = 3

// MemoryQueue is a single-node Queue: an ordered FIFO with bounded redelivery.
// A clustered deployment swaps in a broker-backed implementation behind the
// same interface.
type MemoryQueue struct {
	items  chan queued
	logger *slog.Logger
}

type queued struct {
	ev       parlor.StreamEvent
	attempts int
}

// MemoryQueueOption configures a MemoryQueue.
type MemoryQueueOption func(*MemoryQueue)

// WithQueueLogger sets the structured logger for redelivery warnings.
func WithQueueLogger(l *slog.Logger) MemoryQueueOption {
	return func(q *MemoryQueue) { q.logger = l }
}

// NewMemoryQueue creates a queue holding up to size pending items.
func NewMemoryQueue(size int, opts ...MemoryQueueOption) *MemoryQueue {
	q := &MemoryQueue{
		items:  make(chan queued, size),
		logger: parlor.NopLogger,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Push enqueues an event, blocking while the queue is full.
func (q *MemoryQueue) Push(ctx context.Context, ev parlor.StreamEvent) error {
	select {
	case q.items <- queued{ev: ev}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes items in order, invoking handler for each. A failed item is
// re-enqueued at the tail up to queueMaxAttempts times (at-least-once
// delivery), then dropped with an error log. Blocks until ctx is cancelled.
func (q *MemoryQueue) Run(ctx context.Context, handler func(context.Context, parlor.StreamEvent) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item := <-q.items:
			if err := handler(ctx, item.ev); err != nil {
				item.attempts++
				if item.attempts >= queueMaxAttempts {
					q.logger.Error("queue item dropped after max attempts",
						"type", item.ev.Type,
						"channel_id", item.ev.ChannelID,
						"attempts", item.attempts,
						"error", err)
					continue
				}
				q.logger.Warn("queue item redelivery",
					"type", item.ev.Type,
					"channel_id", item.ev.ChannelID,
					"attempt", item.attempts,
					"error", err)
				select {
				case q.items <- item:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

var _ Queue = (*MemoryQueue)(nil)

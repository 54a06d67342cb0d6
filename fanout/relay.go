package fanout

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/parlorchat/parlor"
)

// Relay moves stream events from the two delivery ports onto the realtime
// transport and the internal bus. Start/End arrive via the durable queue
// worker; Chunks arrive via a pub/sub subscription. The two paths carry no
// ordering guarantee relative to each other.
type Relay struct {
	queue     *MemoryQueue
	pubsub    PubSub
	transport Broadcaster
	bus       *Bus
	logger    *slog.Logger
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

// WithRelayLogger sets the structured logger.
func WithRelayLogger(l *slog.Logger) RelayOption {
	return func(r *Relay) { r.logger = l }
}

// NewRelay creates a Relay. bus may be nil when no internal listeners exist.
func NewRelay(q *MemoryQueue, ps PubSub, transport Broadcaster, bus *Bus, opts ...RelayOption) *Relay {
	r := &Relay{queue: q, pubsub: ps, transport: transport, bus: bus, logger: parlor.NopLogger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts both relay paths and blocks until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	chunks, cancel := r.pubsub.Subscribe(TopicChunks)
	defer cancel()

	go func() {
		for data := range chunks {
			var ev parlor.StreamEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				r.logger.Warn("malformed chunk event", "error", err)
				continue
			}
			r.emit(ev)
		}
	}()

	return r.queue.Run(ctx, func(ctx context.Context, ev parlor.StreamEvent) error {
		r.emit(ev)
		return nil
	})
}

// emit forwards one event to the realtime transport and the internal bus.
func (r *Relay) emit(ev parlor.StreamEvent) {
	r.transport.Broadcast(ev.ChannelID, ev)
	if r.bus != nil {
		r.bus.Publish(ev)
	}
}

// Package fanout delivers bot stream events over two channels with genuinely
// different guarantees: a durable, ordered, at-least-once queue for Start/End
// markers and a best-effort pub/sub topic for high-frequency content chunks.
// Chunks are redundant with the eventual persisted message, so loss under
// backpressure is acceptable; End is authoritative for finalization.
package fanout

import (
	"context"

	"github.com/parlorchat/parlor"
)

// TopicChunks is the pub/sub topic carrying chunk events for all channels.
// Each event identifies its channel; subscribers filter or re-route by it.
const TopicChunks = "bot-stream-chunks"

// Queue is the durable port. Start/End markers are pushed here and survive
// until a worker acknowledges them.
type Queue interface {
	Push(ctx context.Context, ev parlor.StreamEvent) error
}

// PubSub is the best-effort port. Published bytes reach current subscribers
// or are dropped; nothing is persisted.
type PubSub interface {
	Publish(topic string, data []byte)
	// Subscribe returns a receive channel and a cancel function. The channel
	// is closed after cancel.
	Subscribe(topic string) (<-chan []byte, func())
}

// Broadcaster delivers a stream event to every realtime session subscribed to
// the channel's room.
type Broadcaster interface {
	Broadcast(channelID string, ev parlor.StreamEvent)
}

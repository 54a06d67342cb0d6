package fanout

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/parlorchat/parlor"
)

// Emitter is the strategies' output port. Start/End go to the durable queue;
// Chunk goes to the best-effort pub/sub topic.
type Emitter struct {
	queue  Queue
	pubsub PubSub
	logger *slog.Logger
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithEmitterLogger sets the structured logger.
func WithEmitterLogger(l *slog.Logger) EmitterOption {
	return func(e *Emitter) { e.logger = l }
}

// NewEmitter creates an Emitter over the two delivery ports.
func NewEmitter(q Queue, ps PubSub, opts ...EmitterOption) *Emitter {
	e := &Emitter{queue: q, pubsub: ps, logger: parlor.NopLogger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start pushes a stream-start marker through the durable queue.
func (e *Emitter) Start(ctx context.Context, botID, channelID, streamID string) {
	ev := parlor.StreamEvent{
		Type:      parlor.StreamStart,
		BotID:     botID,
		ChannelID: channelID,
		StreamID:  streamID,
	}
	if err := e.queue.Push(ctx, ev); err != nil {
		e.logger.Warn("stream start enqueue failed", "channel_id", channelID, "error", err)
	}
}

// Chunk publishes a content delta on the best-effort channel.
func (e *Emitter) Chunk(botID, channelID, delta string) {
	ev := parlor.StreamEvent{
		Type:      parlor.StreamChunk,
		BotID:     botID,
		ChannelID: channelID,
		Content:   delta,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	e.pubsub.Publish(TopicChunks, data)
}

// End pushes a stream-end marker carrying the final content through the
// durable queue. Content may be empty when a stream aborted; clients treat
// End as authoritative and stop waiting either way.
func (e *Emitter) End(ctx context.Context, botID, channelID, streamID, content string) {
	ev := parlor.StreamEvent{
		Type:      parlor.StreamEnd,
		BotID:     botID,
		ChannelID: channelID,
		StreamID:  streamID,
		Content:   content,
		Done:      true,
	}
	if err := e.queue.Push(ctx, ev); err != nil {
		e.logger.Warn("stream end enqueue failed", "channel_id", channelID, "error", err)
	}
}

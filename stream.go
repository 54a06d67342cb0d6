package parlor

// StreamEventType identifies the kind of bot stream event.
type StreamEventType string

const (
	// StreamStart marks the beginning of a bot response stream.
	StreamStart StreamEventType = "bot-stream-start"
	// StreamChunk carries an incremental content delta.
	StreamChunk StreamEventType = "bot-stream-chunk"
	// StreamEnd marks stream completion and carries the final content.
	StreamEnd StreamEventType = "bot-stream-end"
)

// StreamEvent is a transient event produced while a bot generates a reply.
// Start and End travel over the durable queue; Chunk travels over the
// best-effort pub/sub channel and may be lost under backpressure.
type StreamEvent struct {
	Type      StreamEventType `json:"type"`
	BotID     string          `json:"bot_id"`
	ChannelID string          `json:"channel_id"`
	StreamID  string          `json:"stream_id,omitempty"` // Start/End only
	Content   string          `json:"content,omitempty"`   // Chunk/End only
	Done      bool            `json:"done"`
}

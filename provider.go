package parlor

import "context"

// Provider abstracts an OpenAI-compatible chat-completion backend.
type Provider interface {
	// Chat sends a request and returns a complete response. When req.Tools is
	// non-empty the response may contain ToolCalls.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	// ChatStream streams text deltas into ch, then returns the final
	// accumulated response. Implementations close ch when streaming completes.
	ChatStream(ctx context.Context, req ChatRequest, ch chan<- string) (ChatResponse, error)
	// Name returns the provider name (e.g. "openai", "groq").
	Name() string
}

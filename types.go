package parlor

import "encoding/json"

// --- Domain types (database records) ---

// ExecutionMode selects the strategy used to produce a bot's reply.
type ExecutionMode string

const (
	ModeWebhook    ExecutionMode = "webhook"
	ModeBuiltin    ExecutionMode = "builtin"
	ModeManagedLLM ExecutionMode = "managed_llm"
)

// BotStatus is the lifecycle status of a bot.
type BotStatus string

const (
	StatusActive   BotStatus = "active"
	StatusDisabled BotStatus = "disabled"
)

// Bot is a configured automated participant owned by a guild.
// Exactly one of the mode-specific config structs is meaningful,
// selected by Mode.
type Bot struct {
	ID          string        `json:"id"`
	GuildID     string        `json:"guild_id"`
	UserID      string        `json:"user_id"` // linked service-account user
	DisplayName string        `json:"display_name"`
	Mode        ExecutionMode `json:"mode"`
	Status      BotStatus     `json:"status"`
	Webhook     WebhookConfig `json:"webhook"`
	Builtin     BuiltinConfig `json:"builtin"`
	LLM         LLMConfig     `json:"llm"`
	CreatedAt   int64         `json:"created_at"`
}

// WebhookConfig configures the webhook execution mode.
type WebhookConfig struct {
	URL         string `json:"url"`
	Secret      string `json:"secret"`       // HMAC signing secret
	CallbackURL string `json:"callback_url"` // posted back to the external service
}

// BuiltinConfig configures the builtin execution mode.
type BuiltinConfig struct {
	TemplateID string            `json:"template_id"`
	Config     map[string]string `json:"config"`
}

// LLMConfig configures the managed-LLM execution mode.
// APIKeySealed is encrypted at rest; see Cipher.
type LLMConfig struct {
	Provider     string   `json:"provider"` // "openai", "groq", ..., "custom"
	BaseURL      string   `json:"base_url"` // required when Provider is "custom"
	Model        string   `json:"model"`
	SystemPrompt string   `json:"system_prompt"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
	Tools        []string `json:"tools,omitempty"`
	APIKeySealed string   `json:"api_key_sealed"`
}

// MemoryScope controls whether a channel binding accumulates long-term memory.
type MemoryScope string

const (
	ScopeChannel   MemoryScope = "channel"
	ScopeEphemeral MemoryScope = "ephemeral"
)

// ChannelBinding links a bot to a channel with per-channel overrides.
// Unique per (bot, channel).
type ChannelBinding struct {
	BotID          string      `json:"bot_id"`
	ChannelID      string      `json:"channel_id"`
	PromptOverride string      `json:"prompt_override,omitempty"`
	ToolsOverride  []string    `json:"tools_override,omitempty"`
	MemoryScope    MemoryScope `json:"memory_scope"`
	CanSummarize   bool        `json:"can_summarize"`
	CanUseTools    bool        `json:"can_use_tools"`
	MaxTokens      int         `json:"max_tokens,omitempty"` // per-request cap, 0 = bot default
}

// Sender identifies the author of a platform message.
type Sender struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	IsBot bool   `json:"is_bot"`
}

// Message is a persisted channel message.
type Message struct {
	ID        string `json:"id"`
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	Sender    Sender `json:"sender"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
}

// MemoryRecord is the rolling conversation memory for one (bot, channel) pair.
// Created lazily on first use; Summary is rewritten when Interactions crosses
// the summarization threshold.
type MemoryRecord struct {
	BotID            string `json:"bot_id"`
	ChannelID        string `json:"channel_id"`
	Summary          string `json:"summary"`
	SummarizedCount  int    `json:"summarized_count"`
	LastSummarizedID string `json:"last_summarized_id"`
	Interactions     int    `json:"interactions"`
	UpdatedAt        int64  `json:"updated_at"`
}

// ExecContext is the per-dispatch execution context. Built once by the
// orchestrator, shared read-only by every matched bot's strategy, and never
// persisted.
type ExecContext struct {
	Bot        Bot
	Binding    ChannelBinding
	GuildID    string
	ChannelID  string
	MessageID  string
	Author     Sender
	Content    string    // mention token stripped
	RawContent string    // as authored
	Window     []Message // recent history, chronological, triggering message excluded
	Memory     string    // rolling summary, filled per dispatch; empty if none
}

// --- LLM protocol types ---

// PromptMessage is a role-tagged message in a chat-completion conversation.
type PromptMessage struct {
	Role       string     `json:"role"` // "system", "user", "assistant", "tool"
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// ChatRequest is a provider-agnostic chat-completion request.
type ChatRequest struct {
	Messages    []PromptMessage  `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
}

// ChatResponse is a provider-agnostic chat-completion response.
type ChatResponse struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     Usage      `json:"usage"`
}

// Usage contains token usage statistics.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ToolDefinition describes a callable tool in JSON Schema form.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// --- PromptMessage constructors ---

func UserMessage(name, text string) PromptMessage {
	return PromptMessage{Role: "user", Name: name, Content: text}
}

func SystemMessage(text string) PromptMessage {
	return PromptMessage{Role: "system", Content: text}
}

func AssistantMessage(text string) PromptMessage {
	return PromptMessage{Role: "assistant", Content: text}
}

func ToolResultMessage(callID, content string) PromptMessage {
	return PromptMessage{Role: "tool", Content: content, ToolCallID: callID}
}

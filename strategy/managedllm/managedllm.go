// Package managedllm executes bot dispatches against an OpenAI-compatible
// chat-completion API, with an optional tool-calling loop and streamed
// delivery of the reply.
package managedllm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/parlorchat/parlor"
	"github.com/parlorchat/parlor/fanout"
	"github.com/parlorchat/parlor/memory"
	"github.com/parlorchat/parlor/provider/openaicompat"
)

// maxToolIterations bounds the tool loop. Each iteration is one provider
// round-trip; a model that keeps requesting tools is cut off here.
const maxToolIterations = 5

// providerTimeout covers one chat-completion call end to end, including a
// full streamed response.
const providerTimeout = 2 * time.Minute

// tooLongReply is persisted when the tool loop hits its iteration cap.
const tooLongReply = "I couldn't finish working on that: it took too many steps. Try asking something more specific."

// baseURLs maps known provider names to their OpenAI-compatible API bases.
// The "custom" provider reads the base URL from bot config instead.
var baseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"groq":       "https://api.groq.com/openai/v1",
	"openrouter": "https://openrouter.ai/api/v1",
	"deepseek":   "https://api.deepseek.com/v1",
	"mistral":    "https://api.mistral.ai/v1",
	"together":   "https://api.together.xyz/v1",
}

// ProviderFactory builds a chat provider for one dispatch from the bot's
// decrypted credentials. Swappable so tests can inject fakes.
type ProviderFactory func(apiKey, model, baseURL, name string) parlor.Provider

// defaultFactory builds the real OpenAI-compatible client, wrapped so
// transient 429/503 responses retry with backoff beneath the strategy's own
// streaming fallback.
func defaultFactory(apiKey, model, baseURL, name string) parlor.Provider {
	return parlor.WithRetry(openaicompat.NewProvider(apiKey, model, baseURL,
		openaicompat.WithName(name),
		openaicompat.WithHTTPClient(&http.Client{Timeout: providerTimeout})))
}

// Strategy implements the managed-LLM execution mode.
type Strategy struct {
	messages parlor.MessageStore
	emitter  *fanout.Emitter
	memory   *memory.Manager
	tools    *parlor.ToolRegistry
	cipher   parlor.Cipher
	factory  ProviderFactory
	logger   *slog.Logger
}

// Option configures a Strategy.
type Option func(*Strategy)

// WithProviderFactory replaces the provider constructor (tests).
func WithProviderFactory(f ProviderFactory) Option {
	return func(s *Strategy) { s.factory = f }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Strategy) { s.logger = l }
}

// New creates the managed-LLM strategy.
func New(messages parlor.MessageStore, emitter *fanout.Emitter, mem *memory.Manager, tools *parlor.ToolRegistry, cipher parlor.Cipher, opts ...Option) *Strategy {
	s := &Strategy{
		messages: messages,
		emitter:  emitter,
		memory:   mem,
		tools:    tools,
		cipher:   cipher,
		factory:  defaultFactory,
		logger:   parlor.NopLogger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mode returns the execution mode this strategy serves.
func (s *Strategy) Mode() parlor.ExecutionMode { return parlor.ModeManagedLLM }

// Execute runs one dispatch: build messages, then either the bounded tool
// loop or the streaming path. Every failure ends in a classified user-visible
// message; nothing propagates past this boundary.
func (s *Strategy) Execute(ctx context.Context, ec parlor.ExecContext) error {
	bot := ec.Bot
	cfg := bot.LLM

	if cfg.Provider == "" || cfg.Model == "" || cfg.APIKeySealed == "" {
		s.logger.Warn("managed bot missing LLM config", "bot_id", bot.ID)
		s.reply(ctx, ec, fmt.Sprintf("%s is not configured yet: missing model or API key.", bot.DisplayName))
		return nil
	}

	apiKey, err := s.cipher.Open(cfg.APIKeySealed)
	if err != nil {
		s.logger.Error("unseal provider API key", "bot_id", bot.ID, "error", err)
		s.reply(ctx, ec, fmt.Sprintf("%s can't access its stored API key. Ask the guild owner to re-enter it.", bot.DisplayName))
		return nil
	}

	baseURL, ok := baseURLs[cfg.Provider]
	if !ok {
		baseURL = cfg.BaseURL
	}
	if baseURL == "" {
		s.logger.Warn("managed bot has no resolvable provider URL", "bot_id", bot.ID, "provider", cfg.Provider)
		s.reply(ctx, ec, fmt.Sprintf("%s is configured for an unknown provider %q.", bot.DisplayName, cfg.Provider))
		return nil
	}

	provider := s.factory(apiKey, cfg.Model, baseURL, cfg.Provider)

	if summary, err := s.memory.Context(ctx, bot, ec.Binding); err != nil {
		s.logger.Warn("load conversation memory", "bot_id", bot.ID, "error", err)
	} else {
		ec.Memory = summary
	}

	req := parlor.ChatRequest{
		Messages:    s.buildMessages(ec),
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}
	if ec.Binding.MaxTokens > 0 {
		req.MaxTokens = ec.Binding.MaxTokens
	}

	if defs := s.resolveTools(ec); len(defs) > 0 {
		req.Tools = defs
		s.runToolLoop(ctx, ec, provider, req)
	} else {
		s.runStreaming(ctx, ec, provider, req)
	}
	return nil
}

// resolveTools returns the tool definitions this dispatch may use: the
// binding's override list when set, otherwise the bot's list, filtered
// through the registry. Bindings with CanUseTools unset get none.
func (s *Strategy) resolveTools(ec parlor.ExecContext) []parlor.ToolDefinition {
	if !ec.Binding.CanUseTools {
		return nil
	}
	list := ec.Bot.LLM.Tools
	if len(ec.Binding.ToolsOverride) > 0 {
		list = ec.Binding.ToolsOverride
	}
	return s.tools.Definitions(list)
}

// buildMessages assembles the role-tagged conversation: system prompt
// (binding override wins), the context's rolling memory as a synthetic
// system message, the bounded recent window, then the triggering message.
func (s *Strategy) buildMessages(ec parlor.ExecContext) []parlor.PromptMessage {
	var msgs []parlor.PromptMessage

	prompt := ec.Bot.LLM.SystemPrompt
	if ec.Binding.PromptOverride != "" {
		prompt = ec.Binding.PromptOverride
	}
	if prompt == "" {
		prompt = fmt.Sprintf("You are %s, a helpful assistant in a chat channel.", ec.Bot.DisplayName)
	}
	msgs = append(msgs, parlor.SystemMessage(prompt))

	if ec.Memory != "" {
		msgs = append(msgs, parlor.SystemMessage("Summary of the conversation so far:\n"+ec.Memory))
	}

	for _, m := range ec.Window {
		if m.Sender.IsBot {
			msgs = append(msgs, parlor.AssistantMessage(m.Content))
		} else {
			msgs = append(msgs, parlor.PromptMessage{
				Role:    "user",
				Content: fmt.Sprintf("%s: %s", m.Sender.Name, m.Content),
			})
		}
	}

	msgs = append(msgs, parlor.PromptMessage{
		Role:    "user",
		Content: fmt.Sprintf("%s: %s", ec.Author.Name, ec.Content),
	})
	return msgs
}

// runToolLoop is the bounded tool-calling loop. Each round trips the full
// conversation to the provider non-streaming; requested tools execute
// sequentially and their results are appended in the provider's call order,
// after the assistant message that requested them, keyed by tool_call_id.
func (s *Strategy) runToolLoop(ctx context.Context, ec parlor.ExecContext, provider parlor.Provider, req parlor.ChatRequest) {
	for i := 0; i < maxToolIterations; i++ {
		resp, err := provider.Chat(ctx, req)
		if err != nil {
			s.failWith(ctx, ec, provider.Name(), err)
			return
		}

		if len(resp.ToolCalls) == 0 {
			if resp.Content != "" {
				s.reply(ctx, ec, resp.Content)
			}
			s.memory.RecordInteraction(ctx, ec.Bot, ec.Binding, ec.MessageID)
			return
		}

		req.Messages = append(req.Messages, parlor.PromptMessage{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, tc := range resp.ToolCalls {
			result, err := s.tools.Execute(ctx, tc.Name, tc.Args)
			if err != nil {
				result = parlor.ToolResult{Error: err.Error()}
			}
			s.logger.Debug("tool executed", "bot_id", ec.Bot.ID, "tool", tc.Name, "call_id", tc.ID, "failed", result.Error != "")
			req.Messages = append(req.Messages, parlor.ToolResultMessage(tc.ID, result.JSON()))
		}
	}

	s.logger.Warn("tool loop hit iteration cap", "bot_id", ec.Bot.ID, "cap", maxToolIterations)
	s.reply(ctx, ec, tooLongReply)
}

// runStreaming streams the reply, emitting a Chunk per delta. On transport
// failure mid-stream it emits an empty End so clients stop waiting, then
// transparently retries once in non-streaming mode.
func (s *Strategy) runStreaming(ctx context.Context, ec parlor.ExecContext, provider parlor.Provider, req parlor.ChatRequest) {
	streamID := parlor.NewID()
	s.emitter.Start(ctx, ec.Bot.ID, ec.ChannelID, streamID)

	ch := make(chan string, 64)
	var accumulated strings.Builder
	done := make(chan struct{})
	go func() {
		defer close(done)
		for delta := range ch {
			accumulated.WriteString(delta)
			s.emitter.Chunk(ec.Bot.ID, ec.ChannelID, delta)
		}
	}()

	_, err := provider.ChatStream(ctx, req, ch)
	<-done

	if err != nil {
		s.logger.Warn("stream failed, retrying non-streaming", "bot_id", ec.Bot.ID, "error", err)
		s.emitter.End(ctx, ec.Bot.ID, ec.ChannelID, streamID, "")

		resp, retryErr := provider.Chat(ctx, req)
		if retryErr != nil {
			s.failWith(ctx, ec, provider.Name(), retryErr)
			return
		}
		if resp.Content != "" {
			s.reply(ctx, ec, resp.Content)
		}
		s.memory.RecordInteraction(ctx, ec.Bot, ec.Binding, ec.MessageID)
		return
	}

	content := accumulated.String()
	s.emitter.End(ctx, ec.Bot.ID, ec.ChannelID, streamID, content)
	if content != "" {
		s.reply(ctx, ec, content)
	}
	s.memory.RecordInteraction(ctx, ec.Bot, ec.Binding, ec.MessageID)
}

// failWith logs the underlying provider error and posts the classified
// user-facing message.
func (s *Strategy) failWith(ctx context.Context, ec parlor.ExecContext, providerName string, err error) {
	s.logger.Error("provider call failed",
		"bot_id", ec.Bot.ID,
		"provider", providerName,
		"error", err)
	s.reply(ctx, ec, Classify(err, ec.Bot.DisplayName))
}

// reply persists a message authored by the bot's service account.
func (s *Strategy) reply(ctx context.Context, ec parlor.ExecContext, content string) {
	msg := parlor.Message{
		ID:        parlor.NewID(),
		GuildID:   ec.GuildID,
		ChannelID: ec.ChannelID,
		Sender:    parlor.Sender{ID: ec.Bot.UserID, Name: ec.Bot.DisplayName, IsBot: true},
		Content:   content,
		CreatedAt: parlor.NowUnix(),
	}
	if err := s.messages.CreateMessage(ctx, msg); err != nil {
		s.logger.Error("persist bot reply", "bot_id", ec.Bot.ID, "channel_id", ec.ChannelID, "error", err)
	}
}

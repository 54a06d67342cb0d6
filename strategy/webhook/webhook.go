// Package webhook proxies bot dispatches to an external HTTP endpoint with
// HMAC-signed payloads, relaying streamed or plain-JSON replies back into the
// channel.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/parlorchat/parlor"
	"github.com/parlorchat/parlor/fanout"
)

// defaultTimeout is generous: external agents may run long tool chains before
// their first byte.
const defaultTimeout = 3 * time.Minute

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Webhook-Signature"

// unavailableReply is posted to the channel when the external service can't
// be reached or misbehaves.
const unavailableReply = "The agent behind this bot is currently unavailable. Please try again later."

// Payload is the signed request body sent to the external endpoint.
type Payload struct {
	Event              string           `json:"event"`
	BotID              string           `json:"botId"`
	GuildID            string           `json:"guildId"`
	ChannelID          string           `json:"channelId"`
	MessageID          string           `json:"messageId"`
	Author             parlor.Sender    `json:"author"`
	Content            string           `json:"content"`
	Context            []ContextMessage `json:"context"`
	WebhookCallbackURL string           `json:"webhookCallbackUrl"`
}

// ContextMessage is one recent-history entry in the payload.
type ContextMessage struct {
	Author  string `json:"author"`
	Content string `json:"content"`
	IsBot   bool   `json:"isBot"`
}

// Strategy implements the webhook execution mode.
type Strategy struct {
	messages parlor.MessageStore
	emitter  *fanout.Emitter
	client   *http.Client
	logger   *slog.Logger
}

// Option configures a Strategy.
type Option func(*Strategy)

// WithHTTPClient sets a custom HTTP client (tests use a short timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(s *Strategy) { s.client = c }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Strategy) { s.logger = l }
}

// New creates the webhook strategy.
func New(messages parlor.MessageStore, emitter *fanout.Emitter, opts ...Option) *Strategy {
	s := &Strategy{
		messages: messages,
		emitter:  emitter,
		client:   &http.Client{Timeout: defaultTimeout},
		logger:   parlor.NopLogger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mode returns the execution mode this strategy serves.
func (s *Strategy) Mode() parlor.ExecutionMode { return parlor.ModeWebhook }

// Sign computes the hex HMAC-SHA256 of payload under secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Execute posts the signed mention payload and relays the response. Every
// failure path ends in a user-visible message, never a propagated error.
func (s *Strategy) Execute(ctx context.Context, ec parlor.ExecContext) error {
	bot := ec.Bot
	if bot.Webhook.URL == "" {
		s.logger.Warn("webhook bot has no URL configured", "bot_id", bot.ID)
		s.reply(ctx, ec, fmt.Sprintf("%s is not configured yet: missing webhook URL.", bot.DisplayName))
		return nil
	}

	payload := Payload{
		Event:              "message.mention",
		BotID:              bot.ID,
		GuildID:            ec.GuildID,
		ChannelID:          ec.ChannelID,
		MessageID:          ec.MessageID,
		Author:             ec.Author,
		Content:            ec.Content,
		WebhookCallbackURL: bot.Webhook.CallbackURL,
	}
	for _, m := range ec.Window {
		payload.Context = append(payload.Context, ContextMessage{
			Author:  m.Sender.Name,
			Content: m.Content,
			IsBot:   m.Sender.IsBot,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("marshal webhook payload", "bot_id", bot.ID, "error", err)
		s.reply(ctx, ec, unavailableReply)
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, bot.Webhook.URL, bytes.NewReader(body))
	if err != nil {
		s.logger.Error("build webhook request", "bot_id", bot.ID, "error", err)
		s.reply(ctx, ec, unavailableReply)
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	if bot.Webhook.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(bot.Webhook.Secret, body))
	} else {
		s.logger.Warn("webhook bot has no signing secret, sending unsigned", "bot_id", bot.ID)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("webhook call failed", "bot_id", bot.ID, "url", bot.Webhook.URL, "error", err)
		s.reply(ctx, ec, unavailableReply)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.logger.Warn("webhook returned non-2xx", "bot_id", bot.ID, "status", resp.StatusCode)
		s.reply(ctx, ec, unavailableReply)
		return nil
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		s.relayStream(ctx, ec, resp)
		return nil
	}

	var out struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		s.logger.Warn("decode webhook response", "bot_id", bot.ID, "error", err)
		s.reply(ctx, ec, unavailableReply)
		return nil
	}
	if out.Content != "" {
		s.reply(ctx, ec, out.Content)
	}
	return nil
}

// relayStream consumes an SSE response body, emitting a Chunk per fragment
// and persisting the accumulated text when the stream finishes.
func (s *Strategy) relayStream(ctx context.Context, ec parlor.ExecContext, resp *http.Response) {
	streamID := parlor.NewID()
	s.emitter.Start(ctx, ec.Bot.ID, ec.ChannelID, streamID)

	accumulated, err := DecodeSSE(resp.Body, func(delta string) {
		s.emitter.Chunk(ec.Bot.ID, ec.ChannelID, delta)
	})
	if err != nil {
		s.logger.Warn("webhook stream aborted", "bot_id", ec.Bot.ID, "error", err)
		if accumulated == "" {
			s.emitter.End(ctx, ec.Bot.ID, ec.ChannelID, streamID, "")
			s.reply(ctx, ec, unavailableReply)
			return
		}
		// Partial content is still a reply.
	}

	s.emitter.End(ctx, ec.Bot.ID, ec.ChannelID, streamID, accumulated)
	if accumulated != "" {
		s.reply(ctx, ec, accumulated)
	}
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

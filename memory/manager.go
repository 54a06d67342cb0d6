// Package memory maintains rolling natural-language summaries of bot↔channel
// conversations, refreshed asynchronously after an interaction-count
// threshold.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/parlorchat/parlor"
)

// SummaryTriggerThreshold is the number of interactions between summary
// regenerations.
const SummaryTriggerThreshold = 10

// maxSummaryLen caps the stored summary length in runes.
const maxSummaryLen = 1500

// summarizeBatch is how many recent messages the summarizer fetches; the
// slice older than the short-term window is folded into the summary.
const summarizeBatch = 80

// Manager loads and refreshes per-(bot, channel) memory records.
type Manager struct {
	store      parlor.MemoryStore
	messages   parlor.MessageStore
	summarizer parlor.Provider // nil = truncation fallback only
	windowSize int
	logger     *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithSummarizer sets the LLM used to merge old turns into the summary.
// Without one, summarization falls back to simple truncation.
func WithSummarizer(p parlor.Provider) Option {
	return func(m *Manager) { m.summarizer = p }
}

// WithWindowSize sets the short-term window size the summary excludes
// (default 15).
func WithWindowSize(n int) Option {
	return func(m *Manager) { m.windowSize = n }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager over the memory and message stores.
func NewManager(store parlor.MemoryStore, messages parlor.MessageStore, opts ...Option) *Manager {
	m := &Manager{
		store:      store,
		messages:   messages,
		windowSize: 15,
		logger:     parlor.NopLogger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Context returns the rolling summary for injection as a synthetic system
// message ahead of recent context. Ephemeral bindings return an empty string
// without touching storage.
func (m *Manager) Context(ctx context.Context, bot parlor.Bot, binding parlor.ChannelBinding) (string, error) {
	if binding.MemoryScope == parlor.ScopeEphemeral {
		return "", nil
	}
	rec, ok, err := m.store.GetMemory(ctx, bot.ID, binding.ChannelID)
	if err != nil {
		return "", fmt.Errorf("load memory record: %w", err)
	}
	if !ok {
		return "", nil
	}
	return rec.Summary, nil
}

// RecordInteraction increments the interaction counter after a successful
// bot reply. When the counter reaches SummaryTriggerThreshold it is reset
// immediately — so a failed summarization doesn't retry on every subsequent
// message — and summarization runs in the background.
func (m *Manager) RecordInteraction(ctx context.Context, bot parlor.Bot, binding parlor.ChannelBinding, lastMessageID string) {
	if binding.MemoryScope == parlor.ScopeEphemeral {
		return
	}

	rec, ok, err := m.store.GetMemory(ctx, bot.ID, binding.ChannelID)
	if err != nil {
		m.logger.Warn("load memory record", "bot_id", bot.ID, "channel_id", binding.ChannelID, "error", err)
		return
	}
	if !ok {
		rec = parlor.MemoryRecord{BotID: bot.ID, ChannelID: binding.ChannelID}
	}

	rec.Interactions++
	summarize := rec.Interactions >= SummaryTriggerThreshold && binding.CanSummarize
	if rec.Interactions >= SummaryTriggerThreshold {
		rec.Interactions = 0
	}
	rec.UpdatedAt = parlor.NowUnix()
	if err := m.store.PutMemory(ctx, rec); err != nil {
		m.logger.Warn("store memory record", "bot_id", bot.ID, "channel_id", binding.ChannelID, "error", err)
		return
	}

	if summarize {
		go m.refreshSummary(context.WithoutCancel(ctx), rec, lastMessageID)
	}
}

// Clear removes the memory record for a (bot, channel) pair.
func (m *Manager) Clear(ctx context.Context, botID, channelID string) error {
	return m.store.ClearMemory(ctx, botID, channelID)
}

// refreshSummary regenerates the rolling summary from the messages that have
// scrolled out of the short-term window, merging them with the existing
// summary via the configured LLM, or by truncation when no summarizer is
// available or the call fails.
func (m *Manager) refreshSummary(ctx context.Context, rec parlor.MemoryRecord, lastMessageID string) {
	defer func() {
		if p := recover(); p != nil {
			m.logger.Error("summary refresh panic", "bot_id", rec.BotID, "channel_id", rec.ChannelID, "panic", p)
		}
	}()

	batch, err := m.messages.RecentMessages(ctx, rec.ChannelID, summarizeBatch)
	if err != nil {
		m.logger.Warn("summary refresh: fetch messages", "channel_id", rec.ChannelID, "error", err)
		return
	}
	if len(batch) <= m.windowSize {
		return
	}
	// The tail of the batch is the live short-term window; everything before
	// it gets folded into the summary.
	aged := batch[:len(batch)-m.windowSize]

	var transcript strings.Builder
	for _, msg := range aged {
		fmt.Fprintf(&transcript, "%s: %s\n", msg.Sender.Name, msg.Content)
	}

	summary := m.mergeSummary(ctx, rec.Summary, transcript.String())

	fresh, ok, err := m.store.GetMemory(ctx, rec.BotID, rec.ChannelID)
	if err != nil || !ok {
		fresh = rec
	}
	fresh.Summary = summary
	fresh.SummarizedCount += len(aged)
	fresh.LastSummarizedID = lastMessageID
	fresh.UpdatedAt = parlor.NowUnix()
	if err := m.store.PutMemory(ctx, fresh); err != nil {
		m.logger.Warn("summary refresh: store record", "channel_id", rec.ChannelID, "error", err)
	}
}

// mergeSummary produces the updated summary text. LLM merge when a
// summarizer is configured and succeeds, truncating concatenation otherwise.
func (m *Manager) mergeSummary(ctx context.Context, existing, transcript string) string {
	if m.summarizer != nil {
		prompt := fmt.Sprintf(
			"You maintain a rolling summary of a chat conversation.\n\n"+
				"Current summary:\n%s\n\nNew conversation turns:\n%s\n\n"+
				"Produce an updated summary that merges the new turns into the current summary. "+
				"Keep names, decisions, and open questions. Maximum %d characters.",
			existing, transcript, maxSummaryLen)
		resp, err := m.summarizer.Chat(ctx, parlor.ChatRequest{
			Messages: []parlor.PromptMessage{
				parlor.SystemMessage("You summarize conversations concisely."),
				{Role: "user", Content: prompt},
			},
		})
		if err == nil && resp.Content != "" {
			return truncate(resp.Content, maxSummaryLen)
		}
		if err != nil {
			m.logger.Warn("summary merge call failed, falling back to truncation", "error", err)
		}
	}

	merged := existing
	if merged != "" {
		merged += "\n"
	}
	merged += transcript
	// Keep the newest tail.
	r := []rune(merged)
	if len(r) > maxSummaryLen {
		r = r[len(r)-maxSummaryLen:]
	}
	return string(r)
}

// truncate limits s to n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Package dispatch decides whether bots respond to a message and runs the
// matching execution strategy for each, without blocking the caller.
package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/parlorchat/parlor"
)

// defaultWindowSize is the shared short-term context window built once per
// dispatched message.
const defaultWindowSize = 15

// botIDSet is the process-local cache of known bot user ids. Append-only and
// unbounded: bot counts are small and entries are 36-byte ids, so eviction
// isn't worth the complexity.
type botIDSet struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

func newBotIDSet() *botIDSet {
	return &botIDSet{ids: make(map[string]struct{})}
}

func (s *botIDSet) Add(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	s.ids[id] = struct{}{}
	s.mu.Unlock()
}

func (s *botIDSet) Has(id string) bool {
	s.mu.RLock()
	_, ok := s.ids[id]
	s.mu.RUnlock()
	return ok
}

// Orchestrator consumes message-created events, detects bot mentions, and
// fans out to the Runner per matched bot.
type Orchestrator struct {
	bots       parlor.BotStore
	messages   parlor.MessageStore
	runner     *Runner
	knownBots  *botIDSet
	windowSize int
	logger     *slog.Logger

	mu       sync.Mutex
	inflight map[*Handle]struct{}
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithWindowSize sets the shared context window size (default 15).
func WithWindowSize(n int) OrchestratorOption {
	return func(o *Orchestrator) { o.windowSize = n }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(bots parlor.BotStore, messages parlor.MessageStore, runner *Runner, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		bots:       bots,
		messages:   messages,
		runner:     runner,
		knownBots:  newBotIDSet(),
		windowSize: defaultWindowSize,
		logger:     parlor.NopLogger,
		inflight:   make(map[*Handle]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// HandleMessageCreated inspects a freshly persisted message and dispatches to
// every Active bot it mentions. Returns as soon as the dispatches are
// spawned; each runs on its own goroutine behind a recover boundary so one
// bot's failure never blocks siblings or the caller.
func (o *Orchestrator) HandleMessageCreated(ctx context.Context, msg parlor.Message) {
	// Bots never answer bots: no infinite mention loops.
	if msg.Sender.IsBot || o.knownBots.Has(msg.Sender.ID) {
		return
	}
	if !HasMentionMarker(msg.Content) {
		return
	}

	bots, bindings, err := o.bots.ActiveBotsForGuild(ctx, msg.GuildID, msg.ChannelID)
	if err != nil {
		o.logger.Error("load guild bots", "guild_id", msg.GuildID, "error", err)
		return
	}

	bindingFor := make(map[string]parlor.ChannelBinding, len(bindings))
	for _, b := range bindings {
		bindingFor[b.BotID] = b
	}

	var matched []parlor.Bot
	for _, bot := range bots {
		if MentionsBot(msg.Content, bot.DisplayName) {
			matched = append(matched, bot)
		}
	}
	if len(matched) == 0 {
		return
	}

	// Shared context window, built once. The triggering message is excluded
	// so it isn't duplicated into the history the strategies already receive.
	window := o.buildWindow(ctx, msg)

	// Dispatches outlive the inbound request.
	dctx := context.WithoutCancel(ctx)

	for _, bot := range matched {
		// Seen before its own first reply is persisted, so the bot can never
		// trigger itself.
		o.knownBots.Add(bot.UserID)

		ec := parlor.ExecContext{
			Bot:        bot,
			Binding:    bindingFor[bot.ID],
			GuildID:    msg.GuildID,
			ChannelID:  msg.ChannelID,
			MessageID:  msg.ID,
			Author:     msg.Sender,
			Content:    StripMention(msg.Content, bot.DisplayName),
			RawContent: msg.Content,
			Window:     window,
		}

		o.track(Spawn(dctx, o.runner, ec, o.logger))
	}
}

// track retains a dispatch handle until it reaches a terminal state.
func (o *Orchestrator) track(h *Handle) {
	o.mu.Lock()
	o.inflight[h] = struct{}{}
	o.mu.Unlock()
	go func() {
		<-h.Done()
		o.mu.Lock()
		delete(o.inflight, h)
		o.mu.Unlock()
	}()
}

// InFlight reports how many dispatches are still running.
func (o *Orchestrator) InFlight() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.inflight)
}

// Drain waits for every in-flight dispatch to finish. Dispatch errors are
// already logged and converted into fallback messages, so only ctx expiry
// aborts the wait.
func (o *Orchestrator) Drain(ctx context.Context) error {
	o.mu.Lock()
	handles := make([]*Handle, 0, len(o.inflight))
	for h := range o.inflight {
		handles = append(handles, h)
	}
	o.mu.Unlock()

	for _, h := range handles {
		if err := h.Await(ctx); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// buildWindow fetches the recent conversation window, chronological, with the
// triggering message filtered out. A fetch failure degrades to an empty
// window rather than aborting the dispatch.
func (o *Orchestrator) buildWindow(ctx context.Context, msg parlor.Message) []parlor.Message {
	recent, err := o.messages.RecentMessages(ctx, msg.ChannelID, o.windowSize+1)
	if err != nil {
		o.logger.Warn("load context window", "channel_id", msg.ChannelID, "error", err)
		return nil
	}
	window := recent[:0:0]
	for _, m := range recent {
		if m.ID != msg.ID {
			window = append(window, m)
		}
	}
	if len(window) > o.windowSize {
		window = window[len(window)-o.windowSize:]
	}
	return window
}

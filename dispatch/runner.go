package dispatch

import (
	"context"
	"log/slog"

	"github.com/parlorchat/parlor"
)

// Strategy produces a bot's reply for one dispatch. Implementations convert
// their own failures into user-visible fallback messages; a returned error is
// logged by the caller and goes no further.
type Strategy interface {
	Mode() parlor.ExecutionMode
	Execute(ctx context.Context, ec parlor.ExecContext) error
}

// Runner selects the execution strategy matching a bot's configured mode.
// Unknown or missing modes fall back to Webhook.
type Runner struct {
	strategies map[parlor.ExecutionMode]Strategy
	logger     *slog.Logger
}

// NewRunner creates a Runner over the given strategies.
func NewRunner(logger *slog.Logger, strategies ...Strategy) *Runner {
	if logger == nil {
		logger = parlor.NopLogger
	}
	r := &Runner{
		strategies: make(map[parlor.ExecutionMode]Strategy, len(strategies)),
		logger:     logger,
	}
	for _, s := range strategies {
		r.strategies[s.Mode()] = s
	}
	return r
}

// Dispatch invokes the strategy for the bot's execution mode.
func (r *Runner) Dispatch(ctx context.Context, ec parlor.ExecContext) error {
	mode := ec.Bot.Mode
	s, ok := r.strategies[mode]
	if !ok {
		r.logger.Warn("unknown execution mode, falling back to webhook",
			"bot_id", ec.Bot.ID, "mode", string(mode))
		s, ok = r.strategies[parlor.ModeWebhook]
		if !ok {
			r.logger.Error("no webhook strategy registered", "bot_id", ec.Bot.ID)
			return nil
		}
	}
	return s.Execute(ctx, ec)
}

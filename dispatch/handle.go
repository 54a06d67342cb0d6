package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/parlorchat/parlor"
)

// DispatchState represents the execution state of a spawned dispatch.
type DispatchState int32

const (
	// StatePending indicates the dispatch has been spawned but not started.
	StatePending DispatchState = iota
	// StateRunning indicates the strategy is executing.
	StateRunning
	// StateCompleted indicates the strategy finished successfully.
	StateCompleted
	// StateFailed indicates the strategy returned an error or panicked.
	StateFailed
	// StateCancelled indicates the dispatch context was cancelled.
	StateCancelled
)

// String returns the state name.
func (s DispatchState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the state is final.
func (s DispatchState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Handle tracks one background bot dispatch.
// All methods are safe for concurrent use.
type Handle struct {
	botID  string
	state  atomic.Int32
	err    error
	done   chan struct{}
	cancel context.CancelFunc
}

// Spawn launches runner.Dispatch(ctx, ec) on a background goroutine behind a
// recover boundary, so a panicking strategy is recorded as a failure instead
// of taking the process down. Returns immediately with a handle for awaiting
// and cancelling.
func Spawn(ctx context.Context, runner *Runner, ec parlor.ExecContext, logger *slog.Logger) *Handle {
	if logger == nil {
		logger = parlor.NopLogger
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		botID:  ec.Bot.ID,
		done:   make(chan struct{}),
		cancel: cancel,
	}
	h.state.Store(int32(StatePending))

	go func() {
		defer cancel()
		defer func() {
			if p := recover(); p != nil {
				logger.Error("dispatch panic", "bot_id", ec.Bot.ID, "channel_id", ec.ChannelID, "panic", fmt.Sprintf("%v", p))
				h.err = fmt.Errorf("dispatch panic: %v", p)
				h.state.Store(int32(StateFailed))
				close(h.done)
			}
		}()
		h.state.Store(int32(StateRunning))
		start := time.Now()
		err := runner.Dispatch(ctx, ec)

		// Write err before close(done). The channel close is the
		// happens-before barrier for readers blocked in Await.
		h.err = err
		switch {
		case ctx.Err() != nil && err != nil:
			h.state.Store(int32(StateCancelled))
		case err != nil:
			h.state.Store(int32(StateFailed))
			logger.Warn("dispatch failed", "bot_id", ec.Bot.ID, "channel_id", ec.ChannelID, "error", err, "duration", time.Since(start))
		default:
			h.state.Store(int32(StateCompleted))
			logger.Debug("dispatch completed", "bot_id", ec.Bot.ID, "channel_id", ec.ChannelID, "duration", time.Since(start))
		}
		close(h.done)
	}()

	return h
}

// BotID returns the dispatched bot's id.
func (h *Handle) BotID() string { return h.botID }

// State returns the current execution state. If the state is terminal, State
// blocks until Done() is closed so Err() is valid once IsTerminal reports
// true.
func (h *Handle) State() DispatchState {
	s := DispatchState(h.state.Load())
	if s.IsTerminal() {
		<-h.done
	}
	return s
}

// Done returns a channel closed when the dispatch reaches a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Await blocks until the dispatch completes or ctx is cancelled.
func (h *Handle) Await(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel requests cancellation. Non-blocking.
func (h *Handle) Cancel() { h.cancel() }

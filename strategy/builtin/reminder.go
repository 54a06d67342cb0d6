package builtin

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/parlorchat/parlor"
)

// maxReminderDelay bounds how far out a reminder may be scheduled.
const maxReminderDelay = 7 * 24 * time.Hour

// DeliverFunc posts a reminder back to its channel when the timer fires. The
// runtime injects this at startup so the template stays decoupled from the
// message store and the bot identity plumbing.
type DeliverFunc func(botID, channelID, userID, text string)

// Reminder schedules one pending reminder per user. "remind me in <duration>
// <text>" arms it, "cancel" disarms it; re-arming replaces the previous timer.
type Reminder struct {
	deliver DeliverFunc

	mu      sync.Mutex
	pending map[string]*time.Timer // user id -> armed timer
}

// NewReminder creates the reminder template with its delivery callback.
func NewReminder(deliver DeliverFunc) *Reminder {
	return &Reminder{
		deliver: deliver,
		pending: make(map[string]*time.Timer),
	}
}

func (r *Reminder) ID() string { return "reminder" }

func (r *Reminder) Execute(_ context.Context, ec parlor.ExecContext, _ map[string]string) (string, error) {
	text := strings.TrimSpace(ec.Content)
	lower := strings.ToLower(text)

	if lower == "cancel" {
		if r.cancel(ec.Author.ID) {
			return fmt.Sprintf("Okay %s, cancelled your reminder.", ec.Author.Name), nil
		}
		return fmt.Sprintf("%s, you have no pending reminder.", ec.Author.Name), nil
	}

	delay, note, err := parseReminder(text)
	if err != nil {
		return fmt.Sprintf("I didn't understand that, %s. Try \"remind me in 10m take a break\" or \"cancel\".", ec.Author.Name), nil
	}
	if delay > maxReminderDelay {
		return fmt.Sprintf("That's too far out, %s. I can remind you up to 7 days ahead.", ec.Author.Name), nil
	}

	r.arm(ec, delay, note)
	return fmt.Sprintf("Got it %s, I'll remind you in %s.", ec.Author.Name, delay), nil
}

// arm schedules the timer, replacing any pending reminder for the same user.
func (r *Reminder) arm(ec parlor.ExecContext, delay time.Duration, note string) {
	botID := ec.Bot.ID
	channelID := ec.ChannelID
	userID := ec.Author.ID
	userName := ec.Author.Name

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.pending[userID]; ok {
		prev.Stop()
	}
	r.pending[userID] = time.AfterFunc(delay, func() {
		r.mu.Lock()
		delete(r.pending, userID)
		r.mu.Unlock()
		if r.deliver != nil {
			r.deliver(botID, channelID, userID, fmt.Sprintf("%s, reminder: %s", userName, note))
		}
	})
}

// cancel stops the user's pending timer. Reports whether one existed.
func (r *Reminder) cancel(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.pending[userID]
	if !ok {
		return false
	}
	t.Stop()
	delete(r.pending, userID)
	return true
}

// Stop cancels all pending timers. Called on shutdown.
func (r *Reminder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.pending {
		t.Stop()
		delete(r.pending, id)
	}
}

// parseReminder extracts the delay and note from "remind me in <duration>
// <text>". The leading "remind me" is optional.
func parseReminder(text string) (time.Duration, string, error) {
	lower := strings.ToLower(text)
	idx := strings.Index(lower, "in ")
	if idx < 0 {
		return 0, "", fmt.Errorf("no duration clause")
	}
	rest := strings.TrimSpace(text[idx+len("in "):])
	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return 0, "", fmt.Errorf("missing reminder text")
	}
	delay, err := time.ParseDuration(fields[0])
	if err != nil || delay <= 0 {
		return 0, "", fmt.Errorf("bad duration %q", fields[0])
	}
	return delay, strings.Join(fields[1:], " "), nil
}

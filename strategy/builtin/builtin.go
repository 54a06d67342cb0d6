// Package builtin executes bot dispatches against platform-provided reply
// templates, selected by the bot's configured template id.
package builtin

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/parlorchat/parlor"
)

// Template is one platform-provided behavior. Execute returns the reply text;
// an empty string with a nil error means the template chose not to reply.
type Template interface {
	ID() string
	Execute(ctx context.Context, ec parlor.ExecContext, config map[string]string) (string, error)
}

// Strategy implements the builtin execution mode over a template registry.
type Strategy struct {
	messages  parlor.MessageStore
	templates map[string]Template
	logger    *slog.Logger
}

// Option configures a Strategy.
type Option func(*Strategy)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Strategy) { s.logger = l }
}

// New creates the builtin strategy with the given templates registered.
func New(messages parlor.MessageStore, templates []Template, opts ...Option) *Strategy {
	s := &Strategy{
		messages:  messages,
		templates: make(map[string]Template, len(templates)),
		logger:    parlor.NopLogger,
	}
	for _, t := range templates {
		s.templates[t.ID()] = t
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mode returns the execution mode this strategy serves.
func (s *Strategy) Mode() parlor.ExecutionMode { return parlor.ModeBuiltin }

// Execute looks up the bot's template and runs it. Template errors and panics
// become an apologetic reply; an empty result means no reply at all.
func (s *Strategy) Execute(ctx context.Context, ec parlor.ExecContext) error {
	cfg := ec.Bot.Builtin
	tmpl, ok := s.templates[cfg.TemplateID]
	if !ok {
		s.logger.Warn("unknown builtin template", "bot_id", ec.Bot.ID, "template_id", cfg.TemplateID)
		s.reply(ctx, ec, fmt.Sprintf("%s is misconfigured: template %q does not exist.", ec.Bot.DisplayName, cfg.TemplateID))
		return nil
	}

	content, err := s.run(ctx, tmpl, ec, cfg.Config)
	if err != nil {
		s.logger.Error("builtin template failed", "bot_id", ec.Bot.ID, "template_id", cfg.TemplateID, "error", err)
		s.reply(ctx, ec, fmt.Sprintf("Sorry, %s hit a problem handling that.", ec.Bot.DisplayName))
		return nil
	}
	if content == "" {
		return nil
	}
	s.reply(ctx, ec, content)
	return nil
}

// run executes one template with a recover boundary so a panicking template
// is indistinguishable from one returning an error.
func (s *Strategy) run(ctx context.Context, tmpl Template, ec parlor.ExecContext, config map[string]string) (content string, err error) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("builtin template panic",
				"template_id", tmpl.ID(),
				"panic", p,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("template %s panicked: %v", tmpl.ID(), p)
		}
	}()
	return tmpl.Execute(ctx, ec, config)
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
		s.logger.Error("persist builtin reply", "bot_id", ec.Bot.ID, "channel_id", ec.ChannelID, "error", err)
	}
}

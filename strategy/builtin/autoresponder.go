package builtin

import (
	"context"
	"strings"

	"github.com/parlorchat/parlor"
)

// AutoResponder replies with a canned answer when the message matches one of
// the configured rules. Rules live in config["rules"], one per line, each
// "pattern => reply"; matching is a case-insensitive substring test in rule
// order. No match means no reply.
type AutoResponder struct{}

func (AutoResponder) ID() string { return "auto_responder" }

func (AutoResponder) Execute(_ context.Context, ec parlor.ExecContext, config map[string]string) (string, error) {
	for _, line := range strings.Split(config["rules"], "\n") {
		pattern, reply, ok := strings.Cut(line, "=>")
		if !ok {
			continue
		}
		pattern = strings.TrimSpace(pattern)
		reply = strings.TrimSpace(reply)
		if pattern == "" || reply == "" {
			continue
		}
		if strings.Contains(strings.ToLower(ec.Content), strings.ToLower(pattern)) {
			return reply, nil
		}
	}
	return "", nil
}

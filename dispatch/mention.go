package dispatch

import (
	"regexp"
	"strings"
)

// HasMentionMarker is the cheap pre-filter: a message without "@" can't
// mention anyone, so no bot lookup is needed.
func HasMentionMarker(content string) bool {
	return strings.Contains(content, "@")
}

// mentionPattern builds the case-insensitive whole-word pattern for a bot
// display name. The optional leading whitespace is consumed so stripping
// leaves no double spaces behind.
func mentionPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\s?@` + regexp.QuoteMeta(name) + `\b`)
}

// MentionsBot reports whether content mentions the bot by display name,
// case-insensitively, on a word boundary.
func MentionsBot(content, name string) bool {
	if name == "" {
		return false
	}
	return mentionPattern(name).MatchString(content)
}

// StripMention removes every @name token from content, word-boundary-safe,
// so strategies see the message as addressed to them.
func StripMention(content, name string) string {
	return strings.TrimSpace(mentionPattern(name).ReplaceAllString(content, ""))
}

package dispatch

import "testing"

func TestMentionsBot(t *testing.T) {
	tests := []struct {
		name    string
		content string
		bot     string
		want    bool
	}{
		{"exact", "hey @Alice how are you", "Alice", true},
		{"case insensitive", "ping @alice now", "Alice", true},
		{"mixed case bot", "@HELPBOT status", "HelpBot", true},
		{"punctuation boundary", "thanks @Alice!", "Alice", true},
		{"start of message", "@Alice hello", "Alice", true},
		{"prefix of longer name", "ask @Alicia instead", "Alice", false},
		{"no at sign", "Alice are you there", "Alice", false},
		{"different bot", "hey @Bob", "Alice", false},
		{"name with hyphen", "hi @Help-Bot there", "Help-Bot", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MentionsBot(tt.content, tt.bot); got != tt.want {
				t.Errorf("MentionsBot(%q, %q) = %v, want %v", tt.content, tt.bot, got, tt.want)
			}
		})
	}
}

func TestStripMention(t *testing.T) {
	tests := []struct {
		content string
		bot     string
		want    string
	}{
		{"hey @Alice how are you", "Alice", "hey how are you"},
		{"@Alice hello", "Alice", "hello"},
		{"hello @alice", "Alice", "hello"},
		{"no mention here", "Alice", "no mention here"},
	}
	for _, tt := range tests {
		if got := StripMention(tt.content, tt.bot); got != tt.want {
			t.Errorf("StripMention(%q, %q) = %q, want %q", tt.content, tt.bot, got, tt.want)
		}
	}
}

func TestHasMentionMarker(t *testing.T) {
	if HasMentionMarker("plain message") {
		t.Error("expected no marker in plain message")
	}
	if !HasMentionMarker("hey @bot") {
		t.Error("expected marker")
	}
}

package parlor

import "context"

// BotStore resolves which bots can act in a channel. Implementations return
// bots and bindings index-aligned; a bot without a binding for the channel
// gets a zero-value binding with MemoryScope defaulted to ScopeChannel.
type BotStore interface {
	ActiveBotsForGuild(ctx context.Context, guildID, channelID string) ([]Bot, []ChannelBinding, error)
}

// MessageStore persists and reads channel messages.
type MessageStore interface {
	// RecentMessages returns up to limit messages for the channel in
	// chronological order, oldest first.
	RecentMessages(ctx context.Context, channelID string, limit int) ([]Message, error)
	CreateMessage(ctx context.Context, msg Message) error
}

// MemoryStore persists per-(bot, channel) conversation memory.
type MemoryStore interface {
	// GetMemory reports ok=false when no record exists yet.
	GetMemory(ctx context.Context, botID, channelID string) (MemoryRecord, bool, error)
	PutMemory(ctx context.Context, rec MemoryRecord) error
	ClearMemory(ctx context.Context, botID, channelID string) error
}

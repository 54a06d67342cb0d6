// Package sqlite implements the parlor store interfaces using pure-Go
// SQLite. Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/parlorchat/parlor"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store. When set, the store
// emits debug logs for every operation including timing and row counts.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store backs the bot, message, and memory store interfaces with a local
// SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ parlor.BotStore = (*Store)(nil)
var _ parlor.MessageStore = (*Store)(nil)
var _ parlor.MemoryStore = (*Store)(nil)

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: parlor.NopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates all required tables.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	tables := []string{
		`CREATE TABLE IF NOT EXISTS bots (
			id TEXT PRIMARY KEY,
			guild_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			display_name TEXT NOT NULL,
			mode TEXT NOT NULL,
			status TEXT NOT NULL,
			webhook_config TEXT,
			builtin_config TEXT,
			llm_config TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS channel_bindings (
			bot_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			prompt_override TEXT NOT NULL DEFAULT '',
			tools_override TEXT,
			memory_scope TEXT NOT NULL DEFAULT 'channel',
			can_summarize INTEGER NOT NULL DEFAULT 0,
			can_use_tools INTEGER NOT NULL DEFAULT 0,
			max_tokens INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (bot_id, channel_id)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			guild_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			sender_name TEXT NOT NULL,
			sender_is_bot INTEGER NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS bot_memory (
			bot_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			summarized_count INTEGER NOT NULL DEFAULT 0,
			last_summarized_id TEXT NOT NULL DEFAULT '',
			interactions INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (bot_id, channel_id)
		)`,
	}
	for _, ddl := range tables {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_bots_guild ON bots(guild_id)`)
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_id, created_at)`)
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_bindings_channel ON channel_bindings(channel_id)`)

	s.logger.Info("sqlite: init completed", "duration", time.Since(start))
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// CreateBot inserts or replaces a bot, serializing the mode configs as JSON.
func (s *Store) CreateBot(ctx context.Context, bot parlor.Bot) error {
	start := time.Now()

	webhookJSON, _ := json.Marshal(bot.Webhook)
	builtinJSON, _ := json.Marshal(bot.Builtin)
	llmJSON, _ := json.Marshal(bot.LLM)

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO bots
		 (id, guild_id, user_id, display_name, mode, status, webhook_config, builtin_config, llm_config, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		bot.ID, bot.GuildID, bot.UserID, bot.DisplayName, string(bot.Mode), string(bot.Status),
		string(webhookJSON), string(builtinJSON), string(llmJSON), bot.CreatedAt,
	)
	if err != nil {
		s.logger.Error("sqlite: create bot failed", "id", bot.ID, "error", err)
		return fmt.Errorf("create bot: %w", err)
	}
	s.logger.Debug("sqlite: create bot ok", "id", bot.ID, "duration", time.Since(start))
	return nil
}

// GetBot loads one bot by id.
func (s *Store) GetBot(ctx context.Context, id string) (parlor.Bot, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, guild_id, user_id, display_name, mode, status, webhook_config, builtin_config, llm_config, created_at
		 FROM bots WHERE id = ?`, id)
	bot, err := scanBot(row)
	if err == sql.ErrNoRows {
		return parlor.Bot{}, false, nil
	}
	if err != nil {
		return parlor.Bot{}, false, fmt.Errorf("get bot: %w", err)
	}
	return bot, true, nil
}

// SetBotStatus flips a bot between active and disabled.
func (s *Store) SetBotStatus(ctx context.Context, id string, status parlor.BotStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE bots SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("set bot status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set bot status: bot %s not found", id)
	}
	return nil
}

// DeleteBot removes a bot along with its channel bindings and memory.
func (s *Store) DeleteBot(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete bot: begin: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM channel_bindings WHERE bot_id = ?`,
		`DELETE FROM bot_memory WHERE bot_id = ?`,
		`DELETE FROM bots WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("delete bot: %w", err)
		}
	}
	return tx.Commit()
}

// PutBinding inserts or replaces a channel binding.
func (s *Store) PutBinding(ctx context.Context, b parlor.ChannelBinding) error {
	toolsJSON, _ := json.Marshal(b.ToolsOverride)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO channel_bindings
		 (bot_id, channel_id, prompt_override, tools_override, memory_scope, can_summarize, can_use_tools, max_tokens)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.BotID, b.ChannelID, b.PromptOverride, string(toolsJSON), string(b.MemoryScope),
		boolInt(b.CanSummarize), boolInt(b.CanUseTools), b.MaxTokens,
	)
	if err != nil {
		return fmt.Errorf("put binding: %w", err)
	}
	return nil
}

// DeleteBinding removes one binding.
func (s *Store) DeleteBinding(ctx context.Context, botID, channelID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM channel_bindings WHERE bot_id = ? AND channel_id = ?`, botID, channelID)
	if err != nil {
		return fmt.Errorf("delete binding: %w", err)
	}
	return nil
}

// ActiveBotsForGuild returns every active bot in the guild together with its
// binding for the given channel. Bots without a binding for the channel are
// returned with a zero-value binding so mention matching still sees them.
func (s *Store) ActiveBotsForGuild(ctx context.Context, guildID, channelID string) ([]parlor.Bot, []parlor.ChannelBinding, error) {
	start := time.Now()

	rows, err := s.db.QueryContext(ctx,
		`SELECT b.id, b.guild_id, b.user_id, b.display_name, b.mode, b.status,
		        b.webhook_config, b.builtin_config, b.llm_config, b.created_at,
		        cb.channel_id, cb.prompt_override, cb.tools_override, cb.memory_scope,
		        cb.can_summarize, cb.can_use_tools, cb.max_tokens
		 FROM bots b
		 LEFT JOIN channel_bindings cb ON cb.bot_id = b.id AND cb.channel_id = ?
		 WHERE b.guild_id = ? AND b.status = ?`,
		channelID, guildID, string(parlor.StatusActive),
	)
	if err != nil {
		s.logger.Error("sqlite: active bots failed", "guild_id", guildID, "error", err)
		return nil, nil, fmt.Errorf("active bots: %w", err)
	}
	defer rows.Close()

	var bots []parlor.Bot
	var bindings []parlor.ChannelBinding
	for rows.Next() {
		var bot parlor.Bot
		var mode, status, webhookJSON, builtinJSON, llmJSON string
		var bChannel, bPrompt, bTools, bScope sql.NullString
		var bSummarize, bTools2, bMaxTokens sql.NullInt64
		if err := rows.Scan(&bot.ID, &bot.GuildID, &bot.UserID, &bot.DisplayName, &mode, &status,
			&webhookJSON, &builtinJSON, &llmJSON, &bot.CreatedAt,
			&bChannel, &bPrompt, &bTools, &bScope, &bSummarize, &bTools2, &bMaxTokens); err != nil {
			return nil, nil, fmt.Errorf("scan bot: %w", err)
		}
		bot.Mode = parlor.ExecutionMode(mode)
		bot.Status = parlor.BotStatus(status)
		_ = json.Unmarshal([]byte(webhookJSON), &bot.Webhook)
		_ = json.Unmarshal([]byte(builtinJSON), &bot.Builtin)
		_ = json.Unmarshal([]byte(llmJSON), &bot.LLM)

		binding := parlor.ChannelBinding{BotID: bot.ID, ChannelID: channelID, MemoryScope: parlor.ScopeChannel}
		if bChannel.Valid {
			binding.PromptOverride = bPrompt.String
			binding.MemoryScope = parlor.MemoryScope(bScope.String)
			binding.CanSummarize = bSummarize.Int64 != 0
			binding.CanUseTools = bTools2.Int64 != 0
			binding.MaxTokens = int(bMaxTokens.Int64)
			if bTools.Valid && bTools.String != "" && bTools.String != "null" {
				_ = json.Unmarshal([]byte(bTools.String), &binding.ToolsOverride)
			}
		}
		bots = append(bots, bot)
		bindings = append(bindings, binding)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate bots: %w", err)
	}

	s.logger.Debug("sqlite: active bots ok", "guild_id", guildID, "count", len(bots), "duration", time.Since(start))
	return bots, bindings, nil
}

// CreateMessage inserts a message.
func (s *Store) CreateMessage(ctx context.Context, msg parlor.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO messages
		 (id, guild_id, channel_id, sender_id, sender_name, sender_is_bot, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.GuildID, msg.ChannelID, msg.Sender.ID, msg.Sender.Name,
		boolInt(msg.Sender.IsBot), msg.Content, msg.CreatedAt,
	)
	if err != nil {
		s.logger.Error("sqlite: create message failed", "id", msg.ID, "error", err)
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// RecentMessages returns the most recent messages in a channel, ordered
// chronologically (oldest first).
func (s *Store) RecentMessages(ctx context.Context, channelID string, limit int) ([]parlor.Message, error) {
	start := time.Now()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, guild_id, channel_id, sender_id, sender_name, sender_is_bot, content, created_at
		 FROM messages
		 WHERE channel_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		channelID, limit,
	)
	if err != nil {
		s.logger.Error("sqlite: recent messages failed", "channel_id", channelID, "error", err)
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var messages []parlor.Message
	for rows.Next() {
		var m parlor.Message
		var isBot int
		if err := rows.Scan(&m.ID, &m.GuildID, &m.ChannelID, &m.Sender.ID, &m.Sender.Name, &isBot, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Sender.IsBot = isBot != 0
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	// Reverse to chronological order (oldest first).
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	s.logger.Debug("sqlite: recent messages ok", "channel_id", channelID, "count", len(messages), "duration", time.Since(start))
	return messages, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// scanBot reads a bot row from a single-row query.
func scanBot(row *sql.Row) (parlor.Bot, error) {
	var bot parlor.Bot
	var mode, status, webhookJSON, builtinJSON, llmJSON string
	err := row.Scan(&bot.ID, &bot.GuildID, &bot.UserID, &bot.DisplayName, &mode, &status,
		&webhookJSON, &builtinJSON, &llmJSON, &bot.CreatedAt)
	if err != nil {
		return parlor.Bot{}, err
	}
	bot.Mode = parlor.ExecutionMode(mode)
	bot.Status = parlor.BotStatus(status)
	_ = json.Unmarshal([]byte(webhookJSON), &bot.Webhook)
	_ = json.Unmarshal([]byte(builtinJSON), &bot.Builtin)
	_ = json.Unmarshal([]byte(llmJSON), &bot.LLM)
	return bot, nil
}

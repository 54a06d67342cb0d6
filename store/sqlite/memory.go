package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/parlorchat/parlor"
)

// GetMemory loads the memory record for a (bot, channel) pair.
func (s *Store) GetMemory(ctx context.Context, botID, channelID string) (parlor.MemoryRecord, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT bot_id, channel_id, summary, summarized_count, last_summarized_id, interactions, updated_at
		 FROM bot_memory WHERE bot_id = ? AND channel_id = ?`,
		botID, channelID)

	var rec parlor.MemoryRecord
	err := row.Scan(&rec.BotID, &rec.ChannelID, &rec.Summary, &rec.SummarizedCount,
		&rec.LastSummarizedID, &rec.Interactions, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return parlor.MemoryRecord{}, false, nil
	}
	if err != nil {
		return parlor.MemoryRecord{}, false, fmt.Errorf("get memory: %w", err)
	}
	return rec, true, nil
}

// PutMemory inserts or replaces a memory record.
func (s *Store) PutMemory(ctx context.Context, rec parlor.MemoryRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO bot_memory
		 (bot_id, channel_id, summary, summarized_count, last_summarized_id, interactions, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.BotID, rec.ChannelID, rec.Summary, rec.SummarizedCount,
		rec.LastSummarizedID, rec.Interactions, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("put memory: %w", err)
	}
	return nil
}

// ClearMemory deletes the record for a (bot, channel) pair.
func (s *Store) ClearMemory(ctx context.Context, botID, channelID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM bot_memory WHERE bot_id = ? AND channel_id = ?`, botID, channelID)
	if err != nil {
		return fmt.Errorf("clear memory: %w", err)
	}
	return nil
}

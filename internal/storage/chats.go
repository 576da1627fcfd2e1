package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ashita-ai/renraku/internal/model"
)

// UpsertChat inserts a chat or replaces the mutable fields of an existing
// (session_id, id) row. UnreadCount is clamped at zero on the way in; the
// column carries a CHECK constraint as the backstop.
func (db *DB) UpsertChat(ctx context.Context, c model.Chat) error {
	if c.UnreadCount < 0 {
		c.UnreadCount = 0
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO chats (session_id, id, name, unread_count, conversation_timestamp)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (session_id, id) DO UPDATE SET
		   name = EXCLUDED.name,
		   unread_count = EXCLUDED.unread_count,
		   conversation_timestamp = EXCLUDED.conversation_timestamp`,
		c.SessionID, c.ID, c.Name, c.UnreadCount, c.ConversationTimestamp,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert chat: %w", err)
	}
	return nil
}

// CreateChats bulk-inserts chats, skipping rows that already exist.
// Returns the number of rows actually inserted.
func (db *DB) CreateChats(ctx context.Context, chats []model.Chat) (int64, error) {
	if len(chats) == 0 {
		return 0, nil
	}

	var inserted int64
	for start := 0; start < len(chats); start += bulkInsertChunk {
		chunk := chats[start:min(start+bulkInsertChunk, len(chats))]

		args := make([]any, 0, len(chunk)*5)
		var values strings.Builder
		for i, c := range chunk {
			if c.UnreadCount < 0 {
				c.UnreadCount = 0
			}
			if i > 0 {
				values.WriteString(", ")
			}
			base := i * 5
			fmt.Fprintf(&values, "($%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5)
			args = append(args, c.SessionID, c.ID, c.Name, c.UnreadCount, c.ConversationTimestamp)
		}

		tag, err := db.pool.Exec(ctx,
			`INSERT INTO chats (session_id, id, name, unread_count, conversation_timestamp)
			 VALUES `+values.String()+` ON CONFLICT (session_id, id) DO NOTHING`,
			args...,
		)
		if err != nil {
			return inserted, fmt.Errorf("storage: create chats: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// UpdateChat applies a partial patch to an existing chat. A negative unread
// count in the patch is floored to zero. Returns ErrNotFound when the row
// does not exist.
func (db *DB) UpdateChat(ctx context.Context, sessionID, id string, patch model.ChatPatch) error {
	if patch.UnreadCount != nil && *patch.UnreadCount < 0 {
		zero := int32(0)
		patch.UnreadCount = &zero
	}
	tag, err := db.pool.Exec(ctx,
		`UPDATE chats SET
		   name = COALESCE($3, name),
		   unread_count = COALESCE($4, unread_count),
		   conversation_timestamp = COALESCE($5, conversation_timestamp)
		 WHERE session_id = $1 AND id = $2`,
		sessionID, id, patch.Name, patch.UnreadCount, patch.ConversationTimestamp,
	)
	if err != nil {
		return fmt.Errorf("storage: update chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: chat %s: %w", id, ErrNotFound)
	}
	return nil
}

// ResetUnreadCount sets a chat's unread count to zero. This is the only
// mutation path to zero from the reconciliation layer.
func (db *DB) ResetUnreadCount(ctx context.Context, sessionID, id string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE chats SET unread_count = 0 WHERE session_id = $1 AND id = $2`,
		sessionID, id,
	)
	if err != nil {
		return fmt.Errorf("storage: reset unread count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: chat %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetChatUnreadCount returns a chat's unread count, or ErrNotFound.
func (db *DB) GetChatUnreadCount(ctx context.Context, sessionID, id string) (int32, error) {
	var count int32
	err := db.pool.QueryRow(ctx,
		`SELECT unread_count FROM chats WHERE session_id = $1 AND id = $2`,
		sessionID, id,
	).Scan(&count)
	if err != nil {
		if isNoRows(err) {
			return 0, fmt.Errorf("storage: chat %s: %w", id, ErrNotFound)
		}
		return 0, fmt.Errorf("storage: get chat unread count: %w", err)
	}
	return count, nil
}

// ListChats returns a page of chats for a tenant, ordered by pk_id.
func (db *DB) ListChats(ctx context.Context, sessionID string, cursor int64, limit int) ([]model.Chat, error) {
	if limit <= 0 {
		limit = 25
	}
	rows, err := db.pool.Query(ctx,
		`SELECT pk_id, session_id, id, name, unread_count, conversation_timestamp
		 FROM chats WHERE session_id = $1 AND pk_id > $2
		 ORDER BY pk_id ASC LIMIT `+strconv.Itoa(limit),
		sessionID, cursor,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list chats: %w", err)
	}
	defer rows.Close()

	var out []model.Chat
	for rows.Next() {
		var c model.Chat
		if err := rows.Scan(&c.PkID, &c.SessionID, &c.ID, &c.Name, &c.UnreadCount, &c.ConversationTimestamp); err != nil {
			return nil, fmt.Errorf("storage: scan chat: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

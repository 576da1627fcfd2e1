package storage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ashita-ai/renraku/internal/codec"
	"github.com/ashita-ai/renraku/internal/model"
)

// UpsertMessage writes a message, replacing the body of an existing
// (session_id, remote_jid, id) row. The body is shaped for storage
// (wide integers collapse to int64, explicit nulls preserved) and stored
// in the codec's text form so binary payloads survive.
func (db *DB) UpsertMessage(ctx context.Context, m model.Message) error {
	data, err := codec.Encode(codec.Transform(m.Data, false))
	if err != nil {
		return fmt.Errorf("storage: encode message: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO messages (session_id, remote_jid, id, from_me, participant, message_timestamp, data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (session_id, remote_jid, id) DO UPDATE SET
		   from_me = EXCLUDED.from_me,
		   participant = EXCLUDED.participant,
		   message_timestamp = EXCLUDED.message_timestamp,
		   data = EXCLUDED.data`,
		m.SessionID, m.RemoteJID, m.ID, m.Key.FromMe, m.Key.Participant, m.MessageTimestamp, data,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert message: %w", err)
	}
	return nil
}

// ListMessages returns a page of a conversation's messages, newest first.
// cursor is the pk_id of the last row of the previous page (0 for the
// first page).
func (db *DB) ListMessages(ctx context.Context, sessionID, remoteJID string, cursor int64, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 25
	}

	query := `SELECT pk_id, session_id, remote_jid, id, from_me, participant, message_timestamp, data
	          FROM messages WHERE session_id = $1 AND remote_jid = $2`
	args := []any{sessionID, remoteJID}
	if cursor > 0 {
		query += ` AND pk_id < $3`
		args = append(args, cursor)
	}
	query += ` ORDER BY message_timestamp DESC, pk_id DESC LIMIT ` + strconv.Itoa(limit)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var (
			m    model.Message
			data string
		)
		if err := rows.Scan(&m.PkID, &m.SessionID, &m.RemoteJID, &m.ID, &m.Key.FromMe, &m.Key.Participant, &m.MessageTimestamp, &data); err != nil {
			return nil, fmt.Errorf("storage: scan message: %w", err)
		}
		m.Key.RemoteJID = m.RemoteJID
		m.Key.ID = m.ID
		decoded, err := codec.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("storage: decode message %s: %w", m.ID, err)
		}
		if body, ok := decoded.(map[string]any); ok {
			m.Data = body
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

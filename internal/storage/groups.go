package storage

import (
	"context"
	"fmt"

	"github.com/ashita-ai/renraku/internal/codec"
	"github.com/ashita-ai/renraku/internal/model"
)

// UpsertGroupMetadata writes cached group state for a tenant. Maintained
// best-effort by collaborators; this layer only persists and wipes it.
// The payload is shaped for storage first: wide integers collapse to
// int64 and null fields are dropped (cached state has no use for them).
func (db *DB) UpsertGroupMetadata(ctx context.Context, g model.GroupMetadata) error {
	data, err := codec.Encode(codec.Transform(g.Data, true))
	if err != nil {
		return fmt.Errorf("storage: encode group metadata: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO group_metadata (session_id, id, subject, data)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session_id, id) DO UPDATE SET
		   subject = EXCLUDED.subject,
		   data = EXCLUDED.data`,
		g.SessionID, g.ID, g.Subject, data,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert group metadata: %w", err)
	}
	return nil
}

// GetGroupMetadata returns one cached group, or ErrNotFound.
func (db *DB) GetGroupMetadata(ctx context.Context, sessionID, id string) (model.GroupMetadata, error) {
	var (
		g    model.GroupMetadata
		data string
	)
	err := db.pool.QueryRow(ctx,
		`SELECT pk_id, session_id, id, subject, data
		 FROM group_metadata WHERE session_id = $1 AND id = $2`,
		sessionID, id,
	).Scan(&g.PkID, &g.SessionID, &g.ID, &g.Subject, &data)
	if err != nil {
		if isNoRows(err) {
			return model.GroupMetadata{}, fmt.Errorf("storage: group %s: %w", id, ErrNotFound)
		}
		return model.GroupMetadata{}, fmt.Errorf("storage: get group metadata: %w", err)
	}
	decoded, err := codec.Decode(data)
	if err != nil {
		return model.GroupMetadata{}, fmt.Errorf("storage: decode group %s: %w", id, err)
	}
	if body, ok := decoded.(map[string]any); ok {
		g.Data = body
	}
	return g, nil
}

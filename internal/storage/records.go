package storage

import (
	"context"
	"fmt"
)

// UpsertRecord writes a session key record, replacing the data of an
// existing (session_id, id) row. Callers own retry policy; see WithRetry.
func (db *DB) UpsertRecord(ctx context.Context, sessionID, id, data string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO session_records (session_id, id, data)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (session_id, id) DO UPDATE SET data = EXCLUDED.data`,
		sessionID, id, data,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert record: %w", err)
	}
	return nil
}

// GetRecord returns the serialized data for (session_id, id).
// Returns ErrNotFound when no row exists.
func (db *DB) GetRecord(ctx context.Context, sessionID, id string) (string, error) {
	var data string
	err := db.pool.QueryRow(ctx,
		`SELECT data FROM session_records WHERE session_id = $1 AND id = $2`,
		sessionID, id,
	).Scan(&data)
	if err != nil {
		if isNoRows(err) {
			return "", fmt.Errorf("storage: record %s: %w", id, ErrNotFound)
		}
		return "", fmt.Errorf("storage: get record: %w", err)
	}
	return data, nil
}

// DeleteRecord removes one session key record.
// Returns ErrNotFound when no row existed.
func (db *DB) DeleteRecord(ctx context.Context, sessionID, id string) error {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM session_records WHERE session_id = $1 AND id = $2`,
		sessionID, id,
	)
	if err != nil {
		return fmt.Errorf("storage: delete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: record %s: %w", id, ErrNotFound)
	}
	return nil
}

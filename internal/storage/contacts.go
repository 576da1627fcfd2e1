package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ashita-ai/renraku/internal/model"
)

// Postgres caps a statement at 65535 bind parameters, so bulk inserts
// run in fixed-size row chunks well under that limit at any column count.
const bulkInsertChunk = 1000

// UpsertContact inserts a contact or, when the (session_id, id) row already
// exists, replaces its display fields. The keys themselves are never
// updated.
func (db *DB) UpsertContact(ctx context.Context, c model.Contact) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO contacts (session_id, id, name, notify, verified_name, img_url, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (session_id, id) DO UPDATE SET
		   name = EXCLUDED.name,
		   notify = EXCLUDED.notify,
		   verified_name = EXCLUDED.verified_name,
		   img_url = EXCLUDED.img_url,
		   status = EXCLUDED.status`,
		c.SessionID, c.ID, c.Name, c.Notify, c.VerifiedName, c.ImgURL, c.Status,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert contact: %w", err)
	}
	return nil
}

// CreateContacts bulk-inserts contacts, skipping rows that already exist
// (first write wins). Returns the number of rows actually inserted.
func (db *DB) CreateContacts(ctx context.Context, contacts []model.Contact) (int64, error) {
	if len(contacts) == 0 {
		return 0, nil
	}

	var inserted int64
	for start := 0; start < len(contacts); start += bulkInsertChunk {
		chunk := contacts[start:min(start+bulkInsertChunk, len(contacts))]

		args := make([]any, 0, len(chunk)*7)
		var values strings.Builder
		for i, c := range chunk {
			if i > 0 {
				values.WriteString(", ")
			}
			base := i * 7
			fmt.Fprintf(&values, "($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
				base+1, base+2, base+3, base+4, base+5, base+6, base+7)
			args = append(args, c.SessionID, c.ID, c.Name, c.Notify, c.VerifiedName, c.ImgURL, c.Status)
		}

		tag, err := db.pool.Exec(ctx,
			`INSERT INTO contacts (session_id, id, name, notify, verified_name, img_url, status)
			 VALUES `+values.String()+` ON CONFLICT (session_id, id) DO NOTHING`,
			args...,
		)
		if err != nil {
			return inserted, fmt.Errorf("storage: create contacts: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// UpdateContact applies a partial patch to an existing contact. Nil patch
// fields are left untouched. Returns ErrNotFound when the row does not
// exist.
func (db *DB) UpdateContact(ctx context.Context, sessionID, id string, patch model.ContactPatch) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE contacts SET
		   name = COALESCE($3, name),
		   notify = COALESCE($4, notify),
		   verified_name = COALESCE($5, verified_name),
		   img_url = COALESCE($6, img_url),
		   status = COALESCE($7, status)
		 WHERE session_id = $1 AND id = $2`,
		sessionID, id, patch.Name, patch.Notify, patch.VerifiedName, patch.ImgURL, patch.Status,
	)
	if err != nil {
		return fmt.Errorf("storage: update contact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: contact %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListContacts returns a page of contacts for a tenant, ordered by pk_id.
// cursor is the pk_id of the last row of the previous page (0 for the
// first page). search, when non-empty, filters on name, verified name and
// notify name.
func (db *DB) ListContacts(ctx context.Context, sessionID string, cursor int64, limit int, search string) ([]model.Contact, error) {
	if limit <= 0 {
		limit = 25
	}

	query := `SELECT pk_id, session_id, id, name, notify, verified_name, img_url, status
	          FROM contacts WHERE session_id = $1 AND pk_id > $2`
	args := []any{sessionID, cursor}
	if search != "" {
		query += ` AND (name ILIKE $3 OR verified_name ILIKE $3 OR notify ILIKE $3)`
		args = append(args, "%"+search+"%")
	}
	query += ` ORDER BY pk_id ASC LIMIT ` + strconv.Itoa(limit)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list contacts: %w", err)
	}
	defer rows.Close()

	var out []model.Contact
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(&c.PkID, &c.SessionID, &c.ID, &c.Name, &c.Notify, &c.VerifiedName, &c.ImgURL, &c.Status); err != nil {
			return nil, fmt.Errorf("storage: scan contact: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetContact returns one contact, or ErrNotFound.
func (db *DB) GetContact(ctx context.Context, sessionID, id string) (model.Contact, error) {
	var c model.Contact
	err := db.pool.QueryRow(ctx,
		`SELECT pk_id, session_id, id, name, notify, verified_name, img_url, status
		 FROM contacts WHERE session_id = $1 AND id = $2`,
		sessionID, id,
	).Scan(&c.PkID, &c.SessionID, &c.ID, &c.Name, &c.Notify, &c.VerifiedName, &c.ImgURL, &c.Status)
	if err != nil {
		if isNoRows(err) {
			return model.Contact{}, fmt.Errorf("storage: contact %s: %w", id, ErrNotFound)
		}
		return model.Contact{}, fmt.Errorf("storage: get contact: %w", err)
	}
	return c, nil
}

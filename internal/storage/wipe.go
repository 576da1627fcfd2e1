package storage

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// WipeResult contains the count of rows deleted per table.
type WipeResult struct {
	Chats         int64 `json:"chats"`
	Contacts      int64 `json:"contacts"`
	Messages      int64 `json:"messages"`
	GroupMetadata int64 `json:"groupMetadata"`
	Records       int64 `json:"records"`
}

// WipeTenant deletes every record belonging to a tenant across all five
// tables, in parallel. Idempotent: wiping an empty tenant succeeds with
// zero counts. Any single failure fails the whole call — partially wiped
// cryptographic state is invalid, so the caller must not resume normal
// operation until a wipe has completed.
func (db *DB) WipeTenant(ctx context.Context, sessionID string) (WipeResult, error) {
	db.logger.Warn("storage: wiping all tenant data", "session_id", sessionID)

	var result WipeResult
	g, ctx := errgroup.WithContext(ctx)

	deleteAll := func(table string, count *int64) func() error {
		return func() error {
			tag, err := db.pool.Exec(ctx,
				`DELETE FROM `+table+` WHERE session_id = $1`, sessionID)
			if err != nil {
				return fmt.Errorf("storage: wipe %s: %w", table, err)
			}
			*count = tag.RowsAffected()
			return nil
		}
	}

	g.Go(deleteAll("chats", &result.Chats))
	g.Go(deleteAll("contacts", &result.Contacts))
	g.Go(deleteAll("messages", &result.Messages))
	g.Go(deleteAll("group_metadata", &result.GroupMetadata))
	g.Go(deleteAll("session_records", &result.Records))

	if err := g.Wait(); err != nil {
		db.logger.Error("storage: tenant wipe failed", "session_id", sessionID, "error", err)
		return WipeResult{}, err
	}

	db.logger.Info("storage: tenant wipe complete",
		"session_id", sessionID,
		"chats", result.Chats,
		"contacts", result.Contacts,
		"messages", result.Messages,
		"groups", result.GroupMetadata,
		"records", result.Records,
	)
	return result, nil
}

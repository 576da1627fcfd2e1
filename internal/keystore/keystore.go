// Package keystore persists per-tenant authentication credentials and
// cryptographic session keys, mediating between the in-memory protocol
// stack and the relational record store.
//
// Writes are best-effort under contention: a write that keeps hitting
// optimistic-concurrency conflicts is retried with linear backoff and then
// dropped with a warning. The protocol layer regenerates missing keys on
// next use rather than blocking forever. The one non-negotiable failure is
// a Bad MAC integrity signal — that wipes the whole tenant and surfaces
// loudly, because partially corrupt key material must not keep serving.
package keystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ashita-ai/renraku/internal/codec"
	"github.com/ashita-ai/renraku/internal/integrity"
	"github.com/ashita-ai/renraku/internal/settle"
	"github.com/ashita-ai/renraku/internal/storage"
)

const (
	credsID    = "creds"
	maxRetries = 3
)

// Records is the durable per-(session, key) record store.
// *storage.DB satisfies it.
type Records interface {
	UpsertRecord(ctx context.Context, sessionID, id, data string) error
	GetRecord(ctx context.Context, sessionID, id string) (string, error)
	DeleteRecord(ctx context.Context, sessionID, id string) error
}

// Wiper performs the full-tenant corruption recovery.
// *storage.DB satisfies it.
type Wiper interface {
	WipeTenant(ctx context.Context, sessionID string) (storage.WipeResult, error)
}

// KeyAccess is the key half of the session state handed to the protocol
// stack.
type KeyAccess interface {
	GetKeys(ctx context.Context, category string, ids []string) (map[string]any, error)
	SetKeys(ctx context.Context, data map[string]map[string]any) error
}

// SessionState is the {credentials, keys} pair the protocol stack consumes.
type SessionState struct {
	Creds *Credentials
	Keys  KeyAccess
}

// Store is one tenant's session key store.
type Store struct {
	sessionID string
	records   Records
	wiper     Wiper
	logger    *slog.Logger

	mu    sync.Mutex
	creds *Credentials
}

// New loads (or initializes) the tenant's credentials and returns a ready
// store. Credentials are read exactly once here; SaveCreds persists later
// mutations made by the protocol stack.
func New(ctx context.Context, sessionID string, records Records, wiper Wiper, logger *slog.Logger) (*Store, error) {
	s := &Store{
		sessionID: sessionID,
		records:   records,
		wiper:     wiper,
		logger:    logger,
	}

	data, err := records.GetRecord(ctx, sessionID, MapID(credsID))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		creds, err := InitCredentials()
		if err != nil {
			return nil, err
		}
		s.creds = creds
	case err != nil:
		return nil, fmt.Errorf("keystore: load credentials: %w", err)
	default:
		var creds Credentials
		if err := json.Unmarshal([]byte(data), &creds); err != nil {
			return nil, fmt.Errorf("keystore: decode credentials: %w", err)
		}
		s.creds = &creds
	}

	return s, nil
}

// Creds returns the in-memory credential object. The protocol stack
// mutates it directly and calls SaveCreds to persist.
func (s *Store) Creds() *Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds
}

// Session returns the state structure consumed by the protocol stack.
func (s *Store) Session() SessionState {
	return SessionState{Creds: s.Creds(), Keys: s}
}

// SaveCreds persists the current in-memory credentials under "creds".
func (s *Store) SaveCreds(ctx context.Context) error {
	return s.write(ctx, s.Creds(), credsID)
}

// GetKeys reads a batch of keys in one category. Reads fan out
// concurrently; an individual miss or failure never aborts the batch —
// the id is simply absent from the result — except a Bad MAC signal,
// which wipes the tenant and fails the whole call.
func (s *Store) GetKeys(ctx context.Context, category string, ids []string) (map[string]any, error) {
	data := make(map[string]any, len(ids))
	var mu sync.Mutex
	var g settle.Group

	for _, id := range ids {
		g.Go(func() error {
			value, err := s.read(ctx, category+"-"+id)
			if err != nil {
				if integrity.IsBadMAC(err) {
					return integrity.Wrap(err, s.sessionID, id)
				}
				s.logger.Warn("keystore: error reading session key",
					"session_id", s.sessionID, "id", id, "error", err)
				return nil
			}
			if value == nil {
				return nil
			}
			if category == AppStateCategory {
				value = rehydrateAppStateKey(value)
			}
			mu.Lock()
			data[id] = value
			mu.Unlock()
			return nil
		})
	}

	for _, err := range settle.Failed(g.Wait()) {
		if integrity.IsBadMAC(err) {
			return nil, s.recoverCorruption(ctx, "read", err)
		}
	}
	return data, nil
}

// SetKeys applies a two-level patch: category -> id -> value. A nil value
// deletes the key; anything else writes it. Items proceed independently;
// per-item write failures are logged and dropped, but a Bad MAC signal on
// any item wipes the tenant and fails the call.
func (s *Store) SetKeys(ctx context.Context, data map[string]map[string]any) error {
	var g settle.Group

	for category, entries := range data {
		for id, value := range entries {
			storeID := category + "-" + id
			g.Go(func() error {
				var err error
				if value == nil {
					err = s.delete(ctx, storeID)
				} else {
					err = s.write(ctx, value, storeID)
				}
				if err != nil && integrity.IsBadMAC(err) {
					return integrity.Wrap(err, s.sessionID, storeID)
				}
				return nil
			})
		}
	}

	for _, err := range settle.Failed(g.Wait()) {
		if integrity.IsBadMAC(err) {
			return s.recoverCorruption(ctx, "write", err)
		}
	}
	return nil
}

// recoverCorruption runs the full-tenant wipe and re-raises the integrity
// failure. A failed wipe is fatal in its own right: the tenant is then in
// an unknown state and the protocol stack must not continue.
func (s *Store) recoverCorruption(ctx context.Context, op string, cause error) error {
	s.logger.Error("keystore: integrity failure detected, wiping tenant",
		"session_id", s.sessionID, "op", op, "error", cause)

	if _, err := s.wiper.WipeTenant(ctx, s.sessionID); err != nil {
		return fmt.Errorf("keystore: wipe after integrity failure: %w (cause: %v)", err, cause)
	}
	return fmt.Errorf("keystore: tenant wiped after integrity failure: %w", cause)
}

// write encodes value and upserts it, retrying conflicts with linear
// backoff. Exhausted retries and other storage failures are logged and
// swallowed — key writes are best-effort — but the error is returned so
// SetKeys can inspect it for the integrity signal.
func (s *Store) write(ctx context.Context, value any, id string) error {
	storeID := MapID(id)
	encoded, err := codec.Encode(value)
	if err != nil {
		return fmt.Errorf("keystore: encode %s: %w", id, err)
	}

	s.logger.Debug("keystore: upsert", "session_id", s.sessionID, "id", storeID)
	err = storage.WithRetry(ctx, maxRetries, func() error {
		return s.records.UpsertRecord(ctx, s.sessionID, storeID, encoded)
	})
	if err != nil {
		if storage.IsConflict(err) {
			s.logger.Warn("keystore: dropping write after retries",
				"session_id", s.sessionID, "id", storeID, "error", err)
			return nil
		}
		s.logger.Error("keystore: error during session upsert",
			"session_id", s.sessionID, "id", storeID, "error", err)
	}
	return err
}

// read returns the decoded value for id, or nil when the record does not
// exist (logged at info level, never an error).
func (s *Store) read(ctx context.Context, id string) (any, error) {
	data, err := s.records.GetRecord(ctx, s.sessionID, MapID(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Info("keystore: read of non-existent session data", "id", id)
			return nil, nil
		}
		return nil, err
	}
	return codec.Decode(data)
}

// delete removes one key; a missing record is informational, not a
// failure.
func (s *Store) delete(ctx context.Context, id string) error {
	err := s.records.DeleteRecord(ctx, s.sessionID, MapID(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Info("keystore: delete of non-existent session data", "id", id)
			return nil
		}
		s.logger.Error("keystore: error during session delete",
			"session_id", s.sessionID, "id", id, "error", err)
	}
	return err
}

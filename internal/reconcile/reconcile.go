// Package reconcile applies snapshot and incremental contact/chat events
// from the protocol event stream into the relational store.
//
// Upstream events arrive in bursts, out of order, possibly duplicated and
// with incomplete identifiers. The reconciler normalizes identities at the
// boundary, enriches records best-effort, and applies them with per-item
// failure isolation: one bad record never aborts its batch. Snapshots are
// merged, never treated as exhaustive — there is no delete-by-absence.
package reconcile

import "context"

// Status marks a notification as a success or error report.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Notification event names emitted towards consumers. The `.set` names
// report applied snapshots; the rest mirror the incremental stream.
const (
	NotifyContactsSet    = "contacts.set"
	NotifyContactsUpsert = "contacts.upsert"
	NotifyContactsUpdate = "contacts.update"
	NotifyChatsSet       = "chats.set"
	NotifyChatsUpsert    = "chats.upsert"
	NotifyChatsUpdate    = "chats.update"
)

// Directory answers best-effort existence and profile photo lookups
// against the remote directory. Implementations retry internally; the
// reconciler treats any failure as absent/no-photo.
type Directory interface {
	Exists(ctx context.Context, jid string) (bool, error)
	ProfilePhotoURL(ctx context.Context, jid string) (string, error)
}

// NoDirectory is a Directory for deployments without an upstream
// connection. Every lookup reports absent, so enrichment degrades the
// image URL to null.
type NoDirectory struct{}

func (NoDirectory) Exists(context.Context, string) (bool, error) { return false, nil }

func (NoDirectory) ProfilePhotoURL(context.Context, string) (string, error) { return "", nil }

// Sink receives fire-and-forget notifications. Implementations must never
// propagate delivery failures back into the reconciler.
type Sink interface {
	Emit(ctx context.Context, event, sessionID string, data any, status Status, message string)
}

// failureSample bounds how many per-item errors land in one log line.
const failureSample = 3

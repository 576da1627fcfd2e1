package renraku

import "context"

// Directory answers best-effort existence and profile photo lookups
// against the remote directory. When provided via WithDirectory it
// replaces the default no-op directory; implementations retry internally,
// and any failure is treated as absent/no-photo.
type Directory interface {
	Exists(ctx context.Context, jid string) (bool, error)
	ProfilePhotoURL(ctx context.Context, jid string) (string, error)
}

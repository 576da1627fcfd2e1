package reconcile

import (
	"context"

	"github.com/ashita-ai/renraku/internal/ratelimit"
)

// throttledDirectory wraps a Directory with a rate limiter. A limited or
// malfunctioning lookup reports absent, which degrades enrichment to a
// null image URL instead of hammering the remote directory.
type throttledDirectory struct {
	d Directory
	l ratelimit.Limiter
}

// Throttle bounds the lookup rate against d. Enrichment stays
// best-effort: lookups over the limit are skipped, never queued.
func Throttle(d Directory, l ratelimit.Limiter) Directory {
	return throttledDirectory{d: d, l: l}
}

func (t throttledDirectory) Exists(ctx context.Context, jid string) (bool, error) {
	ok, err := t.l.Allow(ctx)
	if err != nil {
		// Fail open on limiter malfunction.
		return t.d.Exists(ctx, jid)
	}
	if !ok {
		return false, nil
	}
	return t.d.Exists(ctx, jid)
}

func (t throttledDirectory) ProfilePhotoURL(ctx context.Context, jid string) (string, error) {
	ok, err := t.l.Allow(ctx)
	if err != nil {
		return t.d.ProfilePhotoURL(ctx, jid)
	}
	if !ok {
		return "", nil
	}
	return t.d.ProfilePhotoURL(ctx, jid)
}

package reconcile

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/renraku/internal/ratelimit"
)

type denyLimiter struct{ err error }

func (d denyLimiter) Allow(context.Context) (bool, error) { return false, d.err }
func (d denyLimiter) Close() error                        { return nil }

func TestThrottlePassesWithinLimit(t *testing.T) {
	dir := &fakeDirectory{
		exists: map[string]bool{"a@s.whatsapp.net": true},
		photos: map[string]string{"a@s.whatsapp.net": "https://cdn.example/a.jpg"},
	}
	td := Throttle(dir, ratelimit.NoopLimiter{})

	ok, err := td.Exists(context.Background(), "a@s.whatsapp.net")
	require.NoError(t, err)
	assert.True(t, ok)

	url, err := td.ProfilePhotoURL(context.Background(), "a@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/a.jpg", url)
}

func TestThrottleReportsAbsentWhenLimited(t *testing.T) {
	dir := &fakeDirectory{exists: map[string]bool{"a@s.whatsapp.net": true}}
	td := Throttle(dir, denyLimiter{})

	ok, err := td.Exists(context.Background(), "a@s.whatsapp.net")
	require.NoError(t, err)
	assert.False(t, ok)

	url, err := td.ProfilePhotoURL(context.Background(), "a@s.whatsapp.net")
	require.NoError(t, err)
	assert.Empty(t, url)
}

func TestThrottleFailsOpenOnLimiterError(t *testing.T) {
	dir := &fakeDirectory{exists: map[string]bool{"a@s.whatsapp.net": true}}
	td := Throttle(dir, denyLimiter{err: fmt.Errorf("limiter broken")})

	ok, err := td.Exists(context.Background(), "a@s.whatsapp.net")
	require.NoError(t, err)
	assert.True(t, ok)
}

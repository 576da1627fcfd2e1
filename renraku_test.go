package renraku

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/renraku/internal/notify"
	"github.com/ashita-ai/renraku/internal/reconcile"
	"github.com/ashita-ai/renraku/internal/testutil"
)

func TestNewRequiresSessionID(t *testing.T) {
	t.Setenv("RENRAKU_SESSION_ID", "")
	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RENRAKU_SESSION_ID")
}

func TestNewAppliesOverrides(t *testing.T) {
	t.Setenv("RENRAKU_SESSION_ID", "")
	app, err := New(
		WithSessionID("tenant-1"),
		WithDatabaseURL("postgres://localhost/renraku"),
		WithCountryCode("44"),
		WithVersion("1.2.3"),
	)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", app.SessionID())
	assert.Equal(t, "44", app.cfg.CountryCode)
	assert.Equal(t, "1.2.3", app.opts.version)
	assert.NotNil(t, app.opts.directory)
}

func TestStartTwiceFails(t *testing.T) {
	app := &App{started: true}
	err := app.Start(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestCloseBeforeStartIsNoop(t *testing.T) {
	app := &App{}
	assert.NoError(t, app.Close(t.Context()))
}

func TestToRawContactsPreservesFields(t *testing.T) {
	name := "Alice"
	raws := toRawContacts([]Contact{
		{ID: "a@s.whatsapp.net", Name: &name},
		{Number: "0812"},
	})
	require.Len(t, raws, 2)
	assert.Equal(t, "a@s.whatsapp.net", raws[0].ID)
	assert.Equal(t, &name, raws[0].Name)
	assert.Equal(t, "0812", raws[1].Number)
}

func TestNotificationsCancelUnblocksForwarder(t *testing.T) {
	broker := notify.NewBroker(testutil.TestLogger())
	app := &App{broker: broker}

	out, cancel := app.Notifications()

	// Overfill both the subscription buffer and the public channel while
	// nothing consumes, leaving the forwarding goroutine blocked mid-send.
	for range 200 {
		broker.Emit(context.Background(), "contacts.set", "S1", nil, reconcile.StatusSuccess, "")
	}
	cancel()

	// Cancel must unblock the goroutine and close the channel even though
	// the consumer never read a single notification.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("notifications channel never closed after cancel")
		}
	}
}

func TestToPublicNotification(t *testing.T) {
	got := toPublicNotification(notify.Envelope{
		ID:        "n1",
		Event:     "contacts.set",
		SessionID: "S1",
		Status:    reconcile.StatusError,
		Message:   "boom",
	})
	assert.Equal(t, Notification{
		ID:        "n1",
		Event:     "contacts.set",
		SessionID: "S1",
		Status:    NotificationError,
		Message:   "boom",
	}, got)
}

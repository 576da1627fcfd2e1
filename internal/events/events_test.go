package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/renraku/internal/testutil"
)

func TestSubscribeAndEmit(t *testing.T) {
	s := NewStream(testutil.TestLogger())
	ctx := context.Background()

	var got []any
	s.Subscribe(ContactsUpsertEvent, func(_ context.Context, payload any) {
		got = append(got, payload)
	})

	s.Emit(ctx, ContactsUpsertEvent, "one")
	s.Emit(ctx, ContactsUpdateEvent, "wrong event")
	s.Emit(ctx, ContactsUpsertEvent, "two")

	assert.Equal(t, []any{"one", "two"}, got)
}

func TestCancelStopsDelivery(t *testing.T) {
	s := NewStream(testutil.TestLogger())
	ctx := context.Background()

	calls := 0
	sub := s.Subscribe(HistorySetEvent, func(_ context.Context, _ any) { calls++ })

	s.Emit(ctx, HistorySetEvent, nil)
	sub.Cancel()
	s.Emit(ctx, HistorySetEvent, nil)
	sub.Cancel() // second cancel is a no-op

	assert.Equal(t, 1, calls)
}

func TestHandlerPanicIsContained(t *testing.T) {
	s := NewStream(testutil.TestLogger())
	ctx := context.Background()

	calls := 0
	s.Subscribe(ChatsUpdateEvent, func(_ context.Context, _ any) { panic("bad handler") })
	s.Subscribe(ChatsUpdateEvent, func(_ context.Context, _ any) { calls++ })

	assert.NotPanics(t, func() { s.Emit(ctx, ChatsUpdateEvent, nil) })
	assert.Equal(t, 1, calls)
}

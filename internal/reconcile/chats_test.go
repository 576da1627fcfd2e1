package reconcile

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/renraku/internal/events"
	"github.com/ashita-ai/renraku/internal/model"
	"github.com/ashita-ai/renraku/internal/storage"
	"github.com/ashita-ai/renraku/internal/testutil"
)

type fakeChatStore struct {
	mu        sync.Mutex
	upserts   map[string]model.Chat
	created   []model.Chat
	updates   map[string]model.ChatPatch
	resets    []string
	upsertErr map[string]error
	updateErr map[string]error
	resetErr  map[string]error
	createErr error
}

func newFakeChatStore() *fakeChatStore {
	return &fakeChatStore{
		upserts:   make(map[string]model.Chat),
		updates:   make(map[string]model.ChatPatch),
		upsertErr: make(map[string]error),
		updateErr: make(map[string]error),
		resetErr:  make(map[string]error),
	}
}

func (f *fakeChatStore) UpsertChat(_ context.Context, c model.Chat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.upsertErr[c.ID]; err != nil {
		return err
	}
	f.upserts[c.ID] = c
	return nil
}

func (f *fakeChatStore) CreateChats(_ context.Context, chats []model.Chat) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.created = append(f.created, chats...)
	return int64(len(chats)), nil
}

func (f *fakeChatStore) UpdateChat(_ context.Context, _, id string, patch model.ChatPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.updateErr[id]; err != nil {
		return err
	}
	f.updates[id] = patch
	return nil
}

func (f *fakeChatStore) ResetUnreadCount(_ context.Context, _, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.resetErr[id]; err != nil {
		return err
	}
	f.resets = append(f.resets, id)
	return nil
}

func newChatHandler(store *fakeChatStore, sink Sink) (*ChatHandler, *events.Stream) {
	stream := events.NewStream(testutil.TestLogger())
	h := NewChatHandler("S1", store, sink, stream, testutil.TestLogger())
	return h, stream
}

func TestChatHistorySetMergesAndDrops(t *testing.T) {
	store := newFakeChatStore()
	sink := &fakeSink{}
	h, _ := newChatHandler(store, sink)

	h.HistorySet(context.Background(), []events.RawChat{
		{ID: "a@s.whatsapp.net", UnreadCount: 2},
		{JID: "g@g.us", UnreadCount: -1},
		{Name: strPtr("no identity")},
	})

	require.Len(t, store.created, 2)
	byID := map[string]model.Chat{}
	for _, c := range store.created {
		byID[c.ID] = c
	}
	assert.EqualValues(t, 2, byID["a@s.whatsapp.net"].UnreadCount)
	assert.EqualValues(t, 0, byID["g@g.us"].UnreadCount)

	calls := sink.calls(NotifyChatsSet)
	require.Len(t, calls, 1)
	assert.Equal(t, StatusSuccess, calls[0].status)
}

func TestChatHistorySetStoreFailureEmitsError(t *testing.T) {
	store := newFakeChatStore()
	store.createErr = fmt.Errorf("insert failed")
	sink := &fakeSink{}
	h, _ := newChatHandler(store, sink)

	h.HistorySet(context.Background(), []events.RawChat{{ID: "a@s.whatsapp.net"}})

	calls := sink.calls(NotifyChatsSet)
	require.Len(t, calls, 1)
	assert.Equal(t, StatusError, calls[0].status)
}

func TestChatUpsertContinuesPastFailure(t *testing.T) {
	store := newFakeChatStore()
	store.upsertErr["bad@g.us"] = fmt.Errorf("constraint violation")
	sink := &fakeSink{}
	h, _ := newChatHandler(store, sink)

	h.Upsert(context.Background(), []events.RawChat{
		{ID: "bad@g.us"},
		{ID: "good@g.us", UnreadCount: 1},
	})

	assert.NotContains(t, store.upserts, "bad@g.us")
	require.Contains(t, store.upserts, "good@g.us")

	assert.Len(t, sink.calls(NotifyChatsUpsert), 2) // one error, one success batch
}

func TestChatUpdateContinuesPastNotFound(t *testing.T) {
	store := newFakeChatStore()
	store.updateErr["missing@g.us"] = fmt.Errorf("chat: %w", storage.ErrNotFound)
	sink := &fakeSink{}
	h, _ := newChatHandler(store, sink)

	n := int32(3)
	h.Update(context.Background(), []events.ChatPatch{
		{ID: "missing@g.us", UnreadCount: &n},
		{ID: "present@g.us", UnreadCount: &n},
	})

	assert.NotContains(t, store.updates, "missing@g.us")
	require.Contains(t, store.updates, "present@g.us")
	assert.EqualValues(t, 3, *store.updates["present@g.us"].UnreadCount)

	calls := sink.calls(NotifyChatsUpdate)
	require.Len(t, calls, 1)
	assert.Equal(t, StatusSuccess, calls[0].status)
}

func TestMarkChatRead(t *testing.T) {
	store := newFakeChatStore()
	h, _ := newChatHandler(store, &fakeSink{})

	require.NoError(t, h.MarkChatRead(context.Background(), "a@s.whatsapp.net"))
	assert.Equal(t, []string{"a@s.whatsapp.net"}, store.resets)

	// Missing chat is informational.
	store.resetErr["gone@g.us"] = fmt.Errorf("chat: %w", storage.ErrNotFound)
	require.NoError(t, h.MarkChatRead(context.Background(), "gone@g.us"))

	store.resetErr["broken@g.us"] = fmt.Errorf("connection reset")
	require.Error(t, h.MarkChatRead(context.Background(), "broken@g.us"))
}

func TestChatListenIsIdempotent(t *testing.T) {
	store := newFakeChatStore()
	h, stream := newChatHandler(store, &fakeSink{})

	h.Listen()
	h.Listen()

	stream.Emit(context.Background(), events.ChatsUpsertEvent, []events.RawChat{
		{ID: "a@g.us"},
	})
	assert.Len(t, store.upserts, 1)

	h.Unlisten()
	h.Unlisten()
	stream.Emit(context.Background(), events.ChatsUpsertEvent, []events.RawChat{
		{ID: "b@g.us"},
	})
	assert.Len(t, store.upserts, 1)
}

func TestChatListenHandlesHistorySet(t *testing.T) {
	store := newFakeChatStore()
	h, stream := newChatHandler(store, &fakeSink{})
	h.Listen()
	defer h.Unlisten()

	stream.Emit(context.Background(), events.HistorySetEvent, events.HistorySet{
		Chats: []events.RawChat{{ID: "a@g.us"}},
	})
	require.Len(t, store.created, 1)
	assert.Equal(t, "a@g.us", store.created[0].ID)
}

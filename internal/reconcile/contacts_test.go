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

// fakeContactStore records calls and injects per-id failures.
type fakeContactStore struct {
	mu        sync.Mutex
	upserts   map[string]model.Contact
	created   []model.Contact
	updates   map[string]model.ContactPatch
	upsertErr map[string]error
	updateErr map[string]error
	createErr error
}

func newFakeContactStore() *fakeContactStore {
	return &fakeContactStore{
		upserts:   make(map[string]model.Contact),
		updates:   make(map[string]model.ContactPatch),
		upsertErr: make(map[string]error),
		updateErr: make(map[string]error),
	}
}

func (f *fakeContactStore) UpsertContact(_ context.Context, c model.Contact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.upsertErr[c.ID]; err != nil {
		return err
	}
	f.upserts[c.ID] = c
	return nil
}

func (f *fakeContactStore) CreateContacts(_ context.Context, contacts []model.Contact) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.created = append(f.created, contacts...)
	return int64(len(contacts)), nil
}

func (f *fakeContactStore) UpdateContact(_ context.Context, _, id string, patch model.ContactPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.updateErr[id]; err != nil {
		return err
	}
	f.updates[id] = patch
	return nil
}

// fakeDirectory answers existence and photo lookups from fixed maps.
type fakeDirectory struct {
	exists map[string]bool
	photos map[string]string
	err    error
}

func (f *fakeDirectory) Exists(_ context.Context, jid string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.exists[jid], nil
}

func (f *fakeDirectory) ProfilePhotoURL(_ context.Context, jid string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.photos[jid], nil
}

// fakeSink collects emitted notifications.
type fakeSink struct {
	mu     sync.Mutex
	events []sinkCall
}

type sinkCall struct {
	event     string
	sessionID string
	status    Status
	message   string
}

func (f *fakeSink) Emit(_ context.Context, event, sessionID string, _ any, status Status, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, sinkCall{event, sessionID, status, message})
}

func (f *fakeSink) calls(event string) []sinkCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sinkCall
	for _, c := range f.events {
		if c.event == event {
			out = append(out, c)
		}
	}
	return out
}

func newContactHandler(store *fakeContactStore, dir Directory, sink Sink) (*ContactHandler, *events.Stream) {
	stream := events.NewStream(testutil.TestLogger())
	h := NewContactHandler("S1", store, dir, sink, stream, testutil.TestLogger(), "")
	return h, stream
}

func TestContactHistorySetDropsUnidentifiable(t *testing.T) {
	store := newFakeContactStore()
	sink := &fakeSink{}
	h, _ := newContactHandler(store, &fakeDirectory{}, sink)

	h.HistorySet(context.Background(), []events.RawContact{
		{ID: "a@s.whatsapp.net", Name: strPtr("Alice")},
		{JID: "b@s.whatsapp.net"},
		{Name: strPtr("no identity")},
	})

	assert.Len(t, store.upserts, 2)
	assert.Contains(t, store.upserts, "a@s.whatsapp.net")
	assert.Contains(t, store.upserts, "b@s.whatsapp.net")

	calls := sink.calls(NotifyContactsSet)
	require.Len(t, calls, 1)
	assert.Equal(t, StatusSuccess, calls[0].status)
	assert.Equal(t, "S1", calls[0].sessionID)
}

func TestContactHistorySetEnrichesPhotos(t *testing.T) {
	store := newFakeContactStore()
	dir := &fakeDirectory{
		exists: map[string]bool{"a@s.whatsapp.net": true},
		photos: map[string]string{"a@s.whatsapp.net": "https://cdn.example/a.jpg"},
	}
	h, _ := newContactHandler(store, dir, &fakeSink{})

	stale := "https://cdn.example/stale.jpg"
	h.HistorySet(context.Background(), []events.RawContact{
		{ID: "a@s.whatsapp.net"},
		{ID: "gone@s.whatsapp.net", ImgURL: &stale},
	})

	require.Contains(t, store.upserts, "a@s.whatsapp.net")
	require.NotNil(t, store.upserts["a@s.whatsapp.net"].ImgURL)
	assert.Equal(t, "https://cdn.example/a.jpg", *store.upserts["a@s.whatsapp.net"].ImgURL)

	// Absent in the directory degrades imgUrl to null, record still saved.
	require.Contains(t, store.upserts, "gone@s.whatsapp.net")
	assert.Nil(t, store.upserts["gone@s.whatsapp.net"].ImgURL)
}

func TestContactHistorySetDirectoryFailureDegrades(t *testing.T) {
	store := newFakeContactStore()
	dir := &fakeDirectory{err: fmt.Errorf("directory unavailable")}
	h, _ := newContactHandler(store, dir, &fakeSink{})

	h.HistorySet(context.Background(), []events.RawContact{{ID: "a@s.whatsapp.net"}})

	require.Contains(t, store.upserts, "a@s.whatsapp.net")
	assert.Nil(t, store.upserts["a@s.whatsapp.net"].ImgURL)
}

func TestContactHistorySetPartialFailureStillSucceeds(t *testing.T) {
	store := newFakeContactStore()
	store.upsertErr["bad@s.whatsapp.net"] = fmt.Errorf("constraint violation")
	sink := &fakeSink{}
	h, _ := newContactHandler(store, &fakeDirectory{}, sink)

	h.HistorySet(context.Background(), []events.RawContact{
		{ID: "good@s.whatsapp.net"},
		{ID: "bad@s.whatsapp.net"},
	})

	assert.Contains(t, store.upserts, "good@s.whatsapp.net")
	calls := sink.calls(NotifyContactsSet)
	require.Len(t, calls, 1)
	assert.Equal(t, StatusSuccess, calls[0].status)
}

func TestContactHistorySetAllFailedEmitsError(t *testing.T) {
	store := newFakeContactStore()
	store.upsertErr["a@s.whatsapp.net"] = fmt.Errorf("down")
	store.upsertErr["b@s.whatsapp.net"] = fmt.Errorf("down")
	sink := &fakeSink{}
	h, _ := newContactHandler(store, &fakeDirectory{}, sink)

	h.HistorySet(context.Background(), []events.RawContact{
		{ID: "a@s.whatsapp.net"},
		{ID: "b@s.whatsapp.net"},
	})

	calls := sink.calls(NotifyContactsSet)
	require.Len(t, calls, 1)
	assert.Equal(t, StatusError, calls[0].status)
	assert.Contains(t, calls[0].message, "contacts set")
}

func TestContactUpsertSkipsDuplicates(t *testing.T) {
	store := newFakeContactStore()
	sink := &fakeSink{}
	h, _ := newContactHandler(store, &fakeDirectory{}, sink)

	h.Upsert(context.Background(), []events.RawContact{
		{ID: "a@s.whatsapp.net", Notify: strPtr("alice")},
	})

	require.Len(t, store.created, 1)
	assert.Equal(t, "a@s.whatsapp.net", store.created[0].ID)
	calls := sink.calls(NotifyContactsUpsert)
	require.Len(t, calls, 1)
	assert.Equal(t, StatusSuccess, calls[0].status)
}

func TestContactUpsertStoreFailureEmitsError(t *testing.T) {
	store := newFakeContactStore()
	store.createErr = fmt.Errorf("insert failed")
	sink := &fakeSink{}
	h, _ := newContactHandler(store, &fakeDirectory{}, sink)

	h.Upsert(context.Background(), []events.RawContact{{ID: "a@s.whatsapp.net"}})

	calls := sink.calls(NotifyContactsUpsert)
	require.Len(t, calls, 1)
	assert.Equal(t, StatusError, calls[0].status)
}

func TestContactUpdateContinuesPastNotFound(t *testing.T) {
	store := newFakeContactStore()
	store.updateErr["missing@s.whatsapp.net"] = fmt.Errorf("contact: %w", storage.ErrNotFound)
	sink := &fakeSink{}
	h, _ := newContactHandler(store, &fakeDirectory{}, sink)

	h.Update(context.Background(), []events.ContactPatch{
		{ID: "missing@s.whatsapp.net", Name: strPtr("ghost")},
		{ID: "present@s.whatsapp.net", Name: strPtr("real")},
	})

	// The not-found item is informational; the next item is still applied.
	assert.NotContains(t, store.updates, "missing@s.whatsapp.net")
	require.Contains(t, store.updates, "present@s.whatsapp.net")
	assert.Equal(t, "real", *store.updates["present@s.whatsapp.net"].Name)

	calls := sink.calls(NotifyContactsUpdate)
	require.Len(t, calls, 1)
	assert.Equal(t, StatusSuccess, calls[0].status)
}

func TestContactUpdateRealFailureEmitsErrorAndContinues(t *testing.T) {
	store := newFakeContactStore()
	store.updateErr["broken@s.whatsapp.net"] = fmt.Errorf("disk full")
	sink := &fakeSink{}
	h, _ := newContactHandler(store, &fakeDirectory{}, sink)

	h.Update(context.Background(), []events.ContactPatch{
		{ID: "broken@s.whatsapp.net"},
		{ID: "fine@s.whatsapp.net"},
	})

	assert.Contains(t, store.updates, "fine@s.whatsapp.net")
	calls := sink.calls(NotifyContactsUpdate)
	require.Len(t, calls, 2)
	assert.Equal(t, StatusError, calls[0].status)
	assert.Equal(t, StatusSuccess, calls[1].status)
}

func TestContactListenIsIdempotent(t *testing.T) {
	store := newFakeContactStore()
	h, stream := newContactHandler(store, &fakeDirectory{}, &fakeSink{})

	h.Listen()
	h.Listen() // second call must not double-register

	stream.Emit(context.Background(), events.ContactsUpsertEvent, []events.RawContact{
		{ID: "a@s.whatsapp.net"},
	})
	assert.Len(t, store.created, 1)

	h.Unlisten()
	stream.Emit(context.Background(), events.ContactsUpsertEvent, []events.RawContact{
		{ID: "b@s.whatsapp.net"},
	})
	assert.Len(t, store.created, 1)
}

func TestContactListenHandlesHistorySet(t *testing.T) {
	store := newFakeContactStore()
	h, stream := newContactHandler(store, &fakeDirectory{}, &fakeSink{})
	h.Listen()
	defer h.Unlisten()

	stream.Emit(context.Background(), events.HistorySetEvent, events.HistorySet{
		Contacts: []events.RawContact{{ID: "a@s.whatsapp.net"}},
	})
	assert.Contains(t, store.upserts, "a@s.whatsapp.net")
}

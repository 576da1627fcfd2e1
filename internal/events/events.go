// Package events defines the protocol event stream the reconciler
// subscribes to, and the explicit payload shapes delivered on it.
//
// Incoming records from the upstream source arrive with inconsistent
// identifier fields; the Raw* types enumerate the known alternates so the
// reconciler can normalize them in one place instead of shape-probing.
package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ashita-ai/renraku/internal/ctxutil"
)

// Name identifies an event on the stream.
type Name string

const (
	HistorySetEvent     Name = "messaging-history.set"
	ContactsUpsertEvent Name = "contacts.upsert"
	ContactsUpdateEvent Name = "contacts.update"
	ChatsUpsertEvent    Name = "chats.upsert"
	ChatsUpdateEvent    Name = "chats.update"
)

// RawContact is an incoming contact record. Exactly one of ID, JID,
// Number or Phone is expected to resolve to an identity; ID wins, then
// JID, then a JID derived from the raw number digits.
type RawContact struct {
	ID           string  `json:"id,omitempty"`
	JID          string  `json:"jid,omitempty"`
	Number       string  `json:"number,omitempty"`
	Phone        string  `json:"phone,omitempty"`
	Name         *string `json:"name,omitempty"`
	Notify       *string `json:"notify,omitempty"`
	VerifiedName *string `json:"verifiedName,omitempty"`
	ImgURL       *string `json:"imgUrl,omitempty"`
	Status       *string `json:"status,omitempty"`
}

// ContactPatch is an incremental contact update keyed by ID.
type ContactPatch struct {
	ID           string  `json:"id"`
	Name         *string `json:"name,omitempty"`
	Notify       *string `json:"notify,omitempty"`
	VerifiedName *string `json:"verifiedName,omitempty"`
	ImgURL       *string `json:"imgUrl,omitempty"`
	Status       *string `json:"status,omitempty"`
}

// RawChat is an incoming chat record.
type RawChat struct {
	ID                    string  `json:"id,omitempty"`
	JID                   string  `json:"jid,omitempty"`
	Name                  *string `json:"name,omitempty"`
	UnreadCount           int32   `json:"unreadCount"`
	ConversationTimestamp int64   `json:"conversationTimestamp"`
}

// ChatPatch is an incremental chat update keyed by ID.
type ChatPatch struct {
	ID                    string  `json:"id"`
	Name                  *string `json:"name,omitempty"`
	UnreadCount           *int32  `json:"unreadCount,omitempty"`
	ConversationTimestamp *int64  `json:"conversationTimestamp,omitempty"`
}

// HistorySet is a snapshot batch. It may cover only a subset of the
// tenant's entities; consumers must merge, never delete by absence.
type HistorySet struct {
	Contacts []RawContact `json:"contacts"`
	Chats    []RawChat    `json:"chats"`
}

// Handler receives one event payload. Dispatch is synchronous; handlers
// own their internal concurrency.
type Handler func(ctx context.Context, payload any)

// Subscription is a handle for one registered handler.
type Subscription struct {
	stream *Stream
	name   Name
	id     int
}

// Cancel removes the handler from the stream. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s == nil || s.stream == nil {
		return
	}
	s.stream.mu.Lock()
	delete(s.stream.handlers[s.name], s.id)
	s.stream.mu.Unlock()
	s.stream = nil
}

// Stream is an in-process event dispatcher.
type Stream struct {
	logger *slog.Logger

	mu       sync.RWMutex
	nextID   int
	handlers map[Name]map[int]Handler
}

// NewStream creates an empty event stream.
func NewStream(logger *slog.Logger) *Stream {
	return &Stream{
		logger:   logger,
		handlers: make(map[Name]map[int]Handler),
	}
}

// Subscribe registers a handler for an event and returns its subscription.
func (s *Stream) Subscribe(name Name, h Handler) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handlers[name] == nil {
		s.handlers[name] = make(map[int]Handler)
	}
	s.nextID++
	s.handlers[name][s.nextID] = h
	return &Subscription{stream: s, name: name, id: s.nextID}
}

// Emit delivers payload to every handler registered for name, in sequence.
// A panicking handler is recovered and logged so one bad handler cannot
// take down the dispatcher. Every delivery for one Emit shares a
// correlation id.
func (s *Stream) Emit(ctx context.Context, name Name, payload any) {
	ctx, _ = ctxutil.EnsureCorrelationID(ctx)

	s.mu.RLock()
	hs := make([]Handler, 0, len(s.handlers[name]))
	for _, h := range s.handlers[name] {
		hs = append(hs, h)
	}
	s.mu.RUnlock()

	for _, h := range hs {
		s.dispatch(ctx, name, h, payload)
	}
}

func (s *Stream) dispatch(ctx context.Context, name Name, h Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("events: handler panic", "event", string(name), "panic", r)
		}
	}()
	h(ctx, payload)
}

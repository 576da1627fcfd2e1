package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/renraku/internal/events"
	"github.com/ashita-ai/renraku/internal/model"
	"github.com/ashita-ai/renraku/internal/storage"
)

// ChatStore is the slice of the storage layer the chat handler needs.
// *storage.DB satisfies it.
type ChatStore interface {
	UpsertChat(ctx context.Context, c model.Chat) error
	CreateChats(ctx context.Context, chats []model.Chat) (int64, error)
	UpdateChat(ctx context.Context, sessionID, id string, patch model.ChatPatch) error
	ResetUnreadCount(ctx context.Context, sessionID, id string) error
}

// ChatHandler reconciles chat events for one tenant.
type ChatHandler struct {
	sessionID string
	store     ChatStore
	sink      Sink
	stream    *events.Stream
	logger    *slog.Logger
	tracer    trace.Tracer

	mu        sync.Mutex
	listening bool
	subs      []*events.Subscription
}

// NewChatHandler wires a chat handler.
func NewChatHandler(sessionID string, store ChatStore, sink Sink, stream *events.Stream, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		sessionID: sessionID,
		store:     store,
		sink:      sink,
		stream:    stream,
		logger:    logger,
		tracer:    otel.Tracer("renraku/reconcile"),
	}
}

// Listen registers the handler on the event stream. Idempotent.
func (h *ChatHandler) Listen() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listening {
		return
	}
	h.subs = []*events.Subscription{
		h.stream.Subscribe(events.HistorySetEvent, func(ctx context.Context, payload any) {
			if set, ok := payload.(events.HistorySet); ok {
				h.HistorySet(ctx, set.Chats)
			}
		}),
		h.stream.Subscribe(events.ChatsUpsertEvent, func(ctx context.Context, payload any) {
			if chats, ok := payload.([]events.RawChat); ok {
				h.Upsert(ctx, chats)
			}
		}),
		h.stream.Subscribe(events.ChatsUpdateEvent, func(ctx context.Context, payload any) {
			if updates, ok := payload.([]events.ChatPatch); ok {
				h.Update(ctx, updates)
			}
		}),
	}
	h.listening = true
}

// Unlisten removes the handler from the stream. No-op when not listening.
func (h *ChatHandler) Unlisten() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.listening {
		return
	}
	for _, sub := range h.subs {
		sub.Cancel()
	}
	h.subs = nil
	h.listening = false
}

// HistorySet merges a chat snapshot batch. Existing rows win (snapshots
// may be stale relative to live incremental updates already applied);
// unknown chats are inserted.
func (h *ChatHandler) HistorySet(ctx context.Context, raws []events.RawChat) {
	ctx, span := h.tracer.Start(ctx, "chats.history-set")
	defer span.End()

	chats := make([]model.Chat, 0, len(raws))
	droppedCount := 0
	for _, raw := range raws {
		c, ok := normalizeChat(raw, h.sessionID)
		if !ok {
			droppedCount++
			continue
		}
		chats = append(chats, c)
	}

	inserted, err := h.store.CreateChats(ctx, chats)
	if err != nil {
		h.logger.Error("reconcile: error during chats set",
			"session_id", h.sessionID, "error", err)
		h.sink.Emit(ctx, NotifyChatsSet, h.sessionID, nil, StatusError,
			fmt.Sprintf("an error occurred during chats set: %v", err))
		return
	}

	h.logger.Info("reconcile: chats synced",
		"session_id", h.sessionID,
		"received", len(raws),
		"saved", len(chats),
		"dropped", droppedCount,
		"inserted", inserted,
	)
	span.SetAttributes(
		attribute.Int("chats.received", len(raws)),
		attribute.Int("chats.dropped", droppedCount),
	)
	h.sink.Emit(ctx, NotifyChatsSet, h.sessionID,
		map[string]any{"chats": chats}, StatusSuccess, "")
}

// Upsert inserts or replaces chats from incremental updates.
func (h *ChatHandler) Upsert(ctx context.Context, raws []events.RawChat) {
	if len(raws) == 0 {
		return
	}
	ctx, span := h.tracer.Start(ctx, "chats.upsert")
	defer span.End()

	applied := make([]model.Chat, 0, len(raws))
	for _, raw := range raws {
		c, ok := normalizeChat(raw, h.sessionID)
		if !ok {
			h.logger.Warn("reconcile: dropped chat missing id/jid", "session_id", h.sessionID)
			continue
		}
		if err := h.store.UpsertChat(ctx, c); err != nil {
			h.logger.Error("reconcile: error during chat upsert",
				"session_id", h.sessionID, "id", c.ID, "error", err)
			h.sink.Emit(ctx, NotifyChatsUpsert, h.sessionID, nil, StatusError,
				fmt.Sprintf("an error occurred during chat upsert: %v", err))
			continue
		}
		applied = append(applied, c)
	}

	span.SetAttributes(attribute.Int("chats.received", len(raws)))
	if len(applied) > 0 {
		h.sink.Emit(ctx, NotifyChatsUpsert, h.sessionID,
			map[string]any{"chats": applied}, StatusSuccess, "")
	}
}

// Update applies partial patches item by item; not-found rows are
// informational and never stop the remaining items.
func (h *ChatHandler) Update(ctx context.Context, updates []events.ChatPatch) {
	ctx, span := h.tracer.Start(ctx, "chats.update")
	defer span.End()

	for _, u := range updates {
		if u.ID == "" {
			h.logger.Warn("reconcile: chat update without id", "session_id", h.sessionID)
			continue
		}
		patch := model.ChatPatch{
			Name:                  u.Name,
			UnreadCount:           u.UnreadCount,
			ConversationTimestamp: u.ConversationTimestamp,
		}
		err := h.store.UpdateChat(ctx, h.sessionID, u.ID, patch)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				h.logger.Info("reconcile: update for non-existent chat",
					"session_id", h.sessionID, "id", u.ID)
				continue
			}
			h.logger.Error("reconcile: error during chat update",
				"session_id", h.sessionID, "id", u.ID, "error", err)
			h.sink.Emit(ctx, NotifyChatsUpdate, h.sessionID, nil, StatusError,
				fmt.Sprintf("an error occurred during chat update: %v", err))
			continue
		}
		h.sink.Emit(ctx, NotifyChatsUpdate, h.sessionID,
			map[string]any{"chat": u}, StatusSuccess, "")
	}
}

// MarkChatRead resets a chat's unread count to zero after the consumer
// reads it. A missing chat is informational.
func (h *ChatHandler) MarkChatRead(ctx context.Context, jid string) error {
	err := h.store.ResetUnreadCount(ctx, h.sessionID, jid)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.logger.Info("reconcile: mark-read for non-existent chat",
				"session_id", h.sessionID, "id", jid)
			return nil
		}
		return fmt.Errorf("reconcile: mark chat read: %w", err)
	}
	return nil
}

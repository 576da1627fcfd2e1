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
	"github.com/ashita-ai/renraku/internal/settle"
	"github.com/ashita-ai/renraku/internal/storage"
)

// ContactStore is the slice of the storage layer the contact handler
// needs. *storage.DB satisfies it.
type ContactStore interface {
	UpsertContact(ctx context.Context, c model.Contact) error
	CreateContacts(ctx context.Context, contacts []model.Contact) (int64, error)
	UpdateContact(ctx context.Context, sessionID, id string, patch model.ContactPatch) error
}

// ContactHandler reconciles contact events for one tenant.
type ContactHandler struct {
	sessionID   string
	store       ContactStore
	directory   Directory
	sink        Sink
	stream      *events.Stream
	logger      *slog.Logger
	tracer      trace.Tracer
	countryCode string

	mu        sync.Mutex
	listening bool
	subs      []*events.Subscription
}

// NewContactHandler wires a contact handler. countryCode is used only for
// the derived-number identity fallback; pass "" to accept the default.
func NewContactHandler(sessionID string, store ContactStore, directory Directory, sink Sink, stream *events.Stream, logger *slog.Logger, countryCode string) *ContactHandler {
	if countryCode == "" {
		countryCode = "62"
	}
	return &ContactHandler{
		sessionID:   sessionID,
		store:       store,
		directory:   directory,
		sink:        sink,
		stream:      stream,
		logger:      logger,
		tracer:      otel.Tracer("renraku/reconcile"),
		countryCode: countryCode,
	}
}

// Listen registers the handler on the event stream. Idempotent: a second
// call while already listening is a no-op.
func (h *ContactHandler) Listen() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listening {
		return
	}
	h.subs = []*events.Subscription{
		h.stream.Subscribe(events.HistorySetEvent, func(ctx context.Context, payload any) {
			if set, ok := payload.(events.HistorySet); ok {
				h.HistorySet(ctx, set.Contacts)
			}
		}),
		h.stream.Subscribe(events.ContactsUpsertEvent, func(ctx context.Context, payload any) {
			if contacts, ok := payload.([]events.RawContact); ok {
				h.Upsert(ctx, contacts)
			}
		}),
		h.stream.Subscribe(events.ContactsUpdateEvent, func(ctx context.Context, payload any) {
			if updates, ok := payload.([]events.ContactPatch); ok {
				h.Update(ctx, updates)
			}
		}),
	}
	h.listening = true
}

// Unlisten removes the handler from the stream. No-op when not listening.
func (h *ContactHandler) Unlisten() {
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

// HistorySet applies a contact snapshot batch. Records that cannot be
// normalized to a non-empty identity are dropped and counted; the rest
// are enriched with a best-effort profile photo lookup and upserted
// independently. A snapshot is a merge, never an authoritative set.
func (h *ContactHandler) HistorySet(ctx context.Context, raws []events.RawContact) {
	ctx, span := h.tracer.Start(ctx, "contacts.history-set")
	defer span.End()

	contacts := make([]model.Contact, 0, len(raws))
	var dropped []events.RawContact
	for _, raw := range raws {
		c, ok := normalizeContact(raw, h.sessionID, h.countryCode, h.logger)
		if !ok {
			dropped = append(dropped, raw)
			continue
		}
		contacts = append(contacts, c)
	}

	// Enrichment fan-out: existence check, then photo URL. Either lookup
	// failing degrades imgUrl to null; it never drops the record.
	var enrich settle.Group
	for i := range contacts {
		enrich.Go(func() error {
			h.enrichPhoto(ctx, &contacts[i])
			return nil
		})
	}
	enrich.Wait()

	h.logger.Info("reconcile: contacts prepared",
		"session_id", h.sessionID,
		"received", len(raws),
		"saved", len(contacts),
		"dropped", len(dropped),
	)
	if len(dropped) > 0 {
		h.logger.Warn("reconcile: dropped contacts missing id/jid",
			"session_id", h.sessionID,
			"samples", sampleContacts(dropped, failureSample),
		)
	}

	var apply settle.Group
	for _, c := range contacts {
		apply.Go(func() error {
			return h.store.UpsertContact(ctx, c)
		})
	}
	failed := settle.Failed(apply.Wait())
	if len(failed) > 0 {
		h.logger.Error("reconcile: some contact upserts failed",
			"session_id", h.sessionID,
			"failed", len(failed),
			"reasons", errorStrings(failed, failureSample),
		)
	}

	span.SetAttributes(
		attribute.Int("contacts.received", len(raws)),
		attribute.Int("contacts.saved", len(contacts)),
		attribute.Int("contacts.dropped", len(dropped)),
		attribute.Int("contacts.failed", len(failed)),
	)

	if len(contacts) > 0 && len(failed) == len(contacts) {
		h.sink.Emit(ctx, NotifyContactsSet, h.sessionID, nil, StatusError,
			fmt.Sprintf("an error occurred during contacts set: all %d upserts failed", len(failed)))
		return
	}

	h.logger.Info("reconcile: synced contacts", "session_id", h.sessionID, "count", len(contacts))
	h.sink.Emit(ctx, NotifyContactsSet, h.sessionID,
		map[string]any{"contacts": contacts}, StatusSuccess, "")
}

// Upsert inserts new contacts, skipping rows that already exist
// (first write wins, no error on duplicates).
func (h *ContactHandler) Upsert(ctx context.Context, raws []events.RawContact) {
	if len(raws) == 0 {
		return
	}
	ctx, span := h.tracer.Start(ctx, "contacts.upsert")
	defer span.End()

	contacts := make([]model.Contact, 0, len(raws))
	droppedCount := 0
	for _, raw := range raws {
		c, ok := normalizeContact(raw, h.sessionID, h.countryCode, h.logger)
		if !ok {
			droppedCount++
			continue
		}
		contacts = append(contacts, c)
	}
	if droppedCount > 0 {
		h.logger.Warn("reconcile: dropped contacts missing id/jid on upsert",
			"session_id", h.sessionID, "dropped", droppedCount)
	}

	inserted, err := h.store.CreateContacts(ctx, contacts)
	if err != nil {
		h.logger.Error("reconcile: error during contacts upsert",
			"session_id", h.sessionID, "error", err)
		h.sink.Emit(ctx, NotifyContactsUpsert, h.sessionID, nil, StatusError,
			fmt.Sprintf("an error occurred during contacts upsert: %v", err))
		return
	}

	h.logger.Info("reconcile: contacts upserted",
		"session_id", h.sessionID, "received", len(raws), "inserted", inserted)
	span.SetAttributes(attribute.Int("contacts.received", len(raws)))
	h.sink.Emit(ctx, NotifyContactsUpsert, h.sessionID,
		map[string]any{"contacts": contacts}, StatusSuccess, "")
}

// Update applies partial patches item by item. A not-found row is
// informational and never stops the remaining items from being processed.
func (h *ContactHandler) Update(ctx context.Context, updates []events.ContactPatch) {
	ctx, span := h.tracer.Start(ctx, "contacts.update")
	defer span.End()

	for _, u := range updates {
		if u.ID == "" {
			h.logger.Warn("reconcile: contact update without id", "session_id", h.sessionID)
			continue
		}
		patch := model.ContactPatch{
			Name:         u.Name,
			Notify:       u.Notify,
			VerifiedName: u.VerifiedName,
			ImgURL:       u.ImgURL,
			Status:       u.Status,
		}
		err := h.store.UpdateContact(ctx, h.sessionID, u.ID, patch)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				h.logger.Info("reconcile: update for non-existent contact",
					"session_id", h.sessionID, "id", u.ID)
				continue
			}
			h.logger.Error("reconcile: error during contact update",
				"session_id", h.sessionID, "id", u.ID, "error", err)
			h.sink.Emit(ctx, NotifyContactsUpdate, h.sessionID, nil, StatusError,
				fmt.Sprintf("an error occurred during contact update: %v", err))
			continue
		}
		h.sink.Emit(ctx, NotifyContactsUpdate, h.sessionID,
			map[string]any{"contact": u}, StatusSuccess, "")
	}
}

// enrichPhoto fills in the contact's image URL when the jid exists in the
// remote directory. Both lookups are best-effort.
func (h *ContactHandler) enrichPhoto(ctx context.Context, c *model.Contact) {
	exists, err := h.directory.Exists(ctx, c.ID)
	if err != nil || !exists {
		c.ImgURL = nil
		return
	}
	url, err := h.directory.ProfilePhotoURL(ctx, c.ID)
	if err != nil || url == "" {
		c.ImgURL = nil
		return
	}
	c.ImgURL = &url
}

func sampleContacts(raws []events.RawContact, n int) []events.RawContact {
	if len(raws) <= n {
		return raws
	}
	return raws[:n]
}

func errorStrings(errs []error, n int) []string {
	if len(errs) > n {
		errs = errs[:n]
	}
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}

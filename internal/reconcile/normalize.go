package reconcile

import (
	"log/slog"
	"strings"

	"github.com/ashita-ai/renraku/internal/events"
	"github.com/ashita-ai/renraku/internal/model"
)

// userJIDSuffix is the server part of a user messaging address.
const userJIDSuffix = "@s.whatsapp.net"

// jidFromNumber derives a user JID from a raw phone number by keeping the
// digits and replacing a leading zero with the configured country code.
// This is a fallback enrichment, not something upstream data may rely on;
// callers log its use.
func jidFromNumber(num, countryCode string) string {
	var digits strings.Builder
	for _, r := range num {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if d == "" {
		return ""
	}
	if strings.HasPrefix(d, "0") {
		d = countryCode + d[1:]
	}
	return d + userJIDSuffix
}

// resolveContactID normalizes the identity of an incoming contact record.
// The enumerated cases, in order: explicit id, alternate jid field, JID
// derived from a raw number. The returned bool reports whether the
// derived-number fallback was used.
func resolveContactID(raw events.RawContact, countryCode string) (string, bool) {
	switch {
	case raw.ID != "":
		return raw.ID, false
	case raw.JID != "":
		return raw.JID, false
	case raw.Number != "":
		return jidFromNumber(raw.Number, countryCode), true
	case raw.Phone != "":
		return jidFromNumber(raw.Phone, countryCode), true
	default:
		return "", false
	}
}

// normalizeContact converts a raw record into a persistable contact, or
// returns ok=false when no identity can be resolved. Records are never
// persisted with an empty identity.
func normalizeContact(raw events.RawContact, sessionID, countryCode string, logger *slog.Logger) (model.Contact, bool) {
	id, derived := resolveContactID(raw, countryCode)
	if id == "" {
		return model.Contact{}, false
	}
	if derived {
		logger.Warn("reconcile: derived contact jid from raw number (fallback)",
			"session_id", sessionID, "id", id)
	}
	return model.Contact{
		SessionID:    sessionID,
		ID:           id,
		Name:         raw.Name,
		Notify:       raw.Notify,
		VerifiedName: raw.VerifiedName,
		ImgURL:       raw.ImgURL,
		Status:       raw.Status,
	}, true
}

// normalizeChat converts a raw chat into a persistable chat, or returns
// ok=false when no identity can be resolved. Negative unread counts are
// floored to zero.
func normalizeChat(raw events.RawChat, sessionID string) (model.Chat, bool) {
	id := raw.ID
	if id == "" {
		id = raw.JID
	}
	if id == "" {
		return model.Chat{}, false
	}
	unread := raw.UnreadCount
	if unread < 0 {
		unread = 0
	}
	return model.Chat{
		SessionID:             sessionID,
		ID:                    id,
		Name:                  raw.Name,
		UnreadCount:           unread,
		ConversationTimestamp: raw.ConversationTimestamp,
	}, true
}

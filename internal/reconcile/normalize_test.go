package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/renraku/internal/events"
	"github.com/ashita-ai/renraku/internal/testutil"
)

func TestJIDFromNumber(t *testing.T) {
	tests := []struct {
		name   string
		num    string
		expect string
	}{
		{"plain digits", "628123456789", "628123456789@s.whatsapp.net"},
		{"formatted", "+62 812-3456-789", "628123456789@s.whatsapp.net"},
		{"leading zero gets country code", "08123456789", "628123456789@s.whatsapp.net"},
		{"no digits", "n/a", ""},
		{"empty", "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, jidFromNumber(tc.num, "62"))
		})
	}
}

func TestResolveContactID(t *testing.T) {
	tests := []struct {
		name    string
		raw     events.RawContact
		expect  string
		derived bool
	}{
		{"id wins", events.RawContact{ID: "a@s.whatsapp.net", JID: "b@s.whatsapp.net"}, "a@s.whatsapp.net", false},
		{"jid fallback", events.RawContact{JID: "b@s.whatsapp.net", Number: "0812"}, "b@s.whatsapp.net", false},
		{"number derives", events.RawContact{Number: "0812"}, "62812@s.whatsapp.net", true},
		{"phone derives", events.RawContact{Phone: "62813"}, "62813@s.whatsapp.net", true},
		{"nothing resolves", events.RawContact{Name: strPtr("anonymous")}, "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			id, derived := resolveContactID(tc.raw, "62")
			assert.Equal(t, tc.expect, id)
			assert.Equal(t, tc.derived, derived)
		})
	}
}

func TestNormalizeContactRejectsEmptyIdentity(t *testing.T) {
	_, ok := normalizeContact(events.RawContact{Name: strPtr("ghost")}, "S1", "62", testutil.TestLogger())
	assert.False(t, ok)

	c, ok := normalizeContact(events.RawContact{ID: "x@s.whatsapp.net"}, "S1", "62", testutil.TestLogger())
	assert.True(t, ok)
	assert.Equal(t, "S1", c.SessionID)
	assert.Equal(t, "x@s.whatsapp.net", c.ID)
}

func TestNormalizeChatFloorsNegativeUnread(t *testing.T) {
	c, ok := normalizeChat(events.RawChat{JID: "g@g.us", UnreadCount: -5}, "S1")
	assert.True(t, ok)
	assert.Equal(t, "g@g.us", c.ID)
	assert.EqualValues(t, 0, c.UnreadCount)

	_, ok = normalizeChat(events.RawChat{Name: strPtr("orphan")}, "S1")
	assert.False(t, ok)
}

func strPtr(s string) *string { return &s }

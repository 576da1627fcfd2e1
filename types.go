package renraku

// Public event and notification types. These are standalone structs with
// no internal imports so embedding consumers never depend on internal
// packages; conversion helpers live in renraku.go.

// Contact is an incoming contact record. Exactly one of ID, JID, Number
// or Phone is expected to resolve to an identity; ID wins, then JID, then
// a JID derived from the raw number digits.
type Contact struct {
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

// ContactUpdate is an incremental contact patch keyed by ID.
type ContactUpdate struct {
	ID           string  `json:"id"`
	Name         *string `json:"name,omitempty"`
	Notify       *string `json:"notify,omitempty"`
	VerifiedName *string `json:"verifiedName,omitempty"`
	ImgURL       *string `json:"imgUrl,omitempty"`
	Status       *string `json:"status,omitempty"`
}

// Chat is an incoming chat record.
type Chat struct {
	ID                    string  `json:"id,omitempty"`
	JID                   string  `json:"jid,omitempty"`
	Name                  *string `json:"name,omitempty"`
	UnreadCount           int32   `json:"unreadCount"`
	ConversationTimestamp int64   `json:"conversationTimestamp"`
}

// ChatUpdate is an incremental chat patch keyed by ID.
type ChatUpdate struct {
	ID                    string  `json:"id"`
	Name                  *string `json:"name,omitempty"`
	UnreadCount           *int32  `json:"unreadCount,omitempty"`
	ConversationTimestamp *int64  `json:"conversationTimestamp,omitempty"`
}

// HistorySnapshot is a snapshot batch. It may cover only a subset of the
// tenant's entities; it is merged, never treated as an authoritative set.
type HistorySnapshot struct {
	Contacts []Contact `json:"contacts"`
	Chats    []Chat    `json:"chats"`
}

// NotificationStatus marks a notification as a success or error report.
type NotificationStatus string

const (
	NotificationSuccess NotificationStatus = "success"
	NotificationError   NotificationStatus = "error"
)

// Notification is one reconciler outcome delivered to consumers.
type Notification struct {
	ID        string             `json:"id"`
	Event     string             `json:"event"`
	SessionID string             `json:"sessionId"`
	Status    NotificationStatus `json:"status"`
	Message   string             `json:"message,omitempty"`
	Data      any                `json:"data,omitempty"`
}

package model

// Chat is one conversation for a tenant. UnreadCount is never negative;
// the reconciliation layer's only mutation to zero is the mark-read reset.
type Chat struct {
	PkID                  int64   `json:"pkId"`
	SessionID             string  `json:"sessionId"`
	ID                    string  `json:"id"`
	Name                  *string `json:"name,omitempty"`
	UnreadCount           int32   `json:"unreadCount"`
	ConversationTimestamp int64   `json:"conversationTimestamp"`
}

// ChatPatch is a partial update applied to an existing chat.
type ChatPatch struct {
	Name                  *string
	UnreadCount           *int32
	ConversationTimestamp *int64
}

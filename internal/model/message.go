package model

import "github.com/ashita-ai/renraku/internal/codec"

// MessageKey identifies a message within a conversation.
type MessageKey struct {
	RemoteJID   string  `json:"remoteJid"`
	FromMe      bool    `json:"fromMe"`
	ID          string  `json:"id"`
	Participant *string `json:"participant,omitempty"`
}

// Message is a stored message. Data holds the full protocol message as a
// decoded value tree (binary payloads as []byte); it is opaque to this
// layer beyond the key and timestamp.
type Message struct {
	PkID             int64          `json:"pkId"`
	SessionID        string         `json:"sessionId"`
	RemoteJID        string         `json:"remoteJid"`
	ID               string         `json:"id"`
	Key              MessageKey     `json:"key"`
	MessageTimestamp int64          `json:"messageTimestamp"`
	Data             map[string]any `json:"-"`
}

// Transport returns the message body in JSON-transport-safe shape: binary
// payloads as byte-value arrays and wide integers as decimal strings.
func (m Message) Transport() map[string]any {
	if m.Data == nil {
		return nil
	}
	return codec.Serialize(m.Data, true)
}

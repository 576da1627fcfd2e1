package model

// GroupMetadata is cached group state for a tenant. It is maintained
// best-effort by collaborators outside this core and is wiped alongside
// the other tables on corruption recovery.
type GroupMetadata struct {
	PkID      int64          `json:"pkId"`
	SessionID string         `json:"sessionId"`
	ID        string         `json:"id"`
	Subject   *string        `json:"subject,omitempty"`
	Data      map[string]any `json:"-"`
}

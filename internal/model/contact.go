// Package model defines the tenant-scoped entities persisted by the
// storage layer. Every entity is keyed by (session_id, id); session_id
// partitions tenants and never crosses a query boundary.
package model

// Contact is an address-book entry for one tenant.
// ID is always a resolvable messaging address (JID); records without one
// are dropped at the reconciliation boundary, never persisted.
type Contact struct {
	PkID         int64   `json:"pkId"`
	SessionID    string  `json:"sessionId"`
	ID           string  `json:"id"`
	Name         *string `json:"name,omitempty"`
	Notify       *string `json:"notify,omitempty"`
	VerifiedName *string `json:"verifiedName,omitempty"`
	ImgURL       *string `json:"imgUrl,omitempty"`
	Status       *string `json:"status,omitempty"`
}

// ContactPatch is a partial update applied to an existing contact.
// Nil fields are left untouched. ID and SessionID are immutable keys.
type ContactPatch struct {
	Name         *string
	Notify       *string
	VerifiedName *string
	ImgURL       *string
	Status       *string
}

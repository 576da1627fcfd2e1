// Package integrity defines the typed signal for unrecoverable decryption
// failures ("Bad MAC"). Stored key material that no longer matches the
// remote counterpart's state surfaces as this error, and the only valid
// response is a full tenant wipe followed by re-authentication.
package integrity

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBadMAC indicates stored session keys failed message authentication.
var ErrBadMAC = errors.New("bad mac: session key material is corrupt")

// badMACMarker is the free-text signature emitted by cryptographic layers
// that predate the typed error. Kept as a fallback for errors that crossed
// a serialization boundary and lost their type.
const badMACMarker = "Bad MAC"

// Wrap annotates err with key context while keeping it recognizable as a
// Bad MAC failure when it already is one.
func Wrap(err error, sessionID, id string) error {
	return fmt.Errorf("session %s key %s: %w", sessionID, id, err)
}

// IsBadMAC reports whether err carries the integrity-failure signal, either
// as the typed sentinel or as the legacy message marker.
func IsBadMAC(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBadMAC) {
		return true
	}
	return strings.Contains(err.Error(), badMACMarker)
}

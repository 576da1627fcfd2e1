package keystore

import "strings"

// MapID derives the storage id for a raw key id. Slashes and colons are
// illegal in the external namespace; the mapping is one-directional and
// deterministic, so the same logical id always lands on the same row.
func MapID(raw string) string {
	return strings.NewReplacer("/", "__", ":", "-").Replace(raw)
}

package keystore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"creds", "creds"},
		{"session-123", "session-123"},
		{"app-state-sync-key-AAAA/BBBB", "app-state-sync-key-AAAA__BBBB"},
		{"sender-key-1234:0", "sender-key-1234-0"},
		{"a/b:c/d", "a__b-c__d"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MapID(tt.in), "MapID(%q)", tt.in)
	}
}

func TestMapIDDeterministic(t *testing.T) {
	assert.Equal(t, MapID("x/y:z"), MapID("x/y:z"))
}

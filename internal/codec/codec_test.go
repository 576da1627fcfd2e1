package codec

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"string", "hello", "hello"},
		{"int64", map[string]any{"n": int64(9007199254740993)}, map[string]any{"n": int64(9007199254740993)}},
		{"float", map[string]any{"f": 1.5}, map[string]any{"f": 1.5}},
		{
			"bytes",
			map[string]any{"key": []byte{0x00, 0x01, 0xff}},
			map[string]any{"key": []byte{0x00, 0x01, 0xff}},
		},
		{
			"nested",
			map[string]any{
				"keyData":   []byte("secret"),
				"timestamp": int64(1700000000000),
				"fingerprint": map[string]any{
					"rawId":         int64(42),
					"deviceIndexes": []any{int64(0), int64(1)},
				},
			},
			map[string]any{
				"keyData":   []byte("secret"),
				"timestamp": int64(1700000000000),
				"fingerprint": map[string]any{
					"rawId":         int64(42),
					"deviceIndexes": []any{int64(0), int64(1)},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, err := Encode(tt.in)
			require.NoError(t, err)

			got, err := Decode(text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeDistinguishesBufferFromPlainObject(t *testing.T) {
	// An object that merely contains "type" and "data" keys with other
	// values must not be mistaken for a buffer.
	text, err := Encode(map[string]any{"type": "session", "data": "plain"})
	require.NoError(t, err)

	got, err := Decode(text)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"type": "session", "data": "plain"}, got)
}

func TestDecodeEmptyBuffer(t *testing.T) {
	text, err := Encode(map[string]any{"b": []byte{}})
	require.NoError(t, err)

	got, err := Decode(text)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"b": []byte{}}, got)
}

func TestTransform(t *testing.T) {
	in := map[string]any{
		"name":       "Alice",
		"timestamp":  uint64(1700000000),
		"count":      7,
		"imgUrl":     nil,
		"registered": uint32(12345),
	}

	t.Run("removeNullable=true drops nil fields", func(t *testing.T) {
		got := Transform(in, true)
		assert.Equal(t, map[string]any{
			"name":       "Alice",
			"timestamp":  int64(1700000000),
			"count":      int64(7),
			"registered": int64(12345),
		}, got)
	})

	t.Run("removeNullable=false preserves explicit nulls", func(t *testing.T) {
		got := Transform(in, false)
		require.Contains(t, got, "imgUrl")
		assert.Nil(t, got["imgUrl"])
	})
}

func TestSerialize(t *testing.T) {
	in := map[string]any{
		"key":       []byte{1, 2, 3},
		"timestamp": int64(1700000000000),
		"name":      "Bob",
		"status":    nil,
	}

	got := Serialize(in, true)
	assert.Equal(t, []int{1, 2, 3}, got["key"])
	assert.Equal(t, "1700000000000", got["timestamp"])
	assert.Equal(t, "Bob", got["name"])
	assert.NotContains(t, got, "status")
}

func TestBytesJSONRoundTrip(t *testing.T) {
	type holder struct {
		Key Bytes `json:"key"`
	}

	text, err := Encode(map[string]any{"key": []byte("abc")})
	require.NoError(t, err)

	var h holder
	require.NoError(t, json.Unmarshal([]byte(text), &h))
	assert.Equal(t, Bytes("abc"), h.Key)
}

// Package codec converts protocol-library values to and from storage-safe
// and transport-safe encodings.
//
// Binary payloads are encoded as a tagged wrapper object
// ({"type":"Buffer","data":"<base64>"}) so they stay distinguishable from
// plain strings after a JSON round trip. Wide integers survive via
// json.Number decoding.
package codec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const bufferTag = "Buffer"

// Bytes is a byte slice that marshals to the tagged buffer form.
// Use it for struct fields holding binary key material.
type Bytes []byte

type taggedBuffer struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// MarshalJSON encodes b as {"type":"Buffer","data":"<base64>"}.
func (b Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(taggedBuffer{Type: bufferTag, Data: base64.StdEncoding.EncodeToString(b)})
}

// UnmarshalJSON accepts the tagged buffer form as well as a bare base64
// string (the form encoding/json produces for a plain []byte).
func (b *Bytes) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("codec: decode bytes: %w", err)
		}
		*b = raw
		return nil
	}
	var tagged taggedBuffer
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}
	if tagged.Type != bufferTag {
		return fmt.Errorf("codec: unexpected buffer tag %q", tagged.Type)
	}
	raw, err := base64.StdEncoding.DecodeString(tagged.Data)
	if err != nil {
		return fmt.Errorf("codec: decode bytes: %w", err)
	}
	*b = raw
	return nil
}

// Encode serializes v to the storage text form. Byte slices anywhere in the
// value tree become tagged buffer objects; everything else is plain JSON.
func Encode(v any) (string, error) {
	out, err := json.Marshal(encodeValue(v))
	if err != nil {
		return "", fmt.Errorf("codec: encode: %w", err)
	}
	return string(out), nil
}

func encodeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return taggedBuffer{Type: bufferTag, Data: base64.StdEncoding.EncodeToString(val)}
	case Bytes:
		return taggedBuffer{Type: bufferTag, Data: base64.StdEncoding.EncodeToString(val)}
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = encodeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = encodeValue(item)
		}
		return out
	default:
		return v
	}
}

// Decode parses storage text back into a value tree. Tagged buffer objects
// become []byte; integral numbers become int64, fractional ones float64.
// Decoding the JSON null literal yields a nil value and no error.
func Decode(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("codec: decode: %w", err)
	}
	return decodeValue(v)
}

func decodeValue(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		if raw, ok := taggedBufferData(val); ok {
			data, err := base64.StdEncoding.DecodeString(raw)
			if err != nil {
				return nil, fmt.Errorf("codec: decode buffer: %w", err)
			}
			return data, nil
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			decoded, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = decoded
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			decoded, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = decoded
		}
		return out, nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("codec: decode number %q: %w", val, err)
		}
		return f, nil
	default:
		return v, nil
	}
}

func taggedBufferData(m map[string]any) (string, bool) {
	if len(m) != 2 {
		return "", false
	}
	tag, ok := m["type"].(string)
	if !ok || tag != bufferTag {
		return "", false
	}
	data, ok := m["data"].(string)
	return data, ok
}

// Transform shapes a record for the relational store: wide integers
// collapse to int64 and, when removeNullable is set, nil fields are
// dropped. Message ingestion passes removeNullable=false to preserve
// explicit nulls; cached group metadata drops them.
func Transform(m map[string]any, removeNullable bool) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case nil:
			if !removeNullable {
				out[k] = nil
			}
		case uint64:
			out[k] = int64(val) //nolint:gosec // protocol timestamps fit in int64
		case int:
			out[k] = int64(val)
		case uint32:
			out[k] = int64(val)
		case json.Number:
			if i, err := val.Int64(); err == nil {
				out[k] = i
			} else if f, err := val.Float64(); err == nil {
				out[k] = f
			}
		default:
			out[k] = v
		}
	}
	return out
}

// Serialize shapes a stored record for JSON transport: byte slices become
// arrays of byte values and wide integers become decimal strings, matching
// what browser clients expect. Nullable handling follows Transform.
func Serialize(m map[string]any, removeNullable bool) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case nil:
			if !removeNullable {
				out[k] = nil
			}
		case []byte:
			arr := make([]int, len(val))
			for i, b := range val {
				arr[i] = int(b)
			}
			out[k] = arr
		case Bytes:
			arr := make([]int, len(val))
			for i, b := range val {
				arr[i] = int(b)
			}
			out[k] = arr
		case int64:
			out[k] = strconv.FormatInt(val, 10)
		case uint64:
			out[k] = strconv.FormatUint(val, 10)
		default:
			out[k] = v
		}
	}
	return out
}

package keystore

import "github.com/ashita-ai/renraku/internal/codec"

// AppStateCategory is the distinguished key category whose stored values
// are re-hydrated into the structured shape the protocol layer expects.
const AppStateCategory = "app-state-sync-key"

// AppStateSyncKeyFingerprint identifies which devices a sync key covers.
type AppStateSyncKeyFingerprint struct {
	RawID         int64   `json:"rawId"`
	CurrentIndex  int64   `json:"currentIndex"`
	DeviceIndexes []int64 `json:"deviceIndexes"`
}

// AppStateSyncKeyData is the structured form of an app-state sync key.
type AppStateSyncKeyData struct {
	KeyData     codec.Bytes                `json:"keyData"`
	Fingerprint AppStateSyncKeyFingerprint `json:"fingerprint"`
	Timestamp   int64                      `json:"timestamp"`
}

// rehydrateAppStateKey rebuilds the structured key-data shape from a
// decoded value tree. Values that are not the expected map shape pass
// through unchanged — the protocol layer owns deeper validation.
func rehydrateAppStateKey(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}

	out := &AppStateSyncKeyData{}
	if raw, ok := m["keyData"].([]byte); ok {
		out.KeyData = raw
	}
	if ts, ok := m["timestamp"].(int64); ok {
		out.Timestamp = ts
	}
	if fp, ok := m["fingerprint"].(map[string]any); ok {
		if id, ok := fp["rawId"].(int64); ok {
			out.Fingerprint.RawID = id
		}
		if idx, ok := fp["currentIndex"].(int64); ok {
			out.Fingerprint.CurrentIndex = idx
		}
		if devices, ok := fp["deviceIndexes"].([]any); ok {
			for _, d := range devices {
				if n, ok := d.(int64); ok {
					out.Fingerprint.DeviceIndexes = append(out.Fingerprint.DeviceIndexes, n)
				}
			}
		}
	}
	return out
}

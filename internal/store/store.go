// Package store provides the durable local key/value persistence layer.
// Values are opaque JSON-serializable blobs keyed by string.
package store

import (
	"encoding/json"
	"sync"
)

// KV is the persistence abstraction used by the scheduler, progress tracker,
// and syncer. Reads fall back to the caller's pre-filled default on any
// failure; writes swallow errors (persistence is a side effect of each
// mutation, never a transaction).
type KV interface {
	// Get unmarshals the stored value for key into dest and reports whether
	// a value was found and decoded.
	Get(key string, dest any) bool

	// Set stores value under key, replacing any previous value.
	Set(key string, value any)

	// Snapshot returns the raw stored values for the given keys, omitting
	// keys with no value. Used to assemble the remote sync blob.
	Snapshot(keys []string) map[string]json.RawMessage

	// Restore writes raw values back into the store, replacing existing ones.
	Restore(blob map[string]json.RawMessage)
}

// Memory is an in-memory KV, used in tests and as a fallback.
type Memory struct {
	mu     sync.RWMutex
	values map[string]json.RawMessage
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]json.RawMessage)}
}

// Get implements KV.Get.
func (m *Memory) Get(key string, dest any) bool {
	m.mu.RLock()
	raw, ok := m.values[key]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

// Set implements KV.Set.
func (m *Memory) Set(key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	m.mu.Lock()
	m.values[key] = raw
	m.mu.Unlock()
}

// Snapshot implements KV.Snapshot.
func (m *Memory) Snapshot(keys []string) map[string]json.RawMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	blob := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		if raw, ok := m.values[k]; ok {
			blob[k] = raw
		}
	}
	return blob
}

// Restore implements KV.Restore.
func (m *Memory) Restore(blob map[string]json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, raw := range blob {
		m.values[k] = raw
	}
}

package persistence

import (
	"strings"
	"sync"
)

// MemoryAdapter is a session-scoped, in-process substrate.
//
// Data lives only as long as the process; it is the fallback when no durable
// substrate is configured and the default in tests.
type MemoryAdapter struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryAdapter creates an empty in-memory adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{values: make(map[string][]byte)}
}

// Read returns the value stored under key, or ErrNotFound.
func (m *MemoryAdapter) Read(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	// Copy so callers cannot mutate stored bytes.
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Write stores value under key.
func (m *MemoryAdapter) Write(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	m.values[key] = stored
	return nil
}

// List returns all keys with the given prefix.
func (m *MemoryAdapter) List(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0)
	for k := range m.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Delete removes key. Missing keys are a no-op.
func (m *MemoryAdapter) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

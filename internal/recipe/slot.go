package recipe

import (
	"context"
	"sync"
)

// StorageKey is the durable slot holding the serialized recipe collection.
const StorageKey = "recipebox:recipes"

// Slot is a durable key-value location. Get reports ok=false for a missing key.
type Slot interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
}

// Compile-time interface checks.
var (
	_ Slot = (*MemorySlot)(nil)
	_ Slot = (*PostgresSlot)(nil)
)

// MemorySlot keeps values in process memory. Safe for concurrent access.
type MemorySlot struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemorySlot creates an empty in-memory slot.
func NewMemorySlot() *MemorySlot {
	return &MemorySlot{values: make(map[string][]byte)}
}

// Get returns a copy of the stored value.
func (m *MemorySlot) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Set stores a copy of value under key.
func (m *MemorySlot) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = append([]byte(nil), value...)
	return nil
}

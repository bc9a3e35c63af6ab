package storage

import (
	"strings"
	"sync"
)

// MemoryTier is a DurableTier that never actually persists: a plain
// in-process map. Used in tests and as the degenerate tier for
// ephemeral, never-persist deployments.
type MemoryTier struct {
	mu      sync.RWMutex
	entries map[string]string
}

var _ DurableTier = (*MemoryTier)(nil)

// NewMemoryTier creates an empty memory tier.
func NewMemoryTier() *MemoryTier {
	return &MemoryTier{entries: make(map[string]string)}
}

// Get reads the value for key.
func (t *MemoryTier) Get(key string) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	value, ok := t.entries[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

// Set writes the value for key.
func (t *MemoryTier) Set(key, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries[key] = value
	return nil
}

// Remove deletes the entry for key.
func (t *MemoryTier) Remove(key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.entries, key)
	return nil
}

// Keys lists stored keys carrying the given prefix.
func (t *MemoryTier) Keys(prefix string) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	keys := make([]string, 0, len(t.entries))
	for key := range t.entries {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Close is a no-op.
func (t *MemoryTier) Close() error {
	return nil
}

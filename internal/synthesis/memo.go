package synthesis

import (
	"context"
	"sync"
)

var _ AudioCache = (*MemoryCache)(nil)

// MemoryCache is an in-process AudioCache. When full, an arbitrary entry is
// evicted to make room.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string][]byte
	maxEntries int
}

func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 64
	}
	return &MemoryCache{entries: make(map[string][]byte), maxEntries: maxEntries}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.entries[key]
	return data, ok, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, audio []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxEntries {
		for k := range m.entries {
			delete(m.entries, k)
			break
		}
	}
	m.entries[key] = audio
	return nil
}

func (m *MemoryCache) Invalidate(context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string][]byte)
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

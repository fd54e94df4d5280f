package cache

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store. It backs dry runs and lets pipeline
// tests observe cache behaviour without touching disk.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

func memKey(stage, key string) string {
	return stage + "/" + key
}

// Get returns the payload for (stage, key).
func (s *MemoryStore) Get(_ context.Context, stage, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.entries[memKey(stage, key)]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, true, nil
}

// Set stores the payload for (stage, key).
func (s *MemoryStore) Set(_ context.Context, stage, key string, payload []byte) error {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.mu.Lock()
	s.entries[memKey(stage, key)] = cp
	s.mu.Unlock()
	return nil
}

// Len returns the number of entries held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

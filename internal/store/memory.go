package store

import (
	"context"
	"sync"
)

type memoryEntry struct {
	value   []byte
	version uint64
}

// MemoryStore KVStore 的内存实现，主要用于测试和 CLI 单机模式。
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, 0, ErrNotFound
	}
	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, entry.version, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, version uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := uint64(0)
	if entry, ok := s.entries[key]; ok {
		current = entry.version
	}
	if version != current {
		return 0, ErrConflict
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	s.entries[key] = memoryEntry{value: stored, version: current + 1}
	return current + 1, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string, version uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return ErrNotFound
	}
	if entry.version != version {
		return ErrConflict
	}
	delete(s.entries, key)
	return nil
}

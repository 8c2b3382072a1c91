package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store. Values still round-trip through JSON
// so it behaves exactly like the persistent backends in tests.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]json.RawMessage

	// FailNextSet makes the next Set return an error. Test hook for
	// persistence-failure paths.
	FailNextSet error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]json.RawMessage)}
}

func (s *MemoryStore) Get(ctx context.Context, key string, v interface{}) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, ok := s.data[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("failed to decode value for %q: %w", key, err)
	}
	return true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailNextSet != nil {
		err := s.FailNextSet
		s.FailNextSet = nil
		return err
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode value for %q: %w", key, err)
	}
	s.data[key] = raw
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[string]json.RawMessage)
	return nil
}

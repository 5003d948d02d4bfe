package kvstore

import (
	"context"
	"sync"
)

// Memory is an in-process Store. It does not survive a restart, so it is
// only suitable for tests and for callers that explicitly opt out of
// durable state.
type Memory struct {
	mu sync.RWMutex
	m  map[string][]byte
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{m: make(map[string][]byte)}
}

// Get retrieves the blob for key.
func (s *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.m[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	return cp, true, nil
}

// Set stores the blob for key.
func (s *Memory) Set(_ context.Context, key string, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = cp
	return nil
}

// Delete removes the blob for key.
func (s *Memory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

// Close is a no-op.
func (s *Memory) Close() error {
	return nil
}

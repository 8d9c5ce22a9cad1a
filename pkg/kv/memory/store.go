package memory

import (
	"context"
	"sync"

	"github.com/teknowguy/autopilot-backend/pkg/kv"
)

// Store is an in-memory implementation of kv.Store
type Store struct {
	mu     sync.RWMutex
	values map[string][]byte
	closed bool
}

// New creates a new in-memory store
func New() *Store {
	return &Store{values: make(map[string][]byte)}
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kv.ErrBackendUnavailable
	}
	s.values[key] = cloneBytes(value)
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, kv.ErrBackendUnavailable
	}
	value, ok := s.values[key]
	if !ok {
		return nil, kv.ErrNotFound
	}
	return cloneBytes(value), nil
}

func (s *Store) Del(ctx context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, kv.ErrBackendUnavailable
	}

	var deleted int64
	for _, key := range keys {
		if _, ok := s.values[key]; ok {
			delete(s.values, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) Exists(ctx context.Context, keys ...string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, kv.ErrBackendUnavailable
	}

	var count int64
	for _, key := range keys {
		if _, ok := s.values[key]; ok {
			count++
		}
	}
	return count, nil
}

func (s *Store) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, kv.ErrBackendUnavailable
	}

	result := make([][]byte, len(keys))
	for i, key := range keys {
		if value, ok := s.values[key]; ok {
			result[i] = cloneBytes(value)
		}
	}
	return result, nil
}

// MSet applies every pair under one lock
func (s *Store) MSet(ctx context.Context, pairs map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kv.ErrBackendUnavailable
	}
	for key, value := range pairs {
		s.values[key] = cloneBytes(value)
	}
	return nil
}

// Ping fails only after Close
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return kv.ErrBackendUnavailable
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.values = make(map[string][]byte)
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

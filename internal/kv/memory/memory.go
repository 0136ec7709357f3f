package memory

import (
	"context"
	"sync"

	"spesa/internal/kv"
)

// Store is an in-process kv.Store. Its contents die with the process.
type Store struct {
	mu     sync.Mutex
	values map[string]string
}

var _ kv.Store = (*Store)(nil)

func New() *Store {
	return &Store{values: make(map[string]string)}
}

// NewWithValues returns a store seeded with a copy of values.
func NewWithValues(values map[string]string) *Store {
	s := New()
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return "", kv.ErrKeyNotFound
	}
	return v, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Keys returns the number of stored keys.
func (s *Store) Keys() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}

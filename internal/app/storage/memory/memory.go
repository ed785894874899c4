package memory

import (
	"context"
	"sync"

	"github.com/R3E-Network/password_registry/internal/app/storage"
)

// Store is an in-memory KV. It is safe for concurrent use and is primarily
// intended for tests and local development.
type Store struct {
	mu     sync.RWMutex
	values map[string][]byte
}

var _ storage.KV = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{values: make(map[string][]byte)}
}

func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[string(key)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneBytes(v), nil
}

func (s *Store) Set(ctx context.Context, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[string(key)] = cloneBytes(value)
	return nil
}

// Update runs fn under the store's write lock.
func (s *Store) Update(ctx context.Context, key []byte, fn storage.UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var current []byte
	if v, ok := s.values[string(key)]; ok {
		current = cloneBytes(v)
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	s.values[string(key)] = cloneBytes(next)
	return nil
}

// Len reports how many keys are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

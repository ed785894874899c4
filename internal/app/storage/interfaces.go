package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("storage: key not found")

// KV is the durable byte store the registry persists into. Keys are scoped
// to a single deployment namespace chosen when the backend is opened.
//
// Set replaces the whole value for a key in one step: a concurrent Get sees
// either the previous value or the new one, never a partial write.
//
// Update is an atomic read-modify-write of one key, serialized against every
// other Update of that key, including ones issued by other processes sharing
// the backend. fn receives the current value (nil when the key is absent)
// and returns the value to store; an error from fn aborts without writing and
// is returned unchanged. fn may run more than once and must not have side
// effects.
type KV interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	Set(ctx context.Context, key, value []byte) error
	Update(ctx context.Context, key []byte, fn UpdateFunc) error
}

// UpdateFunc computes the next value of a key from its current value.
type UpdateFunc func(current []byte) ([]byte, error)

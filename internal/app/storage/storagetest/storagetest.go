// Package storagetest holds behaviour checks shared by every storage.KV
// backend.
package storagetest

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/password_registry/internal/app/storage"
)

// ConcurrentUpdates increments one counter through Update from perStore
// goroutines on each handle. All handles must share the same backing data;
// the final count proves no increment was lost.
func ConcurrentUpdates(t *testing.T, perStore int, handles ...storage.KV) {
	t.Helper()
	ctx := context.Background()
	key := []byte("counter")

	var wg sync.WaitGroup
	for _, kv := range handles {
		for i := 0; i < perStore; i++ {
			wg.Add(1)
			go func(kv storage.KV) {
				defer wg.Done()
				err := kv.Update(ctx, key, func(current []byte) ([]byte, error) {
					n := 0
					if current != nil {
						var err error
						if n, err = strconv.Atoi(string(current)); err != nil {
							return nil, err
						}
					}
					return []byte(strconv.Itoa(n + 1)), nil
				})
				assert.NoError(t, err)
			}(kv)
		}
	}
	wg.Wait()

	raw, err := handles[0].Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(perStore*len(handles)), string(raw))
}

// UpdateSemantics checks absent-key input, abort on error and persistence.
func UpdateSemantics(t *testing.T, kv storage.KV) {
	t.Helper()
	ctx := context.Background()
	key := []byte("update-semantics")

	require.NoError(t, kv.Update(ctx, key, func(current []byte) ([]byte, error) {
		assert.Nil(t, current, "absent key must be passed as nil")
		return []byte("v1"), nil
	}))

	abort := errors.New("abort")
	err := kv.Update(ctx, key, func(current []byte) ([]byte, error) {
		assert.Equal(t, "v1", string(current))
		return []byte("v2"), abort
	})
	assert.ErrorIs(t, err, abort)

	raw, err := kv.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(raw), "aborted update must not write")
}

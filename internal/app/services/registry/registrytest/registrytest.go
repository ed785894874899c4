// Package registrytest provides fixtures for tests that exercise the
// registry's persisted layout.
package registrytest

import (
	"context"
	"errors"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/R3E-Network/password_registry/internal/app/domain/account"
	"github.com/R3E-Network/password_registry/internal/app/services/registry"
	"github.com/R3E-Network/password_registry/internal/app/storage"
)

// SeedOwnerless writes a deployment in the ownerless layout: a version-1
// header carrying only the entries prefix, plus the given entries.
func SeedOwnerless(ctx context.Context, kv storage.KV, entries map[account.ID][]string) error {
	body, err := msgpack.Marshal(map[string]any{"entries_prefix": []byte(registry.DefaultEntriesPrefix)})
	if err != nil {
		return err
	}
	if err := kv.Set(ctx, []byte(registry.StateKey), append([]byte{registry.SchemaOwnerless}, body...)); err != nil {
		return err
	}
	for id, values := range entries {
		raw, err := msgpack.Marshal(values)
		if err != nil {
			return err
		}
		key := append([]byte(registry.DefaultEntriesPrefix), string(id)...)
		if err := kv.Set(ctx, key, append([]byte{1}, raw...)); err != nil {
			return err
		}
	}
	return nil
}

// ErrInjected is returned by FlakyKV when a failure is armed.
var ErrInjected = errors.New("registrytest: injected storage failure")

// FlakyKV wraps a KV and fails the next Get or write when armed. Set and
// Update both count as writes.
type FlakyKV struct {
	storage.KV

	mu      sync.Mutex
	failSet bool
	failGet bool
	sets    int
}

// NewFlakyKV wraps kv.
func NewFlakyKV(kv storage.KV) *FlakyKV {
	return &FlakyKV{KV: kv}
}

// FailNextSet arms a single Set or Update failure.
func (f *FlakyKV) FailNextSet() {
	f.mu.Lock()
	f.failSet = true
	f.mu.Unlock()
}

// FailNextGet arms a single Get failure.
func (f *FlakyKV) FailNextGet() {
	f.mu.Lock()
	f.failGet = true
	f.mu.Unlock()
}

// Sets reports how many Set and Update calls reached the wrapped store.
func (f *FlakyKV) Sets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets
}

func (f *FlakyKV) Get(ctx context.Context, key []byte) ([]byte, error) {
	f.mu.Lock()
	fail := f.failGet
	f.failGet = false
	f.mu.Unlock()
	if fail {
		return nil, ErrInjected
	}
	return f.KV.Get(ctx, key)
}

func (f *FlakyKV) Set(ctx context.Context, key, value []byte) error {
	if !f.takeWrite() {
		return ErrInjected
	}
	return f.KV.Set(ctx, key, value)
}

func (f *FlakyKV) Update(ctx context.Context, key []byte, fn storage.UpdateFunc) error {
	if !f.takeWrite() {
		return ErrInjected
	}
	return f.KV.Update(ctx, key, fn)
}

func (f *FlakyKV) takeWrite() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet {
		f.failSet = false
		return false
	}
	f.sets++
	return true
}

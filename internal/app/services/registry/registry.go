// Package registry implements the owner-gated, append-only registry mapping
// account identifiers to ordered lists of password hashes.
//
// The engine holds no locks. Every mutation is a single storage Update, so
// readers only ever observe committed sequences and writers sharing a store,
// in this process or another, never overwrite each other.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/R3E-Network/password_registry/internal/app/domain/account"
	"github.com/R3E-Network/password_registry/internal/app/storage"
)

// Registry is a constructed, owner-bearing registry bound to its store.
// Obtain one from Initialize or Load; the zero value rejects every call.
type Registry struct {
	kv     storage.KV
	owner  account.ID
	prefix []byte
}

// Initialize creates a registry owned by owner with no entries and persists
// its header unconditionally. Use InitializeOnce when a store may already
// hold a deployment.
func Initialize(ctx context.Context, kv storage.KV, owner account.ID) (*Registry, error) {
	if kv == nil {
		return nil, fmt.Errorf("registry: store is required")
	}
	if owner == "" {
		return nil, ErrInvalidOwner
	}

	prefix := []byte(DefaultEntriesPrefix)
	raw, err := encodeHeader(owner, prefix)
	if err != nil {
		return nil, err
	}
	if err := kv.Set(ctx, []byte(StateKey), raw); err != nil {
		return nil, fmt.Errorf("persist header: %w", err)
	}
	return &Registry{kv: kv, owner: owner, prefix: prefix}, nil
}

// InitializeOnce is Initialize guarded by an atomic check of the header key:
// if any deployment, current or ownerless, is already persisted it fails with
// ErrAlreadyInitialized and writes nothing.
func InitializeOnce(ctx context.Context, kv storage.KV, owner account.ID) (*Registry, error) {
	if kv == nil {
		return nil, fmt.Errorf("registry: store is required")
	}
	if owner == "" {
		return nil, ErrInvalidOwner
	}

	prefix := []byte(DefaultEntriesPrefix)
	err := kv.Update(ctx, []byte(StateKey), func(current []byte) ([]byte, error) {
		if current != nil {
			return nil, ErrAlreadyInitialized
		}
		return encodeHeader(owner, prefix)
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyInitialized) {
			return nil, err
		}
		return nil, fmt.Errorf("persist header: %w", err)
	}
	return &Registry{kv: kv, owner: owner, prefix: prefix}, nil
}

// Owner returns the only account allowed to mutate the registry.
func (r *Registry) Owner() account.ID {
	if r == nil {
		return ""
	}
	return r.owner
}

// Append adds value to the end of accountID's sequence. caller must be the
// owner; otherwise ErrUnauthorized is returned and nothing is written. The
// read and the write happen in one storage Update, so appends from other
// processes sharing the store are never lost.
func (r *Registry) Append(ctx context.Context, caller, accountID account.ID, value string) error {
	return r.mutate(caller, func() error {
		err := r.kv.Update(ctx, entryKey(r.prefix, accountID), func(current []byte) ([]byte, error) {
			values := []string{}
			if current != nil {
				var err error
				if values, err = decodeValues(current); err != nil {
					return nil, err
				}
			}
			return encodeValues(append(values, value))
		})
		if err != nil {
			return fmt.Errorf("persist entries for %s: %w", accountID, err)
		}
		return nil
	})
}

// List returns every value appended for accountID in append order. An
// account that was never written yields an empty, non-nil slice.
func (r *Registry) List(ctx context.Context, accountID account.ID) ([]string, error) {
	if err := r.usable(); err != nil {
		return nil, err
	}
	return r.load(ctx, accountID)
}

// mutate is the single authorization guard every state-changing method goes
// through.
func (r *Registry) mutate(caller account.ID, op func() error) error {
	if err := r.usable(); err != nil {
		return err
	}
	if caller != r.owner {
		return fmt.Errorf("%w: %q", ErrUnauthorized, caller)
	}
	return op()
}

func (r *Registry) usable() error {
	if r == nil || r.kv == nil || r.owner == "" || len(r.prefix) == 0 {
		return ErrNotInitialized
	}
	return nil
}

func (r *Registry) load(ctx context.Context, accountID account.ID) ([]string, error) {
	raw, err := r.kv.Get(ctx, entryKey(r.prefix, accountID))
	if errors.Is(err, storage.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load entries for %s: %w", accountID, err)
	}
	values, err := decodeValues(raw)
	if err != nil {
		return nil, fmt.Errorf("load entries for %s: %w", accountID, err)
	}
	if values == nil {
		values = []string{}
	}
	return values, nil
}

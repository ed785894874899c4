package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/R3E-Network/password_registry/internal/app/domain/account"
	"github.com/R3E-Network/password_registry/internal/app/storage"
)

// Info summarizes the persisted header without constructing a registry.
type Info struct {
	Initialized   bool       `json:"initialized"`
	Schema        byte       `json:"schema"`
	Owner         account.ID `json:"owner,omitempty"`
	EntriesPrefix string     `json:"entries_prefix,omitempty"`
}

// NeedsMigration reports whether the header predates the owner field.
func (i Info) NeedsMigration() bool {
	return i.Initialized && i.Schema < CurrentSchema
}

// Describe reads the header and reports its schema version and owner.
func Describe(ctx context.Context, kv storage.KV) (Info, error) {
	raw, err := kv.Get(ctx, []byte(StateKey))
	if errors.Is(err, storage.ErrNotFound) {
		return Info{}, nil
	}
	if err != nil {
		return Info{}, fmt.Errorf("load header: %w", err)
	}
	version, h, err := decodeHeader(raw)
	if err != nil {
		return Info{}, err
	}
	return Info{
		Initialized:   true,
		Schema:        version,
		Owner:         account.ID(h.Owner),
		EntriesPrefix: string(h.EntriesPrefix),
	}, nil
}

// Upgrade rewrites an ownerless header in the current layout with the given
// owner. The owner must be supplied explicitly; there is no default. Entry
// records share one layout across both schemas and are left untouched.
func Upgrade(ctx context.Context, kv storage.KV, owner account.ID) (*Registry, error) {
	if owner == "" {
		return nil, ErrInvalidOwner
	}
	if kv == nil {
		return nil, fmt.Errorf("registry: store is required")
	}

	var prefix []byte
	err := kv.Update(ctx, []byte(StateKey), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, ErrNotInitialized
		}
		version, h, err := decodeHeader(current)
		if err != nil {
			return nil, err
		}
		if version >= CurrentSchema {
			return nil, ErrAlreadyCurrent
		}
		if !validPrefix(h.EntriesPrefix) {
			return nil, fmt.Errorf("%w: entries prefix %q overlaps header key", ErrCorruptRecord, h.EntriesPrefix)
		}
		prefix = h.EntriesPrefix
		return encodeHeader(owner, prefix)
	})
	if err != nil {
		return nil, err
	}
	return &Registry{kv: kv, owner: owner, prefix: prefix}, nil
}

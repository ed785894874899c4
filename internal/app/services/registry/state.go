package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/R3E-Network/password_registry/internal/app/domain/account"
	"github.com/R3E-Network/password_registry/internal/app/storage"
)

// State is what a store holds for a deployment: Uninitialized or Ready.
type State interface {
	isState()
}

// Uninitialized means no header has been written.
type Uninitialized struct{}

// Ready wraps a constructed registry.
type Ready struct {
	Registry *Registry
}

func (Uninitialized) isState() {}
func (Ready) isState()         {}

// Load reads the header from kv. Ownerless headers are not silently
// upgraded: they yield ErrMigrationRequired.
func Load(ctx context.Context, kv storage.KV) (State, error) {
	if kv == nil {
		return nil, fmt.Errorf("registry: store is required")
	}
	raw, err := kv.Get(ctx, []byte(StateKey))
	if errors.Is(err, storage.ErrNotFound) {
		return Uninitialized{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load header: %w", err)
	}

	version, h, err := decodeHeader(raw)
	if err != nil {
		return nil, err
	}
	if version == SchemaOwnerless {
		return nil, ErrMigrationRequired
	}
	if !validPrefix(h.EntriesPrefix) {
		return nil, fmt.Errorf("%w: entries prefix %q overlaps header key", ErrCorruptRecord, h.EntriesPrefix)
	}
	return Ready{Registry: &Registry{kv: kv, owner: account.ID(h.Owner), prefix: h.EntriesPrefix}}, nil
}

// Append runs Registry.Append on a Ready state.
func Append(ctx context.Context, st State, caller, accountID account.ID, value string) error {
	r, err := ready(st)
	if err != nil {
		return err
	}
	return r.Append(ctx, caller, accountID, value)
}

// List runs Registry.List on a Ready state.
func List(ctx context.Context, st State, accountID account.ID) ([]string, error) {
	r, err := ready(st)
	if err != nil {
		return nil, err
	}
	return r.List(ctx, accountID)
}

func ready(st State) (*Registry, error) {
	switch s := st.(type) {
	case Ready:
		if err := s.Registry.usable(); err != nil {
			return nil, err
		}
		return s.Registry, nil
	case Uninitialized:
		return nil, ErrNotInitialized
	default:
		return nil, ErrNotInitialized
	}
}

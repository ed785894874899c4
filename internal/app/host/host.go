// Package host is the execution host around the registry engine. It owns the
// durable store, attributes a caller to each mutating call, serializes
// mutations, and enforces that a deployment is initialized only once.
package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/R3E-Network/password_registry/internal/app/domain/account"
	"github.com/R3E-Network/password_registry/internal/app/metrics"
	"github.com/R3E-Network/password_registry/internal/app/services/registry"
	"github.com/R3E-Network/password_registry/internal/app/storage"
	"github.com/R3E-Network/password_registry/pkg/logger"
)

// ErrAlreadyInitialized rejects a second Deploy against the same store.
var ErrAlreadyInitialized = registry.ErrAlreadyInitialized

// Host runs registry operations against one deployment.
type Host struct {
	kv  storage.KV
	log *logger.Logger

	// mu serializes Deploy, Append and Migrate within this process. Hosts in
	// other processes sharing the store are ordered by storage Update.
	mu sync.Mutex
}

// Option customizes a Host.
type Option func(*Host)

// WithLogger sets the logger used for call logging.
func WithLogger(log *logger.Logger) Option {
	return func(h *Host) {
		if log != nil {
			h.log = log
		}
	}
}

// New creates a host over kv.
func New(kv storage.KV, opts ...Option) *Host {
	h := &Host{kv: kv}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = logger.NewDefault("host")
	}
	return h
}

// Deploy initializes the registry with owner. It fails with
// ErrAlreadyInitialized if the store already holds a deployment in any
// schema version.
func (h *Host) Deploy(ctx context.Context, owner account.ID) (err error) {
	defer h.observe("initialize", time.Now(), &err)

	if err := owner.Validate(); err != nil {
		return fmt.Errorf("owner: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := registry.InitializeOnce(ctx, h.kv, owner); err != nil {
		return err
	}
	h.log.WithField("owner", owner).Info("registry initialized")
	return nil
}

// Append records value for accountID on behalf of caller.
func (h *Host) Append(ctx context.Context, caller, accountID account.ID, value string) (err error) {
	defer h.observe("append", time.Now(), &err)

	if err := accountID.Validate(); err != nil {
		return fmt.Errorf("account: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	st, err := registry.Load(ctx, h.kv)
	if err != nil {
		return err
	}
	if err := registry.Append(ctx, st, caller, accountID, value); err != nil {
		if errors.Is(err, registry.ErrUnauthorized) {
			h.log.WithFields(map[string]interface{}{
				"caller":     caller,
				"account_id": accountID,
			}).Warn("append rejected: caller is not the owner")
		}
		return err
	}
	h.log.WithField("account_id", accountID).Debug("hash appended")
	return nil
}

// List returns the values stored for accountID. It takes no lock and needs
// no caller.
func (h *Host) List(ctx context.Context, accountID account.ID) (values []string, err error) {
	defer h.observe("list", time.Now(), &err)

	if err := accountID.Validate(); err != nil {
		return nil, fmt.Errorf("account: %w", err)
	}
	st, err := registry.Load(ctx, h.kv)
	if err != nil {
		return nil, err
	}
	return registry.List(ctx, st, accountID)
}

// Owner returns the configured owner.
func (h *Host) Owner(ctx context.Context) (account.ID, error) {
	st, err := registry.Load(ctx, h.kv)
	if err != nil {
		return "", err
	}
	ready, ok := st.(registry.Ready)
	if !ok {
		return "", registry.ErrNotInitialized
	}
	return ready.Registry.Owner(), nil
}

// Describe reports the persisted schema without requiring it to be current.
func (h *Host) Describe(ctx context.Context) (registry.Info, error) {
	return registry.Describe(ctx, h.kv)
}

// Migrate upgrades an ownerless deployment, installing owner.
func (h *Host) Migrate(ctx context.Context, owner account.ID) (err error) {
	defer h.observe("migrate", time.Now(), &err)

	if err := owner.Validate(); err != nil {
		return fmt.Errorf("owner: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := registry.Upgrade(ctx, h.kv, owner); err != nil {
		return err
	}
	h.log.WithField("owner", owner).Info("registry layout upgraded")
	return nil
}

func (h *Host) observe(op string, start time.Time, errp *error) {
	metrics.RecordOperation(op, Result(*errp), time.Since(start))
}

// Result maps an operation error to a short metrics label.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, registry.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrAlreadyInitialized):
		return "already_initialized"
	case errors.Is(err, registry.ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, registry.ErrMigrationRequired):
		return "migration_required"
	case errors.Is(err, account.ErrInvalidID):
		return "invalid_argument"
	default:
		return "error"
	}
}

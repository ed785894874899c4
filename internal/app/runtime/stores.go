package runtime

import (
	"context"
	"fmt"
	"io"

	"github.com/R3E-Network/password_registry/internal/app/storage"
	"github.com/R3E-Network/password_registry/internal/app/storage/memory"
	"github.com/R3E-Network/password_registry/internal/app/storage/redisstore"
	"github.com/R3E-Network/password_registry/internal/app/storage/sqlstore"
	"github.com/R3E-Network/password_registry/internal/config"
	"github.com/R3E-Network/password_registry/pkg/logger"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenStore opens the backend selected by cfg. The returned closer releases
// its connections and is never nil.
func OpenStore(ctx context.Context, cfg config.StorageConfig, log *logger.Logger) (storage.KV, io.Closer, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		log.Warn("memory backend selected; registry state is lost on exit")
		return memory.New(), nopCloser{}, nil

	case config.BackendSQLite, config.BackendPostgres:
		store, err := sqlstore.Open(ctx, sqlstore.Config{
			Driver:          cfg.Backend,
			DSN:             cfg.DSN,
			Namespace:       cfg.Namespace,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open %s store: %w", cfg.Backend, err)
		}
		log.WithField("backend", cfg.Backend).WithField("namespace", store.Namespace()).Info("sql store ready")
		return store, store, nil

	case config.BackendRedis:
		store, err := redisstore.Open(ctx, redisstore.Config{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			Namespace: cfg.Namespace,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open redis store: %w", err)
		}
		log.WithField("addr", cfg.RedisAddr).Info("redis store ready")
		return store, store, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

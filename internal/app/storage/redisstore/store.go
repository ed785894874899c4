// Package redisstore implements storage.KV on Redis. A single SET per key
// gives per-key atomic writes, and Update is an optimistic WATCH/MULTI
// transaction. Durability depends on the server's AOF/RDB configuration.
package redisstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/R3E-Network/password_registry/internal/app/storage"
)

// Store maps registry keys to "<namespace>:<hex key>" Redis strings.
type Store struct {
	client    redis.UniversalClient
	namespace string
}

var _ storage.KV = (*Store)(nil)

// Config describes the Redis connection.
type Config struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
}

// Open connects to Redis and verifies the connection with PING.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address not configured")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client, cfg.Namespace), nil
}

// New wraps an existing client.
func New(client redis.UniversalClient, namespace string) *Store {
	if namespace == "" {
		namespace = "default"
	}
	return &Store{client: client, namespace: namespace}
}

func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	value, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key, value []byte) error {
	if err := s.client.Set(ctx, s.redisKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// maxUpdateAttempts bounds WATCH retries under contention.
const maxUpdateAttempts = 100

// ErrUpdateContention is returned when Update keeps losing the WATCH race.
var ErrUpdateContention = errors.New("redisstore: update retries exhausted")

// Update runs fn between WATCH and EXEC, retrying when another client
// changed the key in between.
func (s *Store) Update(ctx context.Context, key []byte, fn storage.UpdateFunc) error {
	rkey := s.redisKey(key)
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, rkey).Bytes()
		if errors.Is(err, redis.Nil) {
			current = nil
		} else if err != nil {
			return fmt.Errorf("redis get: %w", err)
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rkey, next, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, rkey)
		if errors.Is(err, redis.TxFailedErr) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			continue
		}
		return err
	}
	return ErrUpdateContention
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) redisKey(key []byte) string {
	return s.namespace + ":" + hex.EncodeToString(key)
}

// Package sqlstore implements storage.KV on a relational database. SQLite
// (modernc.org/sqlite) and PostgreSQL (lib/pq) share the same queries; sqlx
// rebinds placeholders for the driver in use.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/R3E-Network/password_registry/internal/app/storage"
	"github.com/R3E-Network/password_registry/internal/platform/migrations"
)

// Store keeps every key of one namespace in the registry_kv table.
type Store struct {
	db        *sqlx.DB
	namespace string
	dialect   migrations.Dialect
}

var _ storage.KV = (*Store)(nil)

// Config describes how to reach the database.
type Config struct {
	Driver          string
	DSN             string
	Namespace       string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects, pings and migrates the database described by cfg.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	dialect, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("database dsn not configured")
	}

	dsn := cfg.DSN
	if dialect == migrations.SQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sqlx.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", cfg.Driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else if dialect == migrations.SQLite {
		// SQLite admits one writer; extra connections only add busy waits.
		db.SetMaxOpenConns(1)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", cfg.Driver, err)
	}

	if err := migrations.Apply(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return New(db, cfg.Namespace), nil
}

// New wraps an already migrated database handle.
func New(db *sqlx.DB, namespace string) *Store {
	if namespace == "" {
		namespace = "default"
	}
	dialect := migrations.Postgres
	if db.DriverName() == "sqlite" {
		dialect = migrations.SQLite
	}
	return &Store{db: db, namespace: namespace, dialect: dialect}
}

// Namespace returns the deployment namespace the store is scoped to.
func (s *Store) Namespace() string {
	return s.namespace
}

func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	var value []byte
	query := s.db.Rebind(`SELECT value FROM registry_kv WHERE namespace = ? AND key = ?`)
	if err := s.db.GetContext(ctx, &value, query, s.namespace, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get key: %w", err)
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key, value []byte) error {
	return s.upsert(ctx, s.db, key, value)
}

// Update performs fn inside a write transaction. PostgreSQL takes a
// transaction-scoped advisory lock on the key (rows that do not exist yet
// cannot be locked FOR UPDATE); SQLite takes the database write lock up front
// with BEGIN IMMEDIATE.
func (s *Store) Update(ctx context.Context, key []byte, fn storage.UpdateFunc) error {
	if s.dialect == migrations.SQLite {
		return s.updateSQLite(ctx, key, fn)
	}
	return s.updatePostgres(ctx, key, fn)
}

func (s *Store) updatePostgres(ctx context.Context, key []byte, fn storage.UpdateFunc) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lockID(s.namespace, key)); err != nil {
		return fmt.Errorf("lock key: %w", err)
	}
	next, err := s.apply(ctx, tx, key, fn, " FOR UPDATE")
	if err != nil {
		return err
	}
	if err = s.upsert(ctx, tx, key, next); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	return nil
}

func (s *Store) updateSQLite(ctx context.Context, key []byte, fn storage.UpdateFunc) (err error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Close()

	if _, err = conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer func() {
		if err != nil {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	next, err := s.apply(ctx, conn, key, fn, "")
	if err != nil {
		return err
	}
	if err = s.upsert(ctx, conn, key, next); err != nil {
		return err
	}
	if _, err = conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	return nil
}

type queryExecer interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

// apply reads the current value inside the open transaction and runs fn.
func (s *Store) apply(ctx context.Context, q queryExecer, key []byte, fn storage.UpdateFunc, lockClause string) ([]byte, error) {
	var current []byte
	query := s.db.Rebind(`SELECT value FROM registry_kv WHERE namespace = ? AND key = ?` + lockClause)
	if err := sqlx.GetContext(ctx, q, &current, query, s.namespace, key); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get key: %w", err)
		}
		current = nil
	} else if current == nil {
		current = []byte{}
	}
	return fn(current)
}

func (s *Store) upsert(ctx context.Context, e sqlx.ExecerContext, key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	query := s.db.Rebind(`
		INSERT INTO registry_kv (namespace, key, value)
		VALUES (?, ?, ?)
		ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value
	`)
	if _, err := e.ExecContext(ctx, query, s.namespace, key, value); err != nil {
		return fmt.Errorf("set key: %w", err)
	}
	return nil
}

// lockID folds namespace and key into a PostgreSQL advisory lock ID.
func lockID(namespace string, key []byte) int64 {
	h := fnv.New64a()
	h.Write([]byte(namespace))
	h.Write([]byte{0})
	h.Write(key)
	return int64(h.Sum64())
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func dialectFor(driver string) (migrations.Dialect, error) {
	switch driver {
	case "postgres":
		return migrations.Postgres, nil
	case "sqlite":
		return migrations.SQLite, nil
	case "":
		return "", fmt.Errorf("database driver not configured")
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// sqliteDSN adds durability pragmas unless the caller already set options.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "?") || strings.Contains(dsn, ":memory:") {
		return dsn
	}
	return dsn + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"
}

package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/password_registry/internal/app/storage"
	"github.com/R3E-Network/password_registry/internal/app/storage/storagetest"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "postgres"), "registry-main"), mock
}

func TestGetReturnsStoredValue(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT value FROM registry_kv WHERE namespace = \$1 AND key = \$2`).
		WithArgs("registry-main", []byte("STATE")).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte{2, 0x80}))

	got, err := s.Get(context.Background(), []byte("STATE"))
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 0x80}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissingMapsToNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT value FROM registry_kv`).
		WithArgs("registry-main", []byte("mnobody")).
		WillReturnError(sql.ErrNoRows)

	_, err := s.Get(context.Background(), []byte("mnobody"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetUpserts(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO registry_kv \(namespace, key, value\)\s+VALUES \(\$1, \$2, \$3\)\s+ON CONFLICT \(namespace, key\) DO UPDATE SET value = excluded.value`).
		WithArgs("registry-main", []byte("k"), []byte("v")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Set(context.Background(), []byte("k"), []byte("v")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetWrapsDriverErrors(t *testing.T) {
	s, mock := newMockStore(t)
	boom := errors.New("connection reset")

	mock.ExpectExec(`INSERT INTO registry_kv`).WillReturnError(boom)

	err := s.Set(context.Background(), []byte("k"), []byte("v"))
	assert.ErrorIs(t, err, boom)
}

func TestPostgresUpdateLocksKeyInTransaction(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1\)`).
		WithArgs(lockID("registry-main", []byte("muser1.test"))).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT value FROM registry_kv WHERE namespace = \$1 AND key = \$2 FOR UPDATE`).
		WithArgs("registry-main", []byte("muser1.test")).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte("old")))
	mock.ExpectExec(`INSERT INTO registry_kv`).
		WithArgs("registry-main", []byte("muser1.test"), []byte("old+new")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.Update(context.Background(), []byte("muser1.test"), func(current []byte) ([]byte, error) {
		return append(current, "+new"...), nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateAbsentKeyAndAbort(t *testing.T) {
	s, mock := newMockStore(t)
	abort := errors.New("abort")

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT value FROM registry_kv`).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := s.Update(context.Background(), []byte("k"), func(current []byte) ([]byte, error) {
		assert.Nil(t, current)
		return nil, abort
	})
	assert.ErrorIs(t, err, abort)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteUpdate(t *testing.T) {
	s, err := Open(context.Background(), Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "registry.db")})
	require.NoError(t, err)
	defer s.Close()

	storagetest.UpdateSemantics(t, s)
}

func TestSQLiteUpdatesAcrossHandlesAreSerialized(t *testing.T) {
	ctx := context.Background()
	cfg := Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "registry.db"), Namespace: "shared"}

	a, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer a.Close()
	b, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer b.Close()

	storagetest.ConcurrentUpdates(t, 50, a, b)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mysql", DSN: "x"})
	assert.Error(t, err)

	_, err = Open(context.Background(), Config{Driver: "sqlite"})
	assert.Error(t, err)
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "registry.db")
	cfg := Config{Driver: "sqlite", DSN: path, Namespace: "registry-main"}

	s, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, []byte("muser1.test"), []byte("first")))
	require.NoError(t, s.Set(ctx, []byte("muser1.test"), []byte("second")))
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, []byte("muser1.test"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestSQLiteNamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "registry.db")

	a, err := Open(ctx, Config{Driver: "sqlite", DSN: path, Namespace: "a"})
	require.NoError(t, err)
	defer a.Close()
	b, err := Open(ctx, Config{Driver: "sqlite", DSN: path, Namespace: "b"})
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Set(ctx, []byte("STATE"), []byte("a-state")))

	_, err = b.Get(ctx, []byte("STATE"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, "b", b.Namespace())
}

func TestPostgresIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	ctx := context.Background()
	s, err := Open(ctx, Config{Driver: "postgres", DSN: dsn, Namespace: "registry-it"})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set(ctx, []byte("k"), []byte("v")))
	got, err := s.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))

	other, err := Open(ctx, Config{Driver: "postgres", DSN: dsn, Namespace: "registry-it"})
	require.NoError(t, err)
	defer other.Close()
	require.NoError(t, s.Set(ctx, []byte("counter"), []byte("0")))
	storagetest.ConcurrentUpdates(t, 25, s, other)
}

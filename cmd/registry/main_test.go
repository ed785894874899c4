package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/password_registry/internal/app/runtime"
	"github.com/R3E-Network/password_registry/internal/app/services/registry/registrytest"
	"github.com/R3E-Network/password_registry/internal/config"
	"github.com/R3E-Network/password_registry/internal/middleware"
	"github.com/R3E-Network/password_registry/pkg/logger"
)

// useSQLite points the commands at a fresh sqlite file.
func useSQLite(t *testing.T) string {
	t.Helper()
	chdir(t, t.TempDir())
	dsn := filepath.Join(t.TempDir(), "registry.db")
	t.Setenv(config.ConfigPathEnv, "")
	t.Setenv("REGISTRY_STORAGE_BACKEND", config.BackendSQLite)
	t.Setenv("REGISTRY_STORAGE_DSN", dsn)
	t.Setenv("REGISTRY_LOG_LEVEL", "error")
	t.Setenv("REGISTRY_JWT_SECRET", "cli-test-secret")
	return dsn
}

func runCmd(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestDeployListStatus(t *testing.T) {
	useSQLite(t)

	code, out, errOut := runCmd(t, "status")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "initialized: false")

	code, out, errOut = runCmd(t, "deploy", "-owner", "owner.test")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "owner.test")

	code, _, errOut = runCmd(t, "deploy", "-owner", "owner.test")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "already initialized")

	code, out, errOut = runCmd(t, "status")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "schema: 2")
	assert.Contains(t, out, "owner: owner.test")

	code, out, errOut = runCmd(t, "list", "-account", "user1.test")
	require.Equal(t, 0, code, errOut)
	assert.Empty(t, out)
}

func TestMigrateCommand(t *testing.T) {
	dsn := useSQLite(t)

	cfg := config.Default().Storage
	cfg.DSN = dsn
	kv, closer, err := runtime.OpenStore(context.Background(), cfg, logger.NewDiscard())
	require.NoError(t, err)
	require.NoError(t, registrytest.SeedOwnerless(context.Background(), kv, nil))
	require.NoError(t, closer.Close())

	code, _, errOut := runCmd(t, "list", "-account", "user1.test")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "migration")

	code, out, errOut := runCmd(t, "status")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "run migrate")

	code, _, errOut = runCmd(t, "migrate", "-owner", "owner.test")
	require.Equal(t, 0, code, errOut)

	code, out, _ = runCmd(t, "status")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "owner: owner.test")
}

func TestTokenCommand(t *testing.T) {
	useSQLite(t)

	code, out, errOut := runCmd(t, "token", "-subject", "owner.test")
	require.Equal(t, 0, code, errOut)

	claims := &middleware.Claims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(out), claims, func(*jwt.Token) (interface{}, error) {
		return []byte("cli-test-secret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "owner.test", claims.Subject)
	assert.Equal(t, "password-registry", claims.Issuer)
	require.NotNil(t, claims.ExpiresAt)

	for _, ttl := range []string{"0", "-5m"} {
		code, out, errOut = runCmd(t, "token", "-subject", "owner.test", "-ttl", ttl)
		assert.Equal(t, 1, code, "ttl %s", ttl)
		assert.Empty(t, out)
		assert.Contains(t, errOut, "ttl must be positive")
	}
}

func TestUsageErrors(t *testing.T) {
	useSQLite(t)

	code, _, _ := runCmd(t)
	assert.Equal(t, 2, code)

	code, _, errOut := runCmd(t, "frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Unknown command")

	code, _, errOut = runCmd(t, "deploy")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "-owner is required")

	code, _, _ = runCmd(t, "list", "-account", "Bad Account")
	assert.Equal(t, 1, code)

	code, out, _ := runCmd(t, "help")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "Usage:")
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore wd: %v", err)
		}
	})
}

package runtime

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/password_registry/internal/app/services/registry"
	"github.com/R3E-Network/password_registry/internal/config"
	"github.com/R3E-Network/password_registry/internal/middleware"
	"github.com/R3E-Network/password_registry/pkg/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Backend = config.BackendMemory
	cfg.Auth.JWTSecret = "runtime-test-secret"
	return cfg
}

func TestNewApplicationRequiresSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWTSecret = ""
	_, err := NewApplication(context.Background(), cfg, logger.NewDiscard())
	assert.Error(t, err)
}

func TestApplicationServesRegistry(t *testing.T) {
	cfg := testConfig(t)
	app, err := NewApplication(context.Background(), cfg, logger.NewDiscard())
	require.NoError(t, err)
	require.NoError(t, app.Host().Deploy(context.Background(), "owner.test"))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, ln) }()

	base := "http://" + ln.Addr().String()
	tok, err := middleware.IssueToken([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer, "owner.test", time.Minute)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, base+"/registry/entries/user1.test", strings.NewReader(`{"value":"hash123"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(base + "/registry/entries/user1.test")
	require.NoError(t, err)
	var body struct {
		Values []string `json:"values"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, []string{"hash123"}, body.Values)

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, app.Shutdown(context.Background()))
}

func TestOpenStoreSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default().Storage
	cfg.DSN = filepath.Join(t.TempDir(), "registry.db")

	kv, closer, err := OpenStore(ctx, cfg, logger.NewDiscard())
	require.NoError(t, err)
	_, err = registry.Initialize(ctx, kv, "owner.test")
	require.NoError(t, err)
	require.NoError(t, closer.Close())

	kv, closer, err = OpenStore(ctx, cfg, logger.NewDiscard())
	require.NoError(t, err)
	defer closer.Close()

	st, err := registry.Load(ctx, kv)
	require.NoError(t, err)
	ready, ok := st.(registry.Ready)
	require.True(t, ok)
	assert.Equal(t, "owner.test", string(ready.Registry.Owner()))
}

func TestOpenStoreUnknownBackend(t *testing.T) {
	_, _, err := OpenStore(context.Background(), config.StorageConfig{Backend: "etcd"}, logger.NewDiscard())
	assert.Error(t, err)
}

// Package runtime wires configuration, storage, the registry host and the
// HTTP server into one process.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/R3E-Network/password_registry/internal/app/host"
	"github.com/R3E-Network/password_registry/internal/app/httpapi"
	"github.com/R3E-Network/password_registry/internal/config"
	"github.com/R3E-Network/password_registry/internal/middleware"
	"github.com/R3E-Network/password_registry/pkg/logger"
)

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg        *config.Config
	log        *logger.Logger
	host       *host.Host
	httpServer *http.Server
	store      io.Closer
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg config.LoggingConfig) *logger.Logger {
	return logger.New(logger.LoggingConfig{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Output:     cfg.Output,
		FilePrefix: cfg.FilePrefix,
	})
}

// NewApplication opens the configured store and builds the HTTP host. The
// JWT secret is required because the POST route cannot attribute callers
// without it.
func NewApplication(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		log = NewLogger(cfg.Logging)
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret (REGISTRY_JWT_SECRET) is required to serve")
	}

	kv, closer, err := OpenStore(ctx, cfg.Storage, log.Component("storage"))
	if err != nil {
		return nil, fmt.Errorf("configure store: %w", err)
	}

	auth, err := middleware.NewAuthMiddleware([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer, log.Component("auth"))
	if err != nil {
		closer.Close()
		return nil, err
	}

	h := host.New(kv, host.WithLogger(log.Component("host")))
	handler, err := httpapi.NewHandler(h, httpapi.Options{
		Auth:   auth,
		CORS:   middleware.NewCORSMiddleware(cfg.Server.AllowedOrigins),
		Logger: log.Component("http"),
	})
	if err != nil {
		closer.Close()
		return nil, err
	}

	return &Application{
		cfg:  cfg,
		log:  log,
		host: h,
		httpServer: &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           handler,
			ReadTimeout:       cfg.Server.ReadTimeout,
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
		},
		store: closer,
	}, nil
}

// Host returns the registry host served by the application.
func (a *Application) Host() *host.Host {
	return a.host
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the listener fails.
func (a *Application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.httpServer.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln until ctx is cancelled.
func (a *Application) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)

	go func() {
		a.log.Infof("HTTP server listening on %s", ln.Addr())
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}

// Shutdown gracefully shuts down the HTTP server and closes the store.
func (a *Application) Shutdown(ctx context.Context) error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := a.httpServer.Shutdown(shutdownCtx)

	if a.store != nil {
		if cerr := a.store.Close(); cerr != nil {
			a.log.WithError(cerr).Warn("error closing store")
		}
	}
	return err
}

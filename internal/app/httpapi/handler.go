// Package httpapi exposes the registry host over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/password_registry/internal/app/domain/account"
	"github.com/R3E-Network/password_registry/internal/app/host"
	"github.com/R3E-Network/password_registry/internal/app/metrics"
	"github.com/R3E-Network/password_registry/internal/app/services/registry"
	"github.com/R3E-Network/password_registry/internal/httputil"
	"github.com/R3E-Network/password_registry/internal/middleware"
	"github.com/R3E-Network/password_registry/pkg/logger"
)

// maxBodyBytes bounds POST bodies.
const maxBodyBytes = 64 << 10

// Registry is the subset of the host the handlers call.
type Registry interface {
	Append(ctx context.Context, caller, accountID account.ID, value string) error
	List(ctx context.Context, accountID account.ID) ([]string, error)
	Owner(ctx context.Context) (account.ID, error)
	Describe(ctx context.Context) (registry.Info, error)
}

// Options configures NewHandler. Auth is required.
type Options struct {
	Auth   *middleware.AuthMiddleware
	CORS   *middleware.CORSMiddleware
	Logger *logger.Logger
}

type handler struct {
	reg Registry
	log *logger.Logger
}

// EntriesResponse is the body of GET /registry/entries/{account}.
type EntriesResponse struct {
	AccountID account.ID `json:"account_id"`
	Values    []string   `json:"values"`
}

// AppendRequest is the body of POST /registry/entries/{account}.
type AppendRequest struct {
	Value *string `json:"value"`
}

// OwnerResponse is the body of GET /registry/owner.
type OwnerResponse struct {
	Owner account.ID `json:"owner"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string        `json:"status"`
	Store  registry.Info `json:"store"`
}

// NewHandler returns the full HTTP surface: registry routes, health and
// metrics, wrapped in logging, instrumentation and optional CORS.
func NewHandler(reg Registry, opts Options) (http.Handler, error) {
	if reg == nil {
		return nil, errors.New("httpapi: registry is required")
	}
	if opts.Auth == nil {
		return nil, errors.New("httpapi: auth middleware is required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{reg: reg, log: log}

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, r, http.StatusNotFound, "not_found", "no such route")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	router.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/registry").Subrouter()
	api.HandleFunc("/owner", h.owner).Methods(http.MethodGet)
	api.HandleFunc("/entries/{account}", h.listEntries).Methods(http.MethodGet)
	api.Handle("/entries/{account}", opts.Auth.Handler(http.HandlerFunc(h.appendEntry))).Methods(http.MethodPost)

	// Logging wraps everything so unmatched routes and CORS preflights also
	// get a trace ID and a log line.
	var out http.Handler = metrics.InstrumentHandler(router)
	if opts.CORS != nil && opts.CORS.Enabled() {
		out = opts.CORS.Handler(out)
	}
	return middleware.LoggingMiddleware(log)(out), nil
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	info, err := h.reg.Describe(r.Context())
	if err != nil {
		h.log.WithError(err).Error("health check failed")
		httputil.WriteError(w, r, http.StatusServiceUnavailable, "unavailable", "store unavailable")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok", Store: info})
}

func (h *handler) owner(w http.ResponseWriter, r *http.Request) {
	owner, err := h.reg.Owner(r.Context())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, OwnerResponse{Owner: owner})
}

func (h *handler) listEntries(w http.ResponseWriter, r *http.Request) {
	id := account.ID(mux.Vars(r)["account"])
	values, err := h.reg.List(r.Context(), id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, EntriesResponse{AccountID: id, Values: values})
}

func (h *handler) appendEntry(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.Caller(r.Context())
	if !ok {
		httputil.WriteError(w, r, http.StatusUnauthorized, "unauthenticated", "valid bearer token required")
		return
	}

	var req AppendRequest
	if err := decodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large",
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		httputil.WriteError(w, r, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}
	if req.Value == nil {
		httputil.WriteError(w, r, http.StatusBadRequest, "invalid_argument", "value is required")
		return
	}

	id := account.ID(mux.Vars(r)["account"])
	if err := h.reg.Append(r.Context(), caller, id, *req.Value); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithField("path", r.URL.Path).Error("registry call failed")
		message = "internal error"
	}
	httputil.WriteError(w, r, status, code, message)
}

// statusFor maps registry and host errors to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, account.ErrInvalidID):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, registry.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, registry.ErrNotInitialized):
		return http.StatusConflict, "not_initialized"
	case errors.Is(err, registry.ErrMigrationRequired):
		return http.StatusConflict, "migration_required"
	case errors.Is(err, host.ErrAlreadyInitialized):
		return http.StatusConflict, "already_initialized"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func decodeJSON(body io.Reader, dst interface{}) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	if dec.More() {
		return errors.New("decode body: trailing data")
	}
	return nil
}

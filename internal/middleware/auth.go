// Package middleware provides HTTP middleware for the registry host
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/R3E-Network/password_registry/internal/app/domain/account"
	"github.com/R3E-Network/password_registry/internal/httputil"
	"github.com/R3E-Network/password_registry/pkg/logger"
)

type callerKey struct{}

// Claims are the JWT claims accepted from callers. The subject is the
// calling account.
type Claims struct {
	jwt.RegisteredClaims
}

// AuthMiddleware attributes a caller account to each request from an HS256
// bearer token. It authenticates only; whether the caller may mutate is the
// registry's decision.
type AuthMiddleware struct {
	secret []byte
	issuer string
	logger *logger.Logger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(secret []byte, issuer string, log *logger.Logger) (*AuthMiddleware, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret is required")
	}
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return &AuthMiddleware{secret: secret, issuer: issuer, logger: log}, nil
}

// Handler returns the middleware handler
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.reject(w, r, errors.New("missing Authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.reject(w, r, errors.New("invalid Authorization header format"))
			return
		}

		caller, err := m.validateToken(parts[1])
		if err != nil {
			m.reject(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

func (m *AuthMiddleware) validateToken(tokenString string) (account.ID, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}

	caller, err := account.Parse(claims.Subject)
	if err != nil {
		return "", fmt.Errorf("invalid token subject: %w", err)
	}
	return caller, nil
}

func (m *AuthMiddleware) reject(w http.ResponseWriter, r *http.Request, err error) {
	m.logger.WithError(err).WithFields(map[string]interface{}{
		"path":     r.URL.Path,
		"method":   r.Method,
		"trace_id": TraceID(r.Context()),
	}).Warn("authentication failed")
	httputil.WriteError(w, r, http.StatusUnauthorized, "unauthenticated", "valid bearer token required")
}

// WithCaller stores the authenticated caller in ctx.
func WithCaller(ctx context.Context, caller account.ID) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// Caller returns the authenticated caller, if any.
func Caller(ctx context.Context) (account.ID, bool) {
	caller, ok := ctx.Value(callerKey{}).(account.ID)
	return caller, ok && caller != ""
}

// IssueToken signs an HS256 caller token for subject that expires after ttl.
// Tokens without an expiry are rejected by the middleware, so ttl must be
// positive.
func IssueToken(secret []byte, issuer string, subject account.ID, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	if err := subject.Validate(); err != nil {
		return "", err
	}
	now := time.Now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   string(subject),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

package middleware

import (
	"net/http"
)

// CORSMiddleware answers browser preflights for the registry routes. An
// empty origin list disables it.
type CORSMiddleware struct {
	allowed  map[string]struct{}
	allowAll bool
}

// NewCORSMiddleware creates a CORS middleware for the given origins.
func NewCORSMiddleware(allowedOrigins []string) *CORSMiddleware {
	m := &CORSMiddleware{allowed: make(map[string]struct{}, len(allowedOrigins))}
	for _, origin := range allowedOrigins {
		if origin == "*" {
			m.allowAll = true
			continue
		}
		if origin != "" {
			m.allowed[origin] = struct{}{}
		}
	}
	return m
}

// Enabled reports whether any origin is allowed.
func (m *CORSMiddleware) Enabled() bool {
	return m.allowAll || len(m.allowed) > 0
}

// Handler returns the CORS middleware handler
func (m *CORSMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || !m.originAllowed(origin) {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Trace-ID")
		h.Set("Access-Control-Expose-Headers", "X-Trace-ID")
		h.Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *CORSMiddleware) originAllowed(origin string) bool {
	if m.allowAll {
		return true
	}
	_, ok := m.allowed[origin]
	return ok
}

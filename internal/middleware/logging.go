package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/R3E-Network/password_registry/internal/httputil"
	"github.com/R3E-Network/password_registry/pkg/logger"
)

type traceKey struct{}

// TraceID returns the request trace ID stored by LoggingMiddleware.
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

// LoggingMiddleware logs HTTP requests with trace ID
func LoggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			traceID := r.Header.Get(httputil.TraceIDHeader)
			if traceID == "" {
				traceID = uuid.NewString()
			}
			ctx := context.WithValue(r.Context(), traceKey{}, traceID)
			r = r.WithContext(ctx)
			w.Header().Set(httputil.TraceIDHeader, traceID)

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			log.WithFields(map[string]interface{}{
				"trace_id":    traceID,
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      wrapped.statusCode,
				"duration_ms": time.Since(start).Milliseconds(),
			}).Info("http request")
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// otherLabel is the path label for requests outside the served routes.
const otherLabel = "other"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "password_registry",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "password_registry",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "password_registry",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	registryOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "password_registry",
			Subsystem: "registry",
			Name:      "operations_total",
			Help:      "Registry operations by name and result.",
		},
		[]string{"op", "result"},
	)

	registryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "password_registry",
			Subsystem: "registry",
			Name:      "operation_duration_seconds",
			Help:      "Duration of registry operations including storage round trips.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		},
		[]string{"op"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		registryOperations,
		registryDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := canonicalMethod(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordOperation records one registry operation. result is a short label
// such as "ok" or "unauthorized".
func RecordOperation(op, result string, duration time.Duration) {
	if result == "" {
		result = "unknown"
	}
	if duration <= 0 {
		duration = time.Microsecond
	}
	registryOperations.WithLabelValues(op, result).Inc()
	registryDuration.WithLabelValues(op).Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath maps a request path onto the fixed set of routes the API
// serves. Account identifiers collapse to a placeholder and anything else,
// including 404 traffic, shares the "other" label.
func canonicalPath(raw string) string {
	switch raw {
	case "/healthz", "/metrics", "/registry/owner":
		return raw
	}
	if rest, ok := strings.CutPrefix(raw, "/registry/entries/"); ok && rest != "" && !strings.Contains(rest, "/") {
		return "/registry/entries/:account"
	}
	return otherLabel
}

var knownMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

func canonicalMethod(raw string) string {
	m := strings.ToUpper(raw)
	if knownMethods[m] {
		return m
	}
	return "OTHER"
}

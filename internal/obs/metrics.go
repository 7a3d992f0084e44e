package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics shared by the request-handling layer.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Security metrics fed by the guard and the token service.
var (
	RateLimitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_rate_limit_rejections_total",
			Help: "Requests rejected by the sliding-window rate limiter.",
		},
		[]string{"endpoint"},
	)

	FailedLogins = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "security_failed_logins_total",
		Help: "Recorded failed login attempts.",
	})

	BlockedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "security_blocked_clients",
		Help: "Client keys currently on the blocklist.",
	})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "security_active_sessions",
		Help: "Sessions currently active.",
	})

	TokensIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_tokens_issued_total",
			Help: "Signed tokens issued, by token type.",
		},
		[]string{"type"},
	)

	TokensRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "security_tokens_rejected_total",
		Help: "Tokens that failed verification.",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		RateLimitRejections, FailedLogins, BlockedClients,
		ActiveSessions, TokensIssued, TokensRejected,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CanonicalPath collapses per-resource path segments so metric labels stay
// bounded.
func CanonicalPath(path string) string {
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path = path[:idx]
	}
	if path == "" {
		return "/"
	}
	if rest, ok := strings.CutPrefix(path, "/v1/rbac/roles/"); ok && rest != "" && !strings.Contains(rest, "/") {
		return "/v1/rbac/roles/:name"
	}
	return path
}

// Instrument wraps an http.Handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for metrics.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

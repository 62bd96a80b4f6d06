// Package metrics provides Prometheus metrics for the media store.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediastore_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediastore_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	documentsWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediastore_documents_written_total",
			Help: "Documents stored, by visibility and result",
		},
		[]string{"visibility", "status"},
	)

	documentBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediastore_document_bytes_written_total",
			Help: "Bytes of normalized JSON committed to disk",
		},
	)

	ownerDeletesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediastore_owner_deletes_total",
			Help: "Owner content deletions, by outcome",
		},
		[]string{"outcome"},
	)

	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediastore_auth_attempts_total",
			Help: "Total login attempts",
		},
		[]string{"result"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric. path should be a route
// pattern, not the raw URL, to keep label cardinality bounded.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func RecordDocumentWrite(visibility string, bytes int, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	documentsWrittenTotal.WithLabelValues(visibility, status).Inc()
	documentBytesWritten.Add(float64(bytes))
}

func RecordOwnerDelete(outcome string) {
	ownerDeletesTotal.WithLabelValues(outcome).Inc()
}

func RecordAuthAttempt(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working behind the middleware.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// Middleware records request metrics. route maps a request to its label;
// unknown paths should collapse into a shared bucket.
func Middleware(route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)
			RecordHTTPRequest(r.Method, route(r), rw.statusCode, time.Since(start))
		})
	}
}

package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prgf87/socket-io-chat/internal/metrics"
)

// statusWriter wraps http.ResponseWriter to capture status code. It must
// keep forwarding Flush so the event stream works through it.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Metrics returns middleware that records Prometheus metrics.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		metrics.HTTPRequestsTotal.WithLabelValues(
			r.Method, path, strconv.Itoa(wrapped.status),
		).Inc()

		metrics.HTTPRequestDuration.WithLabelValues(
			r.Method, path,
		).Observe(duration)
	})
}

// normalizePath collapses unknown paths so probe traffic cannot blow up
// the label cardinality.
func normalizePath(path string) string {
	switch path {
	case "/", "/messages", "/events", "/health", "/stats", "/metrics":
		return path
	}
	if strings.HasPrefix(path, "/static/") {
		return "/static/*"
	}
	return "other"
}

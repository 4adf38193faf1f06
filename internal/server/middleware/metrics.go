package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jmxgate/jmxgate/internal/metrics"
)

// Metrics returns an HTTP middleware that counts and times requests by
// method, status and chi route pattern. Unmatched requests are labelled
// "unmatched" to keep cardinality bounded.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}
			status := strconv.Itoa(ww.status)
			m.HTTPRequests.WithLabelValues(r.Method, status, route).Inc()
			m.HTTPDuration.WithLabelValues(r.Method, status, route).Observe(time.Since(start).Seconds())
		})
	}
}

package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// normalizePath converts paths with dynamic segments to route patterns
// to prevent cardinality explosion in metrics. /audit/intents/123
// becomes /audit/intents/{id}.
func normalizePath(path string) string {
	staticRoutes := map[string]bool{
		"/":                true,
		"/checkout":        true,
		"/internal/stripe": true,
		"/health":          true,
		"/ready":           true,
		"/metrics":         true,
	}

	if staticRoutes[path] {
		return path
	}

	if strings.HasPrefix(path, "/audit/") {
		parts := strings.Split(path, "/")
		// /audit/{resource}/{id}
		if len(parts) == 4 && parts[3] != "" {
			return "/audit/" + parts[2] + "/{id}"
		}
		// /audit/users/{id} handled above; bare /audit/{resource}
		if len(parts) == 3 {
			return "/audit/" + parts[2]
		}
	}

	return "/other"
}

// HTTPMetrics records per-request duration and count with normalized
// path labels. metrics must not be nil.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			metrics.ObserveHTTPRequest(
				r.Method,
				normalizePath(r.URL.Path),
				strconv.Itoa(rw.statusCode),
				time.Since(start).Seconds(),
			)
		})
	}
}

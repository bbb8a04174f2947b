package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dengueviewer/atlas-service/internal/domain"
	"github.com/dengueviewer/atlas-service/internal/observability"
)

// corsMiddleware allows browser frontends from an exact-match origin list.
// Requests without an Origin header (curl, probes) pass through untouched.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && allowed[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestMetrics observes request durations labelled by route pattern, so
// /api/global/cases/2024-W05 and /api/global/cases/2024-W06 share a series.
func requestMetrics(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := domain.Clock().Now()
			next.ServeHTTP(w, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			metrics.RequestDuration.WithLabelValues(route).Observe(domain.Clock().Since(start).Seconds())
		})
	}
}

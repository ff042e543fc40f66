package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// MetricsRecorder records ops HTTP requests.
type MetricsRecorder interface {
	RecordHTTPRequest(ctx context.Context, method, path, status string, duration time.Duration)
}

// Metrics records every request under its chi route pattern. Unmatched
// paths collapse into "unmatched" to bound label cardinality.
func Metrics(recorder MetricsRecorder, skip ...string) func(http.Handler) http.Handler {
	skipPaths := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipPaths[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skipPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			sw := wrap(w)
			defer func() {
				rec := recover()
				status := sw.status
				if rec != nil {
					status = http.StatusInternalServerError
				}
				recorder.RecordHTTPRequest(r.Context(), r.Method, routeLabel(r), strconv.Itoa(status), time.Since(start))
				if rec != nil {
					panic(rec)
				}
			}()

			next.ServeHTTP(sw, r)
		})
	}
}

func routeLabel(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

package middleware

import (
	"net/http"
	"time"

	"github.com/coachverse/recall/pkg/logger"
)

// Logger logs one line per request and attaches a request-scoped logger to
// the context. Probe paths log at debug so kubelets do not flood the output.
func Logger(log logger.Logger, quiet ...string) func(http.Handler) http.Handler {
	quietPaths := make(map[string]struct{}, len(quiet))
	for _, p := range quiet {
		quietPaths[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLog := log.With("request_id", GetRequestID(r.Context()))
			ctx := reqLog.WithContext(r.Context())

			sw := wrap(w)
			next.ServeHTTP(sw, r.WithContext(ctx))

			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"size", sw.size,
				"remote_addr", r.RemoteAddr,
			}
			if _, ok := quietPaths[r.URL.Path]; ok {
				reqLog.DebugContext(ctx, "http request", args...)
				return
			}
			reqLog.InfoContext(ctx, "http request", args...)
		})
	}
}

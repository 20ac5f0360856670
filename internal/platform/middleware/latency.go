package middleware

import (
	"net/http"
	"strconv"
	"time"

	"instahelp/internal/platform/metrics"
	request "instahelp/pkg/platform/middleware/request"
)

// LatencyMiddleware records request duration by route template and status.
func LatencyMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := request.NewStatusRecorder(w)
			next.ServeHTTP(rec, r)
			m.ObserveRequest(r.Method, request.RoutePattern(r), strconv.Itoa(rec.Status), time.Since(start))
		})
	}
}

// Package requesttime pins one "now" per request so audit records, token
// timestamps and vote times written by a single request agree.
package requesttime

import (
	"net/http"
	"time"

	"instahelp/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"

	"instahelp/pkg/platform/httputil"
	"instahelp/pkg/requestcontext"
)

// ExceededResponse is the 429 body.
type ExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}

// KeyFunc picks the bucket for a request. An empty key skips limiting.
type KeyFunc func(r *http.Request) string

// ByClientIP keys on the client address captured by the metadata
// middleware.
func ByClientIP(r *http.Request) string {
	ip := requestcontext.ClientIP(r.Context())
	if ip == "" {
		return ""
	}
	return ClientKey(ip)
}

type Middleware struct {
	limiter  *Limiter
	logger   *slog.Logger
	disabled bool
}

type MiddlewareOption func(*Middleware)

// WithDisabled turns every check into a pass-through.
func WithDisabled(disabled bool) MiddlewareOption {
	return func(m *Middleware) { m.disabled = disabled }
}

func NewMiddleware(limiter *Limiter, logger *slog.Logger, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{limiter: limiter, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled && logger != nil {
		logger.Info("rate limiting disabled")
	}
	return m
}

// Limit enforces limit per key. Store failures without a fallback let the
// request through.
func (m *Middleware) Limit(limit Limit, key KeyFunc, message string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil || m.disabled || !limit.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			res, degraded, err := m.limiter.Allow(ctx, k, limit)
			if err != nil {
				m.logger.ErrorContext(ctx, "failed to check rate limit",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}

			addHeaders(w, res, degraded)
			if !res.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(res.RetryAfter))
				httputil.WriteJSON(w, http.StatusTooManyRequests, &ExceededResponse{
					Error:      "rate_limit_exceeded",
					Message:    message,
					RetryAfter: res.RetryAfter,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func addHeaders(w http.ResponseWriter, res *Result, degraded bool) {
	if res == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	if !res.ResetAt.IsZero() {
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
	}
	if degraded {
		w.Header().Set("X-RateLimit-Status", "degraded")
	}
}

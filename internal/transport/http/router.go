package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	devicehandler "instahelp/internal/device/handler"
	"instahelp/internal/platform/metrics"
	latency "instahelp/internal/platform/middleware"
	"instahelp/internal/ratelimit"
	dErrors "instahelp/pkg/domain-errors"
	"instahelp/pkg/platform/httputil"
	"instahelp/pkg/platform/middleware/auth"
	"instahelp/pkg/platform/middleware/metadata"
	request "instahelp/pkg/platform/middleware/request"
	"instahelp/pkg/platform/middleware/requesttime"
)

// Registrar mounts a domain's routes.
type Registrar interface {
	Register(r chi.Router)
}

// ReadinessCheck reports whether a backing dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Limits are the per-route rate limits.
type Limits struct {
	Device    ratelimit.Limit
	Emergency ratelimit.Limit
}

// Config collects everything the router needs. Nil RateLimit disables
// limiting; nil Ready reports ready unconditionally.
type Config struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Validator      auth.JWTValidator
	RequestTimeout time.Duration
	RateLimit      *ratelimit.Middleware
	Limits         Limits

	Telemetry *devicehandler.Handler
	Emergency PublicRegistrar
	Protected []Registrar

	Ready map[string]ReadinessCheck
}

// PublicRegistrar mounts both unauthenticated and authenticated routes.
type PublicRegistrar interface {
	Registrar
	RegisterPublic(r chi.Router)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewRouter wires the middleware chain and every domain's routes. Device
// telemetry and the emergency view are the only unauthenticated API routes.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(cfg.Logger))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(latency.LatencyMiddleware(cfg.Metrics))
	}

	r.Get("/health", handleLiveness)
	r.Get("/health/ready", readiness(cfg.Ready))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Group(func(api chi.Router) {
		api.Use(request.Timeout(cfg.RequestTimeout))
		api.Use(request.ContentTypeJSON)

		if cfg.Telemetry != nil {
			api.Group(func(g chi.Router) {
				g.Use(cfg.RateLimit.Limit(cfg.Limits.Device, byDevice, "Device is sending telemetry too frequently"))
				cfg.Telemetry.RegisterTelemetry(g)
			})
		}
		if cfg.Emergency != nil {
			api.Group(func(g chi.Router) {
				g.Use(cfg.RateLimit.Limit(cfg.Limits.Emergency, ratelimit.ByClientIP, "Too many emergency lookups, please try again later"))
				cfg.Emergency.RegisterPublic(g)
			})
		}

		api.Group(func(g chi.Router) {
			g.Use(auth.RequireAuth(cfg.Validator, cfg.Logger))
			if cfg.Emergency != nil {
				cfg.Emergency.Register(g)
			}
			for _, reg := range cfg.Protected {
				reg.Register(g)
			}
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "route not found"))
	})
	return r
}

func byDevice(r *http.Request) string {
	deviceID := devicehandler.DeviceIDFromRequest(r)
	if deviceID == "" {
		return ""
	}
	return ratelimit.DeviceKey(deviceID)
}

func handleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, &healthResponse{Status: "ok"})
}

func readiness(checks map[string]ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := &healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}

package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"instahelp/internal/emergency"
	id "instahelp/pkg/domain"
	dErrors "instahelp/pkg/domain-errors"
	"instahelp/pkg/platform/httputil"
	"instahelp/pkg/requestcontext"
)

// Service resolves capability tokens to emergency views.
type Service interface {
	View(ctx context.Context, token string) (*emergency.View, error)
	ViewWithProfile(ctx context.Context, token string, caller id.Actor) (*emergency.View, error)
}

// Handler serves the token-addressed emergency endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// PublicPattern is the unauthenticated emergency view route.
const PublicPattern = "/api/emergency/{token}"

// RegisterPublic mounts the route a rescuer's scan lands on.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get(PublicPattern, h.HandleView)
}

// Register mounts the authenticated profile route.
func (h *Handler) Register(r chi.Router) {
	r.Get(PublicPattern+"/profile", h.HandleViewWithProfile)
}

// HandleView handles GET /api/emergency/{token}.
func (h *Handler) HandleView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := chi.URLParam(r, "token")

	view, err := h.service.View(ctx, token)
	if err != nil {
		h.logFailure(ctx, "emergency view failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteJSON(w, http.StatusOK, view)
}

// HandleViewWithProfile handles GET /api/emergency/{token}/profile.
func (h *Handler) HandleViewWithProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := requestcontext.Actor(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	view, err := h.service.ViewWithProfile(ctx, chi.URLParam(r, "token"), caller)
	if err != nil {
		h.logFailure(ctx, "emergency profile view failed", err, "user_id", caller.UserID.String())
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteJSON(w, http.StatusOK, view)
}

// logFailure keeps misses at debug; token probing is expected noise.
func (h *Handler) logFailure(ctx context.Context, msg string, err error, attrs ...any) {
	attrs = append(attrs,
		"request_id", requestcontext.RequestID(ctx),
		"client_ip", requestcontext.ClientIP(ctx),
		"error", err,
	)
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		h.logger.DebugContext(ctx, msg, attrs...)
		return
	}
	h.logger.WarnContext(ctx, msg, attrs...)
}

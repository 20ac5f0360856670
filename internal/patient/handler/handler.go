package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"instahelp/internal/patient/models"
	"instahelp/internal/patient/service"
	id "instahelp/pkg/domain"
	dErrors "instahelp/pkg/domain-errors"
	"instahelp/pkg/platform/httputil"
	"instahelp/pkg/requestcontext"
)

// Service defines the patient operations the handler needs.
type Service interface {
	CreateProfile(ctx context.Context, caller id.Actor, public models.PublicView, private models.PrivateProfile) (*service.CreateResult, error)
	GetByOwner(ctx context.Context, ownerID id.UserID) (*models.Patient, error)
	GetPublicView(ctx context.Context, patientID id.PatientID) (*models.PublicView, error)
	GetPrivateProfile(ctx context.Context, caller id.Actor, patientID id.PatientID) (*models.PrivateProfile, error)
	ReadPrivate(ctx context.Context, caller id.Actor, p *models.Patient) (*models.PrivateProfile, error)
}

// URLBuilder composes the emergency URL for a token.
type URLBuilder interface {
	EmergencyURL(token string) string
}

// Handler serves the owner's record and clinician profile reads.
type Handler struct {
	service Service
	urls    URLBuilder
	logger  *slog.Logger
}

func New(service Service, urls URLBuilder, logger *slog.Logger) *Handler {
	return &Handler{service: service, urls: urls, logger: logger}
}

// Register mounts patient endpoints. Callers must already be authenticated.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/patients/me", h.HandleGetMine)
	r.Get("/api/patients/me/public-view", h.HandleGetMyPublicView)
	r.Post("/api/patients/me/initialize", h.HandleInitialize)
	r.Get("/api/patients/{patientID}/profile", h.HandleGetProfile)
}

// HandleInitialize handles POST /api/patients/me/initialize.
func (h *Handler) HandleInitialize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	caller, ok := requestcontext.Actor(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[InitializeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.service.CreateProfile(ctx, caller, req.PublicView, req.PrivateProfile)
	if err != nil {
		h.logger.WarnContext(ctx, "profile initialization failed",
			"request_id", requestID,
			"user_id", caller.UserID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	url := ""
	if res.Token != nil {
		url = h.urls.EmergencyURL(res.Token.Token)
	}
	httputil.WriteJSON(w, http.StatusCreated, toInitializeResponse(res.Patient, &req.PrivateProfile, res.Token, url))
}

// HandleGetMine handles GET /api/patients/me, including the decrypted
// private profile.
func (h *Handler) HandleGetMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := requestcontext.Actor(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	p, err := h.service.GetByOwner(ctx, caller.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	private, err := h.service.ReadPrivate(ctx, caller, p)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read own profile",
			"request_id", requestcontext.RequestID(ctx),
			"patient_id", p.ID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toProfileResponse(p, private))
}

// HandleGetMyPublicView handles GET /api/patients/me/public-view.
func (h *Handler) HandleGetMyPublicView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := requestcontext.Actor(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	p, err := h.service.GetByOwner(ctx, caller.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	view, err := h.service.GetPublicView(ctx, p.ID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

// HandleGetProfile handles GET /api/patients/{patientID}/profile for the
// owner and verified clinicians.
func (h *Handler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := requestcontext.Actor(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	patientID, err := id.ParsePatientID(chi.URLParam(r, "patientID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	profile, err := h.service.GetPrivateProfile(ctx, caller, patientID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}

package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"instahelp/internal/captoken/models"
	patientmodels "instahelp/internal/patient/models"
	id "instahelp/pkg/domain"
	dErrors "instahelp/pkg/domain-errors"
	"instahelp/pkg/platform/httputil"
	"instahelp/pkg/requestcontext"
)

// Broker is the subset of the capability token broker the owner endpoints
// use.
type Broker interface {
	EnsureToken(ctx context.Context, patientID id.PatientID) (*models.Token, error)
	GetTokenByPatientID(ctx context.Context, patientID id.PatientID) (*models.Token, error)
	RotateToken(ctx context.Context, patientID id.PatientID) (*models.Token, error)
	RevokeToken(ctx context.Context, tokenID id.TokenID) error
	History(ctx context.Context, patientID id.PatientID) ([]*models.Token, error)
	EmergencyURL(token string) string
}

// Patients resolves the caller's own record.
type Patients interface {
	GetByOwner(ctx context.Context, ownerID id.UserID) (*patientmodels.Patient, error)
}

// Handler serves the owner's token management endpoints.
type Handler struct {
	broker   Broker
	patients Patients
	logger   *slog.Logger
}

func New(broker Broker, patients Patients, logger *slog.Logger) *Handler {
	return &Handler{broker: broker, patients: patients, logger: logger}
}

// Register mounts token endpoints. Callers must already be authenticated.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/tokens", h.HandleGet)
	r.Get("/api/tokens/history", h.HandleHistory)
	r.Post("/api/tokens/rotate", h.HandleRotate)
	r.Post("/api/tokens/revoke", h.HandleRevoke)
}

// ownPatient resolves the record of an owner caller and writes the error
// response otherwise.
func (h *Handler) ownPatient(w http.ResponseWriter, r *http.Request) (*patientmodels.Patient, bool) {
	ctx := r.Context()
	caller, ok := requestcontext.Actor(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return nil, false
	}
	if caller.Role != id.RoleOwner {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "only owners manage capability tokens"))
		return nil, false
	}
	p, err := h.patients.GetByOwner(ctx, caller.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	return p, true
}

// HandleGet handles GET /api/tokens, issuing a token when none is active.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownPatient(w, r)
	if !ok {
		return
	}
	t, err := h.broker.EnsureToken(r.Context(), p.ID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTokenResponse(t, h.broker.EmergencyURL(t.Token)))
}

// HandleRotate handles POST /api/tokens/rotate.
func (h *Handler) HandleRotate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, ok := h.ownPatient(w, r)
	if !ok {
		return
	}
	t, err := h.broker.RotateToken(ctx, p.ID)
	if err != nil {
		h.logger.ErrorContext(ctx, "token rotation failed",
			"request_id", requestcontext.RequestID(ctx),
			"patient_id", p.ID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTokenResponse(t, h.broker.EmergencyURL(t.Token)))
}

// HandleRevoke handles POST /api/tokens/revoke. The record has no working
// emergency link until the next GET or rotate.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, ok := h.ownPatient(w, r)
	if !ok {
		return
	}
	t, err := h.broker.GetTokenByPatientID(ctx, p.ID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.broker.RevokeToken(ctx, t.ID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleHistory handles GET /api/tokens/history.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownPatient(w, r)
	if !ok {
		return
	}
	tokens, err := h.broker.History(r.Context(), p.ID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toHistory(tokens))
}

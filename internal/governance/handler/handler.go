package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"instahelp/internal/governance/models"
	patientmodels "instahelp/internal/patient/models"
	id "instahelp/pkg/domain"
	dErrors "instahelp/pkg/domain-errors"
	"instahelp/pkg/platform/httputil"
	"instahelp/pkg/requestcontext"
)

// Service defines the governance operations exposed over HTTP.
type Service interface {
	CreatePendingChange(ctx context.Context, caller id.Actor, patientID id.PatientID, path patientmodels.FieldPath, newValue json.RawMessage) (*models.PendingChange, error)
	Approve(ctx context.Context, changeID id.ChangeID, voter id.Actor, comment string) (*models.PendingChange, error)
	Reject(ctx context.Context, changeID id.ChangeID, voter id.Actor, reason string) (*models.PendingChange, error)
	Finalize(ctx context.Context, changeID id.ChangeID) (*models.PendingChange, error)
	Get(ctx context.Context, caller id.Actor, changeID id.ChangeID) (*models.PendingChange, error)
	ListForPatient(ctx context.Context, caller id.Actor, patientID id.PatientID) ([]*models.PendingChange, error)
	ListChangesRequiringVote(ctx context.Context, caller id.Actor) ([]*models.PendingChange, error)
}

// Handler wires pending change endpoints to the governance service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts governance endpoints. Callers must already be
// authenticated.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/pending-changes", h.HandleCreate)
	r.Get("/api/pending-changes", h.HandleListRequiringVote)
	r.Get("/api/pending-changes/{changeID}", h.HandleGet)
	r.Post("/api/pending-changes/{changeID}/approve", h.HandleApprove)
	r.Post("/api/pending-changes/{changeID}/reject", h.HandleReject)
	r.Post("/api/pending-changes/{changeID}/finalize", h.HandleFinalize)
	r.Get("/api/patients/{patientID}/pending-changes", h.HandleListForPatient)
}

func callerFrom(w http.ResponseWriter, r *http.Request) (id.Actor, bool) {
	caller, ok := requestcontext.Actor(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
	}
	return caller, ok
}

func changeIDFrom(w http.ResponseWriter, r *http.Request) (id.ChangeID, bool) {
	changeID, err := id.ParseChangeID(chi.URLParam(r, "changeID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.ChangeID{}, false
	}
	return changeID, true
}

// HandleCreate handles POST /api/pending-changes.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[CreateChangeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	c, err := h.service.CreatePendingChange(ctx, caller, req.parsedPatientID, req.parsedPath, req.NewValue)
	if err != nil {
		h.logger.WarnContext(ctx, "pending change creation failed",
			"request_id", requestID,
			"user_id", caller.UserID.String(),
			"field_path", req.parsedPath.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "pending change created",
		"request_id", requestID,
		"change_id", c.ID.String(),
		"field_path", c.FieldPath.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, toChangeResponse(c))
}

// HandleApprove handles POST /api/pending-changes/{changeID}/approve.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.handleVote(w, r, "approve", h.service.Approve)
}

// HandleReject handles POST /api/pending-changes/{changeID}/reject.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	h.handleVote(w, r, "reject", h.service.Reject)
}

type voteFunc func(ctx context.Context, changeID id.ChangeID, voter id.Actor, text string) (*models.PendingChange, error)

func (h *Handler) handleVote(w http.ResponseWriter, r *http.Request, decision string, vote voteFunc) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	changeID, ok := changeIDFrom(w, r)
	if !ok {
		return
	}

	body := &VoteRequest{}
	if r.ContentLength != 0 {
		body, ok = httputil.DecodeAndPrepare[VoteRequest](w, r, h.logger, ctx, requestID)
		if !ok {
			return
		}
	}

	c, err := vote(ctx, changeID, caller, body.Text())
	if err != nil {
		h.logger.WarnContext(ctx, "vote refused",
			"request_id", requestID,
			"change_id", changeID.String(),
			"decision", decision,
			"voter_id", caller.UserID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toChangeResponse(c))
}

// HandleFinalize handles POST /api/pending-changes/{changeID}/finalize. The
// caller must be able to see the change.
func (h *Handler) HandleFinalize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	changeID, ok := changeIDFrom(w, r)
	if !ok {
		return
	}

	if _, err := h.service.Get(ctx, caller, changeID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.service.Finalize(ctx, changeID)
	if err != nil {
		h.logger.WarnContext(ctx, "finalize failed",
			"request_id", requestcontext.RequestID(ctx),
			"change_id", changeID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toChangeResponse(c))
}

// HandleGet handles GET /api/pending-changes/{changeID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	changeID, ok := changeIDFrom(w, r)
	if !ok {
		return
	}
	c, err := h.service.Get(r.Context(), caller, changeID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toChangeResponse(c))
}

// HandleListRequiringVote handles GET /api/pending-changes.
func (h *Handler) HandleListRequiringVote(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	changes, err := h.service.ListChangesRequiringVote(r.Context(), caller)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toChangeList(changes))
}

// HandleListForPatient handles GET /api/patients/{patientID}/pending-changes.
func (h *Handler) HandleListForPatient(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	patientID, err := id.ParsePatientID(chi.URLParam(r, "patientID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	changes, err := h.service.ListForPatient(r.Context(), caller, patientID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toChangeList(changes))
}

package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"instahelp/internal/device/models"
	id "instahelp/pkg/domain"
	dErrors "instahelp/pkg/domain-errors"
	"instahelp/pkg/platform/httputil"
	"instahelp/pkg/requestcontext"
)

// maxPayloadBytes bounds one telemetry post.
const maxPayloadBytes = 64 << 10

// Service defines the device operations exposed over HTTP.
type Service interface {
	RegisterDevice(ctx context.Context, caller id.Actor, patientID id.PatientID, deviceID id.DeviceID, secret string) (*models.Registration, error)
	IngestVitals(ctx context.Context, deviceID id.DeviceID, raw []byte) (*models.Vitals, error)
	ListVitals(ctx context.Context, caller id.Actor, patientID id.PatientID, limit int) ([]*models.Vitals, error)
}

// Handler serves device registration, telemetry and vitals history.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// TelemetryPattern is the ingestion route; devices authenticate by payload
// signature, not bearer token.
const TelemetryPattern = "/api/v1/devices/{deviceID}/vitals"

// RegisterTelemetry mounts the unauthenticated ingestion route.
func (h *Handler) RegisterTelemetry(r chi.Router) {
	r.Post(TelemetryPattern, h.HandleIngest)
}

// Register mounts the authenticated device endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/devices", h.HandleRegister)
	r.Get("/api/patients/{patientID}/vitals", h.HandleListVitals)
}

// DeviceIDFromRequest returns the path device ID, for per-device rate limit
// keys.
func DeviceIDFromRequest(r *http.Request) string {
	return chi.URLParam(r, "deviceID")
}

// HandleIngest handles POST /api/v1/devices/{deviceID}/vitals. The raw body
// is passed through untouched so the signature covers exactly what the
// device sent.
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	deviceID, err := id.ParseDeviceID(chi.URLParam(r, "deviceID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "payload too large"))
			return
		}
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "failed to read payload"))
		return
	}

	v, err := h.service.IngestVitals(ctx, deviceID, raw)
	if err != nil {
		h.logger.WarnContext(ctx, "telemetry rejected",
			"request_id", requestID,
			"device_id", deviceID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, &IngestResponse{Success: true, VitalsID: v.ID.String()})
}

// HandleRegister handles POST /api/devices.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	caller, ok := requestcontext.Actor(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	reg, err := h.service.RegisterDevice(ctx, caller, req.parsedPatientID, req.parsedDeviceID, req.Secret)
	if err != nil {
		h.logger.WarnContext(ctx, "device registration failed",
			"request_id", requestID,
			"device_id", req.parsedDeviceID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toRegistrationResponse(reg))
}

// HandleListVitals handles GET /api/patients/{patientID}/vitals?limit=N.
func (h *Handler) HandleListVitals(w http.ResponseWriter, r *http.Request) {
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

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a non-negative integer"))
			return
		}
	}

	vitals, err := h.service.ListVitals(ctx, caller, patientID, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if vitals == nil {
		vitals = []*models.Vitals{}
	}
	httputil.WriteJSON(w, http.StatusOK, &VitalsListResponse{Vitals: vitals, Count: len(vitals)})
}

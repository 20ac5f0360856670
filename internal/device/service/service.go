// Package service authenticates device telemetry and records the vitals it
// carries.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"instahelp/internal/device/hmacauth"
	"instahelp/internal/device/models"
	patientmodels "instahelp/internal/patient/models"
	"instahelp/internal/platform/config"
	"instahelp/internal/platform/metrics"
	"instahelp/pkg/attrs"
	id "instahelp/pkg/domain"
	dErrors "instahelp/pkg/domain-errors"
	"instahelp/pkg/platform/audit"
	"instahelp/pkg/platform/sentinel"
	"instahelp/pkg/requestcontext"
)

// Store persists registrations and readings. CreateRegistration returns
// sentinel.ErrConflict when the device ID is already registered.
type Store interface {
	CreateRegistration(ctx context.Context, reg *models.Registration) error
	FindRegistration(ctx context.Context, deviceID id.DeviceID) (*models.Registration, error)
	TouchLastSeen(ctx context.Context, deviceID id.DeviceID, at time.Time) error
	InsertVitals(ctx context.Context, v *models.Vitals) error
	ListVitals(ctx context.Context, patientID id.PatientID, limit int) ([]*models.Vitals, error)
}

// ReplayGuard claims a (device, timestamp) pair for window. A second claim
// inside the window returns sentinel.ErrAlreadyUsed. Release drops a claim
// whose reading was never stored so the device can resend it.
type ReplayGuard interface {
	Claim(ctx context.Context, deviceID id.DeviceID, timestamp string, window time.Duration) error
	Release(ctx context.Context, deviceID id.DeviceID, timestamp string) error
}

// Patients is the slice of the patient service telemetry needs.
type Patients interface {
	Get(ctx context.Context, patientID id.PatientID) (*patientmodels.Patient, error)
	CanReadPrivate(ctx context.Context, caller id.Actor, p *patientmodels.Patient) (bool, error)
	UpdateLastVitals(ctx context.Context, patientID id.PatientID, vitals patientmodels.LastVitals) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

const (
	// MinSecretLength is the shortest device secret accepted at registration.
	MinSecretLength = 16
	// DefaultVitalsLimit caps ListVitals when the caller gives no limit.
	DefaultVitalsLimit = 100
	maxVitalsLimit     = 1000
	defaultWindow      = 10 * time.Minute
)

type Service struct {
	store          Store
	replay         ReplayGuard
	patients       Patients
	fleetSecret    []byte
	mode           config.DeviceAuthMode
	replayWindow   time.Duration
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.auditPublisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAuthMode switches between per-device keys and the shared fleet secret.
func WithAuthMode(mode config.DeviceAuthMode) Option {
	return func(s *Service) { s.mode = mode }
}

func WithReplayWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.replayWindow = d
		}
	}
}

// New builds the service. fleetSecret keys the stored secret hashes and, in
// fleet mode, verifies every device directly.
func New(store Store, replay ReplayGuard, patients Patients, fleetSecret []byte, opts ...Option) *Service {
	s := &Service{
		store:        store,
		replay:       replay,
		patients:     patients,
		fleetSecret:  fleetSecret,
		mode:         config.DeviceAuthPerDevice,
		replayWindow: defaultWindow,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VerifySignature checks a payload against the fleet secret.
func (s *Service) VerifySignature(p models.Payload) bool {
	return hmacauth.Verify(p, s.fleetSecret)
}

// VerifyDevice checks a payload with the key the configured mode selects.
// In per-device mode the key is derived from reg, so a payload signed for
// one device never verifies as another.
func (s *Service) VerifyDevice(p models.Payload, reg *models.Registration) (bool, error) {
	if s.mode == config.DeviceAuthFleet {
		return s.VerifySignature(p), nil
	}
	key, err := hmacauth.DeriveDeviceKey(reg.SecretHash, reg.DeviceID)
	if err != nil {
		return false, err
	}
	defer clear(key)
	return hmacauth.Verify(p, key), nil
}

// RegisterDevice binds deviceID to a patient the caller owns. Only a keyed
// hash of secret is kept.
func (s *Service) RegisterDevice(ctx context.Context, caller id.Actor, patientID id.PatientID, deviceID id.DeviceID, secret string) (*models.Registration, error) {
	if len(secret) < MinSecretLength {
		return nil, dErrors.New(dErrors.CodeValidation, "device secret is too short")
	}
	if len(s.fleetSecret) == 0 {
		return nil, dErrors.New(dErrors.CodeKeyUnavailable, "device secret key is not configured")
	}
	p, err := s.patients.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if !caller.IsOwner() || !p.IsOwnedBy(caller.UserID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the record owner can register devices")
	}

	reg := &models.Registration{
		DeviceID:     deviceID,
		PatientID:    patientID,
		SecretHash:   hmacauth.HashSecret(s.fleetSecret, secret),
		RegisteredAt: requestcontext.Now(ctx),
	}
	if err := s.store.CreateRegistration(ctx, reg); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "device is already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register device")
	}
	s.logAudit(ctx, audit.EventDeviceRegistered,
		"device_id", deviceID.String(),
		"patient_id", patientID.String(),
	)
	return reg, nil
}

// IngestVitals authenticates a telemetry payload posted for deviceID and
// stores the reading. Nothing is written unless the signature verifies and
// the reading is not a replay.
func (s *Service) IngestVitals(ctx context.Context, deviceID id.DeviceID, raw []byte) (*models.Vitals, error) {
	reg, err := s.store.FindRegistration(ctx, deviceID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "device not registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up device")
	}

	payload, err := models.ParsePayload(raw)
	if err != nil {
		return nil, err
	}
	reading, err := models.ReadingFromPayload(payload)
	if err != nil {
		return nil, err
	}
	if reading.DeviceID != deviceID {
		return nil, dErrors.New(dErrors.CodeValidation, "payload device_id does not match")
	}

	ok, err := s.VerifyDevice(payload, reg)
	if err != nil {
		return nil, err
	}
	if !ok {
		if s.metrics != nil {
			s.metrics.SignatureRejected.Inc()
		}
		s.logAudit(ctx, audit.EventDeviceSignatureRejected,
			"device_id", deviceID.String(),
			"patient_id", reg.PatientID.String(),
		)
		return nil, dErrors.New(dErrors.CodeSignatureInvalid, "invalid device signature")
	}

	if err := s.replay.Claim(ctx, deviceID, reading.Timestamp, s.replayWindow); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			if s.metrics != nil {
				s.metrics.TelemetryReplays.Inc()
			}
			return nil, dErrors.New(dErrors.CodeConflict, "telemetry reading already received")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check telemetry replay")
	}

	now := requestcontext.Now(ctx)
	v := &models.Vitals{
		ID:             id.NewVitalsID(),
		PatientID:      reg.PatientID,
		DeviceID:       deviceID,
		Timestamp:      reading.Timestamp,
		HeartRate:      reading.HeartRate,
		Temperature:    reading.Temperature,
		AdditionalData: reading.AdditionalData,
		CreatedAt:      now,
	}
	if err := s.store.InsertVitals(ctx, v); err != nil {
		if relErr := s.replay.Release(context.WithoutCancel(ctx), deviceID, reading.Timestamp); relErr != nil {
			s.logger.WarnContext(ctx, "failed to release telemetry claim",
				"device_id", deviceID.String(),
				"error", relErr,
			)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store vitals")
	}

	if err := s.patients.UpdateLastVitals(ctx, reg.PatientID, reading.LastVitals()); err != nil {
		s.logger.WarnContext(ctx, "failed to update last vitals",
			"patient_id", reg.PatientID.String(),
			"error", err,
		)
	}
	if err := s.store.TouchLastSeen(ctx, deviceID, now); err != nil {
		s.logger.WarnContext(ctx, "failed to update device last seen",
			"device_id", deviceID.String(),
			"error", err,
		)
	}

	s.logAudit(ctx, audit.EventVitalsIngested,
		"device_id", deviceID.String(),
		"patient_id", reg.PatientID.String(),
		"vitals_id", v.ID.String(),
	)
	if s.metrics != nil {
		s.metrics.VitalsIngested.Inc()
	}
	return v, nil
}

// ListVitals returns the patient's readings newest first. The caller must be
// allowed to read the private profile.
func (s *Service) ListVitals(ctx context.Context, caller id.Actor, patientID id.PatientID, limit int) ([]*models.Vitals, error) {
	p, err := s.patients.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}
	allowed, err := s.patients.CanReadPrivate(ctx, caller, p)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to authorize vitals access")
	}
	if !allowed {
		return nil, dErrors.New(dErrors.CodeForbidden, "not authorized to view vitals")
	}

	switch {
	case limit <= 0:
		limit = DefaultVitalsLimit
	case limit > maxVitalsLimit:
		limit = maxVitalsLimit
	}
	vitals, err := s.store.ListVitals(ctx, patientID, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list vitals")
	}
	return vitals, nil
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", string(event), "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(event), args...)
	}
	if s.auditPublisher == nil {
		return
	}
	e := audit.NewEvent(ctx, event, audit.ResourceDevice, attrs.ExtractString(attributes, "device_id"))
	e.Details = attrs.Details(attributes, "patient_id", "vitals_id")
	if err := s.auditPublisher.Emit(ctx, e); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "event", string(event), "error", err)
	}
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	tokenmodels "instahelp/internal/captoken/models"
	"instahelp/internal/envelope"
	"instahelp/internal/patient/models"
	"instahelp/pkg/attrs"
	id "instahelp/pkg/domain"
	dErrors "instahelp/pkg/domain-errors"
	"instahelp/pkg/platform/audit"
	"instahelp/pkg/platform/sentinel"
	"instahelp/pkg/requestcontext"
)

// Store persists patient records. Update is a compare-and-swap on Version:
// it returns sentinel.ErrConflict when the stored version differs from
// expectedVersion and bumps the version on success.
type Store interface {
	Create(ctx context.Context, p *models.Patient) error
	FindByID(ctx context.Context, patientID id.PatientID) (*models.Patient, error)
	FindByOwner(ctx context.Context, ownerID id.UserID) (*models.Patient, error)
	Update(ctx context.Context, p *models.Patient, expectedVersion int) error
	UpdateLastVitals(ctx context.Context, patientID id.PatientID, vitals models.LastVitals) error
}

// RecordCipher seals and opens the private profile.
type RecordCipher interface {
	EncryptRecord(plaintext []byte) (envelope.Sealed, error)
	DecryptRecord(sealed envelope.Sealed) ([]byte, error)
}

// TokenIssuer hands out the patient's capability token.
type TokenIssuer interface {
	EnsureToken(ctx context.Context, patientID id.PatientID) (*tokenmodels.Token, error)
}

// ClinicianChecker answers whether a user is a credential-verified clinician.
type ClinicianChecker interface {
	IsVerifiedClinician(ctx context.Context, userID id.UserID) (bool, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service owns patient records outside of governed changes: creation by the
// owner, reads, and device-driven vitals updates.
type Service struct {
	store          Store
	cipher         RecordCipher
	tokens         TokenIssuer
	clinicians     ClinicianChecker
	logger         *slog.Logger
	auditPublisher AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.auditPublisher = p }
}

func New(store Store, cipher RecordCipher, tokens TokenIssuer, clinicians ClinicianChecker, opts ...Option) *Service {
	s := &Service{
		store:      store,
		cipher:     cipher,
		tokens:     tokens,
		clinicians: clinicians,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateResult is a freshly created record and its first capability token.
// Token is nil when issuance failed; the owner can request one later.
type CreateResult struct {
	Patient *models.Patient
	Token   *tokenmodels.Token
}

// CreateProfile registers the caller's record. Only owners may create one,
// and only once.
func (s *Service) CreateProfile(ctx context.Context, caller id.Actor, public models.PublicView, private models.PrivateProfile) (*CreateResult, error) {
	if !caller.IsOwner() {
		return nil, dErrors.New(dErrors.CodeForbidden, "only account holders can create a profile")
	}
	public.LastVitals = nil
	if err := public.Validate(); err != nil {
		return nil, err
	}
	if err := private.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.store.FindByOwner(ctx, caller.UserID); err == nil {
		return nil, dErrors.New(dErrors.CodeConflict, "profile already exists")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check existing profile")
	}

	sealed, err := s.sealPrivate(private)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	p := &models.Patient{
		ID:         id.NewPatientID(),
		OwnerID:    caller.UserID,
		PublicView: public,
		Private:    sealed,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Create(ctx, p); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "profile already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create profile")
	}
	s.logAudit(ctx, audit.EventProfileInitialized, "patient_id", p.ID.String())

	result := &CreateResult{Patient: p}
	tok, err := s.tokens.EnsureToken(ctx, p.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to issue first capability token",
			"patient_id", p.ID.String(),
			"error", err,
		)
		return result, nil
	}
	result.Token = tok
	return result, nil
}

// Get loads a record with no authorization check; callers decide access.
func (s *Service) Get(ctx context.Context, patientID id.PatientID) (*models.Patient, error) {
	p, err := s.store.FindByID(ctx, patientID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "patient not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load patient")
	}
	return p, nil
}

// GetByOwner returns the record owned by ownerID.
func (s *Service) GetByOwner(ctx context.Context, ownerID id.UserID) (*models.Patient, error) {
	p, err := s.store.FindByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "patient not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load patient")
	}
	return p, nil
}

// GetPublicView returns the unencrypted emergency view.
func (s *Service) GetPublicView(ctx context.Context, patientID id.PatientID) (*models.PublicView, error) {
	p, err := s.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}
	view := p.EmergencyView()
	return &view, nil
}

// CanReadPrivate reports whether caller may see the decrypted profile: the
// record's owner or any verified clinician.
func (s *Service) CanReadPrivate(ctx context.Context, caller id.Actor, p *models.Patient) (bool, error) {
	if caller.UserID.IsNil() {
		return false, nil
	}
	if caller.IsOwner() {
		return p.IsOwnedBy(caller.UserID), nil
	}
	if caller.IsClinician() {
		return s.clinicians.IsVerifiedClinician(ctx, caller.UserID)
	}
	return false, nil
}

// GetPrivateProfile decrypts the profile for an authorized caller.
func (s *Service) GetPrivateProfile(ctx context.Context, caller id.Actor, patientID id.PatientID) (*models.PrivateProfile, error) {
	p, err := s.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return s.ReadPrivate(ctx, caller, p)
}

// ReadPrivate authorizes caller against an already loaded record, then
// decrypts and audits the access.
func (s *Service) ReadPrivate(ctx context.Context, caller id.Actor, p *models.Patient) (*models.PrivateProfile, error) {
	ok, err := s.CanReadPrivate(ctx, caller, p)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to authorize profile access")
	}
	if !ok {
		return nil, dErrors.New(dErrors.CodeForbidden, "not authorized to view this profile")
	}
	profile, err := s.DecryptPrivate(p)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to decrypt private profile",
			"patient_id", p.ID.String(),
			"error", err,
		)
		return nil, err
	}
	s.logAudit(ctx, audit.EventPrivateProfileAccessed, "patient_id", p.ID.String())
	return profile, nil
}

// DecryptPrivate opens the sealed profile. Integrity failures surface as
// CodeIntegrity and missing key material as CodeKeyUnavailable.
func (s *Service) DecryptPrivate(p *models.Patient) (*models.PrivateProfile, error) {
	plaintext, err := s.cipher.DecryptRecord(p.Private)
	if err != nil {
		return nil, err
	}
	defer clear(plaintext)
	var profile models.PrivateProfile
	if err := json.Unmarshal(plaintext, &profile); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeIntegrity, "private profile is not valid JSON")
	}
	return &profile, nil
}

// SavePublicView writes a new public view, failing with CodeConflict if the
// record changed since p was loaded.
func (s *Service) SavePublicView(ctx context.Context, p *models.Patient, view models.PublicView) error {
	view.LastVitals = nil
	next := *p
	next.PublicView = view
	return s.save(ctx, p, &next)
}

// SavePrivateProfile re-encrypts the profile under a fresh content key and
// writes it with the same version check as SavePublicView.
func (s *Service) SavePrivateProfile(ctx context.Context, p *models.Patient, profile models.PrivateProfile) error {
	sealed, err := s.sealPrivate(profile)
	if err != nil {
		return err
	}
	next := *p
	next.Private = sealed
	return s.save(ctx, p, &next)
}

func (s *Service) save(ctx context.Context, current, next *models.Patient) error {
	next.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.Update(ctx, next, current.Version); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrConflict):
			return dErrors.New(dErrors.CodeConflict, "patient record was modified concurrently")
		case errors.Is(err, sentinel.ErrNotFound):
			return dErrors.New(dErrors.CodeNotFound, "patient not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update patient")
	}
	*current = *next
	current.Version++
	return nil
}

// UpdateLastVitals records the newest device reading on the public view.
func (s *Service) UpdateLastVitals(ctx context.Context, patientID id.PatientID, vitals models.LastVitals) error {
	if err := s.store.UpdateLastVitals(ctx, patientID, vitals); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "patient not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update last vitals")
	}
	return nil
}

func (s *Service) sealPrivate(profile models.PrivateProfile) (envelope.Sealed, error) {
	plaintext, err := json.Marshal(profile)
	if err != nil {
		return envelope.Sealed{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode private profile")
	}
	defer clear(plaintext)
	return s.cipher.EncryptRecord(plaintext)
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", string(event), "log_type", "audit")
	s.logger.InfoContext(ctx, string(event), args...)
	if s.auditPublisher == nil {
		return
	}
	e := audit.NewEvent(ctx, event, audit.ResourcePatient, attrs.ExtractString(attributes, "patient_id"))
	if err := s.auditPublisher.Emit(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "event", string(event), "error", err)
	}
}

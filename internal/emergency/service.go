// Package emergency serves the token-based read path: anyone holding a
// capability token sees the public view; signed-in owners and verified
// clinicians may additionally see the decrypted profile.
package emergency

import (
	"context"
	"log/slog"

	tokenmodels "instahelp/internal/captoken/models"
	patientmodels "instahelp/internal/patient/models"
	"instahelp/internal/platform/metrics"
	id "instahelp/pkg/domain"
	dErrors "instahelp/pkg/domain-errors"
	"instahelp/pkg/platform/audit"
	"instahelp/pkg/requestcontext"
)

// Tokens resolves bearer tokens.
type Tokens interface {
	GetTokenByToken(ctx context.Context, token string) (*tokenmodels.Token, error)
	UpdateLastAccessed(ctx context.Context, tokenID id.TokenID)
}

// Patients loads records and gates the private profile.
type Patients interface {
	Get(ctx context.Context, patientID id.PatientID) (*patientmodels.Patient, error)
	ReadPrivate(ctx context.Context, caller id.Actor, p *patientmodels.Patient) (*patientmodels.PrivateProfile, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Outcomes recorded on the emergency view counter.
const (
	OutcomeServed    = "served"
	OutcomeNotFound  = "not_found"
	OutcomeForbidden = "forbidden"
	OutcomeError     = "error"
)

// View is what a token holder gets back.
type View struct {
	PatientID id.PatientID                  `json:"patient_id"`
	Public    patientmodels.PublicView      `json:"public_view"`
	Private   *patientmodels.PrivateProfile `json:"private_profile,omitempty"`
}

type Service struct {
	tokens         Tokens
	patients       Patients
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

func New(tokens Tokens, patients Patients, opts ...Option) *Service {
	s := &Service{tokens: tokens, patients: patients, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// View resolves token to the patient's public emergency view. Malformed,
// unknown, revoked and expired tokens all answer CodeNotFound.
func (s *Service) View(ctx context.Context, token string) (*View, error) {
	p, tok, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	s.served(ctx, p, tok, false)
	return &View{PatientID: p.ID, Public: p.EmergencyView()}, nil
}

// ViewWithProfile is View plus the decrypted private profile, for callers
// who may read it.
func (s *Service) ViewWithProfile(ctx context.Context, token string, caller id.Actor) (*View, error) {
	p, tok, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	profile, err := s.patients.ReadPrivate(ctx, caller, p)
	if err != nil {
		s.observe(outcomeFor(err))
		return nil, err
	}
	s.served(ctx, p, tok, true)
	return &View{PatientID: p.ID, Public: p.EmergencyView(), Private: profile}, nil
}

func (s *Service) resolve(ctx context.Context, token string) (*patientmodels.Patient, *tokenmodels.Token, error) {
	tok, err := s.tokens.GetTokenByToken(ctx, token)
	if err != nil {
		s.observe(outcomeFor(err))
		return nil, nil, err
	}
	p, err := s.patients.Get(ctx, tok.PatientID)
	if err != nil {
		s.observe(outcomeFor(err))
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeNotFound, "token not found")
		}
		return nil, nil, err
	}
	return p, tok, nil
}

func (s *Service) served(ctx context.Context, p *patientmodels.Patient, tok *tokenmodels.Token, withProfile bool) {
	s.tokens.UpdateLastAccessed(ctx, tok.ID)
	s.observe(OutcomeServed)
	s.logAudit(ctx, p.ID, tok, withProfile)
}

func (s *Service) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveEmergencyView(outcome)
	}
}

func outcomeFor(err error) string {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeNotFound:
		return OutcomeNotFound
	case dErrors.CodeForbidden:
		return OutcomeForbidden
	}
	return OutcomeError
}

func (s *Service) logAudit(ctx context.Context, patientID id.PatientID, tok *tokenmodels.Token, withProfile bool) {
	device := DeviceLabel(requestcontext.UserAgent(ctx))
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(audit.EventEmergencyViewAccessed),
			"patient_id", patientID.String(),
			"token_id", tok.ID.String(),
			"token_version", tok.Version,
			"with_profile", withProfile,
			"device", device,
			"request_id", requestcontext.RequestID(ctx),
			"event", string(audit.EventEmergencyViewAccessed),
			"log_type", "audit",
		)
	}
	if s.auditPublisher == nil {
		return
	}
	e := audit.NewEvent(ctx, audit.EventEmergencyViewAccessed, audit.ResourcePatient, patientID.String())
	e.Details = map[string]any{
		"token_id":      tok.ID.String(),
		"token_version": tok.Version,
		"with_profile":  withProfile,
		"device":        device,
	}
	if err := s.auditPublisher.Emit(ctx, e); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "event", string(audit.EventEmergencyViewAccessed), "error", err)
	}
}

// Package service implements the capability token broker: issuing, resolving,
// rotating and revoking the anonymous bearer tokens behind emergency links.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"instahelp/internal/captoken/models"
	"instahelp/internal/platform/metrics"
	"instahelp/pkg/attrs"
	id "instahelp/pkg/domain"
	dErrors "instahelp/pkg/domain-errors"
	"instahelp/pkg/platform/audit"
	"instahelp/pkg/platform/sentinel"
	"instahelp/pkg/platform/shardlock"
	"instahelp/pkg/requestcontext"
)

// Store persists tokens. Create must return sentinel.ErrConflict when the
// patient already has a non-revoked token or the token string is taken.
type Store interface {
	Create(ctx context.Context, token *models.Token) error
	FindByToken(ctx context.Context, token string) (*models.Token, error)
	FindActiveByPatient(ctx context.Context, patientID id.PatientID) (*models.Token, error)
	LatestVersion(ctx context.Context, patientID id.PatientID) (int, error)
	Revoke(ctx context.Context, tokenID id.TokenID, at time.Time) error
	TouchLastAccessed(ctx context.Context, tokenID id.TokenID, at time.Time) error
	ListByPatient(ctx context.Context, patientID id.PatientID) ([]*models.Token, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

const maxCreateAttempts = 3

type Broker struct {
	store          Store
	locks          *shardlock.Locks
	ttl            time.Duration
	frontendURL    string
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
}

type Option func(*Broker)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) { b.logger = logger }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(b *Broker) { b.auditPublisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Broker) { b.metrics = m }
}

// WithTTL gives new tokens an expiry. Zero keeps tokens valid until revoked.
func WithTTL(ttl time.Duration) Option {
	return func(b *Broker) { b.ttl = ttl }
}

// WithFrontendURL sets the base used by EmergencyURL.
func WithFrontendURL(url string) Option {
	return func(b *Broker) { b.frontendURL = url }
}

func New(store Store, opts ...Option) *Broker {
	b := &Broker{
		store:  store,
		locks:  shardlock.New(0),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// EmergencyURL returns the public link for a token string.
func (b *Broker) EmergencyURL(token string) string {
	return models.EmergencyURL(b.frontendURL, token)
}

// CreateToken issues the patient's first active token. It fails with
// CodeConflict when one is already active; use RotateToken to replace it.
func (b *Broker) CreateToken(ctx context.Context, patientID id.PatientID) (*models.Token, error) {
	var created *models.Token
	err := b.locks.Do(ctx, patientID.String(), func(ctx context.Context) error {
		t, err := b.create(ctx, patientID)
		created = t
		return err
	})
	if err != nil {
		return nil, err
	}
	b.logAudit(ctx, audit.EventTokenCreated,
		"patient_id", patientID.String(),
		"token_id", created.ID.String(),
		"version", created.Version,
	)
	return created, nil
}

func (b *Broker) create(ctx context.Context, patientID id.PatientID) (*models.Token, error) {
	latest, err := b.store.LatestVersion(ctx, patientID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read token version")
	}

	now := requestcontext.Now(ctx)
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		value, err := models.GenerateToken()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate token")
		}
		t := &models.Token{
			ID:        id.NewTokenID(),
			PatientID: patientID,
			Token:     value,
			Version:   latest + 1,
			CreatedAt: now,
		}
		if b.ttl > 0 {
			exp := now.Add(b.ttl)
			t.ExpiresAt = &exp
		}
		err = b.store.Create(ctx, t)
		if err == nil {
			if b.metrics != nil {
				b.metrics.IncrementTokensIssued()
			}
			return t, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create token")
		}
		// Conflict is either an active token for this patient or a token
		// string collision; only the latter is worth retrying.
		if _, findErr := b.store.FindActiveByPatient(ctx, patientID); findErr == nil {
			return nil, dErrors.New(dErrors.CodeConflict, "patient already has an active token")
		}
	}
	return nil, dErrors.New(dErrors.CodeInternal, "failed to allocate a unique token")
}

// GetTokenByToken resolves a bearer string. Revoked, expired and unknown
// tokens are indistinguishable to the caller: all are CodeNotFound.
func (b *Broker) GetTokenByToken(ctx context.Context, token string) (*models.Token, error) {
	if !models.IsValidTokenFormat(token) {
		return nil, dErrors.New(dErrors.CodeNotFound, "token not found")
	}
	t, err := b.store.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "token not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up token")
	}
	if !t.IsUsable(requestcontext.Now(ctx)) {
		return nil, dErrors.New(dErrors.CodeNotFound, "token not found")
	}
	return t, nil
}

// GetTokenByPatientID returns the newest non-revoked token for the patient.
func (b *Broker) GetTokenByPatientID(ctx context.Context, patientID id.PatientID) (*models.Token, error) {
	t, err := b.store.FindActiveByPatient(ctx, patientID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no active token for patient")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up token")
	}
	return t, nil
}

// RevokeToken marks a token revoked. Revoking an already revoked token is a no-op.
func (b *Broker) RevokeToken(ctx context.Context, tokenID id.TokenID) error {
	err := b.store.Revoke(ctx, tokenID, requestcontext.Now(ctx))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "token not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke token")
	}
	b.logAudit(ctx, audit.EventTokenRevoked, "token_id", tokenID.String())
	return nil
}

// RotateToken revokes the patient's active token, if any, and issues a new
// one with the next version. Rotations for one patient are serialized.
func (b *Broker) RotateToken(ctx context.Context, patientID id.PatientID) (*models.Token, error) {
	var (
		rotated  *models.Token
		previous *models.Token
	)
	err := b.locks.Do(ctx, patientID.String(), func(ctx context.Context) error {
		current, err := b.store.FindActiveByPatient(ctx, patientID)
		switch {
		case err == nil:
			if err := b.store.Revoke(ctx, current.ID, requestcontext.Now(ctx)); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke current token")
			}
			previous = current
		case errors.Is(err, sentinel.ErrNotFound):
		default:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up current token")
		}

		t, err := b.create(ctx, patientID)
		rotated = t
		return err
	})
	if err != nil {
		return nil, err
	}

	args := []any{
		"patient_id", patientID.String(),
		"token_id", rotated.ID.String(),
		"version", rotated.Version,
	}
	if previous != nil {
		args = append(args, "previous_token_id", previous.ID.String())
	}
	b.logAudit(ctx, audit.EventTokenRotated, args...)
	if b.metrics != nil {
		b.metrics.IncrementTokensRotated()
	}
	return rotated, nil
}

// EnsureToken returns the patient's usable token, issuing one when none is
// active and replacing one that has expired.
func (b *Broker) EnsureToken(ctx context.Context, patientID id.PatientID) (*models.Token, error) {
	current, err := b.GetTokenByPatientID(ctx, patientID)
	if err == nil {
		if current.IsUsable(requestcontext.Now(ctx)) {
			return current, nil
		}
		return b.RotateToken(ctx, patientID)
	}
	if !dErrors.HasCode(err, dErrors.CodeNotFound) {
		return nil, err
	}
	t, err := b.CreateToken(ctx, patientID)
	if dErrors.HasCode(err, dErrors.CodeConflict) {
		// Lost a race with a concurrent create; the winner's token is the answer.
		return b.GetTokenByPatientID(ctx, patientID)
	}
	return t, err
}

// History lists every token ever issued to the patient, newest first.
func (b *Broker) History(ctx context.Context, patientID id.PatientID) ([]*models.Token, error) {
	tokens, err := b.store.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list tokens")
	}
	return tokens, nil
}

// UpdateLastAccessed records a read. It is best-effort: failures are logged
// and never reach the read path.
func (b *Broker) UpdateLastAccessed(ctx context.Context, tokenID id.TokenID) {
	if err := b.store.TouchLastAccessed(ctx, tokenID, requestcontext.Now(ctx)); err != nil {
		b.logger.WarnContext(ctx, "failed to update token last access",
			"token_id", tokenID.String(),
			"error", err,
		)
	}
}

func (b *Broker) logAudit(ctx context.Context, event audit.AuditEvent, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", string(event), "log_type", "audit")
	if b.logger != nil {
		b.logger.InfoContext(ctx, string(event), args...)
	}
	if b.auditPublisher == nil {
		return
	}
	e := audit.NewEvent(ctx, event, audit.ResourceToken, attrs.ExtractString(attributes, "token_id"))
	e.Details = map[string]any{"patient_id": attrs.ExtractString(attributes, "patient_id")}
	if err := b.auditPublisher.Emit(ctx, e); err != nil && b.logger != nil {
		b.logger.WarnContext(ctx, "failed to emit audit event", "event", string(event), "error", err)
	}
}

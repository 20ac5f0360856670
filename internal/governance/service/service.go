// Package service runs the dual-control change workflow: proposals, votes,
// the veto, and applying approved changes to patient records.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"instahelp/internal/directory"
	"instahelp/internal/governance/models"
	"instahelp/internal/notify"
	patientmodels "instahelp/internal/patient/models"
	"instahelp/internal/platform/metrics"
	"instahelp/pkg/attrs"
	id "instahelp/pkg/domain"
	dErrors "instahelp/pkg/domain-errors"
	"instahelp/pkg/platform/audit"
	"instahelp/pkg/platform/sentinel"
	strs "instahelp/pkg/platform/strings"
	txcontext "instahelp/pkg/platform/tx"
	"instahelp/pkg/requestcontext"
)

// Store persists pending changes. Update is a compare-and-swap on Version
// and returns sentinel.ErrConflict when the stored version differs.
type Store interface {
	Create(ctx context.Context, c *models.PendingChange) error
	FindByID(ctx context.Context, changeID id.ChangeID) (*models.PendingChange, error)
	FindForUpdate(ctx context.Context, changeID id.ChangeID) (*models.PendingChange, error)
	Update(ctx context.Context, c *models.PendingChange, expectedVersion int) error
	ListOpenByPatient(ctx context.Context, patientID id.PatientID) ([]*models.PendingChange, error)
	ListOpen(ctx context.Context) ([]*models.PendingChange, error)
}

// Patients is the slice of the patient service governance drives.
type Patients interface {
	Get(ctx context.Context, patientID id.PatientID) (*patientmodels.Patient, error)
	GetByOwner(ctx context.Context, ownerID id.UserID) (*patientmodels.Patient, error)
	DecryptPrivate(p *patientmodels.Patient) (*patientmodels.PrivateProfile, error)
	SavePublicView(ctx context.Context, p *patientmodels.Patient, view patientmodels.PublicView) error
	SavePrivateProfile(ctx context.Context, p *patientmodels.Patient, profile patientmodels.PrivateProfile) error
}

// Directory answers who may vote and where to reach them.
type Directory interface {
	IsVerifiedClinician(ctx context.Context, userID id.UserID) (bool, error)
	ContactFor(ctx context.Context, userID id.UserID) (string, error)
	ListVerifiedClinicians(ctx context.Context) ([]*directory.Account, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

const (
	defaultNotifyTimeout     = 5 * time.Second
	defaultNotifyConcurrency = 8
)

var tracer = otel.Tracer("instahelp/governance")

type Service struct {
	store             Store
	tx                StoreTx
	patients          Patients
	directory         Directory
	notifier          notify.Notifier
	notifyTimeout     time.Duration
	notifyConcurrency int
	logger            *slog.Logger
	auditPublisher    AuditPublisher
	metrics           *metrics.Metrics
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

// WithStoreTx replaces the in-process per-change lock, e.g. with a
// database transaction that locks the change row.
func WithStoreTx(tx StoreTx) Option {
	return func(s *Service) { s.tx = tx }
}

// WithNotifyLimits bounds approval notifications: the whole fan-out gets
// timeout and at most concurrency sends run at once.
func WithNotifyLimits(timeout time.Duration, concurrency int) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.notifyTimeout = timeout
		}
		if concurrency > 0 {
			s.notifyConcurrency = concurrency
		}
	}
}

func New(store Store, patients Patients, dir Directory, notifier notify.Notifier, opts ...Option) *Service {
	s := &Service{
		store:             store,
		patients:          patients,
		directory:         dir,
		notifier:          notifier,
		notifyTimeout:     defaultNotifyTimeout,
		notifyConcurrency: defaultNotifyConcurrency,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = NewShardedTx(store, 0)
	}
	return s
}

// CreatePendingChange proposes setting path on the patient's record to
// newValue. The value is validated against the current document now, so a
// change that could never apply is refused up front.
func (s *Service) CreatePendingChange(ctx context.Context, caller id.Actor, patientID id.PatientID, path patientmodels.FieldPath, newValue json.RawMessage) (*models.PendingChange, error) {
	ctx, span := tracer.Start(ctx, "governance.CreatePendingChange", trace.WithAttributes(
		attribute.String("patient_id", patientID.String()),
		attribute.String("field_path", path.String()),
	))
	defer span.End()

	c, err := s.createPendingChange(ctx, caller, patientID, path, newValue)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	return c, nil
}

func (s *Service) createPendingChange(ctx context.Context, caller id.Actor, patientID id.PatientID, path patientmodels.FieldPath, newValue json.RawMessage) (*models.PendingChange, error) {
	p, err := s.patients.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeInitiator(ctx, caller, p); err != nil {
		return nil, err
	}

	docs, err := s.loadDocuments(p, path)
	if err != nil {
		return nil, err
	}
	oldValue, err := path.Get(docs)
	if err != nil {
		return nil, err
	}
	if err := path.Apply(docs, newValue); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	c := &models.PendingChange{
		ID:            id.NewChangeID(),
		PatientID:     patientID,
		InitiatedBy:   caller.UserID,
		InitiatedRole: caller.Role,
		FieldPath:     path,
		OldValue:      oldValue,
		NewValue:      newValue,
		Status:        models.StatusPending,
		Approvals:     []models.Vote{},
		Rejections:    []models.Vote{},
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create pending change")
	}

	s.logAudit(ctx, audit.EventPendingChangeCreated,
		"change_id", c.ID.String(),
		"patient_id", patientID.String(),
		"field_path", path.String(),
	)
	if s.metrics != nil {
		s.metrics.IncrementChangesCreated(string(caller.Role), string(path.Target))
	}
	s.notifyApprovers(ctx, c, p)
	return c, nil
}

func (s *Service) authorizeInitiator(ctx context.Context, caller id.Actor, p *patientmodels.Patient) error {
	switch {
	case caller.IsOwner():
		if !p.IsOwnedBy(caller.UserID) {
			return dErrors.New(dErrors.CodeForbidden, "only the record owner can propose changes as owner")
		}
		return nil
	case caller.IsClinician():
		ok, err := s.directory.IsVerifiedClinician(ctx, caller.UserID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify clinician")
		}
		if !ok {
			return dErrors.New(dErrors.CodeForbidden, "clinician credentials are not verified")
		}
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "role may not propose changes")
}

// loadDocuments returns the document path addresses, decrypting the private
// profile only when the path targets it.
func (s *Service) loadDocuments(p *patientmodels.Patient, path patientmodels.FieldPath) (patientmodels.Documents, error) {
	public := p.PublicView
	docs := patientmodels.Documents{Public: &public}
	if path.IsPrivate() {
		profile, err := s.patients.DecryptPrivate(p)
		if err != nil {
			return patientmodels.Documents{}, err
		}
		docs.Private = profile
	}
	return docs, nil
}

// notifyApprovers tells everyone whose vote the change needs. Delivery
// failures are logged and counted; they never fail the proposal.
func (s *Service) notifyApprovers(ctx context.Context, c *models.PendingChange, p *patientmodels.Patient) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	recipients := s.approverContacts(ctx, c, p)
	summary := notify.ChangeSummary{
		ChangeID:  c.ID.String(),
		FieldPath: c.FieldPath.String(),
		NewValue:  c.NewValue,
		Private:   c.FieldPath.IsPrivate(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.notifyConcurrency)
	for _, recipient := range recipients {
		g.Go(func() error {
			if err := s.notifier.Notify(gctx, recipient, notify.ApprovalRequestMessage(recipient, summary)); err != nil {
				s.logger.WarnContext(ctx, "failed to notify approver",
					"change_id", c.ID.String(),
					"error", err,
				)
				if s.metrics != nil {
					s.metrics.NotificationErrors.Inc()
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Service) approverContacts(ctx context.Context, c *models.PendingChange, p *patientmodels.Patient) []string {
	var recipients []string
	if c.RequiresRole(id.RoleOwner) && c.InitiatedBy != p.OwnerID {
		contact, err := s.directory.ContactFor(ctx, p.OwnerID)
		if err != nil {
			s.logger.WarnContext(ctx, "no contact for record owner",
				"change_id", c.ID.String(),
				"error", err,
			)
		} else {
			recipients = append(recipients, contact)
		}
	}
	if c.RequiresRole(id.RoleClinician) {
		clinicians, err := s.directory.ListVerifiedClinicians(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to list clinicians for notification",
				"change_id", c.ID.String(),
				"error", err,
			)
		}
		for _, acct := range clinicians {
			if acct.ID == c.InitiatedBy || acct.Email == "" {
				continue
			}
			recipients = append(recipients, acct.Email)
		}
	}
	return strs.DedupeAndTrim(recipients)
}

// Approve records voter's approval. When it completes the quorum the change
// is applied in the same step. Applying runs under a savepoint: if it fails
// the vote still commits, the change stays approved and Finalize can retry
// it. Only a failure of the surrounding transaction itself loses the vote.
func (s *Service) Approve(ctx context.Context, changeID id.ChangeID, voter id.Actor, comment string) (*models.PendingChange, error) {
	ctx, span := tracer.Start(ctx, "governance.Approve", trace.WithAttributes(
		attribute.String("change_id", changeID.String()),
		attribute.String("voter_role", string(voter.Role)),
	))
	defer span.End()

	var (
		result      *models.PendingChange
		finalizeErr error
	)
	err := s.tx.RunInTx(ctx, changeID, func(ctx context.Context, store Store) error {
		c, err := s.loadForVote(ctx, store, changeID)
		if err != nil {
			return err
		}
		if c.Status.IsTerminal() {
			return dErrors.New(dErrors.CodeTerminalState, "change is already "+string(c.Status))
		}
		if c.HasVoted(voter.UserID) {
			return dErrors.New(dErrors.CodeDuplicateVote, "voter has already voted on this change")
		}
		if voter.UserID == c.InitiatedBy {
			return dErrors.New(dErrors.CodeForbidden, "initiator cannot approve their own change")
		}
		if err := s.authorizeVoter(ctx, c, voter); err != nil {
			return err
		}

		vote := models.Vote{VoterID: voter.UserID, VoterRole: voter.Role, Timestamp: requestcontext.Now(ctx), Comment: comment}
		if err := c.Approve(vote); err != nil {
			return err
		}
		if err := s.save(ctx, store, c); err != nil {
			return err
		}
		s.logAudit(ctx, audit.EventPendingChangeApproved,
			"change_id", c.ID.String(),
			"patient_id", c.PatientID.String(),
			"status", string(c.Status),
		)
		if c.Status == models.StatusApproved {
			finalizeErr = s.finalize(ctx, store, c)
		}
		result = c
		return nil
	})
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncrementVotes("approve", string(voter.Role))
	}
	if finalizeErr != nil {
		span.AddEvent("finalize deferred", trace.WithAttributes(attribute.String("error", finalizeErr.Error())))
	}
	span.SetAttributes(attribute.String("status", string(result.Status)))
	return result, nil
}

// Reject records voter's rejection, which immediately vetoes the change.
// The initiator may reject (withdraw) their own change.
func (s *Service) Reject(ctx context.Context, changeID id.ChangeID, voter id.Actor, reason string) (*models.PendingChange, error) {
	ctx, span := tracer.Start(ctx, "governance.Reject", trace.WithAttributes(
		attribute.String("change_id", changeID.String()),
		attribute.String("voter_role", string(voter.Role)),
	))
	defer span.End()

	var result *models.PendingChange
	err := s.tx.RunInTx(ctx, changeID, func(ctx context.Context, store Store) error {
		c, err := s.loadForVote(ctx, store, changeID)
		if err != nil {
			return err
		}
		if c.Status.IsTerminal() {
			return dErrors.New(dErrors.CodeTerminalState, "change is already "+string(c.Status))
		}
		if c.HasVoted(voter.UserID) {
			return dErrors.New(dErrors.CodeDuplicateVote, "voter has already voted on this change")
		}
		if voter.UserID != c.InitiatedBy {
			if err := s.authorizeVoter(ctx, c, voter); err != nil {
				return err
			}
		}

		vote := models.Vote{VoterID: voter.UserID, VoterRole: voter.Role, Timestamp: requestcontext.Now(ctx), Comment: reason}
		if err := c.Reject(vote); err != nil {
			return err
		}
		if err := s.save(ctx, store, c); err != nil {
			return err
		}
		s.logAudit(ctx, audit.EventPendingChangeRejected,
			"change_id", c.ID.String(),
			"patient_id", c.PatientID.String(),
		)
		result = c
		return nil
	})
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncrementVotes("reject", string(voter.Role))
		s.metrics.ChangesRejected.Inc()
	}
	return result, nil
}

// Finalize applies a change left approved by an earlier failed attempt.
// A veto that landed in between wins: rejected changes are never applied.
func (s *Service) Finalize(ctx context.Context, changeID id.ChangeID) (*models.PendingChange, error) {
	ctx, span := tracer.Start(ctx, "governance.Finalize", trace.WithAttributes(
		attribute.String("change_id", changeID.String()),
	))
	defer span.End()

	var result *models.PendingChange
	err := s.tx.RunInTx(ctx, changeID, func(ctx context.Context, store Store) error {
		c, err := s.loadForVote(ctx, store, changeID)
		if err != nil {
			return err
		}
		switch c.Status {
		case models.StatusApproved:
		case models.StatusPending:
			return dErrors.New(dErrors.CodeConflict, "change has not reached quorum")
		default:
			return dErrors.New(dErrors.CodeTerminalState, "change is already "+string(c.Status))
		}
		if err := s.finalize(ctx, store, c); err != nil {
			return err
		}
		result = c
		return nil
	})
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	return result, nil
}

// finalize writes the change into the patient record, re-encrypting under a
// fresh content key for private fields, and marks the change finalized.
func (s *Service) finalize(ctx context.Context, store Store, c *models.PendingChange) error {
	ctx, span := tracer.Start(ctx, "governance.finalize")
	defer span.End()

	prevStatus, prevFinalizedAt, prevUpdatedAt := c.Status, c.FinalizedAt, c.UpdatedAt
	err := txcontext.Savepoint(ctx, "governance_finalize", func(ctx context.Context) error {
		if err := s.apply(ctx, c); err != nil {
			return err
		}
		if err := c.MarkFinalized(requestcontext.Now(ctx)); err != nil {
			return err
		}
		return s.save(ctx, store, c)
	})
	if err != nil {
		// The caller must see what the store holds.
		c.Status, c.FinalizedAt, c.UpdatedAt = prevStatus, prevFinalizedAt, prevUpdatedAt
		recordError(span, err)
		s.logger.ErrorContext(ctx, "failed to finalize change",
			"change_id", c.ID.String(),
			"error", err,
		)
		if s.metrics != nil {
			s.metrics.FinalizeFailures.Inc()
		}
		return err
	}

	s.logAudit(ctx, audit.EventPendingChangeFinalized,
		"change_id", c.ID.String(),
		"patient_id", c.PatientID.String(),
		"field_path", c.FieldPath.String(),
	)
	if s.metrics != nil {
		s.metrics.ChangesFinalized.Inc()
	}
	return nil
}

// maxApplyAttempts bounds retries when another change to the same record
// commits between our read and write.
const maxApplyAttempts = 3

func (s *Service) apply(ctx context.Context, c *models.PendingChange) error {
	var err error
	for range maxApplyAttempts {
		err = s.applyOnce(ctx, c)
		if !dErrors.HasCode(err, dErrors.CodeConflict) {
			return err
		}
	}
	return err
}

func (s *Service) applyOnce(ctx context.Context, c *models.PendingChange) error {
	p, err := s.patients.Get(ctx, c.PatientID)
	if err != nil {
		return err
	}
	docs, err := s.loadDocuments(p, c.FieldPath)
	if err != nil {
		return err
	}
	if err := c.FieldPath.Apply(docs, c.NewValue); err != nil {
		return err
	}
	if c.FieldPath.IsPrivate() {
		return s.patients.SavePrivateProfile(ctx, p, *docs.Private)
	}
	return s.patients.SavePublicView(ctx, p, *docs.Public)
}

// authorizeVoter checks the voter's role is one the rule table counts, and
// that owners vote only on their own record and clinicians are verified.
func (s *Service) authorizeVoter(ctx context.Context, c *models.PendingChange, voter id.Actor) error {
	if !c.RequiresRole(voter.Role) {
		return dErrors.New(dErrors.CodeForbidden, "this change does not take votes from role "+string(voter.Role))
	}
	switch {
	case voter.IsOwner():
		p, err := s.patients.Get(ctx, c.PatientID)
		if err != nil {
			return err
		}
		if !p.IsOwnedBy(voter.UserID) {
			return dErrors.New(dErrors.CodeForbidden, "only the record owner can vote as owner")
		}
	case voter.IsClinician():
		ok, err := s.directory.IsVerifiedClinician(ctx, voter.UserID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify clinician")
		}
		if !ok {
			return dErrors.New(dErrors.CodeForbidden, "clinician credentials are not verified")
		}
	default:
		return dErrors.New(dErrors.CodeForbidden, "role may not vote")
	}
	return nil
}

func (s *Service) loadForVote(ctx context.Context, store Store, changeID id.ChangeID) (*models.PendingChange, error) {
	c, err := store.FindForUpdate(ctx, changeID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "change not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load change")
	}
	return c, nil
}

func (s *Service) save(ctx context.Context, store Store, c *models.PendingChange) error {
	if err := store.Update(ctx, c, c.Version); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.New(dErrors.CodeConflict, "change was modified concurrently")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update change")
	}
	c.Version++
	return nil
}

// Get returns a change the caller may see: the record owner, the
// initiator, or a verified clinician.
func (s *Service) Get(ctx context.Context, caller id.Actor, changeID id.ChangeID) (*models.PendingChange, error) {
	c, err := s.store.FindByID(ctx, changeID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "change not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load change")
	}
	if c.InitiatedBy == caller.UserID {
		return c, nil
	}
	switch {
	case caller.IsOwner():
		p, err := s.patients.Get(ctx, c.PatientID)
		if err != nil {
			return nil, err
		}
		if p.IsOwnedBy(caller.UserID) {
			return c, nil
		}
	case caller.IsClinician():
		ok, err := s.directory.IsVerifiedClinician(ctx, caller.UserID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify clinician")
		}
		if ok {
			return c, nil
		}
	}
	// Same answer as a missing change so IDs cannot be enumerated.
	return nil, dErrors.New(dErrors.CodeNotFound, "change not found")
}

// ListForPatient returns the open changes on a record the caller owns.
func (s *Service) ListForPatient(ctx context.Context, caller id.Actor, patientID id.PatientID) ([]*models.PendingChange, error) {
	p, err := s.patients.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if !caller.IsOwner() || !p.IsOwnedBy(caller.UserID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the record owner can list its changes")
	}
	changes, err := s.store.ListOpenByPatient(ctx, patientID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list changes")
	}
	return changes, nil
}

// ListChangesRequiringVote returns open changes still waiting on a vote the
// caller is entitled to cast and has not cast yet.
func (s *Service) ListChangesRequiringVote(ctx context.Context, caller id.Actor) ([]*models.PendingChange, error) {
	var (
		candidates []*models.PendingChange
		err        error
	)
	switch {
	case caller.IsOwner():
		p, getErr := s.patients.GetByOwner(ctx, caller.UserID)
		if getErr != nil {
			if dErrors.HasCode(getErr, dErrors.CodeNotFound) {
				return []*models.PendingChange{}, nil
			}
			return nil, getErr
		}
		candidates, err = s.store.ListOpenByPatient(ctx, p.ID)
	case caller.IsClinician():
		ok, verifyErr := s.directory.IsVerifiedClinician(ctx, caller.UserID)
		if verifyErr != nil {
			return nil, dErrors.Wrap(verifyErr, dErrors.CodeInternal, "failed to verify clinician")
		}
		if !ok {
			return []*models.PendingChange{}, nil
		}
		candidates, err = s.store.ListOpen(ctx)
	default:
		return nil, dErrors.New(dErrors.CodeForbidden, "role may not vote")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list changes")
	}

	out := make([]*models.PendingChange, 0, len(candidates))
	for _, c := range candidates {
		if !c.Status.IsOpen() || c.HasVoted(caller.UserID) || c.InitiatedBy == caller.UserID {
			continue
		}
		if c.NeedsVoteFrom(caller.Role) {
			out = append(out, c)
		}
	}
	return out, nil
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
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
	e := audit.NewEvent(ctx, event, audit.ResourcePendingChange, attrs.ExtractString(attributes, "change_id"))
	e.Details = attrs.Details(attributes, "patient_id", "field_path", "status")
	if err := s.auditPublisher.Emit(ctx, e); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "event", string(event), "error", err)
	}
}

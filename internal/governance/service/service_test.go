package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Directory,AuditPublisher

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	tokenservice "instahelp/internal/captoken/service"
	tokenstore "instahelp/internal/captoken/store"
	"instahelp/internal/directory"
	"instahelp/internal/envelope"
	"instahelp/internal/governance/models"
	"instahelp/internal/governance/service/mocks"
	"instahelp/internal/governance/store"
	notifymocks "instahelp/internal/notify/mocks"
	patientmodels "instahelp/internal/patient/models"
	patientservice "instahelp/internal/patient/service"
	patientstore "instahelp/internal/patient/store"
	"instahelp/internal/platform/metrics"
	id "instahelp/pkg/domain"
	dErrors "instahelp/pkg/domain-errors"
	"instahelp/pkg/platform/audit"
	"instahelp/pkg/platform/audit/publisher"
	auditmemory "instahelp/pkg/platform/audit/store/memory"
)

var (
	masterKeyOnce sync.Once
	masterKey     *rsa.PrivateKey
)

func testMasterKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	masterKeyOnce.Do(func() {
		key, err := envelope.GenerateMasterKey(envelope.MinMasterKeyBits)
		require.NoError(t, err)
		masterKey = key
	})
	return masterKey
}

// =============================================================================
// Governance Service Test Suite
// =============================================================================
// The governance workflow is exercised end to end against in-memory stores
// and a real patient service, so finalization really writes (and for private
// fields re-encrypts) the record. Directory and notifier are mocked.

type GovernanceSuite struct {
	suite.Suite
	ctrl         *gomock.Controller
	dir          *mocks.MockDirectory
	notifier     *notifymocks.MockNotifier
	store        *store.InMemory
	patientStore *patientstore.InMemory
	patients     *patientservice.Service
	audits       *auditmemory.InMemoryStore
	metrics      *metrics.Metrics
	service      *Service

	owner      id.Actor
	clinicians []id.Actor
	unverified id.Actor
	verified   map[id.UserID]bool
	patient    *patientmodels.Patient
}

func TestGovernanceSuite(t *testing.T) {
	suite.Run(t, new(GovernanceSuite))
}

func (s *GovernanceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.owner = id.Actor{UserID: id.NewUserID(), Role: id.RoleOwner}
	s.unverified = id.Actor{UserID: id.NewUserID(), Role: id.RoleClinician}
	s.verified = map[id.UserID]bool{}
	s.clinicians = nil
	for range 10 {
		c := id.Actor{UserID: id.NewUserID(), Role: id.RoleClinician}
		s.clinicians = append(s.clinicians, c)
		s.verified[c.UserID] = true
	}

	s.dir = mocks.NewMockDirectory(s.ctrl)
	s.dir.EXPECT().IsVerifiedClinician(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, userID id.UserID) (bool, error) { return s.verified[userID], nil },
	).AnyTimes()
	s.dir.EXPECT().ContactFor(gomock.Any(), s.owner.UserID).Return("owner@example.com", nil).AnyTimes()
	s.dir.EXPECT().ListVerifiedClinicians(gomock.Any()).DoAndReturn(
		func(context.Context) ([]*directory.Account, error) { return s.clinicianAccounts(), nil },
	).AnyTimes()

	s.notifier = notifymocks.NewMockNotifier(s.ctrl)
	s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	s.store = store.NewInMemory()
	s.patientStore = patientstore.NewInMemory()
	s.audits = auditmemory.NewInMemoryStore()
	s.metrics = metrics.New()
	s.patients = s.newPatients(envelope.New(envelope.WithPrivateKey(testMasterKey(s.T()))))
	s.service = s.newService(s.patients, s.notifier)

	res, err := s.patients.CreateProfile(context.Background(), s.owner, patientmodels.PublicView{
		BloodType:         "A",
		RhFactor:          "+",
		EmergencyContact:  patientmodels.EmergencyContact{Name: "Kim", Phone: "+1-555-0101"},
		ShortInstructions: "Diabetic",
	}, patientmodels.PrivateProfile{FullName: "Alex Example", DoctorNotes: "initial"})
	s.Require().NoError(err)
	s.patient = res.Patient
}

func (s *GovernanceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *GovernanceSuite) logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func (s *GovernanceSuite) newPatients(cipher *envelope.Cipher) *patientservice.Service {
	broker := tokenservice.New(tokenstore.NewInMemory(), tokenservice.WithLogger(s.logger()))
	return patientservice.New(s.patientStore, cipher, broker, s.dir, patientservice.WithLogger(s.logger()))
}

func (s *GovernanceSuite) newService(patients Patients, notifier *notifymocks.MockNotifier) *Service {
	return New(s.store, patients, s.dir, notifier,
		WithLogger(s.logger()),
		WithAuditPublisher(publisher.NewPublisher(s.audits)),
		WithMetrics(s.metrics),
	)
}

func (s *GovernanceSuite) clinicianAccounts() []*directory.Account {
	accts := make([]*directory.Account, 0, len(s.clinicians))
	for i, c := range s.clinicians[:3] {
		accts = append(accts, &directory.Account{
			ID:    c.UserID,
			Email: []string{"c0@example.com", "c1@example.com", "c2@example.com"}[i],
			Role:  id.RoleClinician,
		})
	}
	return accts
}

func path(s string) patientmodels.FieldPath {
	p, err := patientmodels.ParseFieldPath(s, "")
	if err != nil {
		panic(err)
	}
	return p
}

func (s *GovernanceSuite) propose(caller id.Actor, fieldPath string, value string) *models.PendingChange {
	c, err := s.service.CreatePendingChange(context.Background(), caller, s.patient.ID, path(fieldPath), json.RawMessage(value))
	s.Require().NoError(err)
	return c
}

func (s *GovernanceSuite) publicView() patientmodels.PublicView {
	p, err := s.patients.Get(context.Background(), s.patient.ID)
	s.Require().NoError(err)
	return p.PublicView
}

// =============================================================================
// Quorum rule table
// =============================================================================

func (s *GovernanceSuite) TestOwnerInitiated_NeedsTwoClinicians() {
	ctx := context.Background()
	c := s.propose(s.owner, "public_view.blood_type", `"B"`)
	s.Equal(models.StatusPending, c.Status)
	s.JSONEq(`"A"`, string(c.OldValue))

	s.Run("owner cannot approve their own change", func() {
		_, err := s.service.Approve(ctx, c.ID, s.owner, "")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("one clinician is not enough", func() {
		got, err := s.service.Approve(ctx, c.ID, s.clinicians[0], "ok")
		s.Require().NoError(err)
		s.Equal(models.StatusPending, got.Status)
		s.Equal("A", s.publicView().BloodType)
	})

	s.Run("second clinician finalizes", func() {
		got, err := s.service.Approve(ctx, c.ID, s.clinicians[1], "")
		s.Require().NoError(err)
		s.Equal(models.StatusFinalized, got.Status)
		s.NotNil(got.FinalizedAt)
		s.Equal("B", s.publicView().BloodType)
	})

	s.Len(s.audits.ListByAction(ctx, audit.EventPendingChangeFinalized), 1)
	s.InDelta(1, testutil.ToFloat64(s.metrics.ChangesFinalized), 0)
}

func (s *GovernanceSuite) TestClinicianInitiated_NeedsOwnerAndClinician() {
	ctx := context.Background()
	c := s.propose(s.clinicians[0], "public_view.short_instructions", `"Insulin in fridge"`)

	s.Run("initiator cannot self-corroborate", func() {
		_, err := s.service.Approve(ctx, c.ID, s.clinicians[0], "")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("another owner cannot vote", func() {
		stranger := id.Actor{UserID: id.NewUserID(), Role: id.RoleOwner}
		_, err := s.service.Approve(ctx, c.ID, stranger, "")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("clinician approval alone is not enough", func() {
		got, err := s.service.Approve(ctx, c.ID, s.clinicians[1], "")
		s.Require().NoError(err)
		s.Equal(models.StatusPending, got.Status)
	})

	s.Run("a second clinician does not replace the owner", func() {
		got, err := s.service.Approve(ctx, c.ID, s.clinicians[2], "")
		s.Require().NoError(err)
		s.Equal(models.StatusPending, got.Status)
	})

	s.Run("owner approval finalizes", func() {
		got, err := s.service.Approve(ctx, c.ID, s.owner, "")
		s.Require().NoError(err)
		s.Equal(models.StatusFinalized, got.Status)
		s.Equal("Insulin in fridge", s.publicView().ShortInstructions)
	})
}

func (s *GovernanceSuite) TestUnverifiedClinician() {
	ctx := context.Background()

	_, err := s.service.CreatePendingChange(ctx, s.unverified, s.patient.ID, path("public_view.rh_factor"), json.RawMessage(`"-"`))
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	c := s.propose(s.owner, "public_view.rh_factor", `"-"`)
	_, err = s.service.Approve(ctx, c.ID, s.unverified, "")
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	_, err = s.service.Reject(ctx, c.ID, s.unverified, "")
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *GovernanceSuite) TestOwnerVoteNotCountedWhenNotRequired() {
	other := id.Actor{UserID: id.NewUserID(), Role: id.RoleOwner}
	c := s.propose(s.owner, "public_view.rh_factor", `"-"`)

	_, err := s.service.Approve(context.Background(), c.ID, other, "")
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

// =============================================================================
// Veto, duplicates, terminal states
// =============================================================================

func (s *GovernanceSuite) TestSingleRejectionVetoes() {
	ctx := context.Background()
	c := s.propose(s.owner, "public_view.blood_type", `"O"`)
	_, err := s.service.Approve(ctx, c.ID, s.clinicians[0], "")
	s.Require().NoError(err)

	rejected, err := s.service.Reject(ctx, c.ID, s.clinicians[1], "wrong patient")
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, rejected.Status)
	s.Require().Len(rejected.Rejections, 1)
	s.Equal("wrong patient", rejected.Rejections[0].Comment)

	s.Run("terminal change accepts no further votes", func() {
		_, err := s.service.Approve(ctx, c.ID, s.clinicians[2], "")
		s.True(dErrors.HasCode(err, dErrors.CodeTerminalState))
		_, err = s.service.Reject(ctx, c.ID, s.clinicians[3], "")
		s.True(dErrors.HasCode(err, dErrors.CodeTerminalState))

		stored, err := s.store.FindByID(ctx, c.ID)
		s.Require().NoError(err)
		s.Len(stored.Approvals, 1)
		s.Len(stored.Rejections, 1)
		s.JSONEq(`"O"`, string(stored.NewValue))
	})

	s.Equal("A", s.publicView().BloodType)
	s.InDelta(1, testutil.ToFloat64(s.metrics.ChangesRejected), 0)
}

func (s *GovernanceSuite) TestInitiatorMayWithdraw() {
	c := s.propose(s.owner, "public_view.blood_type", `"O"`)
	got, err := s.service.Reject(context.Background(), c.ID, s.owner, "changed my mind")
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, got.Status)
}

func (s *GovernanceSuite) TestDuplicateVotes() {
	ctx := context.Background()
	c := s.propose(s.clinicians[0], "public_view.blood_type", `"O"`)
	_, err := s.service.Approve(ctx, c.ID, s.clinicians[1], "")
	s.Require().NoError(err)

	_, err = s.service.Approve(ctx, c.ID, s.clinicians[1], "")
	s.True(dErrors.HasCode(err, dErrors.CodeDuplicateVote))

	_, err = s.service.Reject(ctx, c.ID, s.clinicians[1], "")
	s.True(dErrors.HasCode(err, dErrors.CodeDuplicateVote))

	stored, err := s.store.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, stored.Status)
	s.Len(stored.Approvals, 1)
	s.Empty(stored.Rejections)
}

func (s *GovernanceSuite) TestFinalizedChangeIsImmutable() {
	ctx := context.Background()
	c := s.propose(s.owner, "public_view.blood_type", `"AB"`)
	_, err := s.service.Approve(ctx, c.ID, s.clinicians[0], "")
	s.Require().NoError(err)
	_, err = s.service.Approve(ctx, c.ID, s.clinicians[1], "")
	s.Require().NoError(err)

	_, err = s.service.Reject(ctx, c.ID, s.clinicians[2], "")
	s.True(dErrors.HasCode(err, dErrors.CodeTerminalState))
	_, err = s.service.Finalize(ctx, c.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeTerminalState))
}

// =============================================================================
// Private profile changes and deferred finalization
// =============================================================================

func (s *GovernanceSuite) TestPrivateChangeReencrypts() {
	ctx := context.Background()
	before := s.patient.Private.WrappedKey

	c := s.propose(s.clinicians[0], "private_profile.doctor_notes", `"stable, review in 6 months"`)
	s.JSONEq(`"initial"`, string(c.OldValue))

	_, err := s.service.Approve(ctx, c.ID, s.owner, "")
	s.Require().NoError(err)
	got, err := s.service.Approve(ctx, c.ID, s.clinicians[1], "")
	s.Require().NoError(err)
	s.Equal(models.StatusFinalized, got.Status)

	p, err := s.patients.Get(ctx, s.patient.ID)
	s.Require().NoError(err)
	s.NotEqual(before, p.Private.WrappedKey)
	profile, err := s.patients.DecryptPrivate(p)
	s.Require().NoError(err)
	s.Equal("stable, review in 6 months", profile.DoctorNotes)
	s.Equal("Alex Example", profile.FullName)
}

// degraded returns a service whose patient side holds only the public
// master key, so private changes reach quorum but cannot be applied.
func (s *GovernanceSuite) degraded() *Service {
	publicOnly := envelope.New(envelope.WithPublicKey(&testMasterKey(s.T()).PublicKey))
	return s.newService(s.newPatients(publicOnly), s.notifier)
}

func (s *GovernanceSuite) TestFailedFinalizeLeavesApprovedForRetry() {
	ctx := context.Background()
	c := s.propose(s.owner, "private_profile.doctor_notes", `"updated"`)
	degraded := s.degraded()

	_, err := degraded.Approve(ctx, c.ID, s.clinicians[0], "")
	s.Require().NoError(err)
	got, err := degraded.Approve(ctx, c.ID, s.clinicians[1], "")
	s.Require().NoError(err, "the vote is kept even though applying failed")
	s.Equal(models.StatusApproved, got.Status)
	s.InDelta(1, testutil.ToFloat64(s.metrics.FinalizeFailures), 0)

	_, err = degraded.Finalize(ctx, c.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeKeyUnavailable))

	done, err := s.service.Finalize(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusFinalized, done.Status)

	p, err := s.patients.Get(ctx, s.patient.ID)
	s.Require().NoError(err)
	profile, err := s.patients.DecryptPrivate(p)
	s.Require().NoError(err)
	s.Equal("updated", profile.DoctorNotes)
}

// failingFinalizeStore refuses to persist a finalized change.
type failingFinalizeStore struct {
	*store.InMemory
}

func (f failingFinalizeStore) Update(ctx context.Context, c *models.PendingChange, expectedVersion int) error {
	if c.Status == models.StatusFinalized {
		return errors.New("write failed")
	}
	return f.InMemory.Update(ctx, c, expectedVersion)
}

func (s *GovernanceSuite) TestFailedFinalizeSaveReportsStoredStatus() {
	ctx := context.Background()
	c := s.propose(s.owner, "public_view.short_instructions", `"Call Kim first"`)
	svc := New(failingFinalizeStore{InMemory: s.store}, s.patients, s.dir, s.notifier, WithLogger(s.logger()))

	_, err := svc.Approve(ctx, c.ID, s.clinicians[0], "")
	s.Require().NoError(err)
	got, err := svc.Approve(ctx, c.ID, s.clinicians[1], "")
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, got.Status)
	s.Nil(got.FinalizedAt)

	stored, err := s.store.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, stored.Status)
	s.Equal(stored.Version, got.Version)
}

func (s *GovernanceSuite) TestVetoWinsOverApprovedButUnapplied() {
	ctx := context.Background()
	c := s.propose(s.owner, "private_profile.doctor_notes", `"should never land"`)
	degraded := s.degraded()
	_, err := degraded.Approve(ctx, c.ID, s.clinicians[0], "")
	s.Require().NoError(err)
	got, err := degraded.Approve(ctx, c.ID, s.clinicians[1], "")
	s.Require().NoError(err)
	s.Require().Equal(models.StatusApproved, got.Status)

	rejected, err := s.service.Reject(ctx, c.ID, s.clinicians[2], "veto")
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, rejected.Status)

	_, err = s.service.Finalize(ctx, c.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeTerminalState))

	p, err := s.patients.Get(ctx, s.patient.ID)
	s.Require().NoError(err)
	profile, err := s.patients.DecryptPrivate(p)
	s.Require().NoError(err)
	s.Equal("initial", profile.DoctorNotes)
}

func (s *GovernanceSuite) TestFinalizePendingChangeConflicts() {
	c := s.propose(s.owner, "public_view.blood_type", `"B"`)
	_, err := s.service.Finalize(context.Background(), c.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

// =============================================================================
// Creation rules
// =============================================================================

func (s *GovernanceSuite) TestCreateValidation() {
	ctx := context.Background()

	s.Run("invalid value is refused up front", func() {
		_, err := s.service.CreatePendingChange(ctx, s.owner, s.patient.ID, path("public_view.blood_type"), json.RawMessage(`"Z"`))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("wrong type is refused", func() {
		_, err := s.service.CreatePendingChange(ctx, s.owner, s.patient.ID, path("public_view.allergies"), json.RawMessage(`"peanuts"`))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("another owner cannot propose", func() {
		stranger := id.Actor{UserID: id.NewUserID(), Role: id.RoleOwner}
		_, err := s.service.CreatePendingChange(ctx, stranger, s.patient.ID, path("public_view.blood_type"), json.RawMessage(`"B"`))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown patient", func() {
		_, err := s.service.CreatePendingChange(ctx, s.owner, id.NewPatientID(), path("public_view.blood_type"), json.RawMessage(`"B"`))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("unknown change", func() {
		_, err := s.service.Approve(ctx, id.NewChangeID(), s.clinicians[0], "")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// =============================================================================
// Concurrency
// =============================================================================

func (s *GovernanceSuite) TestConcurrentApprovalsFinalizeOnce() {
	ctx := context.Background()
	c := s.propose(s.owner, "public_view.blood_type", `"B"`)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		terminal  int
	)
	for _, voter := range s.clinicians {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.Approve(ctx, c.ID, voter, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case dErrors.HasCode(err, dErrors.CodeTerminalState):
				terminal++
			}
		}()
	}
	wg.Wait()

	s.Equal(2, succeeded)
	s.Equal(len(s.clinicians)-2, terminal)
	s.InDelta(1, testutil.ToFloat64(s.metrics.ChangesFinalized), 0)
	s.Len(s.audits.ListByAction(ctx, audit.EventPendingChangeFinalized), 1)

	stored, err := s.store.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusFinalized, stored.Status)
	s.Len(stored.Approvals, 2)
}

func (s *GovernanceSuite) TestConcurrentApproveAndRejectNeverBoth() {
	ctx := context.Background()
	for range 20 {
		c := s.propose(s.owner, "public_view.rh_factor", `"-"`)
		_, err := s.service.Approve(ctx, c.ID, s.clinicians[0], "")
		s.Require().NoError(err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = s.service.Approve(ctx, c.ID, s.clinicians[1], "")
		}()
		go func() {
			defer wg.Done()
			_, _ = s.service.Reject(ctx, c.ID, s.clinicians[2], "")
		}()
		wg.Wait()

		stored, err := s.store.FindByID(ctx, c.ID)
		s.Require().NoError(err)
		s.True(stored.Status.IsTerminal())
		if stored.Status == models.StatusRejected {
			s.Len(stored.Approvals, 1)
		} else {
			s.Empty(stored.Rejections)
		}
	}
}

// =============================================================================
// Listing and visibility
// =============================================================================

func (s *GovernanceSuite) TestListChangesRequiringVote() {
	ctx := context.Background()
	ownerChange := s.propose(s.owner, "public_view.blood_type", `"B"`)
	clinicianChange := s.propose(s.clinicians[0], "public_view.rh_factor", `"-"`)

	ids := func(changes []*models.PendingChange) []id.ChangeID {
		out := make([]id.ChangeID, 0, len(changes))
		for _, c := range changes {
			out = append(out, c.ID)
		}
		return out
	}

	s.Run("owner sees only changes needing the holder", func() {
		got, err := s.service.ListChangesRequiringVote(ctx, s.owner)
		s.Require().NoError(err)
		s.Equal([]id.ChangeID{clinicianChange.ID}, ids(got))
	})

	s.Run("initiating clinician does not see their own change", func() {
		got, err := s.service.ListChangesRequiringVote(ctx, s.clinicians[0])
		s.Require().NoError(err)
		s.Equal([]id.ChangeID{ownerChange.ID}, ids(got))
	})

	s.Run("other clinicians see both until they vote", func() {
		got, err := s.service.ListChangesRequiringVote(ctx, s.clinicians[1])
		s.Require().NoError(err)
		s.ElementsMatch([]id.ChangeID{ownerChange.ID, clinicianChange.ID}, ids(got))

		_, err = s.service.Approve(ctx, ownerChange.ID, s.clinicians[1], "")
		s.Require().NoError(err)
		got, err = s.service.ListChangesRequiringVote(ctx, s.clinicians[1])
		s.Require().NoError(err)
		s.Equal([]id.ChangeID{clinicianChange.ID}, ids(got))
	})

	s.Run("clinician quorum met removes the change for clinicians", func() {
		_, err := s.service.Approve(ctx, clinicianChange.ID, s.clinicians[1], "")
		s.Require().NoError(err)
		got, err := s.service.ListChangesRequiringVote(ctx, s.clinicians[2])
		s.Require().NoError(err)
		s.Equal([]id.ChangeID{ownerChange.ID}, ids(got))
	})

	s.Run("unverified clinician sees nothing", func() {
		got, err := s.service.ListChangesRequiringVote(ctx, s.unverified)
		s.Require().NoError(err)
		s.Empty(got)
	})

	s.Run("owner without a record sees nothing", func() {
		got, err := s.service.ListChangesRequiringVote(ctx, id.Actor{UserID: id.NewUserID(), Role: id.RoleOwner})
		s.Require().NoError(err)
		s.Empty(got)
	})
}

func (s *GovernanceSuite) TestGetAndListVisibility() {
	ctx := context.Background()
	c := s.propose(s.owner, "public_view.blood_type", `"B"`)
	stranger := id.Actor{UserID: id.NewUserID(), Role: id.RoleOwner}

	_, err := s.service.Get(ctx, s.owner, c.ID)
	s.NoError(err)
	_, err = s.service.Get(ctx, s.clinicians[0], c.ID)
	s.NoError(err)
	_, err = s.service.Get(ctx, stranger, c.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	_, err = s.service.Get(ctx, s.unverified, c.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	open, err := s.service.ListForPatient(ctx, s.owner, s.patient.ID)
	s.Require().NoError(err)
	s.Len(open, 1)
	_, err = s.service.ListForPatient(ctx, stranger, s.patient.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

// =============================================================================
// Notifications
// =============================================================================

func (s *GovernanceSuite) TestNotifiesRequiredApprovers() {
	notifier := notifymocks.NewMockNotifier(s.ctrl)
	svc := s.newService(s.patients, notifier)

	s.Run("owner-initiated change notifies clinicians only", func() {
		var (
			mu         sync.Mutex
			recipients []string
		)
		notifier.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, recipient, message string) error {
				mu.Lock()
				defer mu.Unlock()
				recipients = append(recipients, recipient)
				s.Contains(message, `Change to public_view.blood_type: "B"`)
				return nil
			},
		).Times(3)

		_, err := svc.CreatePendingChange(context.Background(), s.owner, s.patient.ID, path("public_view.blood_type"), json.RawMessage(`"B"`))
		s.Require().NoError(err)
		s.ElementsMatch([]string{"c0@example.com", "c1@example.com", "c2@example.com"}, recipients)
	})

	s.Run("clinician-initiated change notifies owner and peers, withholding private values", func() {
		var (
			mu         sync.Mutex
			recipients []string
		)
		notifier.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, recipient, message string) error {
				mu.Lock()
				defer mu.Unlock()
				recipients = append(recipients, recipient)
				s.NotContains(message, "secret diagnosis")
				return nil
			},
		).Times(3)

		_, err := svc.CreatePendingChange(context.Background(), s.clinicians[0], s.patient.ID,
			path("private_profile.doctor_notes"), json.RawMessage(`"secret diagnosis"`))
		s.Require().NoError(err)
		s.ElementsMatch([]string{"owner@example.com", "c1@example.com", "c2@example.com"}, recipients)
	})
}

func (s *GovernanceSuite) TestNotificationFailureIsSwallowed() {
	notifier := notifymocks.NewMockNotifier(s.ctrl)
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("smtp down")).Times(3)
	svc := s.newService(s.patients, notifier)

	c, err := svc.CreatePendingChange(context.Background(), s.owner, s.patient.ID, path("public_view.blood_type"), json.RawMessage(`"B"`))
	s.Require().NoError(err)
	s.Equal(models.StatusPending, c.Status)
	s.InDelta(3, testutil.ToFloat64(s.metrics.NotificationErrors), 0)
}

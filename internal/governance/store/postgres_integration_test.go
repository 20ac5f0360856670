//go:build integration

package store_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"instahelp/internal/governance/models"
	"instahelp/internal/governance/store"
	patientmodels "instahelp/internal/patient/models"
	id "instahelp/pkg/domain"
	"instahelp/pkg/platform/sentinel"
	"instahelp/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "pending_changes", "patients")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) seedPatient() id.PatientID {
	patientID := id.NewPatientID()
	_, err := s.postgres.Exec(context.Background(), `
		INSERT INTO patients (id, owner_id, public_view, private_ciphertext, private_wrapped_key, created_at, updated_at)
		VALUES ($1, $2, '{}'::jsonb, 'x', 'x', now(), now())
	`, uuid.UUID(patientID), uuid.New())
	s.Require().NoError(err)
	return patientID
}

func (s *PostgresStoreSuite) newChange(patientID id.PatientID, created time.Time) *models.PendingChange {
	fp, err := patientmodels.ParseFieldPath("doctor_notes", "private_profile")
	s.Require().NoError(err)
	return &models.PendingChange{
		ID:            id.NewChangeID(),
		PatientID:     patientID,
		InitiatedBy:   id.NewUserID(),
		InitiatedRole: id.RoleClinician,
		FieldPath:     fp,
		OldValue:      json.RawMessage(`"before"`),
		NewValue:      json.RawMessage(`"after"`),
		Status:        models.StatusPending,
		Approvals:     []models.Vote{},
		Rejections:    []models.Vote{},
		Version:       1,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func (s *PostgresStoreSuite) TestCreateAndFind() {
	ctx := context.Background()
	c := s.newChange(s.seedPatient(), time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(s.store.Create(ctx, c))

	got, err := s.store.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(c.FieldPath, got.FieldPath)
	s.Equal(id.RoleClinician, got.InitiatedRole)
	s.JSONEq(`"before"`, string(got.OldValue))
	s.JSONEq(`"after"`, string(got.NewValue))
	s.Empty(got.Approvals)
	s.Nil(got.FinalizedAt)

	_, err = s.store.FindByID(ctx, id.NewChangeID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpdateIsVersionChecked() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	c := s.newChange(s.seedPatient(), now)
	s.Require().NoError(s.store.Create(ctx, c))

	s.Require().NoError(c.Approve(models.Vote{VoterID: id.NewUserID(), VoterRole: id.RoleOwner, Timestamp: now}))
	s.Require().NoError(s.store.Update(ctx, c, 1))

	s.ErrorIs(s.store.Update(ctx, c, 1), sentinel.ErrConflict, "stale version")

	got, err := s.store.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(2, got.Version)
	s.Require().Len(got.Approvals, 1)
	s.Equal(id.RoleOwner, got.Approvals[0].VoterRole)

	missing := s.newChange(c.PatientID, now)
	s.ErrorIs(s.store.Update(ctx, missing, 1), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListOpen() {
	ctx := context.Background()
	patientID := s.seedPatient()
	base := time.Now().UTC().Truncate(time.Microsecond)

	older := s.newChange(patientID, base)
	newer := s.newChange(patientID, base.Add(time.Second))
	closed := s.newChange(patientID, base.Add(2*time.Second))
	closed.Status = models.StatusRejected
	for _, c := range []*models.PendingChange{older, newer, closed} {
		s.Require().NoError(s.store.Create(ctx, c))
	}

	open, err := s.store.ListOpenByPatient(ctx, patientID)
	s.Require().NoError(err)
	s.Require().Len(open, 2)
	s.Equal(newer.ID, open[0].ID)

	all, err := s.store.ListOpen(ctx)
	s.Require().NoError(err)
	s.Len(all, 2)
}

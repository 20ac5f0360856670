//go:build integration

package store_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"instahelp/internal/device/models"
	"instahelp/internal/device/store"
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
	err := s.postgres.TruncateTables(context.Background(), "vitals", "device_registrations", "patients")
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

func (s *PostgresStoreSuite) TestRegistrationLifecycle() {
	ctx := context.Background()
	patientID := s.seedPatient()
	reg := &models.Registration{
		DeviceID:     "watch-01",
		PatientID:    patientID,
		SecretHash:   "7afd03c1",
		RegisteredAt: time.Now().UTC().Truncate(time.Microsecond),
	}

	s.Require().NoError(s.store.CreateRegistration(ctx, reg))
	s.ErrorIs(s.store.CreateRegistration(ctx, reg), sentinel.ErrConflict)

	got, err := s.store.FindRegistration(ctx, "watch-01")
	s.Require().NoError(err)
	s.Equal(patientID, got.PatientID)
	s.Equal("7afd03c1", got.SecretHash)
	s.Nil(got.LastSeenAt)

	s.Require().NoError(s.store.TouchLastSeen(ctx, "watch-01", time.Now()))
	got, err = s.store.FindRegistration(ctx, "watch-01")
	s.Require().NoError(err)
	s.NotNil(got.LastSeenAt)

	_, err = s.store.FindRegistration(ctx, "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.TouchLastSeen(ctx, "missing", time.Now()), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestVitalsRoundTrip() {
	ctx := context.Background()
	patientID := s.seedPatient()
	hr := 72.0
	base := time.Now().UTC().Truncate(time.Microsecond)

	for i, ts := range []string{"T1", "T2"} {
		s.Require().NoError(s.store.InsertVitals(ctx, &models.Vitals{
			ID:             id.NewVitalsID(),
			PatientID:      patientID,
			DeviceID:       "watch-01",
			Timestamp:      ts,
			HeartRate:      &hr,
			AdditionalData: map[string]any{"spo2": json.Number("97")},
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}))
	}

	got, err := s.store.ListVitals(ctx, patientID, 10)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal("T2", got[0].Timestamp)
	s.Require().NotNil(got[0].HeartRate)
	s.InDelta(72, *got[0].HeartRate, 0.001)
	s.Nil(got[0].Temperature)
	s.InDelta(97, got[0].AdditionalData["spo2"], 0.001)

	limited, err := s.store.ListVitals(ctx, patientID, 1)
	s.Require().NoError(err)
	s.Len(limited, 1)
}

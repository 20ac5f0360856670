package emergency

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	tokenservice "instahelp/internal/captoken/service"
	tokenstore "instahelp/internal/captoken/store"
	"instahelp/internal/directory"
	dirstore "instahelp/internal/directory/store"
	"instahelp/internal/envelope"
	patientmodels "instahelp/internal/patient/models"
	patientservice "instahelp/internal/patient/service"
	patientstore "instahelp/internal/patient/store"
	"instahelp/internal/platform/metrics"
	id "instahelp/pkg/domain"
	dErrors "instahelp/pkg/domain-errors"
	"instahelp/pkg/platform/audit"
	"instahelp/pkg/platform/audit/publisher"
	auditmemory "instahelp/pkg/platform/audit/store/memory"
	"instahelp/pkg/requestcontext"
)

type EmergencySuite struct {
	suite.Suite
	broker    *tokenservice.Broker
	patients  *patientservice.Service
	audits    *auditmemory.InMemoryStore
	metrics   *metrics.Metrics
	service   *Service
	owner     id.Actor
	clinician id.Actor
	patient   *patientmodels.Patient
	token     string
}

func TestEmergencySuite(t *testing.T) {
	suite.Run(t, new(EmergencySuite))
}

func (s *EmergencySuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	key, err := envelope.GenerateMasterKey(envelope.MinMasterKeyBits)
	s.Require().NoError(err)

	dir := dirstore.NewInMemory()
	s.owner = id.Actor{UserID: id.NewUserID(), Role: id.RoleOwner}
	s.clinician = id.Actor{UserID: id.NewUserID(), Role: id.RoleClinician}
	dir.Put(directory.Account{ID: s.clinician.UserID, Email: "doc@example.com", Role: id.RoleClinician, EmailVerified: true, ClinicianVerified: true})

	s.audits = auditmemory.NewInMemoryStore()
	s.metrics = metrics.New()
	s.broker = tokenservice.New(tokenstore.NewInMemory(), tokenservice.WithLogger(logger))
	s.patients = patientservice.New(patientstore.NewInMemory(), envelope.New(envelope.WithPrivateKey(key)), s.broker, directory.New(dir),
		patientservice.WithLogger(logger))
	s.service = New(s.broker, s.patients,
		WithLogger(logger),
		WithAuditPublisher(publisher.NewPublisher(s.audits)),
		WithMetrics(s.metrics),
	)

	res, err := s.patients.CreateProfile(context.Background(), s.owner,
		patientmodels.PublicView{
			BloodType:         "O",
			RhFactor:          "-",
			EmergencyContact:  patientmodels.EmergencyContact{Name: "Kim", Phone: "+1-555-0101"},
			ShortInstructions: "Epinephrine in left pocket",
		},
		patientmodels.PrivateProfile{FullName: "Alex Example", NationalID: "123-45-6789"},
	)
	s.Require().NoError(err)
	s.patient = res.Patient
	s.token = res.Token.Token
}

func (s *EmergencySuite) served() float64 {
	return testutil.ToFloat64(s.metrics.EmergencyViews.WithLabelValues(OutcomeServed))
}

func (s *EmergencySuite) notFound() float64 {
	return testutil.ToFloat64(s.metrics.EmergencyViews.WithLabelValues(OutcomeNotFound))
}

func (s *EmergencySuite) TestView() {
	ctx := requestcontext.WithClientMetadata(context.Background(), "10.0.0.7",
		"Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36")

	view, err := s.service.View(ctx, s.token)
	s.Require().NoError(err)
	s.Equal(s.patient.ID, view.PatientID)
	s.Equal("O", view.Public.BloodType)
	s.Equal("Epinephrine in left pocket", view.Public.ShortInstructions)
	s.Nil(view.Private)
	s.Equal(1.0, s.served())

	events := s.audits.ListByAction(ctx, audit.EventEmergencyViewAccessed)
	s.Require().Len(events, 1)
	s.Equal(s.patient.ID.String(), events[0].ResourceID)
	s.Equal(false, events[0].Details["with_profile"])
	s.Contains(events[0].Details["device"], "Chrome")

	tok, err := s.broker.GetTokenByToken(ctx, s.token)
	s.Require().NoError(err)
	s.NotNil(tok.LastAccessedAt)
}

func (s *EmergencySuite) TestView_UnusableTokens() {
	ctx := context.Background()

	s.Run("malformed", func() {
		_, err := s.service.View(ctx, "not a token!")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("well formed but unknown", func() {
		_, err := s.service.View(ctx, "AAAAAAAAAAAAAAAAAAAAAAAA")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("rotated away", func() {
		_, err := s.broker.RotateToken(ctx, s.patient.ID)
		s.Require().NoError(err)
		_, err = s.service.View(ctx, s.token)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Equal(3.0, s.notFound())
	s.Equal(0.0, s.served())
	s.Empty(s.audits.ListByAction(ctx, audit.EventEmergencyViewAccessed))
}

func (s *EmergencySuite) TestViewWithProfile() {
	ctx := context.Background()

	s.Run("owner", func() {
		view, err := s.service.ViewWithProfile(ctx, s.token, s.owner)
		s.Require().NoError(err)
		s.Require().NotNil(view.Private)
		s.Equal("Alex Example", view.Private.FullName)
	})

	s.Run("verified clinician", func() {
		view, err := s.service.ViewWithProfile(ctx, s.token, s.clinician)
		s.Require().NoError(err)
		s.Require().NotNil(view.Private)
		s.Equal("123-45-6789", view.Private.NationalID)
	})

	s.Run("unverified clinician", func() {
		doc := id.Actor{UserID: id.NewUserID(), Role: id.RoleClinician}
		_, err := s.service.ViewWithProfile(ctx, s.token, doc)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Equal(1.0, testutil.ToFloat64(s.metrics.EmergencyViews.WithLabelValues(OutcomeForbidden)))
	})

	events := s.audits.ListByAction(ctx, audit.EventEmergencyViewAccessed)
	s.Require().Len(events, 2)
	s.Equal(true, events[0].Details["with_profile"])
}

func TestDeviceLabel(t *testing.T) {
	assert.Equal(t, "unknown", DeviceLabel(""))

	label := DeviceLabel("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1")
	assert.Contains(t, label, "Safari")
	assert.Contains(t, label, "(mobile)")

	bot := DeviceLabel("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")
	require.NotEmpty(t, bot)
	assert.Contains(t, bot, "bot")
}

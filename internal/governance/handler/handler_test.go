package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"instahelp/internal/governance/handler/mocks"
	"instahelp/internal/governance/models"
	patientmodels "instahelp/internal/patient/models"
	id "instahelp/pkg/domain"
	dErrors "instahelp/pkg/domain-errors"
	"instahelp/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service
type GovernanceHandlerSuite struct {
	suite.Suite
	service   *mocks.MockService
	router    chi.Router
	owner     id.Actor
	clinician id.Actor
}

func TestGovernanceHandlerSuite(t *testing.T) {
	suite.Run(t, new(GovernanceHandlerSuite))
}

func (s *GovernanceHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.owner = id.Actor{UserID: id.NewUserID(), Role: id.RoleOwner}
	s.clinician = id.Actor{UserID: id.NewUserID(), Role: id.RoleClinician}

	h := New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *GovernanceHandlerSuite) do(method, path, body string, caller *id.Actor) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if caller != nil {
		req = req.WithContext(requestcontext.WithActor(req.Context(), *caller))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *GovernanceHandlerSuite) change(status models.Status) *models.PendingChange {
	now := time.Date(2025, 4, 2, 8, 0, 0, 0, time.UTC)
	return &models.PendingChange{
		ID:            id.NewChangeID(),
		PatientID:     id.NewPatientID(),
		InitiatedBy:   s.owner.UserID,
		InitiatedRole: id.RoleOwner,
		FieldPath:     patientmodels.FieldPath{Target: patientmodels.TargetPublicView, Field: "blood_type"},
		OldValue:      json.RawMessage(`"A"`),
		NewValue:      json.RawMessage(`"B"`),
		Status:        status,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (s *GovernanceHandlerSuite) TestCreate() {
	c := s.change(models.StatusPending)

	s.Run("typed path with change_type", func() {
		s.service.EXPECT().CreatePendingChange(gomock.Any(), s.owner, c.PatientID,
			patientmodels.FieldPath{Target: patientmodels.TargetPublicView, Field: "blood_type"},
			json.RawMessage(`"B"`),
		).Return(c, nil)

		body := `{"patient_id":"` + c.PatientID.String() + `","change_type":"public_view","field_path":"blood_type","new_value":"B"}`
		w := s.do(http.MethodPost, "/api/pending-changes", body, &s.owner)
		s.Equal(http.StatusCreated, w.Code)

		var resp ChangeResponse
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Equal(c.ID.String(), resp.ID)
		s.Equal("pending", resp.Status)
		s.Equal("public_view", resp.ChangeType)
		s.Equal(2, resp.Progress.RequiredClinician)
		s.Equal("Waiting for 2 clinician approvals", resp.Progress.Summary)
		s.NotNil(resp.Approvals)
	})

	s.Run("unknown field never reaches the service", func() {
		body := `{"patient_id":"` + c.PatientID.String() + `","field_path":"public_view.last_vitals","new_value":{}}`
		w := s.do(http.MethodPost, "/api/pending-changes", body, &s.owner)
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("missing new_value", func() {
		body := `{"patient_id":"` + c.PatientID.String() + `","field_path":"public_view.blood_type"}`
		w := s.do(http.MethodPost, "/api/pending-changes", body, &s.owner)
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("anonymous", func() {
		w := s.do(http.MethodPost, "/api/pending-changes", `{}`, nil)
		s.Equal(http.StatusUnauthorized, w.Code)
	})
}

func (s *GovernanceHandlerSuite) TestVotes() {
	c := s.change(models.StatusPending)
	path := "/api/pending-changes/" + c.ID.String()

	s.Run("approve with comment", func() {
		approved := s.change(models.StatusFinalized)
		approved.ID = c.ID
		s.service.EXPECT().Approve(gomock.Any(), c.ID, s.clinician, "looks right").Return(approved, nil)

		w := s.do(http.MethodPost, path+"/approve", `{"comment":" looks right "}`, &s.clinician)
		s.Equal(http.StatusOK, w.Code)
		s.Contains(w.Body.String(), `"status":"finalized"`)
	})

	s.Run("approve without body", func() {
		s.service.EXPECT().Approve(gomock.Any(), c.ID, s.clinician, "").Return(c, nil)
		w := s.do(http.MethodPost, path+"/approve", "", &s.clinician)
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("reject reason", func() {
		s.service.EXPECT().Reject(gomock.Any(), c.ID, s.owner, "wrong patient").Return(s.change(models.StatusRejected), nil)
		w := s.do(http.MethodPost, path+"/reject", `{"reason":"wrong patient"}`, &s.owner)
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("duplicate vote is a conflict", func() {
		s.service.EXPECT().Approve(gomock.Any(), c.ID, s.clinician, "").
			Return(nil, dErrors.New(dErrors.CodeDuplicateVote, "voter has already voted"))
		w := s.do(http.MethodPost, path+"/approve", "", &s.clinician)
		s.Equal(http.StatusConflict, w.Code)
		s.Contains(w.Body.String(), "duplicate_vote")
	})

	s.Run("terminal change is a conflict", func() {
		s.service.EXPECT().Reject(gomock.Any(), c.ID, s.clinician, "").
			Return(nil, dErrors.New(dErrors.CodeTerminalState, "change is finalized"))
		w := s.do(http.MethodPost, path+"/reject", "", &s.clinician)
		s.Equal(http.StatusConflict, w.Code)
		s.Contains(w.Body.String(), "terminal_state")
	})

	s.Run("malformed change ID", func() {
		w := s.do(http.MethodPost, "/api/pending-changes/xyz/approve", "", &s.clinician)
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *GovernanceHandlerSuite) TestFinalize() {
	c := s.change(models.StatusApproved)
	path := "/api/pending-changes/" + c.ID.String() + "/finalize"

	s.Run("visible change", func() {
		done := s.change(models.StatusFinalized)
		s.service.EXPECT().Get(gomock.Any(), s.owner, c.ID).Return(c, nil)
		s.service.EXPECT().Finalize(gomock.Any(), c.ID).Return(done, nil)
		w := s.do(http.MethodPost, path, "", &s.owner)
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("invisible change is not found", func() {
		stranger := id.Actor{UserID: id.NewUserID(), Role: id.RoleOwner}
		s.service.EXPECT().Get(gomock.Any(), stranger, c.ID).Return(nil, dErrors.New(dErrors.CodeNotFound, "pending change not found"))
		w := s.do(http.MethodPost, path, "", &stranger)
		s.Equal(http.StatusNotFound, w.Code)
	})
}

func (s *GovernanceHandlerSuite) TestLists() {
	c := s.change(models.StatusPending)

	s.service.EXPECT().ListChangesRequiringVote(gomock.Any(), s.clinician).Return([]*models.PendingChange{c}, nil)
	w := s.do(http.MethodGet, "/api/pending-changes", "", &s.clinician)
	s.Equal(http.StatusOK, w.Code)
	var list ChangeListResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &list))
	s.Equal(1, list.Count)
	s.Equal(c.ID.String(), list.Changes[0].ID)

	s.service.EXPECT().ListForPatient(gomock.Any(), s.owner, c.PatientID).Return(nil, nil)
	w = s.do(http.MethodGet, "/api/patients/"+c.PatientID.String()+"/pending-changes", "", &s.owner)
	s.Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"changes":[],"count":0}`, w.Body.String())
}

package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"instahelp/internal/captoken/service"
	"instahelp/internal/captoken/store"
	patientmodels "instahelp/internal/patient/models"
	id "instahelp/pkg/domain"
	dErrors "instahelp/pkg/domain-errors"
	"instahelp/pkg/requestcontext"
)

type ownerIndex map[id.UserID]*patientmodels.Patient

func (o ownerIndex) GetByOwner(_ context.Context, ownerID id.UserID) (*patientmodels.Patient, error) {
	if p, ok := o[ownerID]; ok {
		return p, nil
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "patient record not found")
}

type TokenHandlerSuite struct {
	suite.Suite
	broker  *service.Broker
	router  chi.Router
	owner   id.Actor
	patient *patientmodels.Patient
}

func TestTokenHandlerSuite(t *testing.T) {
	suite.Run(t, new(TokenHandlerSuite))
}

func (s *TokenHandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.broker = service.New(store.NewInMemory(), service.WithLogger(logger), service.WithFrontendURL("https://help.example"))
	s.owner = id.Actor{UserID: id.NewUserID(), Role: id.RoleOwner}
	s.patient = &patientmodels.Patient{ID: id.NewPatientID(), OwnerID: s.owner.UserID}

	h := New(s.broker, ownerIndex{s.owner.UserID: s.patient}, logger)
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *TokenHandlerSuite) do(method, path string, caller id.Actor) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req = req.WithContext(requestcontext.WithActor(req.Context(), caller))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *TokenHandlerSuite) getToken() TokenResponse {
	w := s.do(http.MethodGet, "/api/tokens", s.owner)
	s.Require().Equal(http.StatusOK, w.Code)
	var resp TokenResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func (s *TokenHandlerSuite) TestGetIssuesOnce() {
	first := s.getToken()
	s.Equal(1, first.Version)
	s.Equal("https://help.example/r/"+first.Token, first.EmergencyURL)

	again := s.getToken()
	s.Equal(first.Token, again.Token)
}

func (s *TokenHandlerSuite) TestRotate() {
	first := s.getToken()

	w := s.do(http.MethodPost, "/api/tokens/rotate", s.owner)
	s.Require().Equal(http.StatusOK, w.Code)
	var rotated TokenResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &rotated))
	s.Equal(2, rotated.Version)
	s.NotEqual(first.Token, rotated.Token)

	_, err := s.broker.GetTokenByToken(context.Background(), first.Token)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound), "old token stops resolving")
}

func (s *TokenHandlerSuite) TestRevokeThenHistory() {
	first := s.getToken()

	w := s.do(http.MethodPost, "/api/tokens/revoke", s.owner)
	s.Equal(http.StatusNoContent, w.Code)

	w = s.do(http.MethodPost, "/api/tokens/revoke", s.owner)
	s.Equal(http.StatusNotFound, w.Code, "nothing left to revoke")

	next := s.getToken()
	s.Equal(2, next.Version)
	s.NotEqual(first.Token, next.Token)

	w = s.do(http.MethodGet, "/api/tokens/history", s.owner)
	s.Require().Equal(http.StatusOK, w.Code)
	var history HistoryResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &history))
	s.Len(history.Tokens, 2)
	s.NotContains(w.Body.String(), first.Token)
}

func (s *TokenHandlerSuite) TestClinicianForbidden() {
	clinician := id.Actor{UserID: id.NewUserID(), Role: id.RoleClinician}
	w := s.do(http.MethodGet, "/api/tokens", clinician)
	s.Equal(http.StatusForbidden, w.Code)
}

func (s *TokenHandlerSuite) TestOwnerWithoutRecord() {
	other := id.Actor{UserID: id.NewUserID(), Role: id.RoleOwner}
	w := s.do(http.MethodPost, "/api/tokens/rotate", other)
	s.Equal(http.StatusNotFound, w.Code)
}

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"instahelp/internal/captoken/models"
	id "instahelp/pkg/domain"
	"instahelp/pkg/platform/sentinel"
)

// InMemory keeps tokens in maps; it enforces the same one-active-per-patient
// rule the Postgres partial unique index does.
type InMemory struct {
	mu      sync.RWMutex
	byID    map[id.TokenID]*models.Token
	byToken map[string]id.TokenID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:    make(map[id.TokenID]*models.Token),
		byToken: make(map[string]id.TokenID),
	}
}

func (s *InMemory) Create(_ context.Context, t *models.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byToken[t.Token]; taken {
		return sentinel.ErrConflict
	}
	for _, existing := range s.byID {
		if existing.PatientID == t.PatientID && !existing.IsRevoked() {
			return sentinel.ErrConflict
		}
	}
	cp := *t
	s.byID[t.ID] = &cp
	s.byToken[t.Token] = t.ID
	return nil
}

func (s *InMemory) FindByToken(_ context.Context, token string) (*models.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tokenID, ok := s.byToken[token]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	t := s.byID[tokenID]
	if t.IsRevoked() {
		return nil, sentinel.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *InMemory) FindActiveByPatient(_ context.Context, patientID id.PatientID) (*models.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var newest *models.Token
	for _, t := range s.byID {
		if t.PatientID != patientID || t.IsRevoked() {
			continue
		}
		if newest == nil || t.CreatedAt.After(newest.CreatedAt) {
			newest = t
		}
	}
	if newest == nil {
		return nil, sentinel.ErrNotFound
	}
	cp := *newest
	return &cp, nil
}

func (s *InMemory) LatestVersion(_ context.Context, patientID id.PatientID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	latest := 0
	for _, t := range s.byID {
		if t.PatientID == patientID && t.Version > latest {
			latest = t.Version
		}
	}
	return latest, nil
}

func (s *InMemory) Revoke(_ context.Context, tokenID id.TokenID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[tokenID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if t.RevokedAt == nil {
		revokedAt := at
		t.RevokedAt = &revokedAt
	}
	return nil
}

func (s *InMemory) TouchLastAccessed(_ context.Context, tokenID id.TokenID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[tokenID]
	if !ok {
		return sentinel.ErrNotFound
	}
	accessed := at
	t.LastAccessedAt = &accessed
	return nil
}

func (s *InMemory) ListByPatient(_ context.Context, patientID id.PatientID) ([]*models.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Token
	for _, t := range s.byID {
		if t.PatientID == patientID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

package store

import (
	"context"
	"sync"

	"instahelp/internal/patient/models"
	id "instahelp/pkg/domain"
	"instahelp/pkg/platform/sentinel"
)

// InMemory keeps patient records in a map. Every read returns a copy.
type InMemory struct {
	mu      sync.RWMutex
	byID    map[id.PatientID]*models.Patient
	byOwner map[id.UserID]id.PatientID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:    make(map[id.PatientID]*models.Patient),
		byOwner: make(map[id.UserID]id.PatientID),
	}
}

func clonePatient(p *models.Patient) *models.Patient {
	cp := *p
	if p.LastVitals != nil {
		lv := *p.LastVitals
		cp.LastVitals = &lv
	}
	return &cp
}

func (s *InMemory) Create(_ context.Context, p *models.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byOwner[p.OwnerID]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.byID[p.ID]; exists {
		return sentinel.ErrConflict
	}
	s.byID[p.ID] = clonePatient(p)
	s.byOwner[p.OwnerID] = p.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, patientID id.PatientID) (*models.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[patientID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clonePatient(p), nil
}

func (s *InMemory) FindByOwner(_ context.Context, ownerID id.UserID) (*models.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	patientID, ok := s.byOwner[ownerID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clonePatient(s.byID[patientID]), nil
}

func (s *InMemory) Update(_ context.Context, p *models.Patient, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.byID[p.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != expectedVersion {
		return sentinel.ErrConflict
	}
	next := clonePatient(p)
	next.OwnerID = current.OwnerID
	next.CreatedAt = current.CreatedAt
	next.LastVitals = current.LastVitals
	next.Version = expectedVersion + 1
	s.byID[p.ID] = next
	return nil
}

func (s *InMemory) UpdateLastVitals(_ context.Context, patientID id.PatientID, vitals models.LastVitals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.byID[patientID]
	if !ok {
		return sentinel.ErrNotFound
	}
	current.LastVitals = &vitals
	return nil
}

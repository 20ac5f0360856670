package store

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"instahelp/internal/device/models"
	id "instahelp/pkg/domain"
	"instahelp/pkg/platform/sentinel"
)

// InMemory holds registrations and readings for tests and single-node runs.
type InMemory struct {
	mu            sync.RWMutex
	registrations map[id.DeviceID]*models.Registration
	vitals        map[id.PatientID][]*models.Vitals
}

func NewInMemory() *InMemory {
	return &InMemory{
		registrations: make(map[id.DeviceID]*models.Registration),
		vitals:        make(map[id.PatientID][]*models.Vitals),
	}
}

func (s *InMemory) CreateRegistration(_ context.Context, reg *models.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.registrations[reg.DeviceID]; exists {
		return sentinel.ErrConflict
	}
	cp := *reg
	s.registrations[reg.DeviceID] = &cp
	return nil
}

func (s *InMemory) FindRegistration(_ context.Context, deviceID id.DeviceID) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.registrations[deviceID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *reg
	return &cp, nil
}

func (s *InMemory) TouchLastSeen(_ context.Context, deviceID id.DeviceID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registrations[deviceID]
	if !ok {
		return sentinel.ErrNotFound
	}
	reg.LastSeenAt = &at
	return nil
}

func (s *InMemory) InsertVitals(_ context.Context, v *models.Vitals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	cp.AdditionalData = maps.Clone(v.AdditionalData)
	s.vitals[v.PatientID] = append(s.vitals[v.PatientID], &cp)
	return nil
}

func (s *InMemory) ListVitals(_ context.Context, patientID id.PatientID, limit int) ([]*models.Vitals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.vitals[patientID]
	out := make([]*models.Vitals, 0, len(all))
	for _, v := range all {
		cp := *v
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

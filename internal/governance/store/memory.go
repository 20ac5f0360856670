package store

import (
	"context"
	"slices"
	"sort"
	"sync"

	"instahelp/internal/governance/models"
	id "instahelp/pkg/domain"
	"instahelp/pkg/platform/sentinel"
)

// InMemory keeps changes in a map. Update enforces the same version check
// as the Postgres store.
type InMemory struct {
	mu      sync.RWMutex
	changes map[id.ChangeID]*models.PendingChange
}

func NewInMemory() *InMemory {
	return &InMemory{changes: make(map[id.ChangeID]*models.PendingChange)}
}

func clone(c *models.PendingChange) *models.PendingChange {
	cp := *c
	cp.OldValue = slices.Clone(c.OldValue)
	cp.NewValue = slices.Clone(c.NewValue)
	cp.Approvals = slices.Clone(c.Approvals)
	cp.Rejections = slices.Clone(c.Rejections)
	if c.FinalizedAt != nil {
		at := *c.FinalizedAt
		cp.FinalizedAt = &at
	}
	return &cp
}

func (s *InMemory) Create(_ context.Context, c *models.PendingChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.changes[c.ID]; exists {
		return sentinel.ErrConflict
	}
	s.changes[c.ID] = clone(c)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, changeID id.ChangeID) (*models.PendingChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.changes[changeID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(c), nil
}

// FindForUpdate is FindByID; serialization comes from the service's lock.
func (s *InMemory) FindForUpdate(ctx context.Context, changeID id.ChangeID) (*models.PendingChange, error) {
	return s.FindByID(ctx, changeID)
}

func (s *InMemory) Update(_ context.Context, c *models.PendingChange, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.changes[c.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != expectedVersion {
		return sentinel.ErrConflict
	}
	next := clone(c)
	next.Version = expectedVersion + 1
	s.changes[c.ID] = next
	return nil
}

func (s *InMemory) ListOpenByPatient(_ context.Context, patientID id.PatientID) ([]*models.PendingChange, error) {
	return s.list(func(c *models.PendingChange) bool {
		return c.PatientID == patientID && c.Status.IsOpen()
	}), nil
}

func (s *InMemory) ListOpen(_ context.Context) ([]*models.PendingChange, error) {
	return s.list(func(c *models.PendingChange) bool { return c.Status.IsOpen() }), nil
}

// list returns matching changes newest first.
func (s *InMemory) list(match func(*models.PendingChange) bool) []*models.PendingChange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.PendingChange, 0)
	for _, c := range s.changes {
		if match(c) {
			out = append(out, clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

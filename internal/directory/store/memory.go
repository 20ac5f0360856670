package store

import (
	"context"
	"sort"
	"sync"

	"instahelp/internal/directory"
	id "instahelp/pkg/domain"
	"instahelp/pkg/platform/sentinel"
)

// InMemory is a directory seeded by tests and local development.
type InMemory struct {
	mu       sync.RWMutex
	accounts map[id.UserID]directory.Account
}

func NewInMemory() *InMemory {
	return &InMemory{accounts: make(map[id.UserID]directory.Account)}
}

// Put inserts or replaces an account.
func (s *InMemory) Put(acct directory.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[acct.ID] = acct
}

func (s *InMemory) FindByID(_ context.Context, userID id.UserID) (*directory.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &acct, nil
}

func (s *InMemory) ListVerifiedClinicians(_ context.Context) ([]*directory.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*directory.Account
	for _, acct := range s.accounts {
		if acct.IsVerifiedClinician() {
			cp := acct
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

package account

import (
	"context"
	"sync"

	"guardrail/pkg/domain"
	"guardrail/pkg/platform/sentinel"
)

// InMemory is a directory used by tests and local development.
type InMemory struct {
	mu       sync.RWMutex
	accounts map[domain.AccountID]Account
}

func NewInMemory(seed ...Account) *InMemory {
	s := &InMemory{accounts: make(map[domain.AccountID]Account, len(seed))}
	for _, a := range seed {
		s.accounts[a.ID] = a
	}
	return s
}

// Put inserts or replaces an account snapshot.
func (s *InMemory) Put(a Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
}

func (s *InMemory) FindByID(_ context.Context, id domain.AccountID) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &a, nil
}

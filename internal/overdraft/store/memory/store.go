package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"guardrail/internal/overdraft"
	"guardrail/pkg/domain"
	"guardrail/pkg/platform/sentinel"
)

// InMemoryStore keeps requests in a map. The open-request index mirrors the
// partial unique index of the Postgres store.
type InMemoryStore struct {
	mu       sync.RWMutex
	requests map[domain.OverdraftRequestID]*overdraft.Request
	open     map[domain.AccountID]domain.OverdraftRequestID
}

func New() *InMemoryStore {
	return &InMemoryStore{
		requests: make(map[domain.OverdraftRequestID]*overdraft.Request),
		open:     make(map[domain.AccountID]domain.OverdraftRequestID),
	}
}

func clone(r *overdraft.Request) *overdraft.Request {
	cp := *r
	return &cp
}

func (s *InMemoryStore) Create(_ context.Context, req *overdraft.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[req.ID]; exists {
		return sentinel.ErrConflict
	}
	if req.State.IsOpen() {
		if _, busy := s.open[req.AccountID]; busy {
			return sentinel.ErrConflict
		}
		s.open[req.AccountID] = req.ID
	}
	s.requests[req.ID] = clone(req)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.OverdraftRequestID) (*overdraft.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(req), nil
}

func (s *InMemoryStore) FindOpenByAccount(_ context.Context, accountID domain.AccountID) (*overdraft.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.open[accountID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(s.requests[id]), nil
}

func (s *InMemoryStore) Transition(_ context.Context, req *overdraft.Request, from overdraft.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.requests[req.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.State != from {
		return sentinel.ErrInvalidState
	}
	s.requests[req.ID] = clone(req)
	if !req.State.IsOpen() && s.open[req.AccountID] == req.ID {
		delete(s.open, req.AccountID)
	}
	return nil
}

func (s *InMemoryStore) RecordAlert(_ context.Context, id domain.OverdraftRequestID, from, to overdraft.AlertLevel, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.requests[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.State != overdraft.StateActive || current.AlertLevel != from {
		return sentinel.ErrInvalidState
	}
	updated := clone(current)
	updated.AlertLevel = to
	updated.AlertedAt = &at
	s.requests[id] = updated
	return nil
}

func (s *InMemoryStore) List(_ context.Context, filter overdraft.ListFilter) ([]*overdraft.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*overdraft.Request
	for _, req := range s.requests {
		if !filter.AccountID.IsNil() && req.AccountID != filter.AccountID {
			continue
		}
		if len(filter.States) > 0 && !slices.Contains(filter.States, req.State) {
			continue
		}
		out = append(out, clone(req))
	}
	slices.SortFunc(out, func(a, b *overdraft.Request) int {
		return a.RequestedAt.Compare(b.RequestedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *InMemoryStore) Delete(_ context.Context, id domain.OverdraftRequestID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if s.open[req.AccountID] == id {
		delete(s.open, req.AccountID)
	}
	delete(s.requests, id)
	return nil
}

package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"guardrail/internal/minor"
	"guardrail/pkg/domain"
	"guardrail/pkg/platform/sentinel"
)

// InMemoryStore keeps notifications in a map with a dedup-key index.
type InMemoryStore struct {
	mu            sync.RWMutex
	notifications map[domain.NotificationID]*minor.Notification
	dedup         map[string]domain.NotificationID
}

func New() *InMemoryStore {
	return &InMemoryStore{
		notifications: make(map[domain.NotificationID]*minor.Notification),
		dedup:         make(map[string]domain.NotificationID),
	}
}

func clone(n *minor.Notification) *minor.Notification {
	c := *n
	return &c
}

func (s *InMemoryStore) Create(_ context.Context, n *minor.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.DedupKey != "" {
		if _, taken := s.dedup[n.DedupKey]; taken {
			return sentinel.ErrConflict
		}
		s.dedup[n.DedupKey] = n.ID
	}
	s.notifications[n.ID] = clone(n)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.NotificationID) (*minor.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notifications[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(n), nil
}

func (s *InMemoryStore) MarkSent(_ context.Context, id domain.NotificationID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	sentAt := at
	n.SentAt = &sentAt
	n.Attempts++
	n.LastError = ""
	return nil
}

func (s *InMemoryStore) MarkFailed(_ context.Context, id domain.NotificationID, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	n.Attempts++
	n.LastError = lastErr
	return nil
}

func (s *InMemoryStore) Acknowledge(_ context.Context, id domain.NotificationID, at time.Time) (*minor.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if !n.Acknowledged {
		ackAt := at
		n.Acknowledged = true
		n.AcknowledgedAt = &ackAt
	}
	return clone(n), nil
}

func (s *InMemoryStore) List(_ context.Context, filter minor.ListFilter) ([]*minor.Notification, error) {
	s.mu.RLock()
	out := make([]*minor.Notification, 0)
	for _, n := range s.notifications {
		if n.MinorAccountID != filter.MinorAccountID {
			continue
		}
		if filter.UnreadOnly && n.Acknowledged {
			continue
		}
		out = append(out, clone(n))
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *minor.Notification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *InMemoryStore) Undelivered(_ context.Context, maxAttempts, limit int) ([]*minor.Notification, error) {
	s.mu.RLock()
	out := make([]*minor.Notification, 0)
	for _, n := range s.notifications {
		if n.Delivered() || n.Suppressed || n.Attempts >= maxAttempts {
			continue
		}
		out = append(out, clone(n))
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *minor.Notification) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

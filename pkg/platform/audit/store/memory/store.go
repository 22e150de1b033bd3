package memory

import (
	"context"
	"slices"
	"sync"

	audit "guardrail/pkg/platform/audit"
)

// InMemoryStore keeps the chain in a slice ordered by seq.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []audit.Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, e audit.Entry, seal audit.SealFunc) (audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevHash := ""
	if n := len(s.entries); n > 0 {
		prevHash = s.entries[n-1].Hash
	}
	sealed := seal(prevHash, int64(len(s.entries))+1, e)
	s.entries = append(s.entries, sealed)
	return sealed, nil
}

func (s *InMemoryStore) Query(_ context.Context, filter audit.Filter, page audit.PageRequest) (audit.Page, error) {
	page = page.Normalize()
	cursor, hasCursor, err := audit.ParseCursor(page.Cursor)
	if err != nil {
		return audit.Page{}, err
	}

	s.mu.RLock()
	matches := make([]audit.Entry, 0)
	for _, e := range s.entries {
		if !filter.Matches(e) {
			continue
		}
		if hasCursor && !cursor.After(e) {
			continue
		}
		matches = append(matches, e)
	}
	s.mu.RUnlock()

	slices.SortStableFunc(matches, func(a, b audit.Entry) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return int(a.Seq - b.Seq)
	})

	if len(matches) <= page.Limit {
		return audit.Page{Entries: matches}, nil
	}
	matches = matches[:page.Limit]
	return audit.Page{Entries: matches, NextCursor: audit.CursorOf(matches[len(matches)-1])}, nil
}

func (s *InMemoryStore) Scan(_ context.Context, afterSeq int64, limit int) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if afterSeq < 0 {
		afterSeq = 0
	}
	if afterSeq >= int64(len(s.entries)) {
		return nil, nil
	}
	end := min(int(afterSeq)+limit, len(s.entries))
	return slices.Clone(s.entries[afterSeq:end]), nil
}

// Tamper overwrites a stored entry in place. It exists so tests can prove
// that verification catches edits.
func (s *InMemoryStore) Tamper(seq int64, mutate func(*audit.Entry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq >= 1 && seq <= int64(len(s.entries)) {
		mutate(&s.entries[seq-1])
	}
}

package memory

import (
	"context"
	"encoding/binary"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"guardrail/internal/usage"
	"guardrail/pkg/domain"
	"guardrail/pkg/platform/sentinel"
)

const defaultShards = 64

type accountState struct {
	records   map[string]*usage.Record
	extension *usage.Extension
}

// InMemoryStore serializes every mutation of an account through a weighted
// semaphore shard. Acquisition honours the caller's deadline, so a saturated
// shard surfaces as sentinel.ErrContention instead of blocking forever.
type InMemoryStore struct {
	shards []*semaphore.Weighted

	mu           sync.Mutex // guards the maps, not the account state
	accounts     map[domain.AccountID]*accountState
	reservations map[domain.ReservationID]*usage.Reservation
}

func New() *InMemoryStore {
	return NewWithShards(defaultShards)
}

func NewWithShards(n int) *InMemoryStore {
	if n <= 0 {
		n = defaultShards
	}
	shards := make([]*semaphore.Weighted, n)
	for i := range shards {
		shards[i] = semaphore.NewWeighted(1)
	}
	return &InMemoryStore{
		shards:       shards,
		accounts:     make(map[domain.AccountID]*accountState),
		reservations: make(map[domain.ReservationID]*usage.Reservation),
	}
}

func (s *InMemoryStore) shardFor(accountID domain.AccountID) *semaphore.Weighted {
	u := uuid.UUID(accountID)
	return s.shards[binary.BigEndian.Uint64(u[8:])%uint64(len(s.shards))]
}

func (s *InMemoryStore) lock(ctx context.Context, accountID domain.AccountID) (func(), error) {
	sem := s.shardFor(accountID)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %v", sentinel.ErrContention, err)
	}
	return func() { sem.Release(1) }, nil
}

func (s *InMemoryStore) state(accountID domain.AccountID) *accountState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.accounts[accountID]
	if !ok {
		st = &accountState{records: make(map[string]*usage.Record)}
		s.accounts[accountID] = st
	}
	return st
}

func (st *accountState) record(accountID domain.AccountID, key string) *usage.Record {
	r, ok := st.records[key]
	if !ok {
		r = &usage.Record{AccountID: accountID, PeriodKey: key}
		st.records[key] = r
	}
	return r
}

func (st *accountState) snapshot(accountID domain.AccountID, dayKey, monthKey string) usage.Snapshot {
	snap := usage.Snapshot{
		Day:   usage.Record{AccountID: accountID, PeriodKey: dayKey},
		Month: usage.Record{AccountID: accountID, PeriodKey: monthKey},
	}
	if r, ok := st.records[dayKey]; ok {
		snap.Day = *r
	}
	if r, ok := st.records[monthKey]; ok {
		snap.Month = *r
	}
	if st.extension != nil {
		ext := *st.extension
		snap.Extension = &ext
	}
	return snap
}

func (s *InMemoryStore) Snapshot(ctx context.Context, accountID domain.AccountID, dayKey, monthKey string) (usage.Snapshot, error) {
	unlock, err := s.lock(ctx, accountID)
	if err != nil {
		return usage.Snapshot{}, err
	}
	defer unlock()
	return s.state(accountID).snapshot(accountID, dayKey, monthKey), nil
}

func (s *InMemoryStore) Reserve(ctx context.Context, cmd usage.ReserveCommand) (usage.Reservation, usage.Snapshot, error) {
	unlock, err := s.lock(ctx, cmd.AccountID)
	if err != nil {
		return usage.Reservation{}, usage.Snapshot{}, err
	}
	defer unlock()

	st := s.state(cmd.AccountID)
	day := *st.record(cmd.AccountID, cmd.DayKey)
	month := *st.record(cmd.AccountID, cmd.MonthKey)
	var ext *usage.Extension
	if st.extension != nil {
		e := *st.extension
		ext = &e
	}

	res, ok := usage.ApplyReserve(cmd, &day, &month, ext)
	if !ok {
		return usage.Reservation{}, usage.Snapshot{}, sentinel.ErrInsufficient
	}
	st.records[cmd.DayKey] = &day
	st.records[cmd.MonthKey] = &month
	st.extension = ext

	s.mu.Lock()
	s.reservations[res.ID] = &res
	s.mu.Unlock()

	return res, st.snapshot(cmd.AccountID, cmd.DayKey, cmd.MonthKey), nil
}

func (s *InMemoryStore) FindReservation(_ context.Context, id domain.ReservationID) (usage.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.reservations[id]
	if !ok {
		return usage.Reservation{}, sentinel.ErrNotFound
	}
	return *res, nil
}

func (s *InMemoryStore) Release(ctx context.Context, id domain.ReservationID, now time.Time) (usage.Reservation, error) {
	found, err := s.FindReservation(ctx, id)
	if err != nil {
		return usage.Reservation{}, err
	}
	unlock, err := s.lock(ctx, found.AccountID)
	if err != nil {
		return usage.Reservation{}, err
	}
	defer unlock()

	// Re-read under the account lock; a concurrent release may have won.
	s.mu.Lock()
	res := *s.reservations[id]
	s.mu.Unlock()
	if res.Released() {
		return usage.Reservation{}, sentinel.ErrAlreadyUsed
	}

	st := s.state(res.AccountID)
	usage.ApplyRelease(res, st.record(res.AccountID, res.DayKey), st.record(res.AccountID, res.MonthKey), st.extension, now)

	released := now
	res.ReleasedAt = &released
	s.mu.Lock()
	s.reservations[id] = &res
	s.mu.Unlock()
	return res, nil
}

func (s *InMemoryStore) Grant(ctx context.Context, ext usage.Extension) error {
	unlock, err := s.lock(ctx, ext.AccountID)
	if err != nil {
		return err
	}
	defer unlock()
	s.state(ext.AccountID).extension = &ext
	return nil
}

func (s *InMemoryStore) Revoke(ctx context.Context, accountID domain.AccountID, requestID domain.OverdraftRequestID) (usage.Extension, error) {
	unlock, err := s.lock(ctx, accountID)
	if err != nil {
		return usage.Extension{}, err
	}
	defer unlock()
	st := s.state(accountID)
	if st.extension == nil || st.extension.RequestID != requestID {
		return usage.Extension{}, sentinel.ErrNotFound
	}
	ext := *st.extension
	st.extension = nil
	return ext, nil
}

func (s *InMemoryStore) accountIDs() []domain.AccountID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]domain.AccountID, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	return ids
}

func (s *InMemoryStore) ClosedRecords(ctx context.Context, beforeDay, beforeMonth string, limit int) ([]usage.Record, error) {
	var closed []usage.Record
	for _, id := range s.accountIDs() {
		unlock, err := s.lock(ctx, id)
		if err != nil {
			return nil, err
		}
		for key, r := range s.state(id).records {
			if isClosed(key, beforeDay, beforeMonth) {
				closed = append(closed, *r)
			}
		}
		unlock()
	}
	slices.SortFunc(closed, func(a, b usage.Record) int {
		if c := strings.Compare(a.PeriodKey, b.PeriodKey); c != 0 {
			return c
		}
		return strings.Compare(a.AccountID.String(), b.AccountID.String())
	})
	if limit > 0 && len(closed) > limit {
		closed = closed[:limit]
	}
	return closed, nil
}

func isClosed(key, beforeDay, beforeMonth string) bool {
	if usage.IsDayKey(key) {
		return key < beforeDay
	}
	return key < beforeMonth
}

func (s *InMemoryStore) DeleteRecords(ctx context.Context, records []usage.Record) error {
	for _, r := range records {
		unlock, err := s.lock(ctx, r.AccountID)
		if err != nil {
			return err
		}
		delete(s.state(r.AccountID).records, r.PeriodKey)
		unlock()
	}
	return nil
}

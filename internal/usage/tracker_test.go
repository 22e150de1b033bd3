package usage_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"guardrail/internal/usage"
	"guardrail/internal/usage/store/memory"
	"guardrail/pkg/domain"
	dErrors "guardrail/pkg/domain-errors"
	audit "guardrail/pkg/platform/audit"
	"guardrail/pkg/platform/sentinel"
)

// =============================================================================
// Usage Tracker Test Suite
// =============================================================================
// Justification for unit tests: headroom arithmetic, extension-first draw and
// the release-once rule are money invariants; they are exercised here against
// the in-memory store which shares the arithmetic with the other stores.

var now = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type TrackerSuite struct {
	suite.Suite
	store   *memory.InMemoryStore
	tracker *usage.Tracker
	limits  usage.Limits
	account domain.AccountID
}

func TestTrackerSuite(t *testing.T) {
	suite.Run(t, new(TrackerSuite))
}

func (s *TrackerSuite) SetupTest() {
	s.store = memory.New()
	var err error
	s.tracker, err = usage.New(s.store)
	s.Require().NoError(err)
	s.limits = usage.Limits{DailyCap: dec("200"), PeriodCap: dec("2000")}
	s.account = domain.AccountID(uuid.New())
}

func (s *TrackerSuite) grant(amount string, expiresAt time.Time) domain.OverdraftRequestID {
	requestID := domain.NewOverdraftRequestID()
	s.Require().NoError(s.tracker.Grant(context.Background(), usage.Extension{
		AccountID: s.account,
		RequestID: requestID,
		Granted:   dec(amount),
		ExpiresAt: expiresAt,
	}))
	return requestID
}

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *TrackerSuite) TestNew() {
	s.Run("nil store returns error", func() {
		_, err := usage.New(nil)
		s.Error(err)
		s.Contains(err.Error(), "usage store is required")
	})
}

// =============================================================================
// Headroom Tests
// =============================================================================

func (s *TrackerSuite) TestHeadroom() {
	ctx := context.Background()

	s.Run("fresh account has the full daily cap", func() {
		h, err := s.tracker.Headroom(ctx, s.account, s.limits, now)
		s.Require().NoError(err)
		s.True(h.Standard.Equal(dec("200")))
		s.True(h.Overdraft.IsZero())
		s.True(h.Total.Equal(dec("200")))
		s.Equal("D:2026-10-19", h.DayKey)
		s.Equal("M:2026-10", h.MonthKey)
	})

	s.Run("period cap binds when it is tighter than the day", func() {
		limits := usage.Limits{DailyCap: dec("200"), PeriodCap: dec("250")}
		account := domain.AccountID(uuid.New())
		_, err := s.tracker.Reserve(ctx, account, dec("150"), limits, now.AddDate(0, 0, -1))
		s.Require().NoError(err)

		h, err := s.tracker.Headroom(ctx, account, limits, now)
		s.Require().NoError(err)
		s.True(h.Standard.Equal(dec("100")), "got %s", h.Standard)
		s.True(h.DayUsed.IsZero())
		s.True(h.MonthUsed.Equal(dec("150")))
	})

	s.Run("live extension is reported separately and in total", func() {
		requestID := s.grant("50", now.Add(time.Hour))

		h, err := s.tracker.Headroom(ctx, s.account, s.limits, now)
		s.Require().NoError(err)
		s.True(h.Overdraft.Equal(dec("50")))
		s.True(h.Total.Equal(dec("250")))
		s.Equal(requestID, h.OverdraftRequestID)
		s.Require().NotNil(h.ExtensionExpiresAt)
	})

	s.Run("expired extension contributes nothing", func() {
		h, err := s.tracker.Headroom(ctx, s.account, s.limits, now.Add(2*time.Hour))
		s.Require().NoError(err)
		s.True(h.Overdraft.IsZero())
		s.Nil(h.ExtensionExpiresAt)
	})
}

// =============================================================================
// Reserve Tests
// =============================================================================

func (s *TrackerSuite) TestReserve() {
	ctx := context.Background()

	s.Run("amount within headroom is counted on both periods", func() {
		receipt, err := s.tracker.Reserve(ctx, s.account, dec("120.50"), s.limits, now)
		s.Require().NoError(err)
		s.True(receipt.Reservation.StandardAmount.Equal(dec("120.50")))
		s.True(receipt.Reservation.OverdraftAmount.IsZero())
		s.True(receipt.After.Standard.Equal(dec("79.50")))
		s.True(receipt.After.MonthUsed.Equal(dec("120.50")))
	})

	s.Run("amount beyond headroom is rejected without counting", func() {
		_, err := s.tracker.Reserve(ctx, s.account, dec("80"), s.limits, now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientHeadroom))

		h, err := s.tracker.Headroom(ctx, s.account, s.limits, now)
		s.Require().NoError(err)
		s.True(h.DayUsed.Equal(dec("120.50")))
	})

	s.Run("invalid amounts are rejected", func() {
		for _, amount := range []string{"0", "-1", "1.001"} {
			_, err := s.tracker.Reserve(ctx, s.account, dec(amount), s.limits, now)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput), amount)
		}
	})
}

func (s *TrackerSuite) TestReserveDrawsExtensionFirst() {
	ctx := context.Background()
	requestID := s.grant("100", now.Add(24*time.Hour))

	receipt, err := s.tracker.Reserve(ctx, s.account, dec("130"), s.limits, now)
	s.Require().NoError(err)
	s.True(receipt.Reservation.OverdraftAmount.Equal(dec("100")))
	s.True(receipt.Reservation.StandardAmount.Equal(dec("30")))
	s.Equal(requestID, receipt.Reservation.OverdraftRequestID)
	s.True(receipt.ExtensionExhausted())
	s.True(receipt.After.Standard.Equal(dec("170")))
}

func (s *TrackerSuite) TestReserveExtensionNotExhausted() {
	ctx := context.Background()
	s.grant("100", now.Add(24*time.Hour))

	receipt, err := s.tracker.Reserve(ctx, s.account, dec("40"), s.limits, now)
	s.Require().NoError(err)
	s.False(receipt.ExtensionExhausted())
	s.True(receipt.After.Overdraft.Equal(dec("60")))
	s.True(receipt.After.DayUsed.IsZero())
}

// =============================================================================
// Release Tests
// =============================================================================

func (s *TrackerSuite) TestRelease() {
	ctx := context.Background()

	s.Run("release restores headroom and a second release fails", func() {
		before, err := s.tracker.Headroom(ctx, s.account, s.limits, now)
		s.Require().NoError(err)

		receipt, err := s.tracker.Reserve(ctx, s.account, dec("75"), s.limits, now)
		s.Require().NoError(err)

		released, err := s.tracker.Release(ctx, receipt.Reservation.ID, now)
		s.Require().NoError(err)
		s.True(released.Released())

		after, err := s.tracker.Headroom(ctx, s.account, s.limits, now)
		s.Require().NoError(err)
		s.True(before.Total.Equal(after.Total))

		_, err = s.tracker.Release(ctx, receipt.Reservation.ID, now)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyReleased))

		again, err := s.tracker.Headroom(ctx, s.account, s.limits, now)
		s.Require().NoError(err)
		s.True(before.Total.Equal(again.Total), "double release must not credit twice")
	})

	s.Run("unknown reservation is not found", func() {
		_, err := s.tracker.Release(ctx, domain.NewReservationID(), now)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("release credits back to the original day", func() {
		yesterday := now.AddDate(0, 0, -1)
		receipt, err := s.tracker.Reserve(ctx, s.account, dec("50"), s.limits, yesterday)
		s.Require().NoError(err)

		_, err = s.tracker.Release(ctx, receipt.Reservation.ID, now)
		s.Require().NoError(err)

		h, err := s.tracker.Headroom(ctx, s.account, s.limits, yesterday)
		s.Require().NoError(err)
		s.True(h.DayUsed.IsZero())
	})
}

func (s *TrackerSuite) TestReleaseOverdraftPart() {
	ctx := context.Background()

	s.Run("credited back to a live extension", func() {
		s.grant("100", now.Add(time.Hour))
		receipt, err := s.tracker.Reserve(ctx, s.account, dec("60"), s.limits, now)
		s.Require().NoError(err)

		_, err = s.tracker.Release(ctx, receipt.Reservation.ID, now)
		s.Require().NoError(err)

		h, err := s.tracker.Headroom(ctx, s.account, s.limits, now)
		s.Require().NoError(err)
		s.True(h.Overdraft.Equal(dec("100")))
	})

	s.Run("forfeited once the extension expired", func() {
		s.account = domain.AccountID(uuid.New())
		s.grant("100", now.Add(time.Hour))
		receipt, err := s.tracker.Reserve(ctx, s.account, dec("60"), s.limits, now)
		s.Require().NoError(err)

		later := now.Add(2 * time.Hour)
		_, err = s.tracker.Release(ctx, receipt.Reservation.ID, later)
		s.Require().NoError(err)

		h, err := s.tracker.Headroom(ctx, s.account, s.limits, later)
		s.Require().NoError(err)
		s.True(h.Overdraft.IsZero())
		s.True(h.Standard.Equal(dec("200")))
	})

	s.Run("forfeited once the extension was revoked", func() {
		s.account = domain.AccountID(uuid.New())
		requestID := s.grant("100", now.Add(time.Hour))
		receipt, err := s.tracker.Reserve(ctx, s.account, dec("100"), s.limits, now)
		s.Require().NoError(err)

		revoked, err := s.tracker.Revoke(ctx, s.account, requestID)
		s.Require().NoError(err)
		s.True(revoked.Consumed.Equal(dec("100")))

		_, err = s.tracker.Release(ctx, receipt.Reservation.ID, now)
		s.Require().NoError(err)

		h, err := s.tracker.Headroom(ctx, s.account, s.limits, now)
		s.Require().NoError(err)
		s.True(h.Overdraft.IsZero())
	})
}

// =============================================================================
// Concurrency Tests
// =============================================================================

func (s *TrackerSuite) TestParallelReservesNeverExceedCap() {
	ctx := context.Background()
	const goroutines = 64

	var (
		wg          sync.WaitGroup
		reserved    atomic.Int32
		unexpected  atomic.Int32
		rejectedCap atomic.Int32
	)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.tracker.Reserve(ctx, s.account, dec("15"), s.limits, now)
			switch {
			case err == nil:
				reserved.Add(1)
			case dErrors.HasCode(err, dErrors.CodeInsufficientHeadroom),
				dErrors.HasCode(err, dErrors.CodeConcurrentLimit):
				rejectedCap.Add(1)
			default:
				unexpected.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Zero(unexpected.Load())
	s.LessOrEqual(reserved.Load(), int32(13))

	h, err := s.tracker.Headroom(ctx, s.account, s.limits, now)
	s.Require().NoError(err)
	s.True(h.DayUsed.LessThanOrEqual(s.limits.DailyCap), "day used %s", h.DayUsed)
	s.True(h.DayUsed.Equal(dec("15").Mul(decimal.NewFromInt32(reserved.Load()))))
}

// =============================================================================
// Archive Tests
// =============================================================================

type sliceArchiver struct {
	records []usage.Record
}

func (a *sliceArchiver) Put(_ context.Context, records []usage.Record) error {
	a.records = append(a.records, records...)
	return nil
}

type recordingAuditor struct {
	entries []audit.Entry
}

func (a *recordingAuditor) Record(_ context.Context, e audit.Entry) (audit.Entry, error) {
	a.entries = append(a.entries, e)
	return e, nil
}

func (s *TrackerSuite) TestArchive() {
	ctx := context.Background()
	auditor := &recordingAuditor{}
	tracker, err := usage.New(s.store, usage.WithAuditor(auditor), usage.WithArchiveBatch(2))
	s.Require().NoError(err)

	for _, at := range []time.Time{now.AddDate(0, -1, 0), now.AddDate(0, 0, -2), now.AddDate(0, 0, -1), now} {
		_, err := tracker.Reserve(ctx, s.account, dec("10"), s.limits, at)
		s.Require().NoError(err)
	}

	archiver := &sliceArchiver{}
	result, err := tracker.Archive(ctx, archiver, now)
	s.Require().NoError(err)

	// Three closed days plus the previous month.
	s.Equal(4, result.Records)
	s.Len(archiver.records, 4)
	s.Require().Len(auditor.entries, 1)
	s.Equal(audit.ActionUsageArchived, auditor.entries[0].Action)

	h, err := tracker.Headroom(ctx, s.account, s.limits, now)
	s.Require().NoError(err)
	s.True(h.DayUsed.Equal(dec("10")), "open day must stay in the hot store")
	s.True(h.MonthUsed.Equal(dec("30")))

	again, err := tracker.Archive(ctx, archiver, now)
	s.Require().NoError(err)
	s.Zero(again.Records)
	s.Len(auditor.entries, 1)
}

// =============================================================================
// Contention
// =============================================================================

type stalledStore struct {
	usage.Store
}

func (stalledStore) Reserve(ctx context.Context, _ usage.ReserveCommand) (usage.Reservation, usage.Snapshot, error) {
	<-ctx.Done()
	return usage.Reservation{}, usage.Snapshot{}, errors.Join(sentinel.ErrContention, ctx.Err())
}

func TestReserveContentionSurfacesAsConcurrentLimit(t *testing.T) {
	tracker, err := usage.New(stalledStore{Store: memory.New()}, usage.WithReserveTimeout(20*time.Millisecond))
	require.NoError(t, err)

	_, err = tracker.Reserve(context.Background(), domain.AccountID(uuid.New()), dec("1"),
		usage.Limits{DailyCap: dec("10"), PeriodCap: dec("10")}, now)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConcurrentLimit))
}

func TestPeriodKeysAreUTC(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	local := time.Date(2026, 11, 1, 8, 0, 0, 0, loc)
	assert.Equal(t, "D:2026-10-31", usage.DayKey(local))
	assert.Equal(t, "M:2026-10", usage.MonthKey(local))
	assert.True(t, usage.IsDayKey("D:2026-10-31"))
	assert.False(t, usage.IsDayKey("M:2026-10"))
}

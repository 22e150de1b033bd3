//go:build integration

package redis_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"guardrail/internal/usage"
	usageredis "guardrail/internal/usage/store/redis"
	"guardrail/pkg/domain"
	dErrors "guardrail/pkg/domain-errors"
	"guardrail/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis   *containers.RedisContainer
	store   *usageredis.RedisStore
	tracker *usage.Tracker
	limits  usage.Limits
	now     time.Time
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = usageredis.New(s.redis.Client)

	var err error
	s.tracker, err = usage.New(s.store)
	s.Require().NoError(err)
	s.limits = usage.Limits{DailyCap: decimal.NewFromInt(100), PeriodCap: decimal.NewFromInt(1000)}
	s.now = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestConcurrentReservesRespectCap() {
	ctx := context.Background()
	account := domain.AccountID(uuid.New())

	var (
		wg       sync.WaitGroup
		reserved atomic.Int32
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.tracker.Reserve(ctx, account, decimal.RequireFromString("9.99"), s.limits, s.now); err == nil {
				reserved.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(10), reserved.Load())
	h, err := s.tracker.Headroom(ctx, account, s.limits, s.now)
	s.Require().NoError(err)
	s.True(h.DayUsed.Equal(decimal.RequireFromString("99.90")), "day used %s", h.DayUsed)
}

func (s *RedisStoreSuite) TestReleaseOnceAndCreditLiveExtension() {
	ctx := context.Background()
	account := domain.AccountID(uuid.New())
	requestID := domain.NewOverdraftRequestID()
	s.Require().NoError(s.tracker.Grant(ctx, usage.Extension{
		AccountID: account,
		RequestID: requestID,
		Granted:   decimal.NewFromInt(25),
		ExpiresAt: s.now.Add(time.Hour),
	}))

	receipt, err := s.tracker.Reserve(ctx, account, decimal.NewFromInt(40), s.limits, s.now)
	s.Require().NoError(err)
	s.Equal(requestID, receipt.Reservation.OverdraftRequestID)
	s.True(receipt.Reservation.OverdraftAmount.Equal(decimal.NewFromInt(25)))

	_, err = s.tracker.Release(ctx, receipt.Reservation.ID, s.now)
	s.Require().NoError(err)
	_, err = s.tracker.Release(ctx, receipt.Reservation.ID, s.now)
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyReleased))

	h, err := s.tracker.Headroom(ctx, account, s.limits, s.now)
	s.Require().NoError(err)
	s.True(h.Overdraft.Equal(decimal.NewFromInt(25)))
	s.True(h.DayUsed.IsZero())

	ext, err := s.tracker.Revoke(ctx, account, requestID)
	s.Require().NoError(err)
	s.True(ext.Granted.Equal(decimal.NewFromInt(25)))

	_, err = s.store.Revoke(ctx, account, requestID)
	s.Error(err)
}

func (s *RedisStoreSuite) TestClosedRecords() {
	ctx := context.Background()
	account := domain.AccountID(uuid.New())
	for _, at := range []time.Time{s.now.AddDate(0, 0, -3), s.now} {
		_, err := s.tracker.Reserve(ctx, account, decimal.NewFromInt(5), s.limits, at)
		s.Require().NoError(err)
	}

	closed, err := s.store.ClosedRecords(ctx, usage.DayKey(s.now), usage.MonthKey(s.now), 10)
	s.Require().NoError(err)
	s.Require().Len(closed, 1)
	s.Equal(usage.DayKey(s.now.AddDate(0, 0, -3)), closed[0].PeriodKey)
	s.True(closed[0].CumulativeAmount.Equal(decimal.NewFromInt(5)))

	s.Require().NoError(s.store.DeleteRecords(ctx, closed))
	closed, err = s.store.ClosedRecords(ctx, usage.DayKey(s.now), usage.MonthKey(s.now), 10)
	s.Require().NoError(err)
	s.Empty(closed)
}

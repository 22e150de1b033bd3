//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"guardrail/internal/overdraft"
	"guardrail/internal/overdraft/store/postgres"
	platformpostgres "guardrail/internal/platform/postgres"
	"guardrail/internal/policy"
	"guardrail/internal/usage"
	usagepostgres "guardrail/internal/usage/store/postgres"
	"guardrail/pkg/domain"
	dErrors "guardrail/pkg/domain-errors"
	audit "guardrail/pkg/platform/audit"
	"guardrail/pkg/platform/audit/publishers/compliance"
	auditpostgres "guardrail/pkg/platform/audit/store/postgres"
	"guardrail/pkg/platform/sentinel"
	"guardrail/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.PostgresStore
	audit    *compliance.Publisher
	workflow *overdraft.Workflow
	terms    policy.OverdraftTerms
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	ctx := context.Background()
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.Require().NoError(platformpostgres.Migrate(ctx, s.postgres.DB,
		postgres.Schema, usagepostgres.Schema, auditpostgres.Schema))

	tracker, err := usage.New(usagepostgres.New(s.postgres.DB))
	s.Require().NoError(err)
	chain, err := audit.NewChain([]byte("overdraft-integration"))
	s.Require().NoError(err)
	s.audit, err = compliance.New(auditpostgres.New(s.postgres.DB), chain)
	s.Require().NoError(err)

	s.store = postgres.New(s.postgres.DB)
	s.workflow, err = overdraft.New(s.store, tracker, s.audit,
		overdraft.WithTxRunner(platformpostgres.NewTxRunner(s.postgres.DB)))
	s.Require().NoError(err)

	s.terms = policy.OverdraftTerms{
		Eligible:         true,
		MaxAmount:        decimal.NewFromInt(300),
		AutoApproveBelow: decimal.NewFromInt(50),
		GrantTTL:         24 * time.Hour,
		ReviewTimeout:    48 * time.Hour,
	}
	s.now = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(),
		"overdraft_requests", "usage_accounts", "usage_records", "usage_reservations", "audit_entries")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) open(account domain.AccountID, amount int64) (*overdraft.Request, error) {
	return s.workflow.Open(context.Background(), overdraft.OpenCommand{
		AccountID:       account,
		CorrelationID:   uuid.NewString(),
		RequestedAmount: decimal.NewFromInt(amount),
		Terms:           s.terms,
		PolicyVersion:   "2026-10",
		KYCVerified:     true,
		Now:             s.now,
	})
}

func (s *PostgresStoreSuite) TestOneOpenRequestPerAccount() {
	account := domain.AccountID(uuid.New())
	const goroutines = 12

	var (
		wg      sync.WaitGroup
		opened  atomic.Int32
		pending atomic.Int32
	)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.open(account, 120)
			switch {
			case err == nil:
				opened.Add(1)
			case dErrors.HasCode(err, dErrors.CodeOverdraftPending):
				pending.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), opened.Load())
	s.Equal(int32(goroutines-1), pending.Load())
}

func (s *PostgresStoreSuite) TestTransitionIsCompareAndSet() {
	ctx := context.Background()
	req, err := s.open(domain.AccountID(uuid.New()), 120)
	s.Require().NoError(err)
	s.Equal(overdraft.StateUnderReview, req.State)

	stale := *req
	stale.State = overdraft.StateDenied
	s.Require().NoError(s.store.Transition(ctx, &stale, overdraft.StateUnderReview))

	again := *req
	again.State = overdraft.StateApproved
	s.ErrorIs(s.store.Transition(ctx, &again, overdraft.StateUnderReview), sentinel.ErrInvalidState)

	missing := *req
	missing.ID = domain.NewOverdraftRequestID()
	s.ErrorIs(s.store.Transition(ctx, &missing, overdraft.StateUnderReview), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestAutoApproveRoundTrip() {
	ctx := context.Background()
	req, err := s.open(domain.AccountID(uuid.New()), 30)
	s.Require().NoError(err)

	stored, err := s.store.FindByID(ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(overdraft.StateActive, stored.State)
	s.Equal(24*time.Hour, stored.GrantTTL)
	s.Require().NotNil(stored.ExpiresAt)
	s.True(s.now.Add(24 * time.Hour).Equal(*stored.ExpiresAt))
	s.True(decimal.NewFromInt(30).Equal(stored.ExtensionAmount))

	page, err := s.audit.Query(ctx, audit.Filter{OverdraftRequestID: req.ID}, audit.PageRequest{})
	s.Require().NoError(err)
	s.Len(page.Entries, 3)
}

func (s *PostgresStoreSuite) TestListFiltersStates() {
	ctx := context.Background()
	_, err := s.open(domain.AccountID(uuid.New()), 30)
	s.Require().NoError(err)
	_, err = s.open(domain.AccountID(uuid.New()), 150)
	s.Require().NoError(err)

	active, err := s.store.List(ctx, overdraft.ListFilter{States: []overdraft.State{overdraft.StateActive}})
	s.Require().NoError(err)
	s.Len(active, 1)

	all, err := s.store.List(ctx, overdraft.ListFilter{Limit: 10})
	s.Require().NoError(err)
	s.Len(all, 2)
}

func (s *PostgresStoreSuite) TestDeleteFreesTheSlot() {
	ctx := context.Background()
	account := domain.AccountID(uuid.New())
	req, err := s.open(account, 120)
	s.Require().NoError(err)

	s.Require().NoError(s.workflow.Discard(ctx, req.ID))
	_, err = s.store.FindOpenByAccount(ctx, account)
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.open(account, 120)
	s.NoError(err)
}

func (s *PostgresStoreSuite) TestRecordAlertIsCompareAndSet() {
	ctx := context.Background()
	req, err := s.open(domain.AccountID(uuid.New()), 30)
	s.Require().NoError(err)
	s.Require().Equal(overdraft.StateActive, req.State)

	at := s.now.Add(time.Hour)
	s.Require().NoError(s.store.RecordAlert(ctx, req.ID, "", overdraft.AlertWarning, at))
	s.ErrorIs(s.store.RecordAlert(ctx, req.ID, "", overdraft.AlertWarning, at), sentinel.ErrInvalidState)

	stored, err := s.store.FindByID(ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(overdraft.AlertWarning, stored.AlertLevel)
	s.Require().NotNil(stored.AlertedAt)
	s.True(at.Equal(*stored.AlertedAt))

	s.ErrorIs(s.store.RecordAlert(ctx, domain.NewOverdraftRequestID(), "", overdraft.AlertWarning, at), sentinel.ErrNotFound)
}

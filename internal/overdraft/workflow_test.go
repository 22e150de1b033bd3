package overdraft_test

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
	"github.com/stretchr/testify/suite"

	"guardrail/internal/overdraft"
	overdraftmemory "guardrail/internal/overdraft/store/memory"
	"guardrail/internal/policy"
	"guardrail/internal/usage"
	usagememory "guardrail/internal/usage/store/memory"
	"guardrail/pkg/domain"
	dErrors "guardrail/pkg/domain-errors"
	audit "guardrail/pkg/platform/audit"
	"guardrail/pkg/platform/audit/publishers/compliance"
	auditmemory "guardrail/pkg/platform/audit/store/memory"
)

// =============================================================================
// Overdraft Workflow Test Suite
// =============================================================================
// Justification for unit tests: the state machine, the one-open-request rule
// and the race between concurrent reviewers are correctness invariants that
// do not depend on a particular store.

var now = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// flakyAuditor fails every Record for the configured action.
type flakyAuditor struct {
	inner  overdraft.AuditRecorder
	failOn atomic.Value
}

func (a *flakyAuditor) Record(ctx context.Context, e audit.Entry) (audit.Entry, error) {
	if action, ok := a.failOn.Load().(audit.Action); ok && action == e.Action {
		return audit.Entry{}, errors.New("audit store offline")
	}
	return a.inner.Record(ctx, e)
}

// flakyExtensions fails Grant while failGrant is set.
type flakyExtensions struct {
	*usage.Tracker
	failGrant atomic.Bool
}

func (e *flakyExtensions) Grant(ctx context.Context, ext usage.Extension) error {
	if e.failGrant.Load() {
		return errors.New("usage store offline")
	}
	return e.Tracker.Grant(ctx, ext)
}

type WorkflowSuite struct {
	suite.Suite
	store    *overdraftmemory.InMemoryStore
	tracker  *usage.Tracker
	audit    *compliance.Publisher
	auditor  *flakyAuditor
	workflow *overdraft.Workflow
	mu       sync.Mutex
	denied   []*overdraft.Request
	alerts   []overdraft.AlertLevel
	terms    policy.OverdraftTerms
	account  domain.AccountID
	ctx      context.Context
}

func TestWorkflowSuite(t *testing.T) {
	suite.Run(t, new(WorkflowSuite))
}

func (s *WorkflowSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = overdraftmemory.New()

	var err error
	s.tracker, err = usage.New(usagememory.New())
	s.Require().NoError(err)

	chain, err := audit.NewChain([]byte("workflow-test-key"))
	s.Require().NoError(err)
	s.audit, err = compliance.New(auditmemory.NewInMemoryStore(), chain)
	s.Require().NoError(err)
	s.auditor = &flakyAuditor{inner: s.audit}

	s.denied = nil
	s.alerts = nil
	s.workflow = s.newWorkflow(s.tracker)

	s.terms = policy.OverdraftTerms{
		Eligible:         true,
		MaxAmount:        dec("300"),
		AutoApproveBelow: dec("50"),
		GrantTTL:         24 * time.Hour,
		ReviewTimeout:    48 * time.Hour,
	}
	s.account = domain.AccountID(uuid.New())
}

func (s *WorkflowSuite) newWorkflow(extensions overdraft.Extensions) *overdraft.Workflow {
	w, err := overdraft.New(s.store, extensions, s.auditor,
		overdraft.WithDenialHook(func(_ context.Context, req *overdraft.Request) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.denied = append(s.denied, req)
		}),
		overdraft.WithAlertHook(func(_ context.Context, _ *overdraft.Request, level overdraft.AlertLevel) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.alerts = append(s.alerts, level)
		}),
	)
	s.Require().NoError(err)
	return w
}

func (s *WorkflowSuite) command(amount string) overdraft.OpenCommand {
	return overdraft.OpenCommand{
		AccountID:       s.account,
		CorrelationID:   "corr-" + amount,
		RequestedAmount: dec(amount),
		Reason:          "campaign closes tonight",
		Terms:           s.terms,
		PolicyVersion:   "2026-10",
		KYCVerified:     true,
		Now:             now,
	}
}

func (s *WorkflowSuite) entries(requestID domain.OverdraftRequestID) []audit.Entry {
	page, err := s.audit.Query(s.ctx, audit.Filter{OverdraftRequestID: requestID}, audit.PageRequest{})
	s.Require().NoError(err)
	return page.Entries
}

func actions(entries []audit.Entry) []audit.Action {
	out := make([]audit.Action, len(entries))
	for i, e := range entries {
		out[i] = e.Action
	}
	return out
}

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *WorkflowSuite) TestNew() {
	s.Run("nil store returns error", func() {
		_, err := overdraft.New(nil, s.tracker, s.audit)
		s.ErrorContains(err, "overdraft store is required")
	})

	s.Run("nil extensions returns error", func() {
		_, err := overdraft.New(s.store, nil, s.audit)
		s.ErrorContains(err, "extension installer is required")
	})

	s.Run("nil auditor returns error", func() {
		_, err := overdraft.New(s.store, s.tracker, nil)
		s.ErrorContains(err, "audit recorder is required")
	})
}

// =============================================================================
// Open Tests
// =============================================================================

func (s *WorkflowSuite) TestOpen() {
	s.Run("small extension is auto-approved and activated", func() {
		req, err := s.workflow.Open(s.ctx, s.command("30"))
		s.Require().NoError(err)

		s.Equal(overdraft.StateActive, req.State)
		s.Equal(audit.ActorAuto, req.DecidedBy)
		s.Equal(overdraft.RuleAutoApprove, req.DecisionRule)
		s.Require().NotNil(req.ExpiresAt)
		s.Equal(now.Add(24*time.Hour), *req.ExpiresAt)

		ext, err := s.tracker.Extension(s.ctx, s.account, now)
		s.Require().NoError(err)
		s.Require().NotNil(ext)
		s.Equal(req.ID, ext.RequestID)
		s.True(dec("30").Equal(ext.Granted), "grant equals the requested amount")
		s.True(req.RequestedAmount.Equal(req.ExtensionAmount))

		s.Equal([]audit.Action{
			audit.ActionOverdraftRequested,
			audit.ActionOverdraftApproved,
			audit.ActionOverdraftActivated,
		}, actions(s.entries(req.ID)))
	})
}

func (s *WorkflowSuite) TestOpen_QueuesForReview() {
	s.Run("extension at the threshold waits for a reviewer", func() {
		req, err := s.workflow.Open(s.ctx, s.command("50"))
		s.Require().NoError(err)
		s.Equal(overdraft.StateUnderReview, req.State)
		s.Require().NotNil(req.ReviewDeadline)
		s.Equal(now.Add(48*time.Hour), *req.ReviewDeadline)

		ext, err := s.tracker.Extension(s.ctx, s.account, now)
		s.Require().NoError(err)
		s.Nil(ext)
	})
}

func (s *WorkflowSuite) TestOpen_MinorNeverAutoApproved() {
	cmd := s.command("5")
	cmd.Minor = true

	req, err := s.workflow.Open(s.ctx, cmd)
	s.Require().NoError(err)
	s.Equal(overdraft.StateUnderReview, req.State)
	s.True(req.Minor)
}

func (s *WorkflowSuite) TestOpen_UnverifiedNeverAutoApproved() {
	cmd := s.command("5")
	cmd.KYCVerified = false

	req, err := s.workflow.Open(s.ctx, cmd)
	s.Require().NoError(err)
	s.Equal(overdraft.StateUnderReview, req.State)
}

func (s *WorkflowSuite) TestOpen_Rejections() {
	s.Run("second open request for the account is pending", func() {
		_, err := s.workflow.Open(s.ctx, s.command("120"))
		s.Require().NoError(err)

		_, err = s.workflow.Open(s.ctx, s.command("80"))
		s.True(dErrors.HasCode(err, dErrors.CodeOverdraftPending), "got %v", err)
	})

	s.Run("ineligible terms are forbidden", func() {
		cmd := s.command("10")
		cmd.AccountID = domain.AccountID(uuid.New())
		cmd.Terms = policy.OverdraftTerms{}
		_, err := s.workflow.Open(s.ctx, cmd)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("requested amount above the maximum is rejected", func() {
		cmd := s.command("300.01")
		cmd.AccountID = domain.AccountID(uuid.New())
		_, err := s.workflow.Open(s.ctx, cmd)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *WorkflowSuite) TestOpen_AuditFailure() {
	s.Run("failed request entry leaves nothing behind", func() {
		s.auditor.failOn.Store(audit.ActionOverdraftRequested)
		defer s.auditor.failOn.Store(audit.Action(""))

		_, err := s.workflow.Open(s.ctx, s.command("30"))
		s.True(dErrors.HasCode(err, dErrors.CodeEngineUnavailable))

		current, err := s.workflow.Current(s.ctx, s.account, now)
		s.Require().NoError(err)
		s.Nil(current)

		page, err := s.audit.Query(s.ctx, audit.Filter{AccountID: s.account}, audit.PageRequest{})
		s.Require().NoError(err)
		s.Empty(page.Entries, "nothing was audited so nothing is compensated")
	})

	s.Run("failed activation entry revokes the extension and closes the trail", func() {
		s.account = domain.AccountID(uuid.New())
		s.auditor.failOn.Store(audit.ActionOverdraftActivated)
		defer s.auditor.failOn.Store(audit.Action(""))

		_, err := s.workflow.Open(s.ctx, s.command("30"))
		s.Error(err)

		page, err := s.audit.Query(s.ctx, audit.Filter{AccountID: s.account}, audit.PageRequest{})
		s.Require().NoError(err)
		s.Equal([]audit.Action{
			audit.ActionOverdraftRequested,
			audit.ActionOverdraftApproved,
			audit.ActionOverdraftDiscarded,
		}, actions(page.Entries))

		_, err = s.workflow.Get(s.ctx, page.Entries[0].OverdraftRequestID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound), "row is gone, its trail is closed")

		ext, err := s.tracker.Extension(s.ctx, s.account, now)
		s.Require().NoError(err)
		s.Nil(ext)

		current, err := s.workflow.Current(s.ctx, s.account, now)
		s.Require().NoError(err)
		s.Nil(current)
	})
}

// =============================================================================
// Decide Tests
// =============================================================================

func (s *WorkflowSuite) TestDecide() {
	s.Run("approval activates the grant from the decision time", func() {
		req, err := s.workflow.Open(s.ctx, s.command("120"))
		s.Require().NoError(err)

		decidedAt := now.Add(2 * time.Hour)
		req, err = s.workflow.Decide(s.ctx, overdraft.DecideCommand{
			RequestID:  req.ID,
			Approve:    true,
			ReviewerID: "reviewer-7",
			Note:       "verified campaign",
			Now:        decidedAt,
		})
		s.Require().NoError(err)
		s.Equal(overdraft.StateActive, req.State)
		s.Equal("reviewer-7", req.DecidedBy)
		s.Equal(decidedAt.Add(24*time.Hour), *req.ExpiresAt)

		h, err := s.tracker.Headroom(s.ctx, s.account, usage.Limits{DailyCap: dec("200"), PeriodCap: dec("2000")}, decidedAt)
		s.Require().NoError(err)
		s.True(dec("120").Equal(h.Overdraft))
	})

	s.Run("denial calls the hook and frees the slot", func() {
		s.account = domain.AccountID(uuid.New())
		req, err := s.workflow.Open(s.ctx, s.command("120"))
		s.Require().NoError(err)

		req, err = s.workflow.Decide(s.ctx, overdraft.DecideCommand{
			RequestID:  req.ID,
			ReviewerID: "reviewer-7",
			Now:        now.Add(time.Hour),
		})
		s.Require().NoError(err)
		s.Equal(overdraft.StateDenied, req.State)
		s.Require().Len(s.denied, 1)
		s.Equal(req.ID, s.denied[0].ID)

		_, err = s.workflow.Open(s.ctx, s.command("60"))
		s.NoError(err)
	})

	s.Run("decided request cannot be decided again", func() {
		s.account = domain.AccountID(uuid.New())
		req, err := s.workflow.Open(s.ctx, s.command("30"))
		s.Require().NoError(err)

		_, err = s.workflow.Decide(s.ctx, overdraft.DecideCommand{
			RequestID:  req.ID,
			ReviewerID: "reviewer-7",
			Now:        now,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyDecided))
	})

	s.Run("reviewer is required", func() {
		_, err := s.workflow.Decide(s.ctx, overdraft.DecideCommand{RequestID: domain.NewOverdraftRequestID()})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("unknown request is not found", func() {
		_, err := s.workflow.Decide(s.ctx, overdraft.DecideCommand{
			RequestID:  domain.NewOverdraftRequestID(),
			ReviewerID: "reviewer-7",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *WorkflowSuite) TestDecide_ConcurrentReviewers() {
	req, err := s.workflow.Open(s.ctx, s.command("120"))
	s.Require().NoError(err)

	const reviewers = 16
	var (
		wg      sync.WaitGroup
		won     atomic.Int32
		decided atomic.Int32
	)
	for i := range reviewers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.workflow.Decide(s.ctx, overdraft.DecideCommand{
				RequestID:  req.ID,
				Approve:    i%2 == 0,
				ReviewerID: "reviewer",
				Now:        now,
			})
			switch {
			case err == nil:
				won.Add(1)
			case dErrors.HasCode(err, dErrors.CodeAlreadyDecided):
				decided.Add(1)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(int32(1), won.Load())
	s.Equal(int32(reviewers-1), decided.Load())

	decisions := 0
	for _, e := range s.entries(req.ID) {
		if e.Action == audit.ActionOverdraftApproved || e.Action == audit.ActionOverdraftDenied {
			decisions++
		}
	}
	s.Equal(1, decisions)
}

func (s *WorkflowSuite) TestDecide_ActivationRetried() {
	flaky := &flakyExtensions{Tracker: s.tracker}
	w := s.newWorkflow(flaky)
	decidedAt := now.Add(time.Hour)

	approve := func() *overdraft.Request {
		req, err := w.Open(s.ctx, s.command("120"))
		s.Require().NoError(err)
		flaky.failGrant.Store(true)
		req, err = w.Decide(s.ctx, overdraft.DecideCommand{
			RequestID:  req.ID,
			Approve:    true,
			ReviewerID: "reviewer-7",
			Now:        decidedAt,
		})
		s.Require().NoError(err, "approval stands when the grant fails")
		s.Equal(overdraft.StateApproved, req.State)
		return req
	}

	s.Run("approval never activated within its window expires", func() {
		s.account = domain.AccountID(uuid.New())
		req := approve()

		flaky.failGrant.Store(false)
		result, err := w.Sweep(s.ctx, decidedAt.Add(25*time.Hour))
		s.Require().NoError(err)
		s.Equal(1, result.Expired)
		s.Zero(result.Activated)

		stored, err := w.Get(s.ctx, req.ID)
		s.Require().NoError(err)
		s.Equal(overdraft.StateExpired, stored.State)

		entries := s.entries(req.ID)
		last := entries[len(entries)-1]
		s.Equal(audit.ActionOverdraftExpired, last.Action)
		s.Equal(overdraft.RuleActivationLapsed, last.Reason)

		_, err = w.Open(s.ctx, s.command("60"))
		s.NoError(err, "slot is free again")
	})

	s.Run("sweep activates an approval whose grant failed", func() {
		s.account = domain.AccountID(uuid.New())
		req := approve()

		_, err := w.Open(s.ctx, s.command("60"))
		s.True(dErrors.HasCode(err, dErrors.CodeOverdraftPending), "approved request keeps the slot")

		flaky.failGrant.Store(false)
		result, err := w.Sweep(s.ctx, decidedAt.Add(time.Hour))
		s.Require().NoError(err)
		s.Equal(1, result.Activated)

		stored, err := w.Get(s.ctx, req.ID)
		s.Require().NoError(err)
		s.Equal(overdraft.StateActive, stored.State)
		s.Equal(decidedAt.Add(24*time.Hour), *stored.ExpiresAt, "window counts from the decision")

		ext, err := s.tracker.Extension(s.ctx, s.account, decidedAt)
		s.Require().NoError(err)
		s.Require().NotNil(ext)
		s.True(dec("120").Equal(ext.Granted))
	})

	s.Run("current activates lazily", func() {
		s.account = domain.AccountID(uuid.New())
		req := approve()

		current, err := w.Current(s.ctx, s.account, decidedAt)
		s.Require().NoError(err)
		s.Require().NotNil(current)
		s.Equal(overdraft.StateApproved, current.State, "still failing, still open")

		flaky.failGrant.Store(false)
		current, err = w.Current(s.ctx, s.account, decidedAt.Add(time.Minute))
		s.Require().NoError(err)
		s.Require().NotNil(current)
		s.Equal(req.ID, current.ID)
		s.Equal(overdraft.StateActive, current.State)
	})
}

// =============================================================================
// Expiry and Sweep Tests
// =============================================================================

func (s *WorkflowSuite) TestCurrent_ExpiresLazily() {
	req, err := s.workflow.Open(s.ctx, s.command("30"))
	s.Require().NoError(err)

	current, err := s.workflow.Current(s.ctx, s.account, now.Add(24*time.Hour))
	s.Require().NoError(err)
	s.Require().NotNil(current)
	s.Equal(req.ID, current.ID)

	current, err = s.workflow.Current(s.ctx, s.account, now.Add(25*time.Hour))
	s.Require().NoError(err)
	s.Nil(current)

	stored, err := s.workflow.Get(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(overdraft.StateExpired, stored.State)

	ext, err := s.tracker.Extension(s.ctx, s.account, now)
	s.Require().NoError(err)
	s.Nil(ext)
}

func (s *WorkflowSuite) TestSweep() {
	active, err := s.workflow.Open(s.ctx, s.command("30"))
	s.Require().NoError(err)

	reviewAccount := domain.AccountID(uuid.New())
	cmd := s.command("150")
	cmd.AccountID = reviewAccount
	pending, err := s.workflow.Open(s.ctx, cmd)
	s.Require().NoError(err)

	s.Run("nothing is due yet", func() {
		result, err := s.workflow.Sweep(s.ctx, now.Add(time.Hour))
		s.Require().NoError(err)
		s.Equal(overdraft.SweepResult{}, result)
	})

	s.Run("expires grants and auto-denies stale reviews", func() {
		result, err := s.workflow.Sweep(s.ctx, now.Add(49*time.Hour))
		s.Require().NoError(err)
		s.Equal(1, result.Expired)
		s.Equal(1, result.AutoDenied)

		expired, err := s.workflow.Get(s.ctx, active.ID)
		s.Require().NoError(err)
		s.Equal(overdraft.StateExpired, expired.State)

		denied, err := s.workflow.Get(s.ctx, pending.ID)
		s.Require().NoError(err)
		s.Equal(overdraft.StateDenied, denied.State)
		s.Equal(overdraft.RuleReviewTimeout, denied.DecisionRule)
		s.Equal(audit.ActorAuto, denied.DecidedBy)
		s.Len(s.denied, 1)
	})

	s.Run("second sweep is a no-op", func() {
		result, err := s.workflow.Sweep(s.ctx, now.Add(50*time.Hour))
		s.Require().NoError(err)
		s.Equal(overdraft.SweepResult{}, result)
	})
}

func (s *WorkflowSuite) TestSweep_Alerts() {
	req, err := s.workflow.Open(s.ctx, s.command("40"))
	s.Require().NoError(err)
	limits := usage.Limits{DailyCap: dec("0"), PeriodCap: dec("0")}

	s.Run("safe utilisation raises nothing", func() {
		_, err := s.tracker.Reserve(s.ctx, s.account, dec("10"), limits, now)
		s.Require().NoError(err)

		result, err := s.workflow.Sweep(s.ctx, now.Add(time.Hour))
		s.Require().NoError(err)
		s.Zero(result.Alerts)
	})

	s.Run("warning is alerted once", func() {
		_, err := s.tracker.Reserve(s.ctx, s.account, dec("21"), limits, now)
		s.Require().NoError(err)

		result, err := s.workflow.Sweep(s.ctx, now.Add(2*time.Hour))
		s.Require().NoError(err)
		s.Equal(1, result.Alerts)

		result, err = s.workflow.Sweep(s.ctx, now.Add(3*time.Hour))
		s.Require().NoError(err)
		s.Zero(result.Alerts, "same level within a day stays quiet")

		stored, err := s.workflow.Get(s.ctx, req.ID)
		s.Require().NoError(err)
		s.Equal(overdraft.AlertWarning, stored.AlertLevel)
	})

	s.Run("escalation to critical is alerted immediately", func() {
		_, err := s.tracker.Reserve(s.ctx, s.account, dec("5"), limits, now)
		s.Require().NoError(err)

		result, err := s.workflow.Sweep(s.ctx, now.Add(4*time.Hour))
		s.Require().NoError(err)
		s.Equal(1, result.Alerts)
		s.Equal([]overdraft.AlertLevel{overdraft.AlertWarning, overdraft.AlertCritical}, s.alerts)
	})

	s.Run("each alert is audited with the consumed amount", func() {
		var alerts []audit.Entry
		for _, e := range s.entries(req.ID) {
			if e.Action == audit.ActionOverdraftAlert {
				alerts = append(alerts, e)
			}
		}
		s.Require().Len(alerts, 2)
		s.Equal(string(overdraft.AlertWarning), alerts[0].Reason)
		s.True(dec("31").Equal(alerts[0].ReservedAmount))
		s.Equal(string(overdraft.AlertCritical), alerts[1].Reason)
		s.True(dec("4").Equal(alerts[1].Headroom))
	})
}

func TestRequestAlertDue(t *testing.T) {
	alertedAt := now
	tests := []struct {
		name  string
		last  overdraft.AlertLevel
		at    *time.Time
		level overdraft.AlertLevel
		when  time.Time
		want  bool
	}{
		{"safe is never alerted", "", nil, overdraft.AlertSafe, now, false},
		{"first warning", "", nil, overdraft.AlertWarning, now, true},
		{"repeat within a day", overdraft.AlertWarning, &alertedAt, overdraft.AlertWarning, now.Add(23 * time.Hour), false},
		{"repeat after a day", overdraft.AlertWarning, &alertedAt, overdraft.AlertWarning, now.Add(24 * time.Hour), true},
		{"escalation", overdraft.AlertWarning, &alertedAt, overdraft.AlertCritical, now.Add(time.Minute), true},
		{"lower level within a day", overdraft.AlertCritical, &alertedAt, overdraft.AlertWarning, now.Add(time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &overdraft.Request{State: overdraft.StateActive, AlertLevel: tt.last, AlertedAt: tt.at}
			assert.Equal(t, tt.want, req.AlertDue(tt.level, tt.when))
		})
	}
}

func (s *WorkflowSuite) TestStats() {
	_, err := s.workflow.Open(s.ctx, s.command("40"))
	s.Require().NoError(err)
	_, err = s.tracker.Reserve(s.ctx, s.account, dec("31"), usage.Limits{DailyCap: dec("0"), PeriodCap: dec("0")}, now)
	s.Require().NoError(err)

	cmd := s.command("120")
	cmd.AccountID = domain.AccountID(uuid.New())
	cmd.Minor = true
	_, err = s.workflow.Open(s.ctx, cmd)
	s.Require().NoError(err)

	st, err := s.workflow.Stats(s.ctx, now)
	s.Require().NoError(err)
	s.Equal(1, st.PendingReview)
	s.Equal(1, st.Active)
	s.Equal(1, st.MinorOpen)
	s.Equal(1, st.AtRisk)
	s.Equal(1, st.AlertLevels[overdraft.AlertWarning])
	s.True(dec("40").Equal(st.TotalGranted))
	s.True(dec("31").Equal(st.TotalConsumed))
	s.True(dec("31").Equal(st.AverageConsumed))
}

// =============================================================================
// Consumption and Status Tests
// =============================================================================

func (s *WorkflowSuite) TestMarkConsumed() {
	req, err := s.workflow.Open(s.ctx, s.command("30"))
	s.Require().NoError(err)

	limits := usage.Limits{DailyCap: dec("0"), PeriodCap: dec("0")}
	_, err = s.tracker.Reserve(s.ctx, s.account, dec("30"), limits, now)
	s.Require().NoError(err)

	consumed, err := s.workflow.MarkConsumed(s.ctx, req.ID, now)
	s.Require().NoError(err)
	s.Equal(overdraft.StateConsumed, consumed.State)
	s.True(dec("30").Equal(consumed.ConsumedAmount))

	again, err := s.workflow.MarkConsumed(s.ctx, req.ID, now)
	s.Require().NoError(err)
	s.Equal(overdraft.StateConsumed, again.State)
}

func (s *WorkflowSuite) TestStatus() {
	s.Run("no request reports none", func() {
		st, err := s.workflow.Status(s.ctx, s.account, now)
		s.Require().NoError(err)
		s.Nil(st.Request)
		s.Equal(overdraft.AlertNone, st.AlertLevel)
	})

	s.Run("utilisation drives the alert level", func() {
		_, err := s.workflow.Open(s.ctx, s.command("40"))
		s.Require().NoError(err)

		limits := usage.Limits{DailyCap: dec("0"), PeriodCap: dec("0")}
		_, err = s.tracker.Reserve(s.ctx, s.account, dec("31"), limits, now)
		s.Require().NoError(err)

		st, err := s.workflow.Status(s.ctx, s.account, now)
		s.Require().NoError(err)
		s.True(dec("40").Equal(st.Granted))
		s.True(dec("9").Equal(st.Remaining))
		s.True(dec("0.775").Equal(st.Utilisation))
		s.Equal(overdraft.AlertWarning, st.AlertLevel)
	})
}

func TestAlertFor(t *testing.T) {
	tests := []struct {
		consumed, granted string
		want              overdraft.AlertLevel
	}{
		{"0", "0", overdraft.AlertNone},
		{"10", "100", overdraft.AlertSafe},
		{"74.99", "100", overdraft.AlertSafe},
		{"75", "100", overdraft.AlertWarning},
		{"90", "100", overdraft.AlertCritical},
		{"100", "100", overdraft.AlertExhausted},
	}
	for _, tt := range tests {
		t.Run(tt.consumed+"/"+tt.granted, func(t *testing.T) {
			assert.Equal(t, tt.want, overdraft.AlertFor(dec(tt.consumed), dec(tt.granted)))
		})
	}
}

func TestStateTransitions(t *testing.T) {
	assert.True(t, overdraft.StateRequested.CanTransitionTo(overdraft.StateUnderReview))
	assert.True(t, overdraft.StateUnderReview.CanTransitionTo(overdraft.StateDenied))
	assert.True(t, overdraft.StateApproved.CanTransitionTo(overdraft.StateActive))
	assert.True(t, overdraft.StateApproved.CanTransitionTo(overdraft.StateExpired))
	assert.False(t, overdraft.StateDenied.CanTransitionTo(overdraft.StateApproved))
	assert.False(t, overdraft.StateActive.CanTransitionTo(overdraft.StateUnderReview))
	assert.False(t, overdraft.StateExpired.CanTransitionTo(overdraft.StateActive))
}

func (s *WorkflowSuite) TestList() {
	_, err := s.workflow.Open(s.ctx, s.command("120"))
	s.Require().NoError(err)

	s.Run("filters by state", func() {
		reqs, err := s.workflow.List(s.ctx, overdraft.ListFilter{States: []overdraft.State{overdraft.StateUnderReview}})
		s.Require().NoError(err)
		s.Len(reqs, 1)
	})

	s.Run("rejects unknown states", func() {
		_, err := s.workflow.List(s.ctx, overdraft.ListFilter{States: []overdraft.State{"paused"}})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

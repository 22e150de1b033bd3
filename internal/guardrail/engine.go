package guardrail

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"guardrail/internal/account"
	"guardrail/internal/guardrail/metrics"
	"guardrail/internal/minor"
	"guardrail/internal/overdraft"
	"guardrail/internal/policy"
	"guardrail/internal/usage"
	"guardrail/pkg/domain"
	dErrors "guardrail/pkg/domain-errors"
	audit "guardrail/pkg/platform/audit"
	"guardrail/pkg/platform/sentinel"
	"guardrail/pkg/requestcontext"
)

const tracerName = "guardrail/internal/guardrail"

// Engine evaluates proposed transactions against an account's limits.
type Engine struct {
	accounts   Accounts
	policies   Policies
	usage      Usage
	overdrafts Overdrafts
	notifier   Notifier
	trail      AuditTrail
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

func New(accounts Accounts, policies Policies, tracker Usage, overdrafts Overdrafts, notifier Notifier, trail AuditTrail, opts ...Option) (*Engine, error) {
	switch {
	case accounts == nil:
		return nil, fmt.Errorf("account directory is required")
	case policies == nil:
		return nil, fmt.Errorf("policy registry is required")
	case tracker == nil:
		return nil, fmt.Errorf("usage tracker is required")
	case overdrafts == nil:
		return nil, fmt.Errorf("overdraft workflow is required")
	case notifier == nil:
		return nil, fmt.Errorf("minor notifier is required")
	case trail == nil:
		return nil, fmt.Errorf("audit trail is required")
	}
	e := &Engine{
		accounts:   accounts,
		policies:   policies,
		usage:      tracker,
		overdrafts: overdrafts,
		notifier:   notifier,
		trail:      trail,
		logger:     slog.Default(),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// evaluation collects what one Evaluate call learned so far; the audit entry
// is built from it on every exit path.
type evaluation struct {
	accountID     domain.AccountID
	amount        decimal.Decimal
	correlationID string
	now           time.Time

	account  *account.Account
	profile  policy.Profile
	headroom usage.Headroom
}

// Evaluate decides whether accountID may spend amount now. Every call that
// passes input validation writes exactly one limit-check audit entry before
// it returns; when that entry cannot be written the reservation or overdraft
// request is undone and EngineUnavailable is returned.
func (e *Engine) Evaluate(ctx context.Context, accountID domain.AccountID, amount decimal.Decimal, correlationID string) (Decision, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "guardrail.Evaluate", trace.WithAttributes(
		attribute.String("account_id", accountID.String()),
		attribute.String("correlation_id", correlationID),
		attribute.String("amount", amount.String()),
	))
	defer span.End()

	if accountID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "account id is required")
	}
	if correlationID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "correlation id is required")
	}
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}

	ev := &evaluation{
		accountID:     accountID,
		amount:        amount,
		correlationID: correlationID,
		now:           requestcontext.Now(ctx).UTC(),
	}
	decision, err := e.evaluate(ctx, ev)

	if e.metrics != nil {
		e.metrics.ObserveEvaluate(start)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, dErrors.MessageOf(err))
		if e.metrics != nil {
			e.metrics.IncEvaluation("error", string(dErrors.CodeOf(err)))
		}
		e.logger.WarnContext(ctx, "guardrail evaluation failed",
			"account_id", accountID,
			"correlation_id", correlationID,
			"error", err,
		)
		return nil, err
	}

	reason := ""
	if deny, ok := decision.(Deny); ok {
		reason = string(deny.Reason)
	}
	span.SetAttributes(
		attribute.String("decision", string(decision.Kind())),
		attribute.String("reason", reason),
	)
	if e.metrics != nil {
		e.metrics.IncEvaluation(string(decision.Kind()), reason)
	}
	e.logger.InfoContext(ctx, "guardrail evaluated",
		"account_id", accountID,
		"correlation_id", correlationID,
		"amount", amount,
		"decision", decision.Kind(),
		"reason", reason,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return decision, nil
}

func (e *Engine) evaluate(ctx context.Context, ev *evaluation) (Decision, error) {
	acct, err := e.accounts.FindByID(ctx, ev.accountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return e.fail(ctx, ev, ReasonPolicyResolution,
				dErrors.Wrap(err, dErrors.CodePolicyResolution, "account not found"))
		}
		return e.fail(ctx, ev, ReasonEngineUnavailable,
			dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to load account"))
	}
	ev.account = acct

	profile, err := e.resolve(acct)
	if err != nil {
		return e.fail(ctx, ev, ReasonPolicyResolution, err)
	}
	ev.profile = profile

	// Expires a lapsed grant before headroom is read.
	current, err := e.overdrafts.Current(ctx, acct.ID, ev.now)
	if err != nil {
		return e.fail(ctx, ev, ReasonEngineUnavailable, err)
	}

	limits := limitsOf(profile)
	head, err := e.usage.Headroom(ctx, acct.ID, limits, ev.now)
	if err != nil {
		return e.fail(ctx, ev, ReasonEngineUnavailable, err)
	}
	ev.headroom = head

	if ev.amount.GreaterThan(profile.SingleTransactionCap) {
		return e.deny(ctx, ev, ReasonLimitExceeded, "amount exceeds single transaction cap", minor.OutcomeLimitReached)
	}
	if ev.amount.LessThanOrEqual(head.Total) {
		return e.allow(ctx, ev, limits)
	}
	return e.requestOverdraft(ctx, ev, current)
}

func (e *Engine) resolve(acct *account.Account) (policy.Profile, error) {
	table, err := e.policies.Current()
	if err != nil {
		return policy.Profile{}, dErrors.Wrap(err, dErrors.CodePolicyResolution, "no policy table available")
	}
	profile, err := policy.Resolve(acct, table)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodePolicyResolution) {
			err = dErrors.Wrap(err, dErrors.CodePolicyResolution, "failed to resolve limits")
		}
		return policy.Profile{}, err
	}
	profile = minor.Adjust(profile, acct, table.Minor)
	if err := profile.Validate(); err != nil {
		return policy.Profile{}, dErrors.Wrap(err, dErrors.CodePolicyResolution, "adjusted limits are inconsistent")
	}
	return profile, nil
}

// limitsOf picks the caps a reservation is checked against.
func limitsOf(p policy.Profile) usage.Limits {
	daily := p.DailyCap
	if p.Minor && p.MinorDailyCap.IsPositive() {
		daily = domain.MinDecimal(daily, p.MinorDailyCap)
	}
	return usage.Limits{DailyCap: daily, PeriodCap: p.PeriodCap}
}

func (e *Engine) allow(ctx context.Context, ev *evaluation, limits usage.Limits) (Decision, error) {
	receipt, err := e.usage.Reserve(ctx, ev.accountID, ev.amount, limits, ev.now)
	if err != nil {
		switch {
		case dErrors.HasCode(err, dErrors.CodeInsufficientHeadroom), dErrors.HasCode(err, dErrors.CodeConcurrentLimit):
			// Another reservation took the headroom between read and reserve.
			return e.deny(ctx, ev, ReasonConcurrentLimitExceeded, "headroom taken by a concurrent reservation", minor.OutcomeLimitReached)
		default:
			return e.fail(ctx, ev, ReasonEngineUnavailable, err)
		}
	}
	res := receipt.Reservation

	entry := e.entry(ev, audit.DecisionAllow, "")
	entry.ReservedAmount = res.Amount
	entry.ReservationID = res.ID
	entry.OverdraftRequestID = res.OverdraftRequestID
	if _, err := e.trail.Record(ctx, entry); err != nil {
		e.compensateReservation(ctx, ev, res)
		return nil, dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to audit limit check")
	}

	if receipt.ExtensionExhausted() {
		if _, err := e.overdrafts.MarkConsumed(ctx, res.OverdraftRequestID, ev.now); err != nil {
			// Lazy expiry and the sweep close the request later.
			e.logger.ErrorContext(ctx, "failed to mark overdraft consumed",
				"request_id", res.OverdraftRequestID,
				"correlation_id", ev.correlationID,
				"error", err,
			)
		}
	}

	e.notify(ctx, ev, minor.Event{
		Outcome: minor.OutcomeAllowed,
		DayUsed: receipt.After.DayUsed,
	})
	return Allow{
		Correlation: ev.correlationID,
		Reservation: res,
		Headroom:    receipt.After,
	}, nil
}

func (e *Engine) requestOverdraft(ctx context.Context, ev *evaluation, current *overdraft.Request) (Decision, error) {
	terms := ev.profile.Overdraft
	if !terms.Eligible {
		return e.deny(ctx, ev, ReasonLimitExceeded, "amount exceeds headroom", minor.OutcomeLimitReached)
	}
	if current != nil {
		return e.deny(ctx, ev, ReasonOverdraftAlreadyPending, "account already has an open overdraft request", minor.OutcomeLimitReached)
	}
	// The grant equals the requested amount, so that is what the maximum bounds.
	if ev.amount.GreaterThan(terms.MaxAmount) {
		return e.deny(ctx, ev, ReasonLimitExceeded, "amount exceeds overdraft maximum", minor.OutcomeLimitReached)
	}

	req, err := e.overdrafts.Open(ctx, overdraft.OpenCommand{
		AccountID:       ev.accountID,
		CorrelationID:   ev.correlationID,
		RequestedAmount: ev.amount,
		Reason:          "amount exceeds headroom",
		Terms:           terms,
		PolicyVersion:   ev.profile.PolicyVersion,
		Minor:           ev.account.IsMinor(),
		KYCVerified:     ev.account.KYCStatus == account.KYCVerified,
		Simulated:       ev.account.Simulated,
		Now:             ev.now,
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeOverdraftPending) {
			return e.deny(ctx, ev, ReasonOverdraftAlreadyPending, "account already has an open overdraft request", minor.OutcomeLimitReached)
		}
		return e.fail(ctx, ev, ReasonEngineUnavailable, err)
	}

	entry := e.entry(ev, audit.DecisionPending, "overdraft requested")
	entry.OverdraftRequestID = req.ID
	if _, err := e.trail.Record(ctx, entry); err != nil {
		e.compensateRequest(ctx, ev, req)
		return nil, dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to audit limit check")
	}

	e.notify(ctx, ev, minor.Event{
		Outcome:            minor.OutcomeOverdraftRequested,
		OverdraftRequestID: req.ID,
	})
	return PendingOverdraft{
		Correlation:     ev.correlationID,
		RequestID:       req.ID,
		State:           req.State,
		RequestedAmount: req.RequestedAmount,
		ExtensionAmount: req.ExtensionAmount,
	}, nil
}

func (e *Engine) deny(ctx context.Context, ev *evaluation, reason Reason, detail string, outcome minor.Outcome) (Decision, error) {
	if _, err := e.trail.Record(ctx, e.entry(ev, audit.DecisionDeny, string(reason))); err != nil {
		e.logger.ErrorContext(ctx, "CRITICAL: failed to audit denied limit check",
			"account_id", ev.accountID,
			"correlation_id", ev.correlationID,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to audit limit check")
	}
	if outcome != "" {
		e.notify(ctx, ev, minor.Event{Outcome: outcome})
	}
	return Deny{
		Correlation: ev.correlationID,
		Reason:      reason,
		Detail:      detail,
		Headroom:    ev.headroom,
	}, nil
}

// fail audits an evaluation that could not produce a decision and returns
// cause. Nothing has been reserved at this point.
func (e *Engine) fail(ctx context.Context, ev *evaluation, reason Reason, cause error) (Decision, error) {
	entry := e.entry(ev, audit.DecisionDeny, string(reason))
	if _, err := e.trail.Record(ctx, entry); err != nil {
		e.logger.ErrorContext(ctx, "CRITICAL: failed to audit failed limit check",
			"account_id", ev.accountID,
			"correlation_id", ev.correlationID,
			"cause", cause,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to audit limit check")
	}
	return nil, cause
}

func (e *Engine) entry(ev *evaluation, decision audit.Decision, reason string) audit.Entry {
	entry := audit.Entry{
		Timestamp:       ev.now,
		AccountID:       ev.accountID,
		SubjectType:     audit.SubjectLimitCheck,
		Action:          audit.ActionLimitChecked,
		Decision:        decision,
		Reason:          reason,
		CorrelationID:   ev.correlationID,
		RequestedAmount: ev.amount,
		Headroom:        ev.headroom.Total,
		PolicyVersion:   ev.profile.PolicyVersion,
		PolicyHash:      ev.profile.PolicyHash,
		Actor:           audit.ActorAuto,
	}
	if ev.account != nil {
		entry.Simulated = ev.account.Simulated
	}
	return entry
}

// compensateReservation undoes a reservation whose audit entry was lost.
// It runs detached from ctx so a cancelled request cannot leave it dangling.
func (e *Engine) compensateReservation(ctx context.Context, ev *evaluation, res usage.Reservation) {
	ctx = context.WithoutCancel(ctx)
	if e.metrics != nil {
		e.metrics.IncCompensation("reservation")
	}
	if _, err := e.usage.Release(ctx, res.ID, ev.now); err != nil {
		e.logger.ErrorContext(ctx, "CRITICAL: failed to release unaudited reservation",
			"reservation_id", res.ID,
			"account_id", ev.accountID,
			"correlation_id", ev.correlationID,
			"error", err,
		)
	}
}

func (e *Engine) compensateRequest(ctx context.Context, ev *evaluation, req *overdraft.Request) {
	ctx = context.WithoutCancel(ctx)
	if e.metrics != nil {
		e.metrics.IncCompensation("overdraft_request")
	}
	if err := e.overdrafts.Discard(ctx, req.ID); err != nil {
		e.logger.ErrorContext(ctx, "CRITICAL: failed to discard unaudited overdraft request",
			"request_id", req.ID,
			"account_id", ev.accountID,
			"correlation_id", ev.correlationID,
			"error", err,
		)
	}
}

// notify hands the decision to the minor notifier. A notification problem
// never changes the decision.
func (e *Engine) notify(ctx context.Context, ev *evaluation, event minor.Event) {
	if ev.account == nil || !ev.account.IsMinor() {
		return
	}
	event.Account = ev.account
	event.CorrelationID = ev.correlationID
	event.Amount = ev.amount
	event.MinorDailyCap = ev.profile.MinorDailyCap
	event.ApproachingRatio = ev.profile.ApproachingRatio
	event.Now = ev.now
	if _, err := e.notifier.OnDecision(ctx, event); err != nil {
		e.logger.ErrorContext(ctx, "minor notification failed",
			"account_id", ev.accountID,
			"correlation_id", ev.correlationID,
			"outcome", event.Outcome,
			"error", err,
		)
	}
}

// Release reverses a reservation once and audits the reversal. A second call
// fails with AlreadyReleased.
func (e *Engine) Release(ctx context.Context, id domain.ReservationID, correlationID string) (usage.Reservation, error) {
	ctx, span := e.tracer.Start(ctx, "guardrail.Release", trace.WithAttributes(
		attribute.String("reservation_id", id.String()),
	))
	defer span.End()

	now := requestcontext.Now(ctx).UTC()
	res, err := e.usage.Release(ctx, id, now)
	if err != nil {
		span.RecordError(err)
		return usage.Reservation{}, err
	}
	if e.metrics != nil {
		e.metrics.IncRelease()
	}

	_, err = e.trail.Record(ctx, audit.Entry{
		Timestamp:          now,
		AccountID:          res.AccountID,
		SubjectType:        audit.SubjectLimitCheck,
		Action:             audit.ActionReservationReleased,
		CorrelationID:      correlationID,
		RequestedAmount:    res.Amount,
		ReservedAmount:     res.Amount.Neg(),
		ReservationID:      res.ID,
		OverdraftRequestID: res.OverdraftRequestID,
		Actor:              audit.ActorAuto,
	})
	if err != nil {
		// The reversal already happened; reapplying it would double-charge.
		e.logger.ErrorContext(ctx, "CRITICAL: failed to audit reservation release",
			"reservation_id", res.ID,
			"account_id", res.AccountID,
			"error", err,
		)
	}
	e.logger.InfoContext(ctx, "reservation released",
		"reservation_id", res.ID,
		"account_id", res.AccountID,
		"amount", res.Amount,
	)
	return res, nil
}

// DecideOverdraft applies a reviewer's verdict. Only one decision per request
// wins; later ones get AlreadyDecided.
func (e *Engine) DecideOverdraft(ctx context.Context, requestID domain.OverdraftRequestID, approve bool, reviewerID, note string) (*overdraft.Request, error) {
	ctx, span := e.tracer.Start(ctx, "guardrail.DecideOverdraft", trace.WithAttributes(
		attribute.String("request_id", requestID.String()),
		attribute.Bool("approve", approve),
	))
	defer span.End()

	req, err := e.overdrafts.Decide(ctx, overdraft.DecideCommand{
		RequestID:  requestID,
		Approve:    approve,
		ReviewerID: reviewerID,
		Note:       note,
		Now:        requestcontext.Now(ctx).UTC(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, dErrors.MessageOf(err))
		return nil, err
	}
	span.SetAttributes(attribute.String("state", string(req.State)))
	return req, nil
}

// GetOverdraft loads one request for the review UI.
func (e *Engine) GetOverdraft(ctx context.Context, id domain.OverdraftRequestID) (*overdraft.Request, error) {
	return e.overdrafts.Get(ctx, id)
}

// ListOverdrafts returns requests for the review queue.
func (e *Engine) ListOverdrafts(ctx context.Context, filter overdraft.ListFilter) ([]*overdraft.Request, error) {
	return e.overdrafts.List(ctx, filter)
}

// OverdraftStats summarises open requests and grant utilisation.
func (e *Engine) OverdraftStats(ctx context.Context) (overdraft.Stats, error) {
	return e.overdrafts.Stats(ctx, requestcontext.Now(ctx).UTC())
}

// HeadroomReport is what an account may still spend, with the limits it was
// derived from.
type HeadroomReport struct {
	AccountID            domain.AccountID `json:"account_id"`
	PolicyVersion        string           `json:"policy_version"`
	PolicyHash           string           `json:"policy_hash"`
	DailyCap             decimal.Decimal  `json:"daily_cap"`
	PeriodCap            decimal.Decimal  `json:"period_cap"`
	SingleTransactionCap decimal.Decimal  `json:"single_transaction_cap"`
	Minor                bool             `json:"minor"`
	MinorDailyCap        decimal.Decimal  `json:"minor_daily_cap"`
	Usage                usage.Headroom   `json:"usage"`
	Overdraft            overdraft.Status `json:"overdraft"`
}

// Headroom reports the account's remaining headroom. It expires a lapsed
// overdraft grant first, like Evaluate does.
func (e *Engine) Headroom(ctx context.Context, accountID domain.AccountID) (HeadroomReport, error) {
	acct, err := e.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return HeadroomReport{}, dErrors.Wrap(err, dErrors.CodeNotFound, "account not found")
		}
		return HeadroomReport{}, dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to load account")
	}
	profile, err := e.resolve(acct)
	if err != nil {
		return HeadroomReport{}, err
	}
	now := requestcontext.Now(ctx).UTC()

	status, err := e.overdrafts.Status(ctx, acct.ID, now)
	if err != nil {
		return HeadroomReport{}, err
	}
	head, err := e.usage.Headroom(ctx, acct.ID, limitsOf(profile), now)
	if err != nil {
		return HeadroomReport{}, err
	}
	return HeadroomReport{
		AccountID:            acct.ID,
		PolicyVersion:        profile.PolicyVersion,
		PolicyHash:           profile.PolicyHash,
		DailyCap:             profile.DailyCap,
		PeriodCap:            profile.PeriodCap,
		SingleTransactionCap: profile.SingleTransactionCap,
		Minor:                profile.Minor,
		MinorDailyCap:        profile.MinorDailyCap,
		Usage:                head,
		Overdraft:            status,
	}, nil
}

// QueryAudit returns one page of audit entries in ascending order.
func (e *Engine) QueryAudit(ctx context.Context, filter audit.Filter, page audit.PageRequest) (audit.Page, error) {
	return e.trail.Query(ctx, filter, page)
}

// AuditEntries walks every matching entry lazily, one page at a time.
// Iteration can be restarted from the cursor of the last entry seen.
func (e *Engine) AuditEntries(ctx context.Context, filter audit.Filter, cursor string, pageSize int) iter.Seq2[audit.Entry, error] {
	return e.trail.Entries(ctx, filter, cursor, pageSize)
}

// DenialNotifier builds the overdraft denial hook that informs the guardian
// of a minor whose request was denied by a reviewer or the sweep.
func DenialNotifier(accounts Accounts, notifier Notifier, logger *slog.Logger) overdraft.DenialHook {
	return func(ctx context.Context, req *overdraft.Request) {
		if !req.Minor {
			return
		}
		acct, err := accounts.FindByID(ctx, req.AccountID)
		if err != nil {
			logger.ErrorContext(ctx, "failed to load minor for denial notification",
				"request_id", req.ID,
				"account_id", req.AccountID,
				"error", err,
			)
			return
		}
		now := requestcontext.Now(ctx).UTC()
		if req.DecidedAt != nil {
			now = *req.DecidedAt
		}
		_, err = notifier.OnDecision(ctx, minor.Event{
			Account:            acct,
			Outcome:            minor.OutcomeOverdraftDenied,
			CorrelationID:      req.CorrelationID,
			Amount:             req.RequestedAmount,
			OverdraftRequestID: req.ID,
			Now:                now,
		})
		if err != nil {
			logger.ErrorContext(ctx, "minor denial notification failed",
				"request_id", req.ID,
				"account_id", req.AccountID,
				"error", err,
			)
		}
	}
}

// AlertNotifier builds the overdraft alert hook. A minor's guardian hears
// about an extension nearing its end as limit-approaching and about an
// exhausted one as limit-reached.
func AlertNotifier(accounts Accounts, notifier Notifier, logger *slog.Logger) overdraft.AlertHook {
	return func(ctx context.Context, req *overdraft.Request, level overdraft.AlertLevel) {
		if !req.Minor || !level.Alertable() {
			return
		}
		acct, err := accounts.FindByID(ctx, req.AccountID)
		if err != nil {
			logger.ErrorContext(ctx, "failed to load minor for alert notification",
				"request_id", req.ID,
				"account_id", req.AccountID,
				"error", err,
			)
			return
		}
		outcome := minor.OutcomeLimitApproaching
		if level == overdraft.AlertExhausted {
			outcome = minor.OutcomeLimitReached
		}
		now := requestcontext.Now(ctx).UTC()
		if req.AlertedAt != nil {
			now = *req.AlertedAt
		}
		_, err = notifier.OnDecision(ctx, minor.Event{
			Account:            acct,
			Outcome:            outcome,
			CorrelationID:      req.CorrelationID,
			Amount:             req.ExtensionAmount,
			OverdraftRequestID: req.ID,
			Now:                now,
		})
		if err != nil {
			logger.ErrorContext(ctx, "minor alert notification failed",
				"request_id", req.ID,
				"account_id", req.AccountID,
				"level", level,
				"error", err,
			)
		}
	}
}

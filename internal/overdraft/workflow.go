package overdraft

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"guardrail/internal/overdraft/metrics"
	"guardrail/internal/policy"
	"guardrail/internal/usage"
	"guardrail/pkg/domain"
	dErrors "guardrail/pkg/domain-errors"
	audit "guardrail/pkg/platform/audit"
	"guardrail/pkg/platform/sentinel"
)

const defaultSweepLimit = 500

// Extensions installs and removes overdraft headroom in the usage store.
type Extensions interface {
	Grant(ctx context.Context, ext usage.Extension) error
	Revoke(ctx context.Context, accountID domain.AccountID, requestID domain.OverdraftRequestID) (usage.Extension, error)
	Extension(ctx context.Context, accountID domain.AccountID, now time.Time) (*usage.Extension, error)
}

// AuditRecorder durably appends audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, e audit.Entry) (audit.Entry, error)
}

// TxRunner scopes a state change and its audit entry to one transaction
// when both live in the same database.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type directRunner struct{}

func (directRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// DenialHook is called after a request is denied. It must not fail the decision.
type DenialHook func(ctx context.Context, req *Request)

// AlertHook is called after a utilisation alert has been recorded.
type AlertHook func(ctx context.Context, req *Request, level AlertLevel)

// Workflow drives overdraft requests through their states.
type Workflow struct {
	store      Store
	extensions Extensions
	auditor    AuditRecorder
	tx         TxRunner
	onDenied   DenialHook
	onAlert    AlertHook
	logger     *slog.Logger
	metrics    *metrics.Metrics
	sweepLimit int
}

type Option func(*Workflow)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Workflow) {
		w.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Workflow) {
		w.metrics = m
	}
}

func WithTxRunner(tx TxRunner) Option {
	return func(w *Workflow) {
		if tx != nil {
			w.tx = tx
		}
	}
}

func WithDenialHook(hook DenialHook) Option {
	return func(w *Workflow) {
		w.onDenied = hook
	}
}

func WithAlertHook(hook AlertHook) Option {
	return func(w *Workflow) {
		w.onAlert = hook
	}
}

func WithSweepLimit(n int) Option {
	return func(w *Workflow) {
		if n > 0 {
			w.sweepLimit = n
		}
	}
}

func New(store Store, extensions Extensions, auditor AuditRecorder, opts ...Option) (*Workflow, error) {
	if store == nil {
		return nil, fmt.Errorf("overdraft store is required")
	}
	if extensions == nil {
		return nil, fmt.Errorf("extension installer is required")
	}
	if auditor == nil {
		return nil, fmt.Errorf("audit recorder is required")
	}
	w := &Workflow{
		store:      store,
		extensions: extensions,
		auditor:    auditor,
		tx:         directRunner{},
		logger:     slog.Default(),
		sweepLimit: defaultSweepLimit,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// OpenCommand asks for an extension of RequestedAmount. An approved request
// grants exactly that much additional headroom.
type OpenCommand struct {
	AccountID       domain.AccountID
	CorrelationID   string
	RequestedAmount decimal.Decimal
	Reason          string
	Terms           policy.OverdraftTerms
	PolicyVersion   string
	Minor           bool
	KYCVerified     bool
	Simulated       bool
	Now             time.Time
}

// AutoApprovable reports whether the command qualifies for the automatic
// path. Minors never do.
func (c OpenCommand) AutoApprovable() bool {
	return !c.Minor &&
		c.KYCVerified &&
		c.Terms.AutoApproveBelow.IsPositive() &&
		c.RequestedAmount.LessThan(c.Terms.AutoApproveBelow)
}

// Open creates a request, then either auto-approves and activates it or
// queues it for review. An account with an open request gets
// OverdraftAlreadyPending.
func (w *Workflow) Open(ctx context.Context, cmd OpenCommand) (*Request, error) {
	if cmd.AccountID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "account id is required")
	}
	if !cmd.Terms.Eligible {
		return nil, dErrors.New(dErrors.CodeForbidden, "account is not eligible for overdraft")
	}
	if err := domain.ValidateAmount(cmd.RequestedAmount); err != nil {
		return nil, err
	}
	if cmd.RequestedAmount.GreaterThan(cmd.Terms.MaxAmount) {
		return nil, dErrors.New(dErrors.CodeValidation, "requested amount exceeds overdraft maximum")
	}

	req := &Request{
		ID:              domain.NewOverdraftRequestID(),
		AccountID:       cmd.AccountID,
		CorrelationID:   cmd.CorrelationID,
		RequestedAmount: cmd.RequestedAmount,
		ExtensionAmount: cmd.RequestedAmount,
		Reason:          cmd.Reason,
		State:           StateRequested,
		RequestedAt:     cmd.Now,
		GrantTTL:        cmd.Terms.GrantTTL,
		Minor:           cmd.Minor,
		Simulated:       cmd.Simulated,
		PolicyVersion:   cmd.PolicyVersion,
		UpdatedAt:       cmd.Now,
	}

	created := false
	err := w.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := w.store.Create(ctx, req); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Wrap(err, dErrors.CodeOverdraftPending, "account already has an open overdraft request")
			}
			return dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to create overdraft request")
		}
		created = true
		return w.record(ctx, req, audit.ActionOverdraftRequested, "", cmd.Reason, cmd.Now)
	})
	if err != nil {
		if created {
			// Without a shared transaction the row outlives the failed audit.
			w.discard(ctx, req, false)
		}
		return nil, err
	}
	w.countTransition(StateRequested)

	if cmd.AutoApprovable() {
		if err := w.autoApprove(ctx, req, cmd.Now); err != nil {
			w.discard(ctx, req, true)
			return nil, err
		}
		return req, nil
	}

	err = w.transition(ctx, req, StateUnderReview, cmd.Now, func(r *Request) {
		if cmd.Terms.ReviewTimeout > 0 {
			deadline := cmd.Now.Add(cmd.Terms.ReviewTimeout)
			r.ReviewDeadline = &deadline
		}
	}, audit.ActionOverdraftReview, "", "")
	if err != nil {
		w.discard(ctx, req, true)
		return nil, err
	}
	return req, nil
}

func (w *Workflow) autoApprove(ctx context.Context, req *Request, now time.Time) error {
	err := w.transition(ctx, req, StateApproved, now, func(r *Request) {
		r.DecidedAt = &now
		r.DecidedBy = audit.ActorAuto
		r.DecisionRule = RuleAutoApprove
	}, audit.ActionOverdraftApproved, audit.ActorAuto, RuleAutoApprove)
	if err != nil {
		return err
	}
	if w.metrics != nil {
		w.metrics.IncAutoDecision(RuleAutoApprove)
	}
	return w.activate(ctx, req, now)
}

// DecideCommand is a reviewer's verdict on a pending request.
type DecideCommand struct {
	RequestID  domain.OverdraftRequestID
	Approve    bool
	ReviewerID string
	Note       string
	Now        time.Time
}

// Decide applies a reviewer decision. Concurrent decisions on the same
// request are serialized by the store; every loser gets AlreadyDecided.
// An approval whose extension cannot be installed stays approved and is
// activated later by Current or Sweep.
func (w *Workflow) Decide(ctx context.Context, cmd DecideCommand) (*Request, error) {
	if cmd.ReviewerID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "reviewer id is required")
	}
	req, err := w.Get(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}
	if !req.State.IsDecidable() {
		return nil, dErrors.New(dErrors.CodeAlreadyDecided, "overdraft request already decided")
	}

	next, action := StateDenied, audit.ActionOverdraftDenied
	if cmd.Approve {
		next, action = StateApproved, audit.ActionOverdraftApproved
	}
	err = w.transition(ctx, req, next, cmd.Now, func(r *Request) {
		r.DecidedAt = &cmd.Now
		r.DecidedBy = cmd.ReviewerID
		r.DecisionRule = RuleReviewer
		r.DecisionNote = cmd.Note
	}, action, cmd.ReviewerID, cmd.Note)
	if err != nil {
		return nil, err
	}
	if w.metrics != nil {
		w.metrics.ObserveDecision(req.RequestedAt, cmd.Now)
	}

	w.logger.InfoContext(ctx, "overdraft decided",
		"request_id", req.ID,
		"account_id", req.AccountID,
		"state", req.State,
		"reviewer_id", cmd.ReviewerID,
	)

	if !cmd.Approve {
		w.denied(ctx, req)
		return req, nil
	}
	if err := w.activate(ctx, req, cmd.Now); err != nil {
		w.logger.ErrorContext(ctx, "approved overdraft not activated, will retry",
			"request_id", req.ID,
			"account_id", req.AccountID,
			"error", err,
		)
	}
	return req, nil
}

// activate installs the extension and moves approved -> active. The grant
// window is counted from the decision, not from activation.
func (w *Workflow) activate(ctx context.Context, req *Request, now time.Time) error {
	expiresAt := req.GrantWindowEnd()

	installed, err := w.extensions.Extension(ctx, req.AccountID, now)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to load overdraft extension")
	}
	if installed == nil || installed.RequestID != req.ID {
		err = w.extensions.Grant(ctx, usage.Extension{
			AccountID: req.AccountID,
			RequestID: req.ID,
			Granted:   req.ExtensionAmount,
			ExpiresAt: expiresAt,
		})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to install overdraft extension")
		}
	}

	err = w.transition(ctx, req, StateActive, now, func(r *Request) {
		r.ExpiresAt = &expiresAt
	}, audit.ActionOverdraftActivated, audit.ActorAuto, "")
	if err == nil {
		return nil
	}
	if dErrors.HasCode(err, dErrors.CodeAlreadyDecided) {
		// A concurrent activation may own the extension now.
		if stored, findErr := w.store.FindByID(ctx, req.ID); findErr == nil && stored.State == StateActive {
			*req = *stored
			return nil
		}
	}
	if _, revokeErr := w.extensions.Revoke(ctx, req.AccountID, req.ID); revokeErr != nil && !errors.Is(revokeErr, sentinel.ErrNotFound) {
		w.logger.ErrorContext(ctx, "failed to revoke extension after activation failure",
			"request_id", req.ID,
			"error", revokeErr,
		)
	}
	return err
}

// settle finishes an approved request whose activation did not complete:
// it is activated while its grant window is open and expired after.
func (w *Workflow) settle(ctx context.Context, req *Request, now time.Time) error {
	if req.ActivationLapsed(now) {
		return w.transition(ctx, req, StateExpired, now, nil,
			audit.ActionOverdraftExpired, audit.ActorAuto, RuleActivationLapsed)
	}
	return w.activate(ctx, req, now)
}

// Current returns the account's open request, expiring an active grant
// that is past its expiry first and retrying the activation of an approved
// one. It returns nil when nothing is open.
func (w *Workflow) Current(ctx context.Context, accountID domain.AccountID, now time.Time) (*Request, error) {
	req, err := w.store.FindOpenByAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to load overdraft request")
	}
	if req.State == StateApproved {
		if err := w.settle(ctx, req, now); err != nil {
			if dErrors.HasCode(err, dErrors.CodeAlreadyDecided) {
				if stored, findErr := w.store.FindByID(ctx, req.ID); findErr == nil {
					req = stored
				}
				if !req.State.IsOpen() {
					return nil, nil
				}
				return req, nil
			}
			// Still open: the account keeps its slot until activation succeeds.
			w.logger.ErrorContext(ctx, "approved overdraft not activated",
				"request_id", req.ID,
				"account_id", req.AccountID,
				"error", err,
			)
			return req, nil
		}
		if !req.State.IsOpen() {
			return nil, nil
		}
	}
	if req.ExpiredAt(now) {
		if err := w.expire(ctx, req, now); err != nil && !dErrors.HasCode(err, dErrors.CodeAlreadyDecided) {
			return nil, err
		}
		return nil, nil
	}
	return req, nil
}

func (w *Workflow) expire(ctx context.Context, req *Request, now time.Time) error {
	ext, err := w.extensions.Revoke(ctx, req.AccountID, req.ID)
	if err != nil {
		return err
	}
	return w.transition(ctx, req, StateExpired, now, func(r *Request) {
		r.ConsumedAmount = ext.Consumed
	}, audit.ActionOverdraftExpired, audit.ActorAuto, "")
}

// MarkConsumed closes an active request whose extension has been drawn in
// full. Calling it for a request that is no longer active is a no-op.
func (w *Workflow) MarkConsumed(ctx context.Context, id domain.OverdraftRequestID, now time.Time) (*Request, error) {
	req, err := w.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.State != StateActive {
		return req, nil
	}
	ext, err := w.extensions.Revoke(ctx, req.AccountID, req.ID)
	if err != nil {
		return nil, err
	}
	consumed := ext.Consumed
	if consumed.IsZero() {
		consumed = req.ExtensionAmount
	}
	err = w.transition(ctx, req, StateConsumed, now, func(r *Request) {
		r.ConsumedAmount = consumed
	}, audit.ActionOverdraftConsumed, audit.ActorAuto, "")
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeAlreadyDecided) {
			return req, nil
		}
		return nil, err
	}
	return req, nil
}

// SweepResult counts what one sweep changed.
type SweepResult struct {
	Expired    int
	AutoDenied int
	Activated  int
	Alerts     int
}

// Sweep expires active grants past their expiry, raises utilisation alerts
// on the remaining ones, settles approved requests whose activation failed
// and denies requests left in review past their deadline.
func (w *Workflow) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	start := time.Now()
	defer func() {
		if w.metrics != nil {
			w.metrics.ObserveSweep(start)
		}
	}()

	var result SweepResult
	active, err := w.store.List(ctx, ListFilter{States: []State{StateActive}, Limit: w.sweepLimit})
	if err != nil {
		return result, dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to list active overdrafts")
	}
	for _, req := range active {
		if !req.ExpiredAt(now) {
			continue
		}
		if err := w.expire(ctx, req, now); err != nil {
			if dErrors.HasCode(err, dErrors.CodeAlreadyDecided) {
				continue
			}
			return result, err
		}
		result.Expired++
	}
	for _, req := range active {
		if req.State != StateActive {
			continue
		}
		alerted, err := w.alert(ctx, req, now)
		if err != nil {
			w.logger.ErrorContext(ctx, "overdraft alert failed",
				"request_id", req.ID,
				"error", err,
			)
			continue
		}
		if alerted {
			result.Alerts++
		}
	}

	approved, err := w.store.List(ctx, ListFilter{States: []State{StateApproved}, Limit: w.sweepLimit})
	if err != nil {
		return result, dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to list approved overdrafts")
	}
	for _, req := range approved {
		if err := w.settle(ctx, req, now); err != nil {
			if dErrors.HasCode(err, dErrors.CodeAlreadyDecided) {
				continue
			}
			w.logger.ErrorContext(ctx, "approved overdraft not activated",
				"request_id", req.ID,
				"account_id", req.AccountID,
				"error", err,
			)
			continue
		}
		if req.State == StateActive {
			result.Activated++
		} else {
			result.Expired++
		}
	}

	pending, err := w.store.List(ctx, ListFilter{States: []State{StateRequested, StateUnderReview}, Limit: w.sweepLimit})
	if err != nil {
		return result, dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to list pending overdrafts")
	}
	for _, req := range pending {
		if !req.ReviewOverdue(now) {
			continue
		}
		err := w.transition(ctx, req, StateDenied, now, func(r *Request) {
			r.DecidedAt = &now
			r.DecidedBy = audit.ActorAuto
			r.DecisionRule = RuleReviewTimeout
		}, audit.ActionOverdraftDenied, audit.ActorAuto, RuleReviewTimeout)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeAlreadyDecided) {
				continue
			}
			return result, err
		}
		if w.metrics != nil {
			w.metrics.IncAutoDecision(RuleReviewTimeout)
		}
		w.denied(ctx, req)
		result.AutoDenied++
	}

	if result != (SweepResult{}) {
		w.logger.InfoContext(ctx, "overdraft sweep",
			"expired", result.Expired,
			"auto_denied", result.AutoDenied,
			"activated", result.Activated,
			"alerts", result.Alerts,
		)
	}
	return result, nil
}

// alert records a utilisation alert for an active request when its level
// is warning or worse and not already alerted. An exhausted extension that
// is still active is closed as consumed afterwards.
func (w *Workflow) alert(ctx context.Context, req *Request, now time.Time) (bool, error) {
	ext, err := w.extensions.Extension(ctx, req.AccountID, now)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to load overdraft extension")
	}
	if ext == nil || ext.RequestID != req.ID {
		return false, nil
	}
	level := AlertFor(ext.Consumed, ext.Granted)
	if !req.AlertDue(level, now) {
		return false, nil
	}

	err = w.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := w.store.RecordAlert(ctx, req.ID, req.AlertLevel, level, now); err != nil {
			if errors.Is(err, sentinel.ErrInvalidState) {
				return dErrors.Wrap(err, dErrors.CodeAlreadyDecided, "overdraft alert already recorded")
			}
			return dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to record overdraft alert")
		}
		_, err := w.auditor.Record(ctx, audit.Entry{
			Timestamp:          now,
			AccountID:          req.AccountID,
			SubjectType:        audit.SubjectOverdraft,
			Action:             audit.ActionOverdraftAlert,
			Reason:             string(level),
			CorrelationID:      req.CorrelationID,
			RequestedAmount:    req.RequestedAmount,
			ReservedAmount:     ext.Consumed,
			Headroom:           ext.Remaining(),
			PolicyVersion:      req.PolicyVersion,
			OverdraftRequestID: req.ID,
			Actor:              audit.ActorAuto,
			Simulated:          req.Simulated,
		})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to audit overdraft alert")
		}
		return nil
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeAlreadyDecided) {
			return false, nil
		}
		return false, err
	}
	req.AlertLevel = level
	req.AlertedAt = &now
	if w.metrics != nil {
		w.metrics.IncAlert(string(level))
	}
	w.logger.WarnContext(ctx, "overdraft utilisation alert",
		"request_id", req.ID,
		"account_id", req.AccountID,
		"alert_level", level,
		"consumed", ext.Consumed,
		"granted", ext.Granted,
	)
	if w.onAlert != nil {
		w.onAlert(ctx, req, level)
	}

	if level == AlertExhausted {
		if _, err := w.MarkConsumed(ctx, req.ID, now); err != nil {
			w.logger.ErrorContext(ctx, "failed to close exhausted overdraft",
				"request_id", req.ID,
				"error", err,
			)
		}
	}
	return true, nil
}

// Stats summarises the open requests and the utilisation of active grants.
func (w *Workflow) Stats(ctx context.Context, now time.Time) (Stats, error) {
	st := Stats{
		TotalGranted:    decimal.Zero,
		TotalConsumed:   decimal.Zero,
		AverageConsumed: decimal.Zero,
		AlertLevels:     make(map[AlertLevel]int),
	}
	reqs, err := w.store.List(ctx, ListFilter{States: OpenStates})
	if err != nil {
		return st, dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to list open overdrafts")
	}
	for _, req := range reqs {
		if req.Minor {
			st.MinorOpen++
		}
		switch req.State {
		case StateRequested, StateUnderReview:
			st.PendingReview++
		case StateApproved:
			st.Approved++
		case StateActive:
			if req.ExpiredAt(now) {
				continue
			}
			st.Active++
			ext, err := w.extensions.Extension(ctx, req.AccountID, now)
			if err != nil {
				return st, dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to load overdraft extension")
			}
			if ext == nil || ext.RequestID != req.ID {
				continue
			}
			st.TotalGranted = st.TotalGranted.Add(ext.Granted)
			st.TotalConsumed = st.TotalConsumed.Add(ext.Consumed)
			level := AlertFor(ext.Consumed, ext.Granted)
			st.AlertLevels[level]++
			if level.Alertable() {
				st.AtRisk++
			}
		}
	}
	if st.Active > 0 {
		st.AverageConsumed = st.TotalConsumed.Div(decimal.NewFromInt(int64(st.Active))).Round(domain.AmountScale)
	}
	return st, nil
}

// Status reports utilisation of the account's current extension.
func (w *Workflow) Status(ctx context.Context, accountID domain.AccountID, now time.Time) (Status, error) {
	st := Status{AccountID: accountID, AlertLevel: AlertNone}
	req, err := w.Current(ctx, accountID, now)
	if err != nil {
		return st, err
	}
	st.Request = req
	if req == nil || req.State != StateActive {
		return st, nil
	}
	ext, err := w.extensions.Extension(ctx, accountID, now)
	if err != nil {
		return st, err
	}
	if ext == nil || ext.RequestID != req.ID {
		return st, nil
	}
	st.Granted = ext.Granted
	st.Consumed = ext.Consumed
	st.Remaining = ext.Remaining()
	if ext.Granted.IsPositive() {
		st.Utilisation = ext.Consumed.Div(ext.Granted).Round(4)
	}
	st.AlertLevel = AlertFor(ext.Consumed, ext.Granted)
	return st, nil
}

// Get loads a request by id.
func (w *Workflow) Get(ctx context.Context, id domain.OverdraftRequestID) (*Request, error) {
	req, err := w.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "overdraft request not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to load overdraft request")
	}
	return req, nil
}

// List returns requests for the admin review queue.
func (w *Workflow) List(ctx context.Context, filter ListFilter) ([]*Request, error) {
	for _, s := range filter.States {
		if !s.IsValid() {
			return nil, dErrors.New(dErrors.CodeValidation, "unknown overdraft state "+string(s))
		}
	}
	reqs, err := w.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to list overdraft requests")
	}
	return reqs, nil
}

// Discard removes a request that was opened for an evaluation whose audit
// entry could not be written. Any installed extension is revoked first.
func (w *Workflow) Discard(ctx context.Context, id domain.OverdraftRequestID) error {
	req, err := w.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to load overdraft request")
	}
	w.discard(ctx, req, true)
	return nil
}

// discard revokes and deletes req. When audited entries already reference
// the request a closing overdraft_discarded entry is written first, so the
// trail never ends on a request that silently disappeared.
func (w *Workflow) discard(ctx context.Context, req *Request, audited bool) {
	if _, err := w.extensions.Revoke(ctx, req.AccountID, req.ID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		w.logger.ErrorContext(ctx, "failed to revoke extension of discarded request",
			"request_id", req.ID,
			"error", err,
		)
	}
	if audited {
		if err := w.record(ctx, req, audit.ActionOverdraftDiscarded, audit.ActorAuto, "compensated", req.UpdatedAt); err != nil {
			w.logger.ErrorContext(ctx, "CRITICAL: failed to audit discarded overdraft request",
				"request_id", req.ID,
				"account_id", req.AccountID,
				"correlation_id", req.CorrelationID,
				"error", err,
			)
		}
	}
	if err := w.store.Delete(ctx, req.ID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		w.logger.ErrorContext(ctx, "CRITICAL: failed to discard overdraft request",
			"request_id", req.ID,
			"account_id", req.AccountID,
			"error", err,
		)
	}
}

func (w *Workflow) denied(ctx context.Context, req *Request) {
	if w.onDenied != nil {
		w.onDenied(ctx, req)
	}
}

// transition moves req to next through a compare-and-set on its current
// state and writes the audit entry in the same transaction. On success req
// reflects the stored state.
func (w *Workflow) transition(ctx context.Context, req *Request, next State, now time.Time, mutate func(*Request), action audit.Action, actor, reason string) error {
	from := req.State
	if !from.CanTransitionTo(next) {
		return dErrors.New(dErrors.CodeAlreadyDecided,
			fmt.Sprintf("overdraft request cannot move from %s to %s", from, next))
	}

	updated := *req
	updated.State = next
	updated.UpdatedAt = now
	if mutate != nil {
		mutate(&updated)
	}

	err := w.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := w.store.Transition(ctx, &updated, from); err != nil {
			if errors.Is(err, sentinel.ErrInvalidState) {
				return dErrors.Wrap(err, dErrors.CodeAlreadyDecided, "overdraft request already decided")
			}
			return dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to update overdraft request")
		}
		return w.record(ctx, &updated, action, actor, reason, now)
	})
	if err != nil {
		return err
	}
	*req = updated
	w.countTransition(next)
	return nil
}

func (w *Workflow) record(ctx context.Context, req *Request, action audit.Action, actor, reason string, now time.Time) error {
	_, err := w.auditor.Record(ctx, audit.Entry{
		Timestamp:          now,
		AccountID:          req.AccountID,
		SubjectType:        audit.SubjectOverdraft,
		Action:             action,
		Reason:             reason,
		CorrelationID:      req.CorrelationID,
		RequestedAmount:    req.RequestedAmount,
		ReservedAmount:     req.ConsumedAmount,
		Headroom:           req.ExtensionAmount,
		PolicyVersion:      req.PolicyVersion,
		OverdraftRequestID: req.ID,
		Actor:              actor,
		Simulated:          req.Simulated,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to audit overdraft transition")
	}
	return nil
}

func (w *Workflow) countTransition(state State) {
	if w.metrics != nil {
		w.metrics.IncTransition(string(state))
	}
}

package minor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"guardrail/internal/account"
	"guardrail/internal/minor/metrics"
	"guardrail/internal/usage"
	"guardrail/pkg/domain"
	dErrors "guardrail/pkg/domain-errors"
	audit "guardrail/pkg/platform/audit"
	"guardrail/pkg/platform/sentinel"
)

var defaultApproachingRatio = decimal.RequireFromString("0.8")

// AuditRecorder durably appends audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, e audit.Entry) (audit.Entry, error)
}

// Handoff accepts notifications for asynchronous delivery. Enqueue must not
// block; it reports false when the notification was not accepted.
type Handoff interface {
	Enqueue(n *Notification) bool
}

// Outcome is the engine result a minor notification can be derived from.
type Outcome string

const (
	OutcomeAllowed            Outcome = "allowed"
	OutcomeLimitReached       Outcome = "limit_reached"
	OutcomeLimitApproaching   Outcome = "limit_approaching"
	OutcomeOverdraftRequested Outcome = "overdraft_requested"
	OutcomeOverdraftDenied    Outcome = "overdraft_denied"
)

// Event describes one decision about an account.
type Event struct {
	Account            *account.Account
	Outcome            Outcome
	CorrelationID      string
	Amount             decimal.Decimal
	OverdraftRequestID domain.OverdraftRequestID
	// DayUsed is the day usage after the decision; with MinorDailyCap and
	// ApproachingRatio it drives limit-approaching.
	DayUsed          decimal.Decimal
	MinorDailyCap    decimal.Decimal
	ApproachingRatio decimal.Decimal
	Now              time.Time
}

// Notifier turns decisions about minor accounts into persisted, audited
// notifications and hands them to the dispatcher.
type Notifier struct {
	store   Store
	auditor AuditRecorder
	handoff Handoff
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Notifier)

func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) {
		n.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Notifier) {
		n.metrics = m
	}
}

func NewNotifier(store Store, auditor AuditRecorder, handoff Handoff, opts ...Option) (*Notifier, error) {
	if store == nil {
		return nil, fmt.Errorf("notification store is required")
	}
	if auditor == nil {
		return nil, fmt.Errorf("audit recorder is required")
	}
	if handoff == nil {
		return nil, fmt.Errorf("notification handoff is required")
	}
	n := &Notifier{
		store:   store,
		auditor: auditor,
		handoff: handoff,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// TriggerFor maps an event to the notification it causes, if any.
func TriggerFor(ev Event) (Trigger, bool) {
	switch ev.Outcome {
	case OutcomeLimitReached:
		return TriggerLimitReached, true
	case OutcomeLimitApproaching:
		return TriggerLimitApproaching, true
	case OutcomeOverdraftRequested:
		return TriggerOverdraftRequested, true
	case OutcomeOverdraftDenied:
		return TriggerOverdraftDenied, true
	case OutcomeAllowed:
		if !ev.MinorDailyCap.IsPositive() {
			return "", false
		}
		ratio := ev.ApproachingRatio
		if !ratio.IsPositive() {
			ratio = defaultApproachingRatio
		}
		if ev.DayUsed.GreaterThanOrEqual(ev.MinorDailyCap.Mul(ratio)) {
			return TriggerLimitApproaching, true
		}
	}
	return "", false
}

// OnDecision records the notification an event causes for a minor account.
// It returns nil when the event causes none, including a repeated
// limit-approaching on the same day. A delivery problem is never returned:
// the notification stays undelivered and Redeliver picks it up.
func (s *Notifier) OnDecision(ctx context.Context, ev Event) (*Notification, error) {
	if ev.Account == nil || !ev.Account.IsMinor() {
		return nil, nil
	}
	trigger, ok := TriggerFor(ev)
	if !ok {
		return nil, nil
	}

	n := &Notification{
		ID:                 domain.NewNotificationID(),
		MinorAccountID:     ev.Account.ID,
		GuardianAccountID:  ev.Account.GuardianID,
		Trigger:            trigger,
		CorrelationID:      ev.CorrelationID,
		OverdraftRequestID: ev.OverdraftRequestID,
		Amount:             ev.Amount,
		CreatedAt:          ev.Now,
		Simulated:          ev.Account.Simulated,
		Suppressed:         ev.Account.Simulated,
	}
	if trigger == TriggerLimitApproaching {
		n.DedupKey = fmt.Sprintf("%s|%s|%s", n.MinorAccountID, trigger, usage.DayKey(ev.Now))
	}

	if err := s.store.Create(ctx, n); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to store minor notification")
	}
	if s.metrics != nil {
		s.metrics.IncNotification(string(trigger))
	}

	if n.Suppressed {
		if err := s.record(ctx, n, audit.ActionNotificationSuppressed, "simulated account"); err != nil {
			return nil, err
		}
		return n, nil
	}

	if err := s.record(ctx, n, audit.ActionNotificationHandoff, string(trigger)); err != nil {
		return nil, err
	}
	if !s.handoff.Enqueue(n) {
		if s.metrics != nil {
			s.metrics.IncDropped()
		}
		s.logger.WarnContext(ctx, "notification queue full, left for redelivery",
			"notification_id", n.ID,
			"minor_account_id", n.MinorAccountID,
		)
	}
	return n, nil
}

// List returns a minor account's notifications, newest first.
func (s *Notifier) List(ctx context.Context, filter ListFilter) ([]*Notification, error) {
	if filter.MinorAccountID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "minor account id is required")
	}
	out, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to list notifications")
	}
	return out, nil
}

// Acknowledge marks a notification as read. Acknowledging twice keeps the
// first acknowledgement time.
func (s *Notifier) Acknowledge(ctx context.Context, id domain.NotificationID, at time.Time) (*Notification, error) {
	n, err := s.store.Acknowledge(ctx, id, at)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "notification not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to acknowledge notification")
	}
	return n, nil
}

func (s *Notifier) record(ctx context.Context, n *Notification, action audit.Action, reason string) error {
	_, err := s.auditor.Record(ctx, notificationEntry(n, action, reason, n.CreatedAt))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to audit minor notification")
	}
	return nil
}

func notificationEntry(n *Notification, action audit.Action, reason string, at time.Time) audit.Entry {
	return audit.Entry{
		Timestamp:          at,
		AccountID:          n.MinorAccountID,
		SubjectType:        audit.SubjectMinorNotification,
		Action:             action,
		Reason:             reason,
		CorrelationID:      n.CorrelationID,
		RequestedAmount:    n.Amount,
		OverdraftRequestID: n.OverdraftRequestID,
		NotificationID:     n.ID,
		Actor:              audit.ActorAuto,
		Simulated:          n.Simulated,
	}
}

// Package overdraft runs the approval workflow for temporary limit extensions.
package overdraft

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"guardrail/pkg/domain"
)

// State is the lifecycle position of an overdraft request.
type State string

const (
	StateRequested   State = "requested"
	StateUnderReview State = "under_review"
	StateApproved    State = "approved"
	StateDenied      State = "denied"
	StateActive      State = "active"
	StateExpired     State = "expired"
	StateConsumed    State = "consumed"
)

// OpenStates are the states that block a new request for the same account.
var OpenStates = []State{StateRequested, StateUnderReview, StateApproved, StateActive}

// Decision rules recorded on requests decided without a reviewer.
const (
	RuleAutoApprove   = "auto_approve_below"
	RuleReviewTimeout = "review_timeout"
	RuleReviewer      = "reviewer"

	RuleActivationLapsed = "activation_lapsed"
)

func (s State) String() string {
	return string(s)
}

func (s State) IsValid() bool {
	switch s {
	case StateRequested, StateUnderReview, StateApproved, StateDenied,
		StateActive, StateExpired, StateConsumed:
		return true
	}
	return false
}

// IsOpen reports whether the request still occupies the account's slot.
func (s State) IsOpen() bool {
	switch s {
	case StateRequested, StateUnderReview, StateApproved, StateActive:
		return true
	}
	return false
}

func (s State) IsTerminal() bool {
	switch s {
	case StateDenied, StateExpired, StateConsumed:
		return true
	}
	return false
}

// IsDecidable reports whether a reviewer may still approve or deny.
func (s State) IsDecidable() bool {
	return s == StateRequested || s == StateUnderReview
}

// CanTransitionTo enforces the workflow graph:
//
//	requested -> under_review -> {approved, denied}
//	requested -> {approved, denied}     (auto rules)
//	approved  -> active -> {expired, consumed}
//	approved  -> expired                (never activated within the grant window)
func (s State) CanTransitionTo(next State) bool {
	switch s {
	case StateRequested:
		return next == StateUnderReview || next == StateApproved || next == StateDenied
	case StateUnderReview:
		return next == StateApproved || next == StateDenied
	case StateApproved:
		return next == StateActive || next == StateExpired
	case StateActive:
		return next == StateExpired || next == StateConsumed
	}
	return false
}

// Request is one overdraft request and its decision trail.
type Request struct {
	ID            domain.OverdraftRequestID `json:"id"`
	AccountID     domain.AccountID          `json:"account_id"`
	CorrelationID string                    `json:"correlation_id"`
	// RequestedAmount is the transaction that triggered the request.
	// ExtensionAmount is the headroom installed on approval and always
	// equals RequestedAmount.
	RequestedAmount decimal.Decimal `json:"requested_amount"`
	ExtensionAmount decimal.Decimal `json:"extension_amount"`
	Reason          string          `json:"reason,omitempty"`
	State           State           `json:"state"`
	RequestedAt     time.Time       `json:"requested_at"`
	ReviewDeadline  *time.Time      `json:"review_deadline,omitempty"`
	DecidedAt       *time.Time      `json:"decided_at,omitempty"`
	DecidedBy       string          `json:"decided_by,omitempty"`
	DecisionRule    string          `json:"decision_rule,omitempty"`
	DecisionNote    string          `json:"decision_note,omitempty"`
	ExpiresAt       *time.Time      `json:"expires_at,omitempty"`
	ConsumedAmount  decimal.Decimal `json:"consumed_amount"`
	GrantTTL        time.Duration   `json:"grant_ttl"`
	Minor           bool            `json:"minor"`
	Simulated       bool            `json:"simulated,omitempty"`
	PolicyVersion   string          `json:"policy_version"`
	// AlertLevel and AlertedAt remember the last utilisation alert.
	AlertLevel AlertLevel `json:"alert_level,omitempty"`
	AlertedAt  *time.Time `json:"alerted_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// ExpiredAt reports whether an active grant is past its expiry at now.
func (r *Request) ExpiredAt(now time.Time) bool {
	return r.State == StateActive && r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// GrantWindowEnd is when an approved grant stops being usable, counted from
// the decision.
func (r *Request) GrantWindowEnd() time.Time {
	if r.DecidedAt == nil {
		return r.RequestedAt.Add(r.GrantTTL)
	}
	return r.DecidedAt.Add(r.GrantTTL)
}

// ActivationLapsed reports whether an approved request was never activated
// before its grant window closed.
func (r *Request) ActivationLapsed(now time.Time) bool {
	return r.State == StateApproved && now.After(r.GrantWindowEnd())
}

// ReviewOverdue reports whether a request waiting for review passed its deadline.
func (r *Request) ReviewOverdue(now time.Time) bool {
	return r.State.IsDecidable() && r.ReviewDeadline != nil && now.After(*r.ReviewDeadline)
}

// AlertLevel grades how much of an active extension is used.
type AlertLevel string

const (
	AlertSafe      AlertLevel = "safe"
	AlertWarning   AlertLevel = "warning"
	AlertCritical  AlertLevel = "critical"
	AlertExhausted AlertLevel = "exhausted"
	AlertNone      AlertLevel = "none"
)

var (
	warningRatio  = decimal.RequireFromString("0.75")
	criticalRatio = decimal.RequireFromString("0.90")
)

// alertRepeat is how long an unchanged alert level stays quiet.
const alertRepeat = 24 * time.Hour

func (l AlertLevel) rank() int {
	switch l {
	case AlertWarning:
		return 1
	case AlertCritical:
		return 2
	case AlertExhausted:
		return 3
	}
	return 0
}

// Alertable reports whether the level warrants an alert at all.
func (l AlertLevel) Alertable() bool {
	return l.rank() > 0
}

// AlertDue reports whether level should be alerted for r at now: the level
// must be warning or worse and either higher than the last alert or the
// last alert must be older than a day.
func (r *Request) AlertDue(level AlertLevel, now time.Time) bool {
	if !level.Alertable() {
		return false
	}
	if level.rank() > r.AlertLevel.rank() || r.AlertedAt == nil {
		return true
	}
	return now.Sub(*r.AlertedAt) >= alertRepeat
}

// AlertFor grades consumed against granted.
func AlertFor(consumed, granted decimal.Decimal) AlertLevel {
	if !granted.IsPositive() {
		return AlertNone
	}
	ratio := consumed.Div(granted)
	switch {
	case ratio.GreaterThanOrEqual(decimal.NewFromInt(1)):
		return AlertExhausted
	case ratio.GreaterThanOrEqual(criticalRatio):
		return AlertCritical
	case ratio.GreaterThanOrEqual(warningRatio):
		return AlertWarning
	default:
		return AlertSafe
	}
}

// Status is the utilisation view of an account's current overdraft.
type Status struct {
	AccountID   domain.AccountID `json:"account_id"`
	Request     *Request         `json:"request,omitempty"`
	Granted     decimal.Decimal  `json:"granted"`
	Consumed    decimal.Decimal  `json:"consumed"`
	Remaining   decimal.Decimal  `json:"remaining"`
	Utilisation decimal.Decimal  `json:"utilisation"`
	AlertLevel  AlertLevel       `json:"alert_level"`
}

// Stats summarises the open requests for the admin dashboard.
type Stats struct {
	PendingReview   int                `json:"pending_review"`
	Approved        int                `json:"approved"`
	Active          int                `json:"active"`
	MinorOpen       int                `json:"minor_open"`
	TotalGranted    decimal.Decimal    `json:"total_granted"`
	TotalConsumed   decimal.Decimal    `json:"total_consumed"`
	AverageConsumed decimal.Decimal    `json:"average_consumed"`
	AtRisk          int                `json:"at_risk"`
	AlertLevels     map[AlertLevel]int `json:"alert_levels"`
}

// ListFilter narrows admin listings. Empty States means all states.
type ListFilter struct {
	AccountID domain.AccountID
	States    []State
	Limit     int
}

// Store persists requests.
//
// Create returns sentinel.ErrConflict when the account already has an open
// request. Transition is a compare-and-set on State and returns
// sentinel.ErrInvalidState when the stored state is no longer from.
// RecordAlert is a compare-and-set on the last alert level of an active
// request, with the same error.
type Store interface {
	Create(ctx context.Context, req *Request) error
	FindByID(ctx context.Context, id domain.OverdraftRequestID) (*Request, error)
	FindOpenByAccount(ctx context.Context, accountID domain.AccountID) (*Request, error)
	Transition(ctx context.Context, req *Request, from State) error
	RecordAlert(ctx context.Context, id domain.OverdraftRequestID, from, to AlertLevel, at time.Time) error
	List(ctx context.Context, filter ListFilter) ([]*Request, error)
	Delete(ctx context.Context, id domain.OverdraftRequestID) error
}

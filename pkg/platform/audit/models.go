package audit

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"guardrail/pkg/domain"
)

// SubjectType classifies what an entry is about.
type SubjectType string

const (
	SubjectLimitCheck        SubjectType = "limit-check"
	SubjectOverdraft         SubjectType = "overdraft"
	SubjectMinorNotification SubjectType = "minor-notification"
	SubjectUsage             SubjectType = "usage"
)

// Decision is the outcome recorded on decision entries. Lifecycle and
// delivery entries carry DecisionNone.
type Decision string

const (
	DecisionNone    Decision = ""
	DecisionAllow   Decision = "allow"
	DecisionDeny    Decision = "deny"
	DecisionPending Decision = "pending"
)

// Action names the concrete event behind an entry.
type Action string

const (
	// Limit checks
	ActionLimitChecked        Action = "limit_checked"
	ActionReservationReleased Action = "reservation_released"

	// Overdraft lifecycle
	ActionOverdraftRequested Action = "overdraft_requested"
	ActionOverdraftReview    Action = "overdraft_under_review"
	ActionOverdraftApproved  Action = "overdraft_approved"
	ActionOverdraftDenied    Action = "overdraft_denied"
	ActionOverdraftActivated Action = "overdraft_activated"
	ActionOverdraftExpired   Action = "overdraft_expired"
	ActionOverdraftConsumed  Action = "overdraft_consumed"
	ActionOverdraftDiscarded Action = "overdraft_discarded"
	ActionOverdraftAlert     Action = "overdraft_alert"

	// Minor notifications
	ActionNotificationHandoff    Action = "notification_handoff"
	ActionNotificationDelivered  Action = "notification_delivered"
	ActionNotificationFailed     Action = "notification_delivery_failed"
	ActionNotificationSuppressed Action = "notification_suppressed"

	// Housekeeping
	ActionUsageArchived Action = "usage_archived"
)

// ActorAuto marks decisions taken by a rule instead of a person.
const ActorAuto = "auto"

// Entry is an immutable audit record. Seq, EntryID, PrevHash and Hash are
// assigned when the entry is appended and never change afterwards.
type Entry struct {
	Seq       int64     `json:"seq"`
	EntryID   string    `json:"entry_id"`
	Timestamp time.Time `json:"timestamp"`

	AccountID     domain.AccountID `json:"account_id"`
	SubjectType   SubjectType      `json:"subject_type"`
	Action        Action           `json:"action"`
	Decision      Decision         `json:"decision,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	CorrelationID string           `json:"correlation_id"`

	RequestedAmount decimal.Decimal `json:"requested_amount"`
	ReservedAmount  decimal.Decimal `json:"reserved_amount"`
	Headroom        decimal.Decimal `json:"headroom"`

	PolicyVersion string `json:"policy_version,omitempty"`
	PolicyHash    string `json:"policy_hash,omitempty"`

	OverdraftRequestID domain.OverdraftRequestID `json:"overdraft_request_id"`
	ReservationID      domain.ReservationID      `json:"reservation_id"`
	NotificationID     domain.NotificationID     `json:"notification_id"`

	Actor     string `json:"actor,omitempty"`
	Simulated bool   `json:"simulated,omitempty"`

	PrevHash string `json:"prev_hash"`
	Hash     string `json:"hash"`
}

// Filter narrows a query. Zero-valued fields do not filter.
type Filter struct {
	AccountID          domain.AccountID
	CorrelationID      string
	SubjectType        SubjectType
	Decision           Decision
	OverdraftRequestID domain.OverdraftRequestID
	From               time.Time
	To                 time.Time
}

// Matches applies the filter to a single entry.
func (f Filter) Matches(e Entry) bool {
	if !f.AccountID.IsNil() && e.AccountID != f.AccountID {
		return false
	}
	if f.CorrelationID != "" && e.CorrelationID != f.CorrelationID {
		return false
	}
	if f.SubjectType != "" && e.SubjectType != f.SubjectType {
		return false
	}
	if f.Decision != DecisionNone && e.Decision != f.Decision {
		return false
	}
	if !f.OverdraftRequestID.IsNil() && e.OverdraftRequestID != f.OverdraftRequestID {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.Timestamp.Before(f.To) {
		return false
	}
	return true
}

const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// PageRequest asks for the entries strictly after Cursor.
type PageRequest struct {
	Cursor string
	Limit  int
}

// Normalize clamps the page size.
func (p PageRequest) Normalize() PageRequest {
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	return p
}

// Page is one slice of a query ordered by (timestamp, seq) ascending.
// NextCursor is empty once the sequence is exhausted.
type Page struct {
	Entries    []Entry
	NextCursor string
}

// SealFunc links an entry to the current chain head. Stores call it while
// holding their append lock so the chain stays linear.
type SealFunc func(prevHash string, seq int64, e Entry) Entry

// Store persists entries. Implementations must serialize appends.
type Store interface {
	Append(ctx context.Context, e Entry, seal SealFunc) (Entry, error)
	Query(ctx context.Context, filter Filter, page PageRequest) (Page, error)
	// Scan returns entries in seq order for chain verification.
	Scan(ctx context.Context, afterSeq int64, limit int) ([]Entry, error)
}

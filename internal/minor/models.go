package minor

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"guardrail/pkg/domain"
)

// Trigger is the event a guardian is told about.
type Trigger string

const (
	TriggerLimitReached       Trigger = "limit-reached"
	TriggerLimitApproaching   Trigger = "limit-approaching"
	TriggerOverdraftRequested Trigger = "overdraft-requested"
	TriggerOverdraftDenied    Trigger = "overdraft-denied"
)

func (t Trigger) IsValid() bool {
	switch t {
	case TriggerLimitReached, TriggerLimitApproaching, TriggerOverdraftRequested, TriggerOverdraftDenied:
		return true
	}
	return false
}

// Notification is one guardian notification about a minor account.
//
// Suppressed notifications belong to simulated accounts; they are stored and
// audited but never handed to a deliverer.
type Notification struct {
	ID                 domain.NotificationID     `json:"id"`
	MinorAccountID     domain.AccountID          `json:"minor_account_id"`
	GuardianAccountID  domain.AccountID          `json:"guardian_account_id"`
	Trigger            Trigger                   `json:"trigger"`
	CorrelationID      string                    `json:"correlation_id"`
	OverdraftRequestID domain.OverdraftRequestID `json:"overdraft_request_id"`
	Amount             decimal.Decimal           `json:"amount"`
	CreatedAt          time.Time                 `json:"created_at"`
	SentAt             *time.Time                `json:"sent_at,omitempty"`
	Acknowledged       bool                      `json:"acknowledged"`
	AcknowledgedAt     *time.Time                `json:"acknowledged_at,omitempty"`
	Attempts           int                       `json:"attempts"`
	LastError          string                    `json:"last_error,omitempty"`
	Simulated          bool                      `json:"simulated,omitempty"`
	Suppressed         bool                      `json:"suppressed,omitempty"`
	// DedupKey is unique when set; limit-approaching uses it to fire once a day.
	DedupKey string `json:"-"`
}

func (n *Notification) Delivered() bool {
	return n.SentAt != nil
}

// ListFilter narrows the notifications of one minor account.
type ListFilter struct {
	MinorAccountID domain.AccountID
	UnreadOnly     bool
	Limit          int
}

// Store persists notifications.
//
// Create returns sentinel.ErrConflict when DedupKey is already taken.
type Store interface {
	Create(ctx context.Context, n *Notification) error
	FindByID(ctx context.Context, id domain.NotificationID) (*Notification, error)
	MarkSent(ctx context.Context, id domain.NotificationID, at time.Time) error
	MarkFailed(ctx context.Context, id domain.NotificationID, lastErr string) error
	Acknowledge(ctx context.Context, id domain.NotificationID, at time.Time) (*Notification, error)
	List(ctx context.Context, filter ListFilter) ([]*Notification, error)
	// Undelivered returns unsent, unsuppressed notifications with fewer than
	// maxAttempts attempts, oldest first.
	Undelivered(ctx context.Context, maxAttempts, limit int) ([]*Notification, error)
}

// Deliverer hands a notification to the outbound transport.
type Deliverer interface {
	Deliver(ctx context.Context, n Notification) error
}

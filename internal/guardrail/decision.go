// Package guardrail is the entry point the investment submission path and the
// admin review tooling talk to. It combines limit policy, usage, overdraft and
// minor protection into one decision per proposed transaction and audits it.
package guardrail

import (
	"github.com/shopspring/decimal"

	"guardrail/internal/overdraft"
	"guardrail/internal/usage"
	"guardrail/pkg/domain"
)

// Kind names a Decision variant on the wire.
type Kind string

const (
	KindAllow            Kind = "allow"
	KindDeny             Kind = "deny"
	KindPendingOverdraft Kind = "pending_overdraft"
)

// Reason explains a Deny.
type Reason string

const (
	ReasonLimitExceeded           Reason = "LimitExceeded"
	ReasonConcurrentLimitExceeded Reason = "ConcurrentLimitExceeded"
	ReasonOverdraftAlreadyPending Reason = "OverdraftAlreadyPending"
	ReasonPolicyResolution        Reason = "PolicyResolutionError"
	ReasonEngineUnavailable       Reason = "EngineUnavailable"
)

// Decision is the outcome of Evaluate. It is one of Allow, Deny or
// PendingOverdraft; callers switch on the concrete type.
type Decision interface {
	Kind() Kind
	CorrelationID() string
	isDecision()
}

// Allow carries the reservation that now counts against the caps.
type Allow struct {
	Correlation string
	Reservation usage.Reservation
	// Headroom is what is left after the reservation.
	Headroom usage.Headroom
}

// Deny rejects the transaction. Nothing was reserved.
type Deny struct {
	Correlation string
	Reason      Reason
	Detail      string
	Headroom    usage.Headroom
}

// PendingOverdraft means an overdraft request was opened for the requested
// amount, which is also the extension granted on approval.
// State is active when the request was approved automatically; the caller
// then resubmits to draw from the extension.
type PendingOverdraft struct {
	Correlation     string
	RequestID       domain.OverdraftRequestID
	State           overdraft.State
	RequestedAmount decimal.Decimal
	ExtensionAmount decimal.Decimal
}

func (Allow) Kind() Kind            { return KindAllow }
func (Deny) Kind() Kind             { return KindDeny }
func (PendingOverdraft) Kind() Kind { return KindPendingOverdraft }

func (d Allow) CorrelationID() string            { return d.Correlation }
func (d Deny) CorrelationID() string             { return d.Correlation }
func (d PendingOverdraft) CorrelationID() string { return d.Correlation }

func (Allow) isDecision()            {}
func (Deny) isDecision()             {}
func (PendingOverdraft) isDecision() {}

package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"guardrail/internal/guardrail"
	"guardrail/internal/minor"
	"guardrail/internal/usage"
	"guardrail/pkg/domain"
	audit "guardrail/pkg/platform/audit"
)

// HeadroomResponse is the spendable amount split by source.
type HeadroomResponse struct {
	Standard           decimal.Decimal `json:"standard"`
	Overdraft          decimal.Decimal `json:"overdraft"`
	Total              decimal.Decimal `json:"total"`
	DayUsed            decimal.Decimal `json:"day_used"`
	MonthUsed          decimal.Decimal `json:"month_used"`
	ExtensionExpiresAt *time.Time      `json:"extension_expires_at,omitempty"`
}

func fromHeadroom(h usage.Headroom) *HeadroomResponse {
	return &HeadroomResponse{
		Standard:           h.Standard,
		Overdraft:          h.Overdraft,
		Total:              h.Total,
		DayUsed:            h.DayUsed,
		MonthUsed:          h.MonthUsed,
		ExtensionExpiresAt: h.ExtensionExpiresAt,
	}
}

// EvaluateResponse flattens a Decision. Fields that do not belong to the
// decision kind are omitted.
type EvaluateResponse struct {
	Decision      guardrail.Kind `json:"decision"`
	CorrelationID string         `json:"correlation_id"`

	ReservationID   *domain.ReservationID `json:"reservation_id,omitempty"`
	ReservedAmount  *decimal.Decimal      `json:"reserved_amount,omitempty"`
	OverdraftAmount *decimal.Decimal      `json:"overdraft_amount,omitempty"`

	Reason string `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`

	OverdraftRequestID *domain.OverdraftRequestID `json:"overdraft_request_id,omitempty"`
	OverdraftState     string                     `json:"overdraft_state,omitempty"`
	ExtensionAmount    *decimal.Decimal           `json:"extension_amount,omitempty"`

	Headroom *HeadroomResponse `json:"headroom,omitempty"`
}

// FromDecision converts a Decision to its HTTP shape.
func FromDecision(d guardrail.Decision) *EvaluateResponse {
	resp := &EvaluateResponse{Decision: d.Kind(), CorrelationID: d.CorrelationID()}
	switch v := d.(type) {
	case guardrail.Allow:
		resp.ReservationID = &v.Reservation.ID
		resp.ReservedAmount = &v.Reservation.Amount
		if v.Reservation.DrewOverdraft() {
			resp.OverdraftAmount = &v.Reservation.OverdraftAmount
			resp.OverdraftRequestID = &v.Reservation.OverdraftRequestID
		}
		resp.Headroom = fromHeadroom(v.Headroom)
	case guardrail.Deny:
		resp.Reason = string(v.Reason)
		resp.Detail = v.Detail
		resp.Headroom = fromHeadroom(v.Headroom)
	case guardrail.PendingOverdraft:
		resp.OverdraftRequestID = &v.RequestID
		resp.OverdraftState = string(v.State)
		resp.ExtensionAmount = &v.ExtensionAmount
	}
	return resp
}

// ReservationResponse is returned after a release.
type ReservationResponse struct {
	ID              domain.ReservationID `json:"id"`
	AccountID       domain.AccountID     `json:"account_id"`
	Amount          decimal.Decimal      `json:"amount"`
	StandardAmount  decimal.Decimal      `json:"standard_amount"`
	OverdraftAmount decimal.Decimal      `json:"overdraft_amount"`
	CreatedAt       time.Time            `json:"created_at"`
	ReleasedAt      *time.Time           `json:"released_at,omitempty"`
}

func fromReservation(r usage.Reservation) *ReservationResponse {
	return &ReservationResponse{
		ID:              r.ID,
		AccountID:       r.AccountID,
		Amount:          r.Amount,
		StandardAmount:  r.StandardAmount,
		OverdraftAmount: r.OverdraftAmount,
		CreatedAt:       r.CreatedAt,
		ReleasedAt:      r.ReleasedAt,
	}
}

// AuditPageResponse is one page of the compliance export.
type AuditPageResponse struct {
	Entries    []audit.Entry `json:"entries"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// NotificationResponse hides the internal dedup key and delivery error.
type NotificationResponse struct {
	ID                 domain.NotificationID     `json:"id"`
	MinorAccountID     domain.AccountID          `json:"minor_account_id"`
	GuardianAccountID  *domain.AccountID         `json:"guardian_account_id,omitempty"`
	Trigger            minor.Trigger             `json:"trigger"`
	CorrelationID      string                    `json:"correlation_id"`
	OverdraftRequestID *domain.OverdraftRequestID `json:"overdraft_request_id,omitempty"`
	Amount             decimal.Decimal           `json:"amount"`
	CreatedAt          time.Time                 `json:"created_at"`
	SentAt             *time.Time                `json:"sent_at,omitempty"`
	Acknowledged       bool                      `json:"acknowledged"`
	AcknowledgedAt     *time.Time                `json:"acknowledged_at,omitempty"`
}

func fromNotification(n *minor.Notification) NotificationResponse {
	resp := NotificationResponse{
		ID:             n.ID,
		MinorAccountID: n.MinorAccountID,
		Trigger:        n.Trigger,
		CorrelationID:  n.CorrelationID,
		Amount:         n.Amount,
		CreatedAt:      n.CreatedAt,
		SentAt:         n.SentAt,
		Acknowledged:   n.Acknowledged,
		AcknowledgedAt: n.AcknowledgedAt,
	}
	if !n.GuardianAccountID.IsNil() {
		guardian := n.GuardianAccountID
		resp.GuardianAccountID = &guardian
	}
	if !n.OverdraftRequestID.IsNil() {
		request := n.OverdraftRequestID
		resp.OverdraftRequestID = &request
	}
	return resp
}

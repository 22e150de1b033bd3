// Package usage tracks cumulative spend per account and period and hands out
// reservations against the remaining headroom.
package usage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"guardrail/pkg/domain"
)

const (
	dayKeyPrefix   = "D:"
	monthKeyPrefix = "M:"
)

// DayKey is the UTC calendar day a timestamp falls in, e.g. "D:2026-10-19".
func DayKey(t time.Time) string {
	return dayKeyPrefix + t.UTC().Format(time.DateOnly)
}

// MonthKey is the UTC calendar month a timestamp falls in, e.g. "M:2026-10".
func MonthKey(t time.Time) string {
	return monthKeyPrefix + t.UTC().Format("2006-01")
}

// IsDayKey reports whether key addresses a daily record.
func IsDayKey(key string) bool {
	return len(key) > len(dayKeyPrefix) && key[:len(dayKeyPrefix)] == dayKeyPrefix
}

// Record is the running total for one account and period.
// Invariant: CumulativeAmount never drops below zero.
type Record struct {
	AccountID        domain.AccountID `json:"account_id"`
	PeriodKey        string           `json:"period_key"`
	CumulativeAmount decimal.Decimal  `json:"cumulative_amount"`
	TransactionCount int64            `json:"transaction_count"`
	LastUpdatedAt    time.Time        `json:"last_updated_at"`
}

// Extension is overdraft headroom installed by an activated overdraft request.
type Extension struct {
	AccountID domain.AccountID          `json:"account_id"`
	RequestID domain.OverdraftRequestID `json:"request_id"`
	Granted   decimal.Decimal           `json:"granted"`
	Consumed  decimal.Decimal           `json:"consumed"`
	ExpiresAt time.Time                 `json:"expires_at"`
}

// Remaining is the unconsumed part of the grant.
func (e Extension) Remaining() decimal.Decimal {
	return domain.ClampZero(e.Granted.Sub(e.Consumed))
}

// LiveAt reports whether the extension can still be drawn from at now.
// Expiry is reached once now is strictly after ExpiresAt.
func (e Extension) LiveAt(now time.Time) bool {
	return !now.After(e.ExpiresAt)
}

// Available is the headroom the extension contributes at now.
func (e *Extension) Available(now time.Time) decimal.Decimal {
	if e == nil || !e.LiveAt(now) {
		return decimal.Zero
	}
	return e.Remaining()
}

// Reservation is a token for spend already counted against the caps.
// Releasing it reverses the increment exactly once.
type Reservation struct {
	ID                 domain.ReservationID      `json:"id"`
	AccountID          domain.AccountID          `json:"account_id"`
	Amount             decimal.Decimal           `json:"amount"`
	StandardAmount     decimal.Decimal           `json:"standard_amount"`
	OverdraftAmount    decimal.Decimal           `json:"overdraft_amount"`
	OverdraftRequestID domain.OverdraftRequestID `json:"overdraft_request_id"`
	DayKey             string                    `json:"day_key"`
	MonthKey           string                    `json:"month_key"`
	CreatedAt          time.Time                 `json:"created_at"`
	ReleasedAt         *time.Time                `json:"released_at,omitempty"`
}

// Released reports whether the reservation has already been reversed.
func (r Reservation) Released() bool {
	return r.ReleasedAt != nil
}

// DrewOverdraft reports whether any part of the amount came from an extension.
func (r Reservation) DrewOverdraft() bool {
	return r.OverdraftAmount.IsPositive()
}

// Limits are the caps a reservation is checked against.
type Limits struct {
	DailyCap  decimal.Decimal
	PeriodCap decimal.Decimal
}

// Snapshot is the usage state of one account for the current day and month.
type Snapshot struct {
	Day       Record
	Month     Record
	Extension *Extension
}

// Headroom is what an account can still spend at a point in time.
type Headroom struct {
	AccountID domain.AccountID `json:"account_id"`
	DayKey    string           `json:"day_key"`
	MonthKey  string           `json:"month_key"`
	DayUsed   decimal.Decimal  `json:"day_used"`
	MonthUsed decimal.Decimal  `json:"month_used"`
	// Standard is min(daily - day, period - month), clamped at zero.
	Standard decimal.Decimal `json:"standard"`
	// Overdraft is the remaining live extension, zero when none is live.
	Overdraft          decimal.Decimal           `json:"overdraft"`
	Total              decimal.Decimal           `json:"total"`
	OverdraftRequestID domain.OverdraftRequestID `json:"overdraft_request_id"`
	ExtensionExpiresAt *time.Time                `json:"extension_expires_at,omitempty"`
}

// Receipt is the outcome of a successful reservation together with the
// headroom left immediately after it.
type Receipt struct {
	Reservation Reservation
	After       Headroom
}

// ExtensionExhausted reports whether this reservation drew the last of the
// live extension.
func (r Receipt) ExtensionExhausted() bool {
	return r.Reservation.DrewOverdraft() && !r.After.Overdraft.IsPositive()
}

// ReserveCommand is the atomic check-and-increment a store applies.
type ReserveCommand struct {
	ID        domain.ReservationID
	AccountID domain.AccountID
	Amount    decimal.Decimal
	Limits    Limits
	DayKey    string
	MonthKey  string
	Now       time.Time
}

// Store persists usage. Reserve and Release must be linearizable per account.
//
// Reserve returns sentinel.ErrInsufficient when the caps reject the amount and
// sentinel.ErrContention when the per-account lock or retry budget runs out.
// Release returns sentinel.ErrNotFound or sentinel.ErrAlreadyUsed.
type Store interface {
	Snapshot(ctx context.Context, accountID domain.AccountID, dayKey, monthKey string) (Snapshot, error)
	Reserve(ctx context.Context, cmd ReserveCommand) (Reservation, Snapshot, error)
	Release(ctx context.Context, id domain.ReservationID, now time.Time) (Reservation, error)
	FindReservation(ctx context.Context, id domain.ReservationID) (Reservation, error)
	Grant(ctx context.Context, ext Extension) error
	Revoke(ctx context.Context, accountID domain.AccountID, requestID domain.OverdraftRequestID) (Extension, error)
	// ClosedRecords returns day records older than beforeDay and month records
	// older than beforeMonth, oldest first.
	ClosedRecords(ctx context.Context, beforeDay, beforeMonth string, limit int) ([]Record, error)
	DeleteRecords(ctx context.Context, records []Record) error
}

// Archiver receives closed period records before they are removed from the
// hot store.
type Archiver interface {
	Put(ctx context.Context, records []Record) error
}

// ApplyReserve runs the reservation arithmetic shared by the in-process
// stores. It mutates day, month and ext only when the amount fits.
// The extension is drawn first; the remainder must fit both caps.
func ApplyReserve(cmd ReserveCommand, day, month *Record, ext *Extension) (Reservation, bool) {
	fromOverdraft := domain.MinDecimal(ext.Available(cmd.Now), cmd.Amount)
	standard := cmd.Amount.Sub(fromOverdraft)

	if day.CumulativeAmount.Add(standard).GreaterThan(cmd.Limits.DailyCap) ||
		month.CumulativeAmount.Add(standard).GreaterThan(cmd.Limits.PeriodCap) {
		return Reservation{}, false
	}

	day.CumulativeAmount = day.CumulativeAmount.Add(standard)
	day.TransactionCount++
	day.LastUpdatedAt = cmd.Now
	month.CumulativeAmount = month.CumulativeAmount.Add(standard)
	month.TransactionCount++
	month.LastUpdatedAt = cmd.Now

	res := Reservation{
		ID:              cmd.ID,
		AccountID:       cmd.AccountID,
		Amount:          cmd.Amount,
		StandardAmount:  standard,
		OverdraftAmount: fromOverdraft,
		DayKey:          cmd.DayKey,
		MonthKey:        cmd.MonthKey,
		CreatedAt:       cmd.Now,
	}
	if fromOverdraft.IsPositive() {
		ext.Consumed = ext.Consumed.Add(fromOverdraft)
		res.OverdraftRequestID = ext.RequestID
	}
	return res, true
}

// ApplyRelease reverses a reservation against its original records. The
// overdraft part goes back to ext only while that same extension is live.
func ApplyRelease(res Reservation, day, month *Record, ext *Extension, now time.Time) {
	day.CumulativeAmount = domain.ClampZero(day.CumulativeAmount.Sub(res.StandardAmount))
	day.TransactionCount = max(day.TransactionCount-1, 0)
	day.LastUpdatedAt = now
	month.CumulativeAmount = domain.ClampZero(month.CumulativeAmount.Sub(res.StandardAmount))
	month.TransactionCount = max(month.TransactionCount-1, 0)
	month.LastUpdatedAt = now

	if res.DrewOverdraft() && ext != nil && ext.RequestID == res.OverdraftRequestID && ext.LiveAt(now) {
		ext.Consumed = domain.ClampZero(ext.Consumed.Sub(res.OverdraftAmount))
	}
}

package guardrail

import (
	"context"
	"iter"
	"time"

	"github.com/shopspring/decimal"

	"guardrail/internal/account"
	"guardrail/internal/minor"
	"guardrail/internal/overdraft"
	"guardrail/internal/policy"
	"guardrail/internal/usage"
	"guardrail/pkg/domain"
	audit "guardrail/pkg/platform/audit"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

// Accounts reads account snapshots owned by the identity subsystem.
// FindByID returns sentinel.ErrNotFound for unknown ids.
type Accounts interface {
	FindByID(ctx context.Context, id domain.AccountID) (*account.Account, error)
}

// Policies hands out the currently published policy table.
type Policies interface {
	Current() (*policy.Table, error)
}

// Usage is the daily usage tracker.
type Usage interface {
	Headroom(ctx context.Context, accountID domain.AccountID, limits usage.Limits, now time.Time) (usage.Headroom, error)
	Reserve(ctx context.Context, accountID domain.AccountID, amount decimal.Decimal, limits usage.Limits, now time.Time) (usage.Receipt, error)
	Release(ctx context.Context, id domain.ReservationID, now time.Time) (usage.Reservation, error)
}

// Overdrafts is the overdraft workflow.
type Overdrafts interface {
	Current(ctx context.Context, accountID domain.AccountID, now time.Time) (*overdraft.Request, error)
	Open(ctx context.Context, cmd overdraft.OpenCommand) (*overdraft.Request, error)
	Decide(ctx context.Context, cmd overdraft.DecideCommand) (*overdraft.Request, error)
	MarkConsumed(ctx context.Context, id domain.OverdraftRequestID, now time.Time) (*overdraft.Request, error)
	Discard(ctx context.Context, id domain.OverdraftRequestID) error
	Get(ctx context.Context, id domain.OverdraftRequestID) (*overdraft.Request, error)
	List(ctx context.Context, filter overdraft.ListFilter) ([]*overdraft.Request, error)
	Status(ctx context.Context, accountID domain.AccountID, now time.Time) (overdraft.Status, error)
	Stats(ctx context.Context, now time.Time) (overdraft.Stats, error)
}

// Notifier turns decisions about minors into guardian notifications.
type Notifier interface {
	OnDecision(ctx context.Context, ev minor.Event) (*minor.Notification, error)
}

// AuditTrail is the append-only decision log.
type AuditTrail interface {
	Record(ctx context.Context, e audit.Entry) (audit.Entry, error)
	Query(ctx context.Context, filter audit.Filter, page audit.PageRequest) (audit.Page, error)
	Entries(ctx context.Context, filter audit.Filter, cursor string, pageSize int) iter.Seq2[audit.Entry, error]
}

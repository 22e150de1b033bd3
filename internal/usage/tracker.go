package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"guardrail/internal/usage/metrics"
	"guardrail/pkg/domain"
	dErrors "guardrail/pkg/domain-errors"
	audit "guardrail/pkg/platform/audit"
	"guardrail/pkg/platform/sentinel"
)

const (
	defaultReserveTimeout = 2 * time.Second
	defaultArchiveBatch   = 500
)

// AuditRecorder is the durable audit sink used for housekeeping entries.
type AuditRecorder interface {
	Record(ctx context.Context, e audit.Entry) (audit.Entry, error)
}

// Tracker answers headroom questions and performs reservations against a Store.
type Tracker struct {
	store          Store
	auditor        AuditRecorder
	logger         *slog.Logger
	metrics        *metrics.Metrics
	reserveTimeout time.Duration
	archiveBatch   int
}

type Option func(*Tracker)

func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) {
		t.metrics = m
	}
}

func WithAuditor(a AuditRecorder) Option {
	return func(t *Tracker) {
		t.auditor = a
	}
}

// WithReserveTimeout bounds how long a reservation may wait for the
// per-account lock before failing with ConcurrentLimitExceeded.
func WithReserveTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.reserveTimeout = d
		}
	}
}

func WithArchiveBatch(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.archiveBatch = n
		}
	}
}

func New(store Store, opts ...Option) (*Tracker, error) {
	if store == nil {
		return nil, fmt.Errorf("usage store is required")
	}
	t := &Tracker{
		store:          store,
		logger:         slog.Default(),
		reserveTimeout: defaultReserveTimeout,
		archiveBatch:   defaultArchiveBatch,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Headroom computes what accountID may still spend at now under limits.
func (t *Tracker) Headroom(ctx context.Context, accountID domain.AccountID, limits Limits, now time.Time) (Headroom, error) {
	dayKey, monthKey := DayKey(now), MonthKey(now)
	snap, err := t.store.Snapshot(ctx, accountID, dayKey, monthKey)
	if err != nil {
		return Headroom{}, dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to read usage")
	}
	return computeHeadroom(accountID, dayKey, monthKey, snap, limits, now), nil
}

func computeHeadroom(accountID domain.AccountID, dayKey, monthKey string, snap Snapshot, limits Limits, now time.Time) Headroom {
	standard := domain.MinDecimal(
		limits.DailyCap.Sub(snap.Day.CumulativeAmount),
		limits.PeriodCap.Sub(snap.Month.CumulativeAmount),
	)
	h := Headroom{
		AccountID: accountID,
		DayKey:    dayKey,
		MonthKey:  monthKey,
		DayUsed:   snap.Day.CumulativeAmount,
		MonthUsed: snap.Month.CumulativeAmount,
		Standard:  domain.ClampZero(standard),
		Overdraft: snap.Extension.Available(now),
	}
	if snap.Extension != nil && snap.Extension.LiveAt(now) {
		h.OverdraftRequestID = snap.Extension.RequestID
		expires := snap.Extension.ExpiresAt
		h.ExtensionExpiresAt = &expires
	}
	h.Total = h.Standard.Add(h.Overdraft)
	return h
}

// Reserve atomically checks amount against the caps and counts it.
// The live extension is drawn first.
func (t *Tracker) Reserve(ctx context.Context, accountID domain.AccountID, amount decimal.Decimal, limits Limits, now time.Time) (Receipt, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return Receipt{}, err
	}
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, t.reserveTimeout)
	defer cancel()

	cmd := ReserveCommand{
		ID:        domain.NewReservationID(),
		AccountID: accountID,
		Amount:    amount,
		Limits:    limits,
		DayKey:    DayKey(now),
		MonthKey:  MonthKey(now),
		Now:       now,
	}
	res, snap, err := t.store.Reserve(ctx, cmd)
	if t.metrics != nil {
		t.metrics.ObserveReserve(start)
	}
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrInsufficient):
			t.countReservation("insufficient")
			return Receipt{}, dErrors.Wrap(err, dErrors.CodeInsufficientHeadroom, "amount exceeds remaining headroom")
		case errors.Is(err, sentinel.ErrContention), errors.Is(err, context.DeadlineExceeded):
			t.countReservation("contention")
			t.logger.WarnContext(ctx, "usage reservation contended",
				"account_id", accountID,
				"error", err,
			)
			return Receipt{}, dErrors.Wrap(err, dErrors.CodeConcurrentLimit, "concurrent reservations on account")
		default:
			t.countReservation("error")
			return Receipt{}, dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to reserve usage")
		}
	}
	t.countReservation("reserved")
	return Receipt{
		Reservation: res,
		After:       computeHeadroom(accountID, cmd.DayKey, cmd.MonthKey, snap, limits, now),
	}, nil
}

func (t *Tracker) countReservation(outcome string) {
	if t.metrics != nil {
		t.metrics.IncReservation(outcome)
	}
}

// Release reverses a reservation. A second release fails with AlreadyReleased.
func (t *Tracker) Release(ctx context.Context, id domain.ReservationID, now time.Time) (Reservation, error) {
	if id.IsNil() {
		return Reservation{}, dErrors.New(dErrors.CodeBadRequest, "reservation id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, t.reserveTimeout)
	defer cancel()

	res, err := t.store.Release(ctx, id, now)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return Reservation{}, dErrors.Wrap(err, dErrors.CodeNotFound, "reservation not found")
		case errors.Is(err, sentinel.ErrAlreadyUsed):
			return Reservation{}, dErrors.Wrap(err, dErrors.CodeAlreadyReleased, "reservation already released")
		case errors.Is(err, sentinel.ErrContention), errors.Is(err, context.DeadlineExceeded):
			return Reservation{}, dErrors.Wrap(err, dErrors.CodeConcurrentLimit, "concurrent reservations on account")
		default:
			return Reservation{}, dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to release reservation")
		}
	}
	if t.metrics != nil {
		t.metrics.IncReleases()
	}
	return res, nil
}

// Reservation looks up a reservation without changing it.
func (t *Tracker) Reservation(ctx context.Context, id domain.ReservationID) (Reservation, error) {
	res, err := t.store.FindReservation(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Reservation{}, dErrors.Wrap(err, dErrors.CodeNotFound, "reservation not found")
		}
		return Reservation{}, dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to load reservation")
	}
	return res, nil
}

// Grant installs overdraft headroom, replacing any previous extension.
func (t *Tracker) Grant(ctx context.Context, ext Extension) error {
	if ext.AccountID.IsNil() || ext.RequestID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "extension requires account and request ids")
	}
	if !ext.Granted.IsPositive() {
		return dErrors.New(dErrors.CodeBadRequest, "extension amount must be positive")
	}
	if err := t.store.Grant(ctx, ext); err != nil {
		return dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to install extension")
	}
	if t.metrics != nil {
		t.metrics.IncExtensions()
	}
	return nil
}

// Revoke removes the extension installed for requestID. Revoking an
// extension that is gone already is not an error.
func (t *Tracker) Revoke(ctx context.Context, accountID domain.AccountID, requestID domain.OverdraftRequestID) (Extension, error) {
	ext, err := t.store.Revoke(ctx, accountID, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Extension{}, nil
		}
		return Extension{}, dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to revoke extension")
	}
	return ext, nil
}

// Extension returns the extension installed for accountID, live or not.
func (t *Tracker) Extension(ctx context.Context, accountID domain.AccountID, now time.Time) (*Extension, error) {
	snap, err := t.store.Snapshot(ctx, accountID, DayKey(now), MonthKey(now))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to read extension")
	}
	return snap.Extension, nil
}

// ArchiveResult summarizes one archive run.
type ArchiveResult struct {
	Records   int
	FirstKey  string
	LastKey   string
	BeforeDay string
}

// Archive moves closed period records older than before into archiver.
// Each batch is written to the archive before it is deleted from the store.
func (t *Tracker) Archive(ctx context.Context, archiver Archiver, before time.Time) (ArchiveResult, error) {
	if archiver == nil {
		return ArchiveResult{}, fmt.Errorf("archiver is required")
	}
	result := ArchiveResult{BeforeDay: DayKey(before)}
	beforeMonth := MonthKey(before)

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		batch, err := t.store.ClosedRecords(ctx, result.BeforeDay, beforeMonth, t.archiveBatch)
		if err != nil {
			return result, dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to read closed records")
		}
		if len(batch) == 0 {
			break
		}
		if err := archiver.Put(ctx, batch); err != nil {
			return result, dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to write archive")
		}
		if err := t.store.DeleteRecords(ctx, batch); err != nil {
			return result, dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to delete archived records")
		}
		for _, r := range batch {
			if result.FirstKey == "" || r.PeriodKey < result.FirstKey {
				result.FirstKey = r.PeriodKey
			}
			if r.PeriodKey > result.LastKey {
				result.LastKey = r.PeriodKey
			}
		}
		result.Records += len(batch)
		if len(batch) < t.archiveBatch {
			break
		}
	}

	if result.Records == 0 {
		return result, nil
	}
	if t.metrics != nil {
		t.metrics.AddArchived(result.Records)
	}
	t.logger.InfoContext(ctx, "usage records archived",
		"records", result.Records,
		"first_key", result.FirstKey,
		"last_key", result.LastKey,
	)
	if t.auditor != nil {
		_, err := t.auditor.Record(ctx, audit.Entry{
			SubjectType: audit.SubjectUsage,
			Action:      audit.ActionUsageArchived,
			Reason:      fmt.Sprintf("archived %d records %s..%s", result.Records, result.FirstKey, result.LastKey),
			Actor:       audit.ActorAuto,
		})
		if err != nil {
			return result, dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to audit archive run")
		}
	}
	return result, nil
}

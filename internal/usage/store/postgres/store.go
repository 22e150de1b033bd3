package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"guardrail/internal/usage"
	"guardrail/pkg/domain"
	"guardrail/pkg/platform/sentinel"
	txcontext "guardrail/pkg/platform/tx"
	"guardrail/pkg/requestcontext"
)

// Schema creates the usage tables. usage_accounts is the per-account lock row
// and also carries the live overdraft extension.
const Schema = `
CREATE TABLE IF NOT EXISTS usage_accounts (
	account_id       UUID PRIMARY KEY,
	ext_request_id   UUID,
	ext_granted      NUMERIC(18,2) NOT NULL DEFAULT 0,
	ext_consumed     NUMERIC(18,2) NOT NULL DEFAULT 0,
	ext_expires_at   TIMESTAMPTZ,
	updated_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS usage_records (
	account_id        UUID NOT NULL,
	period_key        TEXT NOT NULL,
	cumulative_amount NUMERIC(18,2) NOT NULL DEFAULT 0 CHECK (cumulative_amount >= 0),
	transaction_count BIGINT NOT NULL DEFAULT 0,
	last_updated_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (account_id, period_key)
);

CREATE TABLE IF NOT EXISTS usage_reservations (
	id                   UUID PRIMARY KEY,
	account_id           UUID NOT NULL,
	amount               NUMERIC(18,2) NOT NULL,
	standard_amount      NUMERIC(18,2) NOT NULL,
	overdraft_amount     NUMERIC(18,2) NOT NULL,
	overdraft_request_id UUID,
	day_key              TEXT NOT NULL,
	month_key            TEXT NOT NULL,
	created_at           TIMESTAMPTZ NOT NULL,
	released_at          TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_usage_reservations_account ON usage_reservations (account_id, created_at);
`

const (
	defaultMaxAttempts = 3
	retryBackoff       = 10 * time.Millisecond
)

// PostgresStore serializes reservations per account with a row lock on
// usage_accounts and retries transactions the server aborts for
// serialization or deadlock reasons.
type PostgresStore struct {
	db          *sql.DB
	maxAttempts int
}

func New(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, maxAttempts: defaultMaxAttempts}
}

// WithMaxAttempts returns a copy of the store with a different retry budget.
func (s *PostgresStore) WithMaxAttempts(n int) *PostgresStore {
	cp := *s
	if n > 0 {
		cp.maxAttempts = n
	}
	return &cp
}

// retryable reports serialization_failure (40001) and deadlock_detected
// (40P01) from either driver.
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

// inTx runs fn in a transaction, retrying retryable aborts. Exhausting the
// budget yields sentinel.ErrContention.
func (s *PostgresStore) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", sentinel.ErrContention, ctx.Err())
			case <-time.After(time.Duration(attempt) * retryBackoff):
			}
		}
		lastErr = txcontext.Run(ctx, s.db, nil, fn)
		if lastErr == nil || !retryable(lastErr) {
			if errors.Is(lastErr, context.DeadlineExceeded) {
				return fmt.Errorf("%w: %v", sentinel.ErrContention, lastErr)
			}
			return lastErr
		}
	}
	return fmt.Errorf("%w: retries exhausted: %v", sentinel.ErrContention, lastErr)
}

// lockAccount ensures the account row exists and takes its row lock.
func lockAccount(ctx context.Context, exec txcontext.Executor, accountID domain.AccountID, now time.Time) (*usage.Extension, error) {
	_, err := exec.ExecContext(ctx, `
		INSERT INTO usage_accounts (account_id, updated_at) VALUES ($1, $2)
		ON CONFLICT (account_id) DO NOTHING
	`, uuid.UUID(accountID), now)
	if err != nil {
		return nil, fmt.Errorf("ensure usage account: %w", err)
	}

	ext, err := readExtension(ctx, exec, accountID, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lock usage account: %w", err)
	}
	return ext, err
}

func readExtension(ctx context.Context, exec txcontext.Executor, accountID domain.AccountID, forUpdate bool) (*usage.Extension, error) {
	query := `
		SELECT ext_request_id, ext_granted, ext_consumed, ext_expires_at
		FROM usage_accounts WHERE account_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var (
		requestID uuid.NullUUID
		granted   decimal.Decimal
		consumed  decimal.Decimal
		expiresAt sql.NullTime
	)
	err := exec.QueryRowContext(ctx, query, uuid.UUID(accountID)).Scan(&requestID, &granted, &consumed, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) && !forUpdate {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read extension: %w", err)
	}
	if !requestID.Valid {
		return nil, nil
	}
	return &usage.Extension{
		AccountID: accountID,
		RequestID: domain.OverdraftRequestID(requestID.UUID),
		Granted:   granted,
		Consumed:  consumed,
		ExpiresAt: expiresAt.Time.UTC(),
	}, nil
}

func readRecord(ctx context.Context, exec txcontext.Executor, accountID domain.AccountID, key string) (usage.Record, error) {
	r := usage.Record{AccountID: accountID, PeriodKey: key}
	err := exec.QueryRowContext(ctx, `
		SELECT cumulative_amount, transaction_count, last_updated_at
		FROM usage_records WHERE account_id = $1 AND period_key = $2
	`, uuid.UUID(accountID), key).Scan(&r.CumulativeAmount, &r.TransactionCount, &r.LastUpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return r, nil
	}
	if err != nil {
		return usage.Record{}, fmt.Errorf("read usage record %s: %w", key, err)
	}
	r.LastUpdatedAt = r.LastUpdatedAt.UTC()
	return r, nil
}

func writeRecord(ctx context.Context, exec txcontext.Executor, r usage.Record) error {
	_, err := exec.ExecContext(ctx, `
		INSERT INTO usage_records (account_id, period_key, cumulative_amount, transaction_count, last_updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_id, period_key) DO UPDATE SET
			cumulative_amount = EXCLUDED.cumulative_amount,
			transaction_count = EXCLUDED.transaction_count,
			last_updated_at = EXCLUDED.last_updated_at
	`, uuid.UUID(r.AccountID), r.PeriodKey, r.CumulativeAmount, r.TransactionCount, r.LastUpdatedAt)
	if err != nil {
		return fmt.Errorf("write usage record %s: %w", r.PeriodKey, err)
	}
	return nil
}

func writeConsumed(ctx context.Context, exec txcontext.Executor, ext *usage.Extension, now time.Time) error {
	_, err := exec.ExecContext(ctx, `
		UPDATE usage_accounts SET ext_consumed = $2, updated_at = $3
		WHERE account_id = $1 AND ext_request_id = $4
	`, uuid.UUID(ext.AccountID), ext.Consumed, now, uuid.UUID(ext.RequestID))
	if err != nil {
		return fmt.Errorf("update extension: %w", err)
	}
	return nil
}

func (s *PostgresStore) Snapshot(ctx context.Context, accountID domain.AccountID, dayKey, monthKey string) (usage.Snapshot, error) {
	exec := txcontext.Exec(ctx, s.db)
	day, err := readRecord(ctx, exec, accountID, dayKey)
	if err != nil {
		return usage.Snapshot{}, err
	}
	month, err := readRecord(ctx, exec, accountID, monthKey)
	if err != nil {
		return usage.Snapshot{}, err
	}
	ext, err := readExtension(ctx, exec, accountID, false)
	if err != nil {
		return usage.Snapshot{}, err
	}
	return usage.Snapshot{Day: day, Month: month, Extension: ext}, nil
}

func (s *PostgresStore) Reserve(ctx context.Context, cmd usage.ReserveCommand) (usage.Reservation, usage.Snapshot, error) {
	var (
		res  usage.Reservation
		snap usage.Snapshot
	)
	err := s.inTx(ctx, func(ctx context.Context) error {
		exec := txcontext.Exec(ctx, s.db)
		ext, err := lockAccount(ctx, exec, cmd.AccountID, cmd.Now)
		if err != nil {
			return err
		}
		day, err := readRecord(ctx, exec, cmd.AccountID, cmd.DayKey)
		if err != nil {
			return err
		}
		month, err := readRecord(ctx, exec, cmd.AccountID, cmd.MonthKey)
		if err != nil {
			return err
		}

		var ok bool
		res, ok = usage.ApplyReserve(cmd, &day, &month, ext)
		if !ok {
			return sentinel.ErrInsufficient
		}
		if err := writeRecord(ctx, exec, day); err != nil {
			return err
		}
		if err := writeRecord(ctx, exec, month); err != nil {
			return err
		}
		if res.DrewOverdraft() {
			if err := writeConsumed(ctx, exec, ext, cmd.Now); err != nil {
				return err
			}
		}
		_, err = exec.ExecContext(ctx, `
			INSERT INTO usage_reservations (id, account_id, amount, standard_amount, overdraft_amount,
				overdraft_request_id, day_key, month_key, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			uuid.UUID(res.ID),
			uuid.UUID(res.AccountID),
			res.Amount,
			res.StandardAmount,
			res.OverdraftAmount,
			nullUUID(uuid.UUID(res.OverdraftRequestID)),
			res.DayKey,
			res.MonthKey,
			res.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}
		snap = usage.Snapshot{Day: day, Month: month, Extension: ext}
		return nil
	})
	if err != nil {
		return usage.Reservation{}, usage.Snapshot{}, err
	}
	return res, snap, nil
}

const reservationColumns = `id, account_id, amount, standard_amount, overdraft_amount,
	overdraft_request_id, day_key, month_key, created_at, released_at`

func scanReservation(row interface{ Scan(...any) error }) (usage.Reservation, error) {
	var (
		res           usage.Reservation
		id, accountID uuid.UUID
		requestID     uuid.NullUUID
		releasedAt    sql.NullTime
	)
	err := row.Scan(&id, &accountID, &res.Amount, &res.StandardAmount, &res.OverdraftAmount,
		&requestID, &res.DayKey, &res.MonthKey, &res.CreatedAt, &releasedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return usage.Reservation{}, sentinel.ErrNotFound
	}
	if err != nil {
		return usage.Reservation{}, fmt.Errorf("scan reservation: %w", err)
	}
	res.ID = domain.ReservationID(id)
	res.AccountID = domain.AccountID(accountID)
	res.OverdraftRequestID = domain.OverdraftRequestID(requestID.UUID)
	res.CreatedAt = res.CreatedAt.UTC()
	if releasedAt.Valid {
		t := releasedAt.Time.UTC()
		res.ReleasedAt = &t
	}
	return res, nil
}

func (s *PostgresStore) FindReservation(ctx context.Context, id domain.ReservationID) (usage.Reservation, error) {
	return scanReservation(txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM usage_reservations WHERE id = $1`, uuid.UUID(id)))
}

func (s *PostgresStore) Release(ctx context.Context, id domain.ReservationID, now time.Time) (usage.Reservation, error) {
	found, err := s.FindReservation(ctx, id)
	if err != nil {
		return usage.Reservation{}, err
	}

	var res usage.Reservation
	err = s.inTx(ctx, func(ctx context.Context) error {
		exec := txcontext.Exec(ctx, s.db)
		ext, err := lockAccount(ctx, exec, found.AccountID, now)
		if err != nil {
			return err
		}
		res, err = scanReservation(exec.QueryRowContext(ctx,
			`SELECT `+reservationColumns+` FROM usage_reservations WHERE id = $1 FOR UPDATE`, uuid.UUID(id)))
		if err != nil {
			return err
		}
		if res.Released() {
			return sentinel.ErrAlreadyUsed
		}

		day, err := readRecord(ctx, exec, res.AccountID, res.DayKey)
		if err != nil {
			return err
		}
		month, err := readRecord(ctx, exec, res.AccountID, res.MonthKey)
		if err != nil {
			return err
		}
		var before decimal.Decimal
		if ext != nil {
			before = ext.Consumed
		}
		usage.ApplyRelease(res, &day, &month, ext, now)

		if err := writeRecord(ctx, exec, day); err != nil {
			return err
		}
		if err := writeRecord(ctx, exec, month); err != nil {
			return err
		}
		if ext != nil && !ext.Consumed.Equal(before) {
			if err := writeConsumed(ctx, exec, ext, now); err != nil {
				return err
			}
		}
		if _, err := exec.ExecContext(ctx,
			`UPDATE usage_reservations SET released_at = $2 WHERE id = $1`, uuid.UUID(id), now); err != nil {
			return fmt.Errorf("mark reservation released: %w", err)
		}
		released := now
		res.ReleasedAt = &released
		return nil
	})
	if err != nil {
		return usage.Reservation{}, err
	}
	return res, nil
}

func (s *PostgresStore) Grant(ctx context.Context, ext usage.Extension) error {
	return s.inTx(ctx, func(ctx context.Context) error {
		exec := txcontext.Exec(ctx, s.db)
		if _, err := lockAccount(ctx, exec, ext.AccountID, requestcontext.Now(ctx)); err != nil {
			return err
		}
		_, err := exec.ExecContext(ctx, `
			UPDATE usage_accounts
			SET ext_request_id = $2, ext_granted = $3, ext_consumed = $4, ext_expires_at = $5, updated_at = now()
			WHERE account_id = $1
		`, uuid.UUID(ext.AccountID), uuid.UUID(ext.RequestID), ext.Granted, ext.Consumed, ext.ExpiresAt)
		if err != nil {
			return fmt.Errorf("install extension: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) Revoke(ctx context.Context, accountID domain.AccountID, requestID domain.OverdraftRequestID) (usage.Extension, error) {
	var revoked usage.Extension
	err := s.inTx(ctx, func(ctx context.Context) error {
		exec := txcontext.Exec(ctx, s.db)
		ext, err := readExtension(ctx, exec, accountID, false)
		if err != nil {
			return err
		}
		if ext == nil || ext.RequestID != requestID {
			return sentinel.ErrNotFound
		}
		result, err := exec.ExecContext(ctx, `
			UPDATE usage_accounts
			SET ext_request_id = NULL, ext_granted = 0, ext_consumed = 0, ext_expires_at = NULL, updated_at = now()
			WHERE account_id = $1 AND ext_request_id = $2
		`, uuid.UUID(accountID), uuid.UUID(requestID))
		if err != nil {
			return fmt.Errorf("revoke extension: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return sentinel.ErrNotFound
		}
		revoked = *ext
		return nil
	})
	if err != nil {
		return usage.Extension{}, err
	}
	return revoked, nil
}

func (s *PostgresStore) ClosedRecords(ctx context.Context, beforeDay, beforeMonth string, limit int) ([]usage.Record, error) {
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, `
		SELECT account_id, period_key, cumulative_amount, transaction_count, last_updated_at
		FROM usage_records
		WHERE (period_key LIKE 'D:%' AND period_key < $1)
		   OR (period_key LIKE 'M:%' AND period_key < $2)
		ORDER BY period_key, account_id
		LIMIT $3
	`, beforeDay, beforeMonth, limit)
	if err != nil {
		return nil, fmt.Errorf("query closed records: %w", err)
	}
	defer rows.Close()

	var records []usage.Record
	for rows.Next() {
		var (
			r  usage.Record
			id uuid.UUID
		)
		if err := rows.Scan(&id, &r.PeriodKey, &r.CumulativeAmount, &r.TransactionCount, &r.LastUpdatedAt); err != nil {
			return nil, fmt.Errorf("scan closed record: %w", err)
		}
		r.AccountID = domain.AccountID(id)
		r.LastUpdatedAt = r.LastUpdatedAt.UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate closed records: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) DeleteRecords(ctx context.Context, records []usage.Record) error {
	if len(records) == 0 {
		return nil
	}
	ids := make([]string, len(records))
	keys := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.AccountID.String()
		keys[i] = r.PeriodKey
	}
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		DELETE FROM usage_records u
		USING unnest($1::uuid[], $2::text[]) AS d(account_id, period_key)
		WHERE u.account_id = d.account_id AND u.period_key = d.period_key
	`, pq.Array(ids), pq.Array(keys))
	if err != nil {
		return fmt.Errorf("delete archived records: %w", err)
	}
	return nil
}

func nullUUID(u uuid.UUID) any {
	if u == uuid.Nil {
		return nil
	}
	return u
}

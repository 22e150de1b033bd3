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

	"guardrail/internal/minor"
	"guardrail/pkg/domain"
	"guardrail/pkg/platform/sentinel"
	txcontext "guardrail/pkg/platform/tx"
)

const Schema = `
CREATE TABLE IF NOT EXISTS minor_notifications (
	id                   UUID PRIMARY KEY,
	minor_account_id     UUID NOT NULL,
	guardian_account_id  UUID,
	trigger_event        TEXT NOT NULL,
	correlation_id       TEXT NOT NULL DEFAULT '',
	overdraft_request_id UUID,
	amount               NUMERIC(18,2) NOT NULL DEFAULT 0,
	created_at           TIMESTAMPTZ NOT NULL,
	sent_at              TIMESTAMPTZ,
	acknowledged         BOOLEAN NOT NULL DEFAULT FALSE,
	acknowledged_at      TIMESTAMPTZ,
	attempts             INTEGER NOT NULL DEFAULT 0,
	last_error           TEXT NOT NULL DEFAULT '',
	simulated            BOOLEAN NOT NULL DEFAULT FALSE,
	suppressed           BOOLEAN NOT NULL DEFAULT FALSE,
	dedup_key            TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_minor_notifications_dedup
	ON minor_notifications (dedup_key) WHERE dedup_key IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_minor_notifications_account
	ON minor_notifications (minor_account_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_minor_notifications_undelivered
	ON minor_notifications (created_at) WHERE sent_at IS NULL AND NOT suppressed;
`

const columns = `id, minor_account_id, guardian_account_id, trigger_event, correlation_id,
	overdraft_request_id, amount, created_at, sent_at, acknowledged, acknowledged_at,
	attempts, last_error, simulated, suppressed`

type PostgresStore struct {
	db *sql.DB
}

func New(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func nullUUID(u uuid.UUID) any {
	if u == uuid.Nil {
		return nil
	}
	return u
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *PostgresStore) Create(ctx context.Context, n *minor.Notification) error {
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO minor_notifications (`+columns+`, dedup_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		uuid.UUID(n.ID),
		uuid.UUID(n.MinorAccountID),
		nullUUID(uuid.UUID(n.GuardianAccountID)),
		string(n.Trigger),
		n.CorrelationID,
		nullUUID(uuid.UUID(n.OverdraftRequestID)),
		n.Amount,
		n.CreatedAt,
		n.SentAt,
		n.Acknowledged,
		n.AcknowledgedAt,
		n.Attempts,
		n.LastError,
		n.Simulated,
		n.Suppressed,
		nullString(n.DedupKey),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func scanNotification(row interface{ Scan(...any) error }) (*minor.Notification, error) {
	var (
		n                 minor.Notification
		id, accountID     uuid.UUID
		guardian, request uuid.NullUUID
		trigger           string
		sentAt, ackAt     sql.NullTime
	)
	err := row.Scan(
		&id,
		&accountID,
		&guardian,
		&trigger,
		&n.CorrelationID,
		&request,
		&n.Amount,
		&n.CreatedAt,
		&sentAt,
		&n.Acknowledged,
		&ackAt,
		&n.Attempts,
		&n.LastError,
		&n.Simulated,
		&n.Suppressed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan notification: %w", err)
	}
	n.ID = domain.NotificationID(id)
	n.MinorAccountID = domain.AccountID(accountID)
	if guardian.Valid {
		n.GuardianAccountID = domain.AccountID(guardian.UUID)
	}
	if request.Valid {
		n.OverdraftRequestID = domain.OverdraftRequestID(request.UUID)
	}
	n.Trigger = minor.Trigger(trigger)
	n.CreatedAt = n.CreatedAt.UTC()
	if sentAt.Valid {
		t := sentAt.Time.UTC()
		n.SentAt = &t
	}
	if ackAt.Valid {
		t := ackAt.Time.UTC()
		n.AcknowledgedAt = &t
	}
	return &n, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.NotificationID) (*minor.Notification, error) {
	return scanNotification(txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+columns+` FROM minor_notifications WHERE id = $1`, uuid.UUID(id)))
}

func (s *PostgresStore) MarkSent(ctx context.Context, id domain.NotificationID, at time.Time) error {
	return s.update(ctx, `
		UPDATE minor_notifications
		SET sent_at = $2, attempts = attempts + 1, last_error = ''
		WHERE id = $1
	`, uuid.UUID(id), at)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id domain.NotificationID, lastErr string) error {
	return s.update(ctx, `
		UPDATE minor_notifications
		SET attempts = attempts + 1, last_error = $2
		WHERE id = $1
	`, uuid.UUID(id), lastErr)
}

func (s *PostgresStore) update(ctx context.Context, query string, args ...any) error {
	result, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Acknowledge(ctx context.Context, id domain.NotificationID, at time.Time) (*minor.Notification, error) {
	return scanNotification(txcontext.Exec(ctx, s.db).QueryRowContext(ctx, `
		UPDATE minor_notifications
		SET acknowledged = TRUE, acknowledged_at = COALESCE(acknowledged_at, $2)
		WHERE id = $1
		RETURNING `+columns,
		uuid.UUID(id), at))
}

func (s *PostgresStore) List(ctx context.Context, filter minor.ListFilter) ([]*minor.Notification, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	return s.query(ctx, `
		SELECT `+columns+` FROM minor_notifications
		WHERE minor_account_id = $1 AND (NOT $2 OR NOT acknowledged)
		ORDER BY created_at DESC
		LIMIT $3
	`, uuid.UUID(filter.MinorAccountID), filter.UnreadOnly, limit)
}

func (s *PostgresStore) Undelivered(ctx context.Context, maxAttempts, limit int) ([]*minor.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.query(ctx, `
		SELECT `+columns+` FROM minor_notifications
		WHERE sent_at IS NULL AND NOT suppressed AND attempts < $1
		ORDER BY created_at
		LIMIT $2
	`, maxAttempts, limit)
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]*minor.Notification, error) {
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	out := make([]*minor.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}

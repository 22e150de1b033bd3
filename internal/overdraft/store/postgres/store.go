package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"guardrail/internal/overdraft"
	"guardrail/pkg/domain"
	"guardrail/pkg/platform/sentinel"
	txcontext "guardrail/pkg/platform/tx"
)

// Schema creates the request table. The partial unique index enforces one
// open request per account.
const Schema = `
CREATE TABLE IF NOT EXISTS overdraft_requests (
	id                UUID PRIMARY KEY,
	account_id        UUID NOT NULL,
	correlation_id    TEXT NOT NULL DEFAULT '',
	requested_amount  NUMERIC(18,2) NOT NULL,
	extension_amount  NUMERIC(18,2) NOT NULL,
	reason            TEXT NOT NULL DEFAULT '',
	state             TEXT NOT NULL,
	requested_at      TIMESTAMPTZ NOT NULL,
	review_deadline   TIMESTAMPTZ,
	decided_at        TIMESTAMPTZ,
	decided_by        TEXT NOT NULL DEFAULT '',
	decision_rule     TEXT NOT NULL DEFAULT '',
	decision_note     TEXT NOT NULL DEFAULT '',
	expires_at        TIMESTAMPTZ,
	consumed_amount   NUMERIC(18,2) NOT NULL DEFAULT 0,
	grant_ttl_seconds BIGINT NOT NULL DEFAULT 0,
	minor             BOOLEAN NOT NULL DEFAULT FALSE,
	simulated         BOOLEAN NOT NULL DEFAULT FALSE,
	policy_version    TEXT NOT NULL DEFAULT '',
	alert_level       TEXT NOT NULL DEFAULT '',
	alerted_at        TIMESTAMPTZ,
	updated_at        TIMESTAMPTZ NOT NULL
);
ALTER TABLE overdraft_requests ADD COLUMN IF NOT EXISTS alert_level TEXT NOT NULL DEFAULT '';
ALTER TABLE overdraft_requests ADD COLUMN IF NOT EXISTS alerted_at TIMESTAMPTZ;
CREATE UNIQUE INDEX IF NOT EXISTS uq_overdraft_requests_open
	ON overdraft_requests (account_id)
	WHERE state IN ('requested', 'under_review', 'approved', 'active');
CREATE INDEX IF NOT EXISTS idx_overdraft_requests_state ON overdraft_requests (state, requested_at);
`

const columns = `id, account_id, correlation_id, requested_amount, extension_amount, reason, state,
	requested_at, review_deadline, decided_at, decided_by, decision_rule, decision_note, expires_at,
	consumed_amount, grant_ttl_seconds, minor, simulated, policy_version, alert_level, alerted_at, updated_at`

type PostgresStore struct {
	db *sql.DB
}

func New(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func uniqueViolation(err error) bool {
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

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func (s *PostgresStore) Create(ctx context.Context, req *overdraft.Request) error {
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO overdraft_requests (`+columns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`,
		uuid.UUID(req.ID),
		uuid.UUID(req.AccountID),
		req.CorrelationID,
		req.RequestedAmount,
		req.ExtensionAmount,
		req.Reason,
		string(req.State),
		req.RequestedAt,
		nullTime(req.ReviewDeadline),
		nullTime(req.DecidedAt),
		req.DecidedBy,
		req.DecisionRule,
		req.DecisionNote,
		nullTime(req.ExpiresAt),
		req.ConsumedAmount,
		int64(req.GrantTTL.Seconds()),
		req.Minor,
		req.Simulated,
		req.PolicyVersion,
		string(req.AlertLevel),
		nullTime(req.AlertedAt),
		req.UpdatedAt,
	)
	if err != nil {
		if uniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert overdraft request: %w", err)
	}
	return nil
}

func scanRequest(row interface{ Scan(...any) error }) (*overdraft.Request, error) {
	var (
		req                                             overdraft.Request
		id, accountID                                   uuid.UUID
		state, alertLevel                               string
		reviewDeadline, decidedAt, expiresAt, alertedAt sql.NullTime
		grantTTLSeconds                                 int64
	)
	err := row.Scan(
		&id,
		&accountID,
		&req.CorrelationID,
		&req.RequestedAmount,
		&req.ExtensionAmount,
		&req.Reason,
		&state,
		&req.RequestedAt,
		&reviewDeadline,
		&decidedAt,
		&req.DecidedBy,
		&req.DecisionRule,
		&req.DecisionNote,
		&expiresAt,
		&req.ConsumedAmount,
		&grantTTLSeconds,
		&req.Minor,
		&req.Simulated,
		&req.PolicyVersion,
		&alertLevel,
		&alertedAt,
		&req.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan overdraft request: %w", err)
	}
	req.ID = domain.OverdraftRequestID(id)
	req.AccountID = domain.AccountID(accountID)
	req.State = overdraft.State(state)
	req.RequestedAt = req.RequestedAt.UTC()
	req.UpdatedAt = req.UpdatedAt.UTC()
	req.ReviewDeadline = timePtr(reviewDeadline)
	req.DecidedAt = timePtr(decidedAt)
	req.ExpiresAt = timePtr(expiresAt)
	req.AlertLevel = overdraft.AlertLevel(alertLevel)
	req.AlertedAt = timePtr(alertedAt)
	req.GrantTTL = time.Duration(grantTTLSeconds) * time.Second
	return &req, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.OverdraftRequestID) (*overdraft.Request, error) {
	return scanRequest(txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+columns+` FROM overdraft_requests WHERE id = $1`, uuid.UUID(id)))
}

func (s *PostgresStore) FindOpenByAccount(ctx context.Context, accountID domain.AccountID) (*overdraft.Request, error) {
	return scanRequest(txcontext.Exec(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+columns+` FROM overdraft_requests
		WHERE account_id = $1 AND state = ANY($2)
	`, uuid.UUID(accountID), pq.Array(stateStrings(overdraft.OpenStates))))
}

// Transition writes the mutable columns only while the row is still in from.
func (s *PostgresStore) Transition(ctx context.Context, req *overdraft.Request, from overdraft.State) error {
	result, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		UPDATE overdraft_requests SET
			state = $3,
			review_deadline = $4,
			decided_at = $5,
			decided_by = $6,
			decision_rule = $7,
			decision_note = $8,
			expires_at = $9,
			consumed_amount = $10,
			updated_at = $11
		WHERE id = $1 AND state = $2
	`,
		uuid.UUID(req.ID),
		string(from),
		string(req.State),
		nullTime(req.ReviewDeadline),
		nullTime(req.DecidedAt),
		req.DecidedBy,
		req.DecisionRule,
		req.DecisionNote,
		nullTime(req.ExpiresAt),
		req.ConsumedAmount,
		req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update overdraft request: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update overdraft request: %w", err)
	}
	if n == 0 {
		if _, findErr := s.FindByID(ctx, req.ID); errors.Is(findErr, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

// RecordAlert stores the last alert only while the request is active and
// its alert level is still from.
func (s *PostgresStore) RecordAlert(ctx context.Context, id domain.OverdraftRequestID, from, to overdraft.AlertLevel, at time.Time) error {
	result, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		UPDATE overdraft_requests SET alert_level = $3, alerted_at = $4
		WHERE id = $1 AND state = 'active' AND alert_level = $2
	`, uuid.UUID(id), string(from), string(to), at)
	if err != nil {
		return fmt.Errorf("record overdraft alert: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("record overdraft alert: %w", err)
	}
	if n == 0 {
		if _, findErr := s.FindByID(ctx, id); errors.Is(findErr, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter overdraft.ListFilter) ([]*overdraft.Request, error) {
	var (
		where []string
		args  []any
	)
	if !filter.AccountID.IsNil() {
		args = append(args, uuid.UUID(filter.AccountID))
		where = append(where, fmt.Sprintf("account_id = $%d", len(args)))
	}
	if len(filter.States) > 0 {
		args = append(args, pq.Array(stateStrings(filter.States)))
		where = append(where, fmt.Sprintf("state = ANY($%d)", len(args)))
	}
	query := `SELECT ` + columns + ` FROM overdraft_requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY requested_at`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list overdraft requests: %w", err)
	}
	defer rows.Close()

	var out []*overdraft.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate overdraft requests: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id domain.OverdraftRequestID) error {
	result, err := txcontext.Exec(ctx, s.db).ExecContext(ctx,
		`DELETE FROM overdraft_requests WHERE id = $1`, uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("delete overdraft request: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func stateStrings(states []overdraft.State) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"guardrail/pkg/domain"
	audit "guardrail/pkg/platform/audit"
	txcontext "guardrail/pkg/platform/tx"
)

// Schema creates the append-only audit table. The trigger rejects UPDATE and
// DELETE so the table cannot be rewritten through the application role.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	seq                  BIGINT PRIMARY KEY,
	entry_id             TEXT NOT NULL UNIQUE,
	ts                   TIMESTAMPTZ NOT NULL,
	account_id           UUID,
	subject_type         TEXT NOT NULL,
	action               TEXT NOT NULL,
	decision             TEXT NOT NULL DEFAULT '',
	reason               TEXT NOT NULL DEFAULT '',
	correlation_id       TEXT NOT NULL DEFAULT '',
	requested_amount     NUMERIC(18,2) NOT NULL DEFAULT 0,
	reserved_amount      NUMERIC(18,2) NOT NULL DEFAULT 0,
	headroom             NUMERIC(18,2) NOT NULL DEFAULT 0,
	policy_version       TEXT NOT NULL DEFAULT '',
	policy_hash          TEXT NOT NULL DEFAULT '',
	overdraft_request_id UUID,
	reservation_id       UUID,
	notification_id      UUID,
	actor                TEXT NOT NULL DEFAULT '',
	simulated            BOOLEAN NOT NULL DEFAULT FALSE,
	prev_hash            TEXT NOT NULL,
	hash                 TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_entries_ts ON audit_entries (ts, seq);
CREATE INDEX IF NOT EXISTS idx_audit_entries_account ON audit_entries (account_id, ts, seq);
CREATE INDEX IF NOT EXISTS idx_audit_entries_correlation ON audit_entries (correlation_id);

CREATE OR REPLACE FUNCTION audit_entries_immutable() RETURNS trigger AS $$
BEGIN
	RAISE EXCEPTION 'audit_entries is append-only';
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_audit_entries_immutable ON audit_entries;
CREATE TRIGGER trg_audit_entries_immutable
	BEFORE UPDATE OR DELETE ON audit_entries
	FOR EACH ROW EXECUTE FUNCTION audit_entries_immutable();
`

// appendLockKey is the advisory lock serializing chain appends across instances.
const appendLockKey int64 = 0x6775617264726c31

const entryColumns = `seq, entry_id, ts, account_id, subject_type, action, decision, reason,
	correlation_id, requested_amount, reserved_amount, headroom, policy_version, policy_hash,
	overdraft_request_id, reservation_id, notification_id, actor, simulated, prev_hash, hash`

// Store implements audit.Store on Postgres.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append links and inserts the entry under a transaction-scoped advisory lock.
// A transaction already carried by ctx is joined, so callers can make the
// audit write atomic with their own state change.
func (s *Store) Append(ctx context.Context, e audit.Entry, seal audit.SealFunc) (audit.Entry, error) {
	var sealed audit.Entry
	err := txcontext.Run(ctx, s.db, nil, func(ctx context.Context) error {
		exec := txcontext.Exec(ctx, s.db)
		if _, err := exec.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, appendLockKey); err != nil {
			return fmt.Errorf("lock audit chain: %w", err)
		}

		var (
			lastSeq  int64
			prevHash string
		)
		err := exec.QueryRowContext(ctx,
			`SELECT seq, hash FROM audit_entries ORDER BY seq DESC LIMIT 1`,
		).Scan(&lastSeq, &prevHash)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("read audit chain head: %w", err)
		}

		sealed = seal(prevHash, lastSeq+1, e)
		_, err = exec.ExecContext(ctx, `
			INSERT INTO audit_entries (`+entryColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		`,
			sealed.Seq,
			sealed.EntryID,
			sealed.Timestamp,
			nullUUID(uuid.UUID(sealed.AccountID)),
			string(sealed.SubjectType),
			string(sealed.Action),
			string(sealed.Decision),
			sealed.Reason,
			sealed.CorrelationID,
			sealed.RequestedAmount,
			sealed.ReservedAmount,
			sealed.Headroom,
			sealed.PolicyVersion,
			sealed.PolicyHash,
			nullUUID(uuid.UUID(sealed.OverdraftRequestID)),
			nullUUID(uuid.UUID(sealed.ReservationID)),
			nullUUID(uuid.UUID(sealed.NotificationID)),
			sealed.Actor,
			sealed.Simulated,
			sealed.PrevHash,
			sealed.Hash,
		)
		if err != nil {
			return fmt.Errorf("insert audit entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return audit.Entry{}, err
	}
	return sealed, nil
}

// Query pages through entries in (ts, seq) order using keyset pagination.
func (s *Store) Query(ctx context.Context, filter audit.Filter, page audit.PageRequest) (audit.Page, error) {
	page = page.Normalize()
	cursor, hasCursor, err := audit.ParseCursor(page.Cursor)
	if err != nil {
		return audit.Page{}, err
	}

	var (
		where []string
		args  []any
	)
	add := func(cond string, v ...any) {
		for _, value := range v {
			args = append(args, value)
			cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(args)), 1)
		}
		where = append(where, cond)
	}
	if !filter.AccountID.IsNil() {
		add("account_id = ?", uuid.UUID(filter.AccountID))
	}
	if filter.CorrelationID != "" {
		add("correlation_id = ?", filter.CorrelationID)
	}
	if filter.SubjectType != "" {
		add("subject_type = ?", string(filter.SubjectType))
	}
	if filter.Decision != audit.DecisionNone {
		add("decision = ?", string(filter.Decision))
	}
	if !filter.OverdraftRequestID.IsNil() {
		add("overdraft_request_id = ?", uuid.UUID(filter.OverdraftRequestID))
	}
	if !filter.From.IsZero() {
		add("ts >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		add("ts < ?", filter.To)
	}
	if hasCursor {
		add("(ts, seq) > (?, ?)", cursor.Timestamp, cursor.Seq)
	}

	query := `SELECT ` + entryColumns + ` FROM audit_entries`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, page.Limit+1)
	query += fmt.Sprintf(` ORDER BY ts, seq LIMIT $%d`, len(args))

	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return audit.Page{}, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return audit.Page{}, err
	}
	if len(entries) <= page.Limit {
		return audit.Page{Entries: entries}, nil
	}
	entries = entries[:page.Limit]
	return audit.Page{Entries: entries, NextCursor: audit.CursorOf(entries[len(entries)-1])}, nil
}

func (s *Store) Scan(ctx context.Context, afterSeq int64, limit int) ([]audit.Entry, error) {
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+entryColumns+` FROM audit_entries WHERE seq > $1 ORDER BY seq LIMIT $2`,
		afterSeq, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("scan audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]audit.Entry, error) {
	var entries []audit.Entry
	for rows.Next() {
		var (
			e                                     audit.Entry
			subjectType, action, decision         string
			accountID, requestID, resvID, notifID uuid.NullUUID
		)
		err := rows.Scan(
			&e.Seq,
			&e.EntryID,
			&e.Timestamp,
			&accountID,
			&subjectType,
			&action,
			&decision,
			&e.Reason,
			&e.CorrelationID,
			&e.RequestedAmount,
			&e.ReservedAmount,
			&e.Headroom,
			&e.PolicyVersion,
			&e.PolicyHash,
			&requestID,
			&resvID,
			&notifID,
			&e.Actor,
			&e.Simulated,
			&e.PrevHash,
			&e.Hash,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Timestamp = e.Timestamp.UTC()
		e.SubjectType = audit.SubjectType(subjectType)
		e.Action = audit.Action(action)
		e.Decision = audit.Decision(decision)
		e.AccountID = domain.AccountID(accountID.UUID)
		e.OverdraftRequestID = domain.OverdraftRequestID(requestID.UUID)
		e.ReservationID = domain.ReservationID(resvID.UUID)
		e.NotificationID = domain.NotificationID(notifID.UUID)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func nullUUID(u uuid.UUID) any {
	if u == uuid.Nil {
		return nil
	}
	return u
}

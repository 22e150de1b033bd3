// Package archive keeps closed usage periods in a local SQLite file once
// they leave the hot store.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"guardrail/internal/usage"
	"guardrail/pkg/domain"
)

const Schema = `
CREATE TABLE IF NOT EXISTS usage_archive (
	account_id        TEXT NOT NULL,
	period_key        TEXT NOT NULL,
	cumulative_amount TEXT NOT NULL,
	transaction_count INTEGER NOT NULL,
	last_updated_at   TIMESTAMP NOT NULL,
	archived_at       TIMESTAMP NOT NULL,
	PRIMARY KEY (account_id, period_key)
);
`

type SQLiteArchive struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteArchive, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// A single writer avoids SQLITE_BUSY between batches.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create archive schema: %w", err)
	}
	return &SQLiteArchive{db: db}, nil
}

// Put stores records, replacing any earlier copy of the same period.
func (a *SQLiteArchive) Put(ctx context.Context, records []usage.Record) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO usage_archive
		(account_id, period_key, cumulative_amount, transaction_count, last_updated_at, archived_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.AccountID.String(), r.PeriodKey, r.CumulativeAmount.StringFixed(domain.AmountScale),
			r.TransactionCount, r.LastUpdatedAt.UTC(), now,
		)
		if err != nil {
			return fmt.Errorf("archive %s %s: %w", r.AccountID, r.PeriodKey, err)
		}
	}
	return tx.Commit()
}

// ListByAccount returns the archived records of one account ordered by period.
func (a *SQLiteArchive) ListByAccount(ctx context.Context, accountID domain.AccountID) ([]usage.Record, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT account_id, period_key, cumulative_amount, transaction_count, last_updated_at
		FROM usage_archive WHERE account_id = ? ORDER BY period_key`, accountID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []usage.Record
	for rows.Next() {
		var (
			r      usage.Record
			id     string
			amount string
		)
		if err := rows.Scan(&id, &r.PeriodKey, &amount, &r.TransactionCount, &r.LastUpdatedAt); err != nil {
			return nil, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("corrupt archived account id: %w", err)
		}
		r.AccountID = domain.AccountID(parsed)
		if r.CumulativeAmount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("corrupt archived amount: %w", err)
		}
		r.LastUpdatedAt = r.LastUpdatedAt.UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}

func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}

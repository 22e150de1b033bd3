package postgres

import (
	"context"
	"database/sql"
	"time"

	dErrors "guardrail/pkg/domain-errors"
	txcontext "guardrail/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// TxRunner scopes a unit of work to one transaction carried in the context,
// so stores using txcontext.Exec join it.
type TxRunner struct {
	db      *sql.DB
	timeout time.Duration
}

func NewTxRunner(db *sql.DB) *TxRunner {
	return &TxRunner{db: db, timeout: defaultTxTimeout}
}

func (t *TxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	return txcontext.Run(ctx, t.db, nil, fn)
}

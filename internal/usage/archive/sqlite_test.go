package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardrail/internal/usage"
	"guardrail/pkg/domain"
)

func newTestArchive(t *testing.T) *SQLiteArchive {
	t.Helper()
	a, err := NewSQLite(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestSQLiteArchivePutAndList(t *testing.T) {
	t.Parallel()

	a := newTestArchive(t)
	ctx := context.Background()
	account := domain.AccountID(uuid.New())
	updated := time.Date(2026, 10, 18, 23, 59, 0, 0, time.UTC)

	records := []usage.Record{
		{AccountID: account, PeriodKey: "D:2026-10-18", CumulativeAmount: decimal.RequireFromString("120.50"), TransactionCount: 3, LastUpdatedAt: updated},
		{AccountID: account, PeriodKey: "D:2026-10-17", CumulativeAmount: decimal.RequireFromString("10"), TransactionCount: 1, LastUpdatedAt: updated},
	}
	require.NoError(t, a.Put(ctx, records))

	got, err := a.ListByAccount(ctx, account)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "D:2026-10-17", got[0].PeriodKey)
	assert.True(t, got[1].CumulativeAmount.Equal(decimal.RequireFromString("120.50")))
	assert.Equal(t, int64(3), got[1].TransactionCount)
	assert.True(t, got[1].LastUpdatedAt.Equal(updated))
}

func TestSQLiteArchivePutIsIdempotent(t *testing.T) {
	t.Parallel()

	a := newTestArchive(t)
	ctx := context.Background()
	account := domain.AccountID(uuid.New())
	rec := usage.Record{AccountID: account, PeriodKey: "M:2026-09", CumulativeAmount: decimal.NewFromInt(900), TransactionCount: 9, LastUpdatedAt: time.Now().UTC()}

	require.NoError(t, a.Put(ctx, []usage.Record{rec}))
	require.NoError(t, a.Put(ctx, []usage.Record{rec}))

	got, err := a.ListByAccount(ctx, account)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

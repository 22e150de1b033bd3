package policy

import (
	"time"

	"github.com/shopspring/decimal"

	"guardrail/internal/account"
)

// DefaultTable is the built-in table used when no policy directory is
// configured. Amounts are EUR.
func DefaultTable() *Table {
	d := decimal.NewFromInt
	return &Table{
		Version:     "builtin-1",
		PublishedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Currency:    "EUR",
		Tiers: map[account.RiskTier]TierLimits{
			account.TierLow: {
				DailyCap:             d(1000),
				PeriodCap:            d(10000),
				SingleTransactionCap: d(500),
				Overdraft: OverdraftTerms{
					Eligible:         true,
					MaxAmount:        d(1000),
					AutoApproveBelow: d(200),
					GrantTTL:         24 * time.Hour,
					ReviewTimeout:    48 * time.Hour,
				},
			},
			account.TierStandard: {
				DailyCap:             d(200),
				PeriodCap:            d(2000),
				SingleTransactionCap: d(100),
				Overdraft: OverdraftTerms{
					Eligible:         true,
					MaxAmount:        d(300),
					AutoApproveBelow: d(50),
					GrantTTL:         24 * time.Hour,
					ReviewTimeout:    48 * time.Hour,
				},
			},
			account.TierElevated: {
				DailyCap:             d(50),
				PeriodCap:            d(500),
				SingleTransactionCap: d(50),
			},
		},
		Minor: MinorLimits{
			DailyCap:             d(25),
			PeriodCap:            d(150),
			SingleTransactionCap: d(25),
			OverdraftMax:         d(25),
			ApproachingRatio:     decimal.RequireFromString("0.8"),
		},
		KYC:              KYCRules{UnverifiedRatio: decimal.RequireFromString("0.25")},
		OverdraftCeiling: d(2000),
	}
}

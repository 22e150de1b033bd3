package minor_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardrail/internal/account"
	"guardrail/internal/minor"
	"guardrail/internal/policy"
	"guardrail/pkg/domain"
	"guardrail/pkg/testutil"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newAccount(age account.AgeCategory, tier account.RiskTier) *account.Account {
	return &account.Account{
		ID:          domain.AccountID(uuid.New()),
		AgeCategory: age,
		KYCStatus:   account.KYCVerified,
		RiskTier:    tier,
		GuardianID:  domain.AccountID(uuid.New()),
	}
}

// Justification: Adjust is pure and money-relevant; "tightens only" must hold
// for every tier of the built-in table.
func TestAdjust(t *testing.T) {
	table := policy.DefaultTable()

	testutil.Given(t, "an adult account", func(t *testing.T) {
		adult := newAccount(account.AgeAdult, account.TierLow)
		profile, err := policy.Resolve(adult, table)
		require.NoError(t, err)

		testutil.Then(t, "the profile is unchanged", func(t *testing.T) {
			assert.Equal(t, profile, minor.Adjust(profile, adult, table.Minor))
		})
	})

	for _, tier := range []account.RiskTier{account.TierLow, account.TierStandard, account.TierElevated} {
		testutil.Given(t, "a minor in tier "+string(tier), func(t *testing.T) {
			kid := newAccount(account.AgeMinor, tier)
			adultProfile, err := policy.Resolve(newAccount(account.AgeAdult, tier), table)
			require.NoError(t, err)
			resolved, err := policy.Resolve(kid, table)
			require.NoError(t, err)

			adjusted := minor.Adjust(resolved, kid, table.Minor)

			testutil.Then(t, "no cap exceeds the adult cap", func(t *testing.T) {
				assert.True(t, adjusted.DailyCap.LessThanOrEqual(adultProfile.DailyCap))
				assert.True(t, adjusted.PeriodCap.LessThanOrEqual(adultProfile.PeriodCap))
				assert.True(t, adjusted.SingleTransactionCap.LessThanOrEqual(adultProfile.SingleTransactionCap))
				assert.True(t, adjusted.MinorDailyCap.LessThanOrEqual(adjusted.DailyCap))
			})

			testutil.Then(t, "the cap invariants still hold", func(t *testing.T) {
				assert.NoError(t, adjusted.Validate())
			})

			testutil.Then(t, "overdraft is bounded and never automatic", func(t *testing.T) {
				assert.True(t, adjusted.Overdraft.AutoApproveBelow.IsZero())
				if adjusted.Overdraft.Eligible {
					assert.True(t, adjusted.Overdraft.MaxAmount.LessThanOrEqual(adjusted.MinorDailyCap))
				}
			})
		})
	}

	testutil.Given(t, "a low tier minor on the built-in table", func(t *testing.T) {
		kid := newAccount(account.AgeMinor, account.TierLow)
		resolved, err := policy.Resolve(kid, table)
		require.NoError(t, err)
		adjusted := minor.Adjust(resolved, kid, table.Minor)

		testutil.Then(t, "the minor ceilings apply", func(t *testing.T) {
			assert.True(t, dec("25").Equal(adjusted.DailyCap))
			assert.True(t, dec("150").Equal(adjusted.PeriodCap))
			assert.True(t, dec("25").Equal(adjusted.SingleTransactionCap))
			assert.True(t, dec("25").Equal(adjusted.Overdraft.MaxAmount))
		})
	})

	testutil.Given(t, "a minor whose only ceiling is a period cap below the tier's daily cap", func(t *testing.T) {
		kid := newAccount(account.AgeMinor, account.TierStandard)
		profile := policy.Profile{
			DailyCap:             dec("500"),
			PeriodCap:            dec("5000"),
			SingleTransactionCap: dec("200"),
		}
		adjusted := minor.Adjust(profile, kid, policy.MinorLimits{PeriodCap: dec("100")})

		testutil.Then(t, "the tightened daily cap also bounds a single transaction", func(t *testing.T) {
			assert.True(t, dec("100").Equal(adjusted.PeriodCap))
			assert.True(t, dec("100").Equal(adjusted.DailyCap))
			assert.True(t, dec("100").Equal(adjusted.SingleTransactionCap))
			assert.NoError(t, adjusted.Validate())
		})
	})
}

func TestTriggerFor(t *testing.T) {
	minorCap := dec("25")
	tests := []struct {
		name    string
		ev      minor.Event
		want    minor.Trigger
		trigger bool
	}{
		{"limit reached", minor.Event{Outcome: minor.OutcomeLimitReached}, minor.TriggerLimitReached, true},
		{"overdraft requested", minor.Event{Outcome: minor.OutcomeOverdraftRequested}, minor.TriggerOverdraftRequested, true},
		{"overdraft denied", minor.Event{Outcome: minor.OutcomeOverdraftDenied}, minor.TriggerOverdraftDenied, true},
		{"extension running low", minor.Event{Outcome: minor.OutcomeLimitApproaching}, minor.TriggerLimitApproaching, true},
		{"allow below threshold", minor.Event{Outcome: minor.OutcomeAllowed, DayUsed: dec("19.99"), MinorDailyCap: minorCap}, "", false},
		{"allow at threshold", minor.Event{Outcome: minor.OutcomeAllowed, DayUsed: dec("20"), MinorDailyCap: minorCap}, minor.TriggerLimitApproaching, true},
		{"custom ratio", minor.Event{Outcome: minor.OutcomeAllowed, DayUsed: dec("15"), MinorDailyCap: minorCap, ApproachingRatio: dec("0.5")}, minor.TriggerLimitApproaching, true},
		{"no minor cap", minor.Event{Outcome: minor.OutcomeAllowed, DayUsed: dec("100")}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := minor.TriggerFor(tt.ev)
			assert.Equal(t, tt.trigger, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

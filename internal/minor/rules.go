// Package minor applies the stricter limits for underage accounts and keeps
// their guardians informed about limit decisions.
package minor

import (
	"github.com/shopspring/decimal"

	"guardrail/internal/account"
	"guardrail/internal/policy"
	"guardrail/pkg/domain"
)

// Adjust tightens a resolved profile for a minor account. It never loosens a
// limit: every cap becomes the smaller of the adult and minor value, the
// overdraft maximum is bounded by the minor daily cap and automatic
// approval is switched off. Adult accounts are returned unchanged.
func Adjust(p policy.Profile, a *account.Account, limits policy.MinorLimits) policy.Profile {
	if a == nil || !a.IsMinor() {
		return p
	}
	p.Minor = true

	p.DailyCap = minPositive(p.DailyCap, limits.DailyCap)
	p.PeriodCap = minPositive(p.PeriodCap, limits.PeriodCap)
	p.SingleTransactionCap = minPositive(p.SingleTransactionCap, limits.SingleTransactionCap)
	// Keep single <= daily <= period after mixing two tables.
	p.DailyCap = domain.MinDecimal(p.DailyCap, p.PeriodCap)
	p.SingleTransactionCap = domain.MinDecimal(p.SingleTransactionCap, p.DailyCap)

	if p.MinorDailyCap.IsZero() || p.MinorDailyCap.GreaterThan(p.DailyCap) {
		p.MinorDailyCap = p.DailyCap
	}
	if p.ApproachingRatio.IsZero() {
		p.ApproachingRatio = limits.ApproachingRatio
	}

	if p.Overdraft.Eligible {
		maxAmount := domain.MinDecimal(p.Overdraft.MaxAmount, p.MinorDailyCap)
		if limits.OverdraftMax.IsPositive() {
			maxAmount = domain.MinDecimal(maxAmount, limits.OverdraftMax)
		}
		p.Overdraft.MaxAmount = maxAmount
		p.Overdraft.Eligible = maxAmount.IsPositive()
	}
	p.Overdraft.AutoApproveBelow = decimal.Zero
	return p
}

// minPositive treats an unset (zero) minor ceiling as "no ceiling".
func minPositive(adult, minor decimal.Decimal) decimal.Decimal {
	if !minor.IsPositive() {
		return adult
	}
	return domain.MinDecimal(adult, minor)
}

package policy

import (
	"github.com/shopspring/decimal"

	"guardrail/internal/account"
	"guardrail/pkg/domain"
	dErrors "guardrail/pkg/domain-errors"
)

// Profile is the resolved set of limits for one account at one point in time.
// It is derived on every evaluation and never persisted.
type Profile struct {
	PolicyVersion string
	PolicyHash    string

	DailyCap             decimal.Decimal
	PeriodCap            decimal.Decimal
	SingleTransactionCap decimal.Decimal

	// Minor is set for minor accounts; MinorDailyCap only applies then.
	Minor            bool
	MinorDailyCap    decimal.Decimal
	ApproachingRatio decimal.Decimal

	Overdraft OverdraftTerms
}

// Validate checks singleTransactionCap <= dailyCap <= periodCap and, for
// minors, minorDailyCap <= dailyCap.
func (p Profile) Validate() error {
	if err := checkCaps(p.SingleTransactionCap, p.DailyCap, p.PeriodCap); err != nil {
		return err
	}
	if p.Minor && p.MinorDailyCap.GreaterThan(p.DailyCap) {
		return dErrors.New(dErrors.CodeInvariantViolation, "minor daily cap exceeds daily cap")
	}
	return nil
}

// Resolve computes the limit profile for an account under table. It performs
// no I/O and never defaults a missing attribute.
func Resolve(a *account.Account, t *Table) (Profile, error) {
	if a == nil {
		return Profile{}, dErrors.New(dErrors.CodePolicyResolution, "account is missing")
	}
	if t == nil {
		return Profile{}, dErrors.New(dErrors.CodePolicyResolution, "no policy table")
	}
	if err := a.Validate(); err != nil {
		return Profile{}, err
	}
	tier, ok := t.Tiers[a.RiskTier]
	if !ok {
		return Profile{}, dErrors.New(dErrors.CodePolicyResolution,
			"policy "+t.Version+" has no limits for tier "+string(a.RiskTier))
	}

	p := Profile{
		PolicyVersion:        t.Version,
		PolicyHash:           t.Hash(),
		DailyCap:             tier.DailyCap,
		PeriodCap:            tier.PeriodCap,
		SingleTransactionCap: tier.SingleTransactionCap,
		Overdraft:            tier.Overdraft,
		ApproachingRatio:     t.Minor.ApproachingRatio,
	}

	switch a.KYCStatus {
	case account.KYCVerified:
	case account.KYCUnverified, account.KYCPending:
		ratio := t.KYC.UnverifiedRatio
		p.DailyCap = p.DailyCap.Mul(ratio).Truncate(domain.AmountScale)
		p.PeriodCap = p.PeriodCap.Mul(ratio).Truncate(domain.AmountScale)
		p.SingleTransactionCap = p.SingleTransactionCap.Mul(ratio).Truncate(domain.AmountScale)
		p.Overdraft = OverdraftTerms{}
	case account.KYCRejected:
		p.DailyCap = decimal.Zero
		p.PeriodCap = decimal.Zero
		p.SingleTransactionCap = decimal.Zero
		p.Overdraft = OverdraftTerms{}
	}

	if p.Overdraft.Eligible {
		maxAmount := domain.MinDecimal(p.Overdraft.MaxAmount, p.DailyCap.Mul(decimal.NewFromInt(2)))
		if t.OverdraftCeiling.IsPositive() {
			maxAmount = domain.MinDecimal(maxAmount, t.OverdraftCeiling)
		}
		p.Overdraft.MaxAmount = maxAmount
		p.Overdraft.Eligible = maxAmount.IsPositive()
	}

	if a.IsMinor() {
		p.Minor = true
		p.MinorDailyCap = domain.MinDecimal(t.Minor.DailyCap, p.DailyCap)
	}

	if err := p.Validate(); err != nil {
		return Profile{}, dErrors.Wrap(err, dErrors.CodePolicyResolution, "resolved profile violates cap invariants")
	}
	return p, nil
}

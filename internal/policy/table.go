// Package policy resolves account attributes into limit profiles against an
// explicitly versioned, immutable policy table.
package policy

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"

	"guardrail/internal/account"
	dErrors "guardrail/pkg/domain-errors"
)

// OverdraftTerms governs temporary limit extensions for a tier.
type OverdraftTerms struct {
	Eligible         bool            `yaml:"eligible" json:"eligible"`
	MaxAmount        decimal.Decimal `yaml:"max_amount" json:"max_amount"`
	AutoApproveBelow decimal.Decimal `yaml:"auto_approve_below" json:"auto_approve_below"`
	GrantTTL         time.Duration   `yaml:"grant_ttl" json:"grant_ttl"`
	ReviewTimeout    time.Duration   `yaml:"review_timeout" json:"review_timeout"`
}

// TierLimits are the adult limits for one risk tier.
type TierLimits struct {
	DailyCap             decimal.Decimal `yaml:"daily_cap" json:"daily_cap"`
	PeriodCap            decimal.Decimal `yaml:"period_cap" json:"period_cap"`
	SingleTransactionCap decimal.Decimal `yaml:"single_transaction_cap" json:"single_transaction_cap"`
	Overdraft            OverdraftTerms  `yaml:"overdraft" json:"overdraft"`
}

// MinorLimits are absolute ceilings applied on top of the tier for minors.
type MinorLimits struct {
	DailyCap             decimal.Decimal `yaml:"daily_cap" json:"daily_cap"`
	PeriodCap            decimal.Decimal `yaml:"period_cap" json:"period_cap"`
	SingleTransactionCap decimal.Decimal `yaml:"single_transaction_cap" json:"single_transaction_cap"`
	OverdraftMax         decimal.Decimal `yaml:"overdraft_max" json:"overdraft_max"`
	ApproachingRatio     decimal.Decimal `yaml:"approaching_ratio" json:"approaching_ratio"`
}

// KYCRules scales limits for accounts that are not fully verified.
type KYCRules struct {
	UnverifiedRatio decimal.Decimal `yaml:"unverified_ratio" json:"unverified_ratio"`
}

// Table is one published policy version. A published table is never edited;
// a change is a new version.
type Table struct {
	Version          string                         `yaml:"version" json:"version"`
	PublishedAt      time.Time                      `yaml:"published_at" json:"published_at"`
	Currency         string                         `yaml:"currency" json:"currency"`
	Tiers            map[account.RiskTier]TierLimits `yaml:"tiers" json:"tiers"`
	Minor            MinorLimits                    `yaml:"minor" json:"minor"`
	KYC              KYCRules                       `yaml:"kyc" json:"kyc"`
	OverdraftCeiling decimal.Decimal                `yaml:"overdraft_ceiling" json:"overdraft_ceiling"`

	hash string
}

// Hash is the snapshot hash recorded on every audit entry derived from this table.
func (t *Table) Hash() string {
	return t.hash
}

func (t *Table) computeHash() (string, error) {
	// encoding/json sorts map keys, which makes the encoding canonical.
	raw, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("encode policy table: %w", err)
	}
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Clone returns a deep copy so callers cannot mutate a published table.
func (t *Table) Clone() *Table {
	c := *t
	c.Tiers = maps.Clone(t.Tiers)
	return &c
}

// Validate checks the table against the cap invariants for every tier and
// for the minor overlay.
func (t *Table) Validate() error {
	if t.Version == "" {
		return dErrors.New(dErrors.CodeValidation, "policy version is required")
	}
	if len(t.Tiers) == 0 {
		return dErrors.New(dErrors.CodeValidation, "policy "+t.Version+" defines no tiers")
	}
	for tier, limits := range t.Tiers {
		if !tier.IsValid() {
			return dErrors.New(dErrors.CodeValidation, "policy "+t.Version+" has unknown tier "+string(tier))
		}
		if err := checkCaps(limits.SingleTransactionCap, limits.DailyCap, limits.PeriodCap); err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, "tier "+string(tier))
		}
		if limits.Overdraft.Eligible && limits.Overdraft.GrantTTL <= 0 {
			return dErrors.New(dErrors.CodeValidation, "tier "+string(tier)+" overdraft requires grant_ttl")
		}
	}
	if err := checkCaps(t.Minor.SingleTransactionCap, t.Minor.DailyCap, t.Minor.PeriodCap); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "minor limits")
	}
	if t.KYC.UnverifiedRatio.IsNegative() || t.KYC.UnverifiedRatio.GreaterThan(decimal.NewFromInt(1)) {
		return dErrors.New(dErrors.CodeValidation, "kyc unverified_ratio must be within [0, 1]")
	}
	if t.OverdraftCeiling.IsNegative() {
		return dErrors.New(dErrors.CodeValidation, "overdraft_ceiling must not be negative")
	}
	return nil
}

func checkCaps(single, daily, period decimal.Decimal) error {
	if single.IsNegative() || daily.IsNegative() || period.IsNegative() {
		return dErrors.New(dErrors.CodeInvariantViolation, "caps must not be negative")
	}
	if single.GreaterThan(daily) {
		return dErrors.New(dErrors.CodeInvariantViolation, "single transaction cap exceeds daily cap")
	}
	if daily.GreaterThan(period) {
		return dErrors.New(dErrors.CodeInvariantViolation, "daily cap exceeds period cap")
	}
	return nil
}

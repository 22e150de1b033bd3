// Package account holds the read-only view of platform accounts that the
// guardrail engine consumes. Accounts are owned by the identity subsystem.
package account

import (
	"guardrail/pkg/domain"
	dErrors "guardrail/pkg/domain-errors"
)

type AgeCategory string

const (
	AgeMinor AgeCategory = "minor"
	AgeAdult AgeCategory = "adult"
)

type KYCStatus string

const (
	KYCUnverified KYCStatus = "unverified"
	KYCPending    KYCStatus = "pending"
	KYCVerified   KYCStatus = "verified"
	KYCRejected   KYCStatus = "rejected"
)

type RiskTier string

const (
	TierLow      RiskTier = "low"
	TierStandard RiskTier = "standard"
	TierElevated RiskTier = "elevated"
)

func (a AgeCategory) IsValid() bool {
	return a == AgeMinor || a == AgeAdult
}

func (k KYCStatus) IsValid() bool {
	switch k {
	case KYCUnverified, KYCPending, KYCVerified, KYCRejected:
		return true
	}
	return false
}

func (t RiskTier) IsValid() bool {
	switch t {
	case TierLow, TierStandard, TierElevated:
		return true
	}
	return false
}

// Account is the engine's read-only reference to a platform account.
//
// Invariants checked by Validate:
//   - ID is non-nil
//   - AgeCategory, KYCStatus and RiskTier are known values
//
// Simulated accounts run through the same limit logic but never trigger
// outbound notification delivery.
type Account struct {
	ID          domain.AccountID `json:"id"`
	AgeCategory AgeCategory      `json:"age_category"`
	KYCStatus   KYCStatus        `json:"kyc_status"`
	RiskTier    RiskTier         `json:"risk_tier"`
	Simulated   bool             `json:"simulated"`
	GuardianID  domain.AccountID `json:"guardian_id"`
}

func (a *Account) IsMinor() bool {
	return a.AgeCategory == AgeMinor
}

func (a *Account) HasGuardian() bool {
	return !a.GuardianID.IsNil()
}

// Validate rejects accounts whose attributes cannot be resolved into limits.
// Missing attributes are never defaulted.
func (a *Account) Validate() error {
	switch {
	case a.ID.IsNil():
		return dErrors.New(dErrors.CodePolicyResolution, "account id is missing")
	case !a.AgeCategory.IsValid():
		return dErrors.New(dErrors.CodePolicyResolution, "unknown age category: "+string(a.AgeCategory))
	case !a.KYCStatus.IsValid():
		return dErrors.New(dErrors.CodePolicyResolution, "unknown kyc status: "+string(a.KYCStatus))
	case !a.RiskTier.IsValid():
		return dErrors.New(dErrors.CodePolicyResolution, "unknown risk tier: "+string(a.RiskTier))
	}
	return nil
}

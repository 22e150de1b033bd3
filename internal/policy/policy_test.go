package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"guardrail/internal/account"
	"guardrail/pkg/domain"
	dErrors "guardrail/pkg/domain-errors"
)

type PolicySuite struct {
	suite.Suite
	registry *Registry
	table    *Table
}

func TestPolicySuite(t *testing.T) {
	suite.Run(t, new(PolicySuite))
}

func (s *PolicySuite) SetupTest() {
	s.registry = NewRegistry()
	s.Require().NoError(s.registry.Publish(DefaultTable()))
	var err error
	s.table, err = s.registry.Current()
	s.Require().NoError(err)
}

func newAccount(age account.AgeCategory, kyc account.KYCStatus, tier account.RiskTier) *account.Account {
	return &account.Account{
		ID:          domain.AccountID(uuid.New()),
		AgeCategory: age,
		KYCStatus:   kyc,
		RiskTier:    tier,
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// =============================================================================
// Resolve
// =============================================================================

func (s *PolicySuite) TestResolve() {
	s.Run("verified adult gets tier limits and snapshot hash", func() {
		p, err := Resolve(newAccount(account.AgeAdult, account.KYCVerified, account.TierStandard), s.table)
		s.Require().NoError(err)
		s.True(p.DailyCap.Equal(dec("200")))
		s.True(p.PeriodCap.Equal(dec("2000")))
		s.True(p.SingleTransactionCap.Equal(dec("100")))
		s.Equal("builtin-1", p.PolicyVersion)
		s.Len(p.PolicyHash, 64)
		s.False(p.Minor)
		s.True(p.Overdraft.Eligible)
	})

	s.Run("overdraft max is capped at twice the daily cap", func() {
		p, err := Resolve(newAccount(account.AgeAdult, account.KYCVerified, account.TierStandard), s.table)
		s.Require().NoError(err)
		s.True(p.Overdraft.MaxAmount.Equal(dec("300")))

		low, err := Resolve(newAccount(account.AgeAdult, account.KYCVerified, account.TierLow), s.table)
		s.Require().NoError(err)
		s.True(low.Overdraft.MaxAmount.Equal(dec("1000")))
	})

	s.Run("unverified kyc scales caps and removes overdraft", func() {
		p, err := Resolve(newAccount(account.AgeAdult, account.KYCPending, account.TierStandard), s.table)
		s.Require().NoError(err)
		s.True(p.DailyCap.Equal(dec("50")))
		s.True(p.SingleTransactionCap.Equal(dec("25")))
		s.False(p.Overdraft.Eligible)
	})

	s.Run("rejected kyc resolves to zero caps", func() {
		p, err := Resolve(newAccount(account.AgeAdult, account.KYCRejected, account.TierLow), s.table)
		s.Require().NoError(err)
		s.True(p.DailyCap.IsZero())
		s.False(p.Overdraft.Eligible)
	})

	s.Run("minor carries minorDailyCap below dailyCap", func() {
		p, err := Resolve(newAccount(account.AgeMinor, account.KYCVerified, account.TierStandard), s.table)
		s.Require().NoError(err)
		s.True(p.Minor)
		s.True(p.MinorDailyCap.Equal(dec("25")))
		s.True(p.MinorDailyCap.LessThanOrEqual(p.DailyCap))
	})

	s.Run("unknown attributes fail instead of defaulting", func() {
		a := newAccount(account.AgeAdult, account.KYCVerified, "platinum")
		_, err := Resolve(a, s.table)
		s.True(dErrors.HasCode(err, dErrors.CodePolicyResolution))

		_, err = Resolve(newAccount("", account.KYCVerified, account.TierLow), s.table)
		s.True(dErrors.HasCode(err, dErrors.CodePolicyResolution))

		_, err = Resolve(nil, s.table)
		s.True(dErrors.HasCode(err, dErrors.CodePolicyResolution))

		_, err = Resolve(newAccount(account.AgeAdult, account.KYCVerified, account.TierLow), nil)
		s.True(dErrors.HasCode(err, dErrors.CodePolicyResolution))
	})

	s.Run("tier missing from table fails resolution", func() {
		t := DefaultTable()
		t.Version = "no-elevated"
		delete(t.Tiers, account.TierElevated)
		s.Require().NoError(s.registry.Publish(t))
		current, err := s.registry.Version("no-elevated")
		s.Require().NoError(err)

		_, err = Resolve(newAccount(account.AgeAdult, account.KYCVerified, account.TierElevated), current)
		s.True(dErrors.HasCode(err, dErrors.CodePolicyResolution))
	})
}

// =============================================================================
// Registry immutability
// =============================================================================

func (s *PolicySuite) TestRegistry() {
	s.Run("republishing a version is rejected", func() {
		err := s.registry.Publish(DefaultTable())
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("callers cannot mutate a published table", func() {
		t, err := s.registry.Current()
		s.Require().NoError(err)
		t.Tiers[account.TierLow] = TierLimits{}

		again, err := s.registry.Current()
		s.Require().NoError(err)
		s.True(again.Tiers[account.TierLow].DailyCap.Equal(dec("1000")))
		s.Equal(t.Hash(), again.Hash())
	})

	s.Run("latest publication becomes current", func() {
		next := DefaultTable()
		next.Version = "builtin-2"
		next.PublishedAt = next.PublishedAt.Add(24 * time.Hour)
		s.Require().NoError(s.registry.Publish(next))

		current, err := s.registry.Current()
		s.Require().NoError(err)
		s.Equal("builtin-2", current.Version)
		s.NotEqual(s.table.Hash(), current.Hash())
	})

	s.Run("tables violating cap ordering are refused", func() {
		bad := DefaultTable()
		bad.Version = "bad"
		low := bad.Tiers[account.TierLow]
		low.SingleTransactionCap = dec("5000")
		bad.Tiers[account.TierLow] = low
		s.Error(s.registry.Publish(bad))
	})
}

// TestMinorNeverExceedsAdult checks, for every tier and KYC status, that the
// minor effective daily cap never exceeds the adult daily cap.
func TestMinorNeverExceedsAdult(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Publish(DefaultTable()))
	table, err := reg.Current()
	require.NoError(t, err)

	for _, tier := range []account.RiskTier{account.TierLow, account.TierStandard, account.TierElevated} {
		for _, kyc := range []account.KYCStatus{account.KYCVerified, account.KYCPending, account.KYCUnverified, account.KYCRejected} {
			adult, err := Resolve(newAccount(account.AgeAdult, kyc, tier), table)
			require.NoError(t, err)
			minor, err := Resolve(newAccount(account.AgeMinor, kyc, tier), table)
			require.NoError(t, err)
			assert.True(t, minor.MinorDailyCap.LessThanOrEqual(adult.DailyCap), "%s/%s", tier, kyc)
		}
	}
}

func TestLoadDir(t *testing.T) {
	reg, err := LoadDir(filepath.Join("..", "..", "configs", "policies"))
	require.NoError(t, err)
	table, err := reg.Current()
	require.NoError(t, err)
	assert.Equal(t, "2026-10", table.Version)
	assert.True(t, table.Tiers[account.TierStandard].DailyCap.Equal(dec("200")))
	assert.Equal(t, 24*time.Hour, table.Tiers[account.TierStandard].Overdraft.GrantTTL)
	assert.True(t, table.Minor.ApproachingRatio.Equal(dec("0.8")))
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "typo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: x\ndaily_capp: 5\n"), 0o600))
	_, err := LoadFile(path)
	assert.Error(t, err)
}

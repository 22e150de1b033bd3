package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"guardrail/pkg/domain"
	"guardrail/pkg/platform/sentinel"
)

// Schema is the projection of identity-owned account attributes the engine reads.
// The identity subsystem keeps it populated; the engine never writes it.
const Schema = `
CREATE TABLE IF NOT EXISTS guardrail_accounts (
	id           UUID PRIMARY KEY,
	age_category TEXT NOT NULL,
	kyc_status   TEXT NOT NULL,
	risk_tier    TEXT NOT NULL,
	simulated    BOOLEAN NOT NULL DEFAULT FALSE,
	guardian_id  UUID
);
`

// PostgresDirectory reads account snapshots from the identity projection.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (s *PostgresDirectory) FindByID(ctx context.Context, id domain.AccountID) (*Account, error) {
	var (
		a          Account
		age        string
		kyc        string
		tier       string
		guardianID uuid.NullUUID
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, age_category, kyc_status, risk_tier, simulated, guardian_id
		FROM guardrail_accounts
		WHERE id = $1
	`, uuid.UUID(id)).Scan((*uuid.UUID)(&a.ID), &age, &kyc, &tier, &a.Simulated, &guardianID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	a.AgeCategory = AgeCategory(age)
	a.KYCStatus = KYCStatus(kyc)
	a.RiskTier = RiskTier(tier)
	a.GuardianID = domain.AccountID(guardianID.UUID)
	return &a, nil
}

// Upsert writes a projection row. Used by seeding and integration tests.
func (s *PostgresDirectory) Upsert(ctx context.Context, a Account) error {
	var guardian any
	if a.HasGuardian() {
		guardian = uuid.UUID(a.GuardianID)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guardrail_accounts (id, age_category, kyc_status, risk_tier, simulated, guardian_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			age_category = EXCLUDED.age_category,
			kyc_status = EXCLUDED.kyc_status,
			risk_tier = EXCLUDED.risk_tier,
			simulated = EXCLUDED.simulated,
			guardian_id = EXCLUDED.guardian_id
	`, uuid.UUID(a.ID), string(a.AgeCategory), string(a.KYCStatus), string(a.RiskTier), a.Simulated, guardian)
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

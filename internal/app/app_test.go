package app

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardrail/internal/platform/config"
	"guardrail/internal/platform/logger"
	"guardrail/pkg/domain"
	dErrors "guardrail/pkg/domain-errors"
	audit "guardrail/pkg/platform/audit"
)

func memoryConfig() config.Server {
	return config.Server{
		Backend:               config.BackendMemory,
		AuditChainKey:         "test-chain-key",
		NotificationQueueSize: 8,
	}
}

func TestBuild_MemoryBackend(t *testing.T) {
	ctx := context.Background()
	a, err := Build(ctx, memoryConfig(), logger.NewWithWriter(io.Discard, "error"))
	require.NoError(t, err)
	defer a.Close()

	current, err := a.Policies.Current()
	require.NoError(t, err)
	assert.Equal(t, "builtin-1", current.Version)

	// An empty directory cannot resolve the account; the refusal is audited.
	unknown := domain.AccountID(uuid.New())
	_, err = a.Engine.Evaluate(ctx, unknown, decimal.NewFromInt(10), "corr-wiring")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodePolicyResolution))

	page, err := a.Trail.Query(ctx, audit.Filter{CorrelationID: "corr-wiring"}, audit.PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, audit.DecisionDeny, page.Entries[0].Decision)

	result, err := a.Trail.Verify(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Verified)
}

func TestBuild_UnknownBackend(t *testing.T) {
	cfg := memoryConfig()
	cfg.Backend = "etcd"
	_, err := Build(context.Background(), cfg, logger.NewWithWriter(io.Discard, "error"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")
}

func TestLoadPolicies(t *testing.T) {
	t.Run("built-in table when no directory", func(t *testing.T) {
		reg, err := LoadPolicies("")
		require.NoError(t, err)
		assert.Equal(t, []string{"builtin-1"}, reg.Versions())
	})

	t.Run("shipped directory", func(t *testing.T) {
		reg, err := LoadPolicies("../../configs/policies")
		require.NoError(t, err)
		assert.Contains(t, reg.Versions(), "2026-10")
	})
}

func TestHealth_MemoryBackendHasNothingToPing(t *testing.T) {
	a, err := Build(context.Background(), memoryConfig(), logger.NewWithWriter(io.Discard, "error"))
	require.NoError(t, err)
	defer a.Close()
	assert.NoError(t, a.Health(context.Background()))
}

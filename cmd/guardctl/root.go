package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"guardrail/internal/app"
	"guardrail/internal/platform/config"
	"guardrail/internal/platform/logger"
)

// rootConfig carries the settings every subcommand shares.
type rootConfig struct {
	cfg      config.Server
	logLevel string
}

func (rc *rootConfig) logger() *slog.Logger {
	return logger.NewWithWriter(os.Stderr, rc.logLevel)
}

// open builds the engine against the configured backends. Subcommands that
// only read policy files never call it.
func (rc *rootConfig) open(ctx context.Context) (*app.App, error) {
	return app.Build(ctx, rc.cfg, rc.logger())
}

func newRootCmd() *cobra.Command {
	rc := &rootConfig{cfg: config.FromEnv()}

	cmd := &cobra.Command{
		Use:           "guardctl",
		Short:         "Operate the spending guardrail: audit export, chain verification, sweeps and policy checks",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&rc.logLevel, "log-level", "warn", "log level for engine diagnostics written to stderr")
	cmd.PersistentFlags().StringVar(&rc.cfg.Backend, "backend", rc.cfg.Backend, "storage backend (memory, postgres, redis)")
	cmd.PersistentFlags().StringVar(&rc.cfg.PostgresDSN, "postgres-dsn", rc.cfg.PostgresDSN, "Postgres connection string")
	cmd.PersistentFlags().StringVar(&rc.cfg.PolicyDir, "policy-dir", rc.cfg.PolicyDir, "directory of policy tables")

	// guardctl never delivers notifications itself.
	rc.cfg.Kafka.Brokers = nil

	cmd.AddCommand(
		newAuditCmd(rc),
		newSweepCmd(rc),
		newPolicyCmd(rc),
	)
	return cmd
}

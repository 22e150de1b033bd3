package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newSweepCmd(rc *rootConfig) *cobra.Command {
	var atStr string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire lapsed overdraft grants, raise alerts, retry activations and auto-deny stale reviews once",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now().UTC()
			if atStr != "" {
				t, err := parseTime(atStr)
				if err != nil {
					return fmt.Errorf("bad --at: %w", err)
				}
				now = t
			}

			ctx := cmd.Context()
			a, err := rc.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Workflow.Sweep(ctx, now)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d, auto-denied %d, activated %d, alerts %d\n",
				result.Expired, result.AutoDenied, result.Activated, result.Alerts)
			return nil
		},
	}
	cmd.Flags().StringVar(&atStr, "at", "", "sweep as of this RFC3339 instant (default now)")
	return cmd
}

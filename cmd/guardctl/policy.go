package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"guardrail/internal/app"
	"guardrail/internal/policy"
)

func newPolicyCmd(rc *rootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Check and inspect policy tables",
	}
	cmd.AddCommand(
		newPolicyValidateCmd(),
		newPolicyShowCmd(rc),
	)
	return cmd
}

func newPolicyValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Parse and validate policy files without publishing them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed int
			for _, path := range args {
				t, err := policy.LoadFile(path)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "FAIL %v\n", err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok   %s version=%s hash=%s\n", path, t.Version, t.Hash())
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d policy files invalid", failed, len(args))
			}
			return nil
		},
	}
}

func newPolicyShowCmd(rc *rootConfig) *cobra.Command {
	var version string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the current (or a named) policy table as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := app.LoadPolicies(rc.cfg.PolicyDir)
			if err != nil {
				return err
			}
			var t *policy.Table
			if version == "" {
				t, err = reg.Current()
			} else {
				t, err = reg.Version(version)
			}
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(t); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "policy version to print (default current)")
	return cmd
}

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"olcsync/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, credentials, the site and object storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			results := preflight.RunAll(cmd.Context(), cfg, offline)
			for _, line := range renderSectionHeader("olcsync doctor", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, r := range results {
				fmt.Fprintln(out, renderCheck(r, colorize))
			}
			if offline {
				fmt.Fprintln(out, renderStatusLine("Network checks", statusWarn, "skipped (--offline)", colorize))
			}
			fmt.Fprintln(out, renderCheckSummary(results))
			if preflight.Failed(results) {
				return errors.New("one or more checks failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip checks that need the network")
	return cmd
}

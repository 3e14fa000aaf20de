package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"olcsync/internal/state"
)

func newStateCommand(ctx *commandContext) *cobra.Command {
	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and maintain the processing ledger",
	}
	stateCmd.AddCommand(newStateShowCommand(ctx))
	stateCmd.AddCommand(newStateResetCommand(ctx))
	stateCmd.AddCommand(newStateInitCommand(ctx))
	return stateCmd
}

func newStateShowCommand(ctx *commandContext) *cobra.Command {
	var scope scopeFlags
	var limit int

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Summarize the ledger and its most recent dates",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := scope.key()
			if err != nil {
				return err
			}
			cfg, logger, err := ctx.setup()
			if err != nil {
				return err
			}
			ledger, err := state.Open(cfg.StatePath(key), key, state.WithLogger(logger))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			sum := ledger.Summary()
			for _, line := range renderSectionHeader("State for "+key, colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintf(out, "File:            %s\n", ledger.Path())
			fmt.Fprintf(out, "Flights:         %d\n", sum.Flights)
			fmt.Fprintf(out, "Dates:           %d (%d fully processed)\n", sum.Dates, sum.FullyProcessed)
			fmt.Fprintf(out, "Created:         %s\n", formatTime(sum.CreatedAt))
			fmt.Fprintf(out, "Last updated:    %s\n", formatTimePtr(sum.LastUpdated))

			recent := ledger.RecentDates(limit)
			if len(recent) == 0 {
				fmt.Fprintln(out, "No dates recorded")
				return nil
			}
			rows := make([][]string, 0, len(recent))
			for _, d := range recent {
				rows = append(rows, []string{
					d.Date,
					strconv.Itoa(d.Flights),
					d.Status.String(),
					formatTimePtr(d.LastProcessed),
					strings.Join(d.Flags, ","),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Date", "Flights", "Status", "Last processed", "Flags"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
	scope.register(cmd)
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of recent dates to show")
	return cmd
}

func newStateResetCommand(ctx *commandContext) *cobra.Command {
	var scope scopeFlags
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget every processed flight and date",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := scope.key()
			if err != nil {
				return err
			}
			if !yes {
				return errors.New("refusing to reset the ledger without --yes")
			}
			cfg, logger, err := ctx.setup()
			if err != nil {
				return err
			}
			return withScopeLock(cfg, key, logger, func() error {
				ledger, err := state.Open(cfg.StatePath(key), key, state.WithLogger(logger))
				if err != nil {
					return err
				}
				before := ledger.Summary().Flights
				ledger.Reset()
				if !ledger.Save() {
					return fmt.Errorf("write %s failed", ledger.Path())
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset ledger for %s (%d flights forgotten)\n", key, before)
				return nil
			})
		},
	}
	scope.register(cmd)
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the reset")
	return cmd
}

func newStateInitCommand(ctx *commandContext) *cobra.Command {
	var scope scopeFlags
	var closeDates bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Record every valid track log already on disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := scope.key()
			if err != nil {
				return err
			}
			cfg, logger, err := ctx.setup()
			if err != nil {
				return err
			}
			return withScopeLock(cfg, key, logger, func() error {
				ledger, err := state.Open(cfg.StatePath(key), key, state.WithLogger(logger))
				if err != nil {
					return err
				}
				result, err := ledger.SeedFromFiles(cfg.ScopeDownloadDir(key), closeDates)
				if err != nil {
					return err
				}
				if !ledger.Save() {
					return fmt.Errorf("write %s failed", ledger.Path())
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Recorded %d flights across %d dates for %s\n", result.Recorded, len(result.Dates), key)
				if result.Undated > 0 {
					fmt.Fprintf(out, "%d flights have no header date and were recorded without one\n", result.Undated)
				}
				if result.Invalid > 0 {
					fmt.Fprintf(out, "Skipped %d invalid files (run `olcsync cleanup` to remove them)\n", result.Invalid)
				}
				return nil
			})
		},
	}
	scope.register(cmd)
	cmd.Flags().BoolVar(&closeDates, "mark-dates", false, "Also mark every touched date fully processed")
	return cmd
}

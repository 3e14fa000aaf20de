package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"olcsync/internal/catalog"
)

func requireCatalog(ctx *commandContext, cmd *cobra.Command) (*catalog.Store, error) {
	store, err := ctx.openCatalog(cmd.Context())
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("catalog disabled (paths.catalog_path is empty)")
	}
	return store, nil
}

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var scope string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent download runs from the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := requireCatalog(ctx, cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Runs(cmd.Context(), normalizeScopeKey(scope), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, runs)
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				status := "ok"
				switch {
				case r.FinishedAt.IsZero():
					status = "unfinished"
				case r.Aborted:
					status = "aborted"
				case r.Error != "":
					status = "failed"
				case r.DryRun:
					status = "dry-run"
				}
				rows = append(rows, []string{
					formatTime(r.StartedAt),
					r.Scope,
					strconv.Itoa(r.Total),
					strconv.Itoa(r.Downloaded),
					strconv.Itoa(r.Skipped),
					strconv.Itoa(r.Failed),
					status,
					r.Duration().Round(time.Second).String(),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Started", "Scope", "Total", "Downloaded", "Skipped", "Failed", "Status", "Duration"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().StringVarP(&scope, "scope", "s", "", "Only runs for this scope (airport code or pilot)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print runs as JSON")
	return cmd
}

func newFlightsCommand(ctx *commandContext) *cobra.Command {
	var (
		scope    string
		year     string
		pilot    string
		minScore float64
		limit    int
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "flights",
		Short: "Query downloaded flights from the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := requireCatalog(ctx, cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			flights, err := store.Flights(cmd.Context(), catalog.FlightQuery{
				Scope:    normalizeScopeKey(scope),
				Year:     year,
				Pilot:    pilot,
				MinScore: optionalFloat(cmd, "min-score", minScore),
				Limit:    limit,
			})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, flights)
			}
			out := cmd.OutOrStdout()
			if len(flights) == 0 {
				fmt.Fprintln(out, "No flights match")
				return nil
			}
			rows := make([][]string, 0, len(flights))
			for _, f := range flights {
				rows = append(rows, []string{f.Scope, f.Date, f.Pilot, formatScore(f.Score), formatScore(f.Distance), formatScore(f.Speed), f.Aircraft, f.Status})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Scope", "Date", "Pilot", "Score", "Km", "Km/h", "Aircraft", "Status"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft},
			))
			fmt.Fprintf(out, "%d flights\n", len(flights))
			return nil
		},
	}
	cmd.Flags().StringVarP(&scope, "scope", "s", "", "Airport code or pilot")
	cmd.Flags().StringVarP(&year, "year", "y", "", "Season")
	cmd.Flags().StringVar(&pilot, "pilot-name", "", "Pilot name substring")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Minimum score")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print flights as JSON")
	return cmd
}

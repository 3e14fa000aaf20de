package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"olcsync/internal/flight"
	"olcsync/internal/pipeline"
	"olcsync/internal/site"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var (
		scope    scopeFlags
		years    []string
		minScore float64
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List flights on the site without downloading",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := scope.scope()
			if err != nil {
				return err
			}
			if err := validateYears(years); err != nil {
				return err
			}
			cfg, logger, err := ctx.setup()
			if err != nil {
				return err
			}
			runCtx, cancel := signalContext(cmd)
			defer cancel()

			var flights []flight.Descriptor
			var failed []string
			err = pipeline.New(cfg, pipeline.WithLogger(logger)).List(runCtx, pipeline.Options{
				Scope:    target,
				Years:    years,
				MinScore: optionalFloat(cmd, "min-score", minScore),
			}, func(r site.YearResult) bool {
				if r.Err != nil {
					failed = append(failed, r.Year)
				}
				flights = append(flights, r.Flights...)
				return true
			})
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd, flights)
			}
			out := cmd.OutOrStdout()
			if len(flights) == 0 {
				fmt.Fprintf(out, "No flights found for %s\n", target)
			} else {
				rows := make([][]string, 0, len(flights))
				for _, f := range flights {
					rows = append(rows, []string{f.Year, f.Date, f.Pilot, formatScore(f.Score), formatScore(f.Distance), f.Aircraft, f.ID})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Year", "Date", "Pilot", "Score", "Km", "Aircraft", "ID"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignRight},
				))
				fmt.Fprintf(out, "%d flights\n", len(flights))
			}
			if len(failed) > 0 {
				fmt.Fprintf(out, "Listing failed for: %s\n", strings.Join(failed, ", "))
			}
			return nil
		},
	}

	scope.register(cmd)
	cmd.Flags().StringSliceVarP(&years, "year", "y", nil, "Year(s) to list (default: all supported years)")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Hide flights scoring below this many points")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print flights as JSON")
	return cmd
}

func newYearsCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "years",
		Short:       "Print the supported seasons, newest first",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			years := flight.SupportedYears(time.Now())
			out := cmd.OutOrStdout()
			for _, y := range years {
				fmt.Fprintln(out, y)
			}
			fmt.Fprintln(out, strconv.Itoa(len(years))+" seasons")
			return nil
		},
	}
}

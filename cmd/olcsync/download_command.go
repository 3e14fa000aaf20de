package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"olcsync/internal/config"
	"olcsync/internal/logging"
	"olcsync/internal/metrics"
	"olcsync/internal/notifications"
	"olcsync/internal/pipeline"
	"olcsync/internal/services"
)

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var (
		scope    scopeFlags
		years    []string
		minScore float64
		force    bool
		dryRun   bool
		retries  int
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download new track logs for an airport or the pilot flightbook",
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
			if cmd.Flags().Changed("retries") {
				if retries < 1 {
					return fmt.Errorf("--retries must be at least 1")
				}
				cfg.Download.MaxRetries = retries
			}

			runCtx, cancel := signalContext(cmd)
			defer cancel()

			opts := []pipeline.Option{
				pipeline.WithLogger(logger),
				pipeline.WithMetrics(metrics.NewRecorder()),
			}
			store, err := ctx.openCatalog(runCtx)
			if err != nil {
				logging.WarnWithContext(logger, "catalog unavailable", "catalog_open_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "runs and flights are not recorded in the catalog"),
				)
			} else if store != nil {
				defer store.Close()
				opts = append(opts, pipeline.WithCatalog(store))
			}

			summary, runErr := pipeline.New(cfg, opts...).Run(runCtx, pipeline.Options{
				Scope:    target,
				Years:    years,
				MinScore: optionalFloat(cmd, "min-score", minScore),
				Force:    force,
				DryRun:   dryRun,
			})
			if !dryRun {
				notifyRun(runCtx, cfg, logger, summary)
			}
			if asJSON {
				if err := writeJSON(cmd, summaryView(summary)); err != nil {
					return err
				}
			} else {
				printRunSummary(cmd.OutOrStdout(), summary)
			}
			return runErr
		},
	}

	scope.register(cmd)
	cmd.Flags().StringSliceVarP(&years, "year", "y", nil, "Year(s) to process (default: all supported years)")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Skip flights scoring below this many points")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Re-download flights that already exist")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List what would be downloaded without writing anything")
	cmd.Flags().IntVar(&retries, "retries", 0, "Download attempts per flight (default: download.max_retries)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the run summary as JSON")
	return cmd
}

func notifyRun(ctx context.Context, cfg *config.Config, logger *slog.Logger, s pipeline.Summary) {
	switch {
	case s.Err != nil:
		notify(ctx, cfg, logger, notifications.EventError, notifications.Payload{
			"context": "download",
			"scope":   s.Scope,
			"error":   s.Err,
		})
	case s.Aborted:
		notify(ctx, cfg, logger, notifications.EventRateLimited, notifications.Payload{
			"scope":      s.Scope,
			"downloaded": s.Stats.Downloaded,
		})
	default:
		notify(ctx, cfg, logger, notifications.EventRunCompleted, notifications.Payload{
			"scope":      s.Scope,
			"downloaded": s.Stats.Downloaded,
			"failed":     s.Stats.Failed,
			"duration":   s.Duration(),
		})
	}
}

type yearView struct {
	Year       string `json:"year"`
	Listed     int    `json:"listed"`
	Known      int    `json:"known"`
	Filtered   int    `json:"filtered"`
	Unresolved int    `json:"unresolved"`
	Downloaded int    `json:"downloaded"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
	Error      string `json:"error,omitempty"`
}

type runView struct {
	RunID       string     `json:"run_id"`
	Scope       string     `json:"scope"`
	Phase       string     `json:"phase"`
	DryRun      bool       `json:"dry_run"`
	Total       int        `json:"total"`
	Downloaded  int        `json:"downloaded"`
	Skipped     int        `json:"skipped"`
	Failed      int        `json:"failed"`
	Aborted     bool       `json:"aborted"`
	AbortReason string     `json:"abort_reason,omitempty"`
	Seen        int        `json:"seen"`
	DurationSec float64    `json:"duration_seconds"`
	Error       string     `json:"error,omitempty"`
	ErrorKind   string     `json:"error_kind,omitempty"`
	Years       []yearView `json:"years"`
}

func summaryView(s pipeline.Summary) runView {
	view := runView{
		RunID:       s.RunID,
		Scope:       s.Scope,
		Phase:       string(s.Phase),
		DryRun:      s.DryRun,
		Total:       s.Stats.Total,
		Downloaded:  s.Stats.Downloaded,
		Skipped:     s.Stats.Skipped,
		Failed:      s.Stats.Failed,
		Aborted:     s.Aborted,
		AbortReason: s.AbortReason,
		Seen:        s.Seen,
		DurationSec: s.Duration().Seconds(),
		Years:       make([]yearView, 0, len(s.Years)),
	}
	if s.Err != nil {
		view.Error = s.Err.Error()
		view.ErrorKind = services.Kind(s.Err)
	}
	for _, y := range s.Years {
		yv := yearView{
			Year:       y.Year,
			Listed:     y.Listed,
			Known:      y.Known,
			Filtered:   y.Filtered,
			Unresolved: y.Unresolved,
			Downloaded: y.Stats.Downloaded,
			Skipped:    y.Stats.Skipped,
			Failed:     y.Stats.Failed,
		}
		if y.Err != nil {
			yv.Error = y.Err.Error()
		}
		view.Years = append(view.Years, yv)
	}
	return view
}

func printRunSummary(out io.Writer, s pipeline.Summary) {
	if len(s.Years) > 0 {
		rows := make([][]string, 0, len(s.Years))
		listed := 0
		for _, y := range s.Years {
			listed += y.Listed
			status := "ok"
			if y.Err != nil {
				status = services.Kind(y.Err)
			}
			rows = append(rows, []string{
				y.Year,
				strconv.Itoa(y.Listed),
				strconv.Itoa(y.Stats.Downloaded),
				strconv.Itoa(y.Stats.Skipped),
				strconv.Itoa(y.Stats.Failed),
				status,
			})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"Year", "Listed", "Downloaded", "Skipped", "Failed", "Status"},
			rows,
			[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
			withFooter("Total", strconv.Itoa(listed), strconv.Itoa(s.Stats.Downloaded), strconv.Itoa(s.Stats.Skipped), strconv.Itoa(s.Stats.Failed), ""),
		))
	}

	if s.DryRun {
		fmt.Fprintf(out, "Dry run: %d flights would be downloaded for %s (%d already present)\n",
			s.Stats.Total-s.Stats.Skipped, s.Scope, s.Stats.Skipped)
	} else {
		fmt.Fprintf(out, "Downloaded %d of %d flights for %s (%d skipped, %d failed) in %s\n",
			s.Stats.Downloaded, s.Stats.Total, s.Scope, s.Stats.Skipped, s.Stats.Failed, s.Duration().Round(time.Second))
	}
	if s.Aborted {
		fmt.Fprintln(out, "Stopped at the site's daily download limit; run again tomorrow to continue.")
	}
	if s.Err != nil {
		fmt.Fprintf(out, "Run failed (%s): %v\n", services.Kind(s.Err), s.Err)
	}
}

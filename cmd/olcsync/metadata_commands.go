package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"olcsync/internal/catalog"
	"olcsync/internal/logging"
	"olcsync/internal/metadata"
)

func newMetadataCommand(ctx *commandContext) *cobra.Command {
	metaCmd := &cobra.Command{
		Use:   "metadata",
		Short: "Validate or rebuild per-year flight metadata",
	}
	metaCmd.AddCommand(newMetadataValidateCommand(ctx))
	metaCmd.AddCommand(newMetadataRebuildCommand(ctx))
	return metaCmd
}

func metadataYears(meta *metadata.Store, scope string, years []string) ([]string, error) {
	if len(years) > 0 {
		return years, nil
	}
	found, err := meta.Years(scope)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("no downloaded years found for %s", scope)
	}
	return found, nil
}

// projectYear mirrors one year's metadata into the catalog.
func projectYear(ctx context.Context, store *catalog.Store, meta *metadata.Store, scope, year string, logger *slog.Logger) {
	if store == nil {
		return
	}
	records, err := meta.Load(scope, year)
	if err != nil {
		logger.Warn("catalog not updated", logging.String(logging.FieldYear, year), logging.Error(err))
		return
	}
	rows := make([]catalog.Flight, 0, len(records))
	for _, id := range slices.Sorted(maps.Keys(records)) {
		rows = append(rows, catalog.FlightFromRecord(scope, year, records[id]))
	}
	if err := store.UpsertFlights(ctx, rows); err != nil {
		logger.Warn("catalog not updated", logging.String(logging.FieldYear, year), logging.Error(err))
	}
}

func newMetadataValidateCommand(ctx *commandContext) *cobra.Command {
	var scope scopeFlags
	var years []string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check every record against the files on disk and fix statuses",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := scope.key()
			if err != nil {
				return err
			}
			cfg, logger, err := ctx.setup()
			if err != nil {
				return err
			}
			meta := metadata.NewStore(cfg.Paths.DownloadDir, logger)
			targetYears, err := metadataYears(meta, key, years)
			if err != nil {
				return err
			}
			store, err := ctx.openCatalog(cmd.Context())
			if err != nil {
				logger.Warn("catalog unavailable", logging.Error(err))
				store = nil
			}
			if store != nil {
				defer store.Close()
			}

			rows := make([][]string, 0, len(targetYears))
			for _, year := range targetYears {
				valid, missing := meta.ValidateAndFix(key, year)
				projectYear(cmd.Context(), store, meta, key, year, logger)
				rows = append(rows, []string{year, strconv.Itoa(valid), strconv.Itoa(missing)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Year", "Valid", "Missing"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight},
			))
			return nil
		},
	}
	scope.register(cmd)
	cmd.Flags().StringSliceVarP(&years, "year", "y", nil, "Year(s) to validate (default: every year on disk)")
	return cmd
}

func newMetadataRebuildCommand(ctx *commandContext) *cobra.Command {
	var scope scopeFlags
	var years []string
	var fromFiles bool

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Regenerate metadata from the track logs on disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !fromFiles {
				return errors.New("only --from-files rebuilds are supported")
			}
			key, err := scope.key()
			if err != nil {
				return err
			}
			cfg, logger, err := ctx.setup()
			if err != nil {
				return err
			}
			meta := metadata.NewStore(cfg.Paths.DownloadDir, logger)
			targetYears, err := metadataYears(meta, key, years)
			if err != nil {
				return err
			}
			store, err := ctx.openCatalog(cmd.Context())
			if err != nil {
				logger.Warn("catalog unavailable", logging.Error(err))
				store = nil
			}
			if store != nil {
				defer store.Close()
			}

			var rows [][]string
			var failures []error
			err = withScopeLock(cfg, key, logger, func() error {
				for _, year := range targetYears {
					result, err := meta.RebuildFromFiles(key, year)
					if err != nil {
						failures = append(failures, err)
						rows = append(rows, []string{year, "-", "-", "error"})
						continue
					}
					projectYear(cmd.Context(), store, meta, key, year, logger)
					rows = append(rows, []string{year, strconv.Itoa(result.Records), strconv.Itoa(result.Skipped), "ok"})
				}
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Year", "Records", "Skipped", "Status"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
			))
			return errors.Join(failures...)
		},
	}
	scope.register(cmd)
	cmd.Flags().StringSliceVarP(&years, "year", "y", nil, "Year(s) to rebuild (default: every year on disk)")
	cmd.Flags().BoolVar(&fromFiles, "from-files", false, "Read pilot, date and track statistics from the IGC files")
	return cmd
}

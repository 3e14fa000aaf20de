package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"olcsync/internal/mapgen"
	"olcsync/internal/metadata"
	"olcsync/internal/state"
)

// mapFlag marks dates whose flights appear on a rendered map.
const mapFlag = "map"

func mapOutputDir(mapDir, scope string) string {
	return filepath.Join(mapDir, scope)
}

func newMapCommand(ctx *commandContext) *cobra.Command {
	var (
		scope    scopeFlags
		years    []string
		minScore float64
		output   string
		every    int
	)

	cmd := &cobra.Command{
		Use:   "map",
		Short: "Render downloaded flights into a Leaflet map",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := scope.key()
			if err != nil {
				return err
			}
			cfg, logger, err := ctx.setup()
			if err != nil {
				return err
			}
			outDir := output
			if outDir == "" {
				outDir = mapOutputDir(cfg.Paths.MapDir, key)
			}
			meta := metadata.NewStore(cfg.Paths.DownloadDir, logger)

			return withScopeLock(cfg, key, logger, func() error {
				result, err := mapgen.Generate(cmd.Context(), mapgen.Config{
					Scope:     key,
					Root:      cfg.Paths.DownloadDir,
					OutputDir: outDir,
					Title:     cfg.Map.Title,
					TileURL:   cfg.Map.TileURL,
					Years:     years,
					MinScore:  optionalFloat(cmd, "min-score", minScore),
					Every:     every,
					Logger:    logger,
				}, meta)
				if err != nil {
					return err
				}

				ledger, err := state.Open(cfg.StatePath(key), key, state.WithLogger(logger))
				if err != nil {
					return err
				}
				for _, date := range result.Dates {
					ledger.MarkDateProcessed(date, mapFlag)
				}
				if len(result.Dates) > 0 && !ledger.Save() {
					return fmt.Errorf("write %s failed", ledger.Path())
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Rendered %d flights (%d skipped) to %s\n", result.Flights, result.Skipped, result.IndexPath)
				fmt.Fprintf(out, "Marked %d dates processed\n", len(result.Dates))
				return nil
			})
		},
	}
	scope.register(cmd)
	cmd.Flags().StringSliceVarP(&years, "year", "y", nil, "Year(s) to render (default: every year on disk)")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Leave out flights scoring below this many points")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output directory (default: paths.map_dir/<scope>)")
	cmd.Flags().IntVar(&every, "every", 0, "Keep one fix in N for the rendered tracks (default 5)")
	return cmd
}

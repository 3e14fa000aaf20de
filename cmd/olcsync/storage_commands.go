package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"olcsync/internal/cloudstore"
	"olcsync/internal/notifications"
	"olcsync/internal/state"
)

func printDirResult(out io.Writer, label string, r cloudstore.DirResult) {
	fmt.Fprintf(out, "%-9s %d uploaded, %d unchanged, %d failed (%d total)\n", label+":", r.Uploaded, r.Skipped, r.Failed, r.Total)
}

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var (
		scope       scopeFlags
		mapDir      string
		skipMap     bool
		skipFlights bool
	)

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload the rendered map and track logs to object storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := scope.key()
			if err != nil {
				return err
			}
			cfg, logger, err := ctx.setup()
			if err != nil {
				return err
			}
			store, err := cloudstore.FromConfig(cfg, logger)
			if err != nil {
				return err
			}
			runCtx, cancel := signalContext(cmd)
			defer cancel()

			out := cmd.OutOrStdout()
			if !skipMap {
				dir := mapDir
				if dir == "" {
					dir = mapOutputDir(cfg.Paths.MapDir, key)
				}
				if _, err := os.Stat(filepath.Join(dir, cloudstore.MapIndex)); err != nil {
					return fmt.Errorf("no rendered map in %s (run `olcsync map` first)", dir)
				}
				result, err := store.UploadMap(runCtx, dir)
				printDirResult(out, "Map", result)
				if err != nil {
					return err
				}
				url := store.PublicURL(cloudstore.MapIndex)
				if url != "" {
					fmt.Fprintf(out, "Map URL:  %s\n", url)
				}
				if result.Uploaded > 0 {
					notify(runCtx, cfg, logger, notifications.EventUploadCompleted, notifications.Payload{
						"scope":    key,
						"uploaded": result.Uploaded,
						"url":      url,
					})
				}
			}
			if skipFlights {
				return nil
			}

			return withScopeLock(cfg, key, logger, func() error {
				result, err := store.UploadFlights(runCtx, key, cfg.ScopeDownloadDir(key))
				printDirResult(out, "Flights", result)
				if err != nil {
					return err
				}
				if result.Failed > 0 {
					return fmt.Errorf("%d track logs failed to upload", result.Failed)
				}
				ledger, err := state.Open(cfg.StatePath(key), key, state.WithLogger(logger))
				if err != nil {
					return err
				}
				marked := 0
				for _, name := range ledger.Filenames() {
					rec, _ := ledger.Flight(name)
					if rec.Uploaded {
						continue
					}
					ledger.MarkFlightProcessed(name, rec.Date, true)
					marked++
				}
				if marked > 0 && !ledger.Save() {
					return fmt.Errorf("write %s failed", ledger.Path())
				}
				return nil
			})
		},
	}
	scope.register(cmd)
	cmd.Flags().StringVar(&mapDir, "map-dir", "", "Rendered map directory (default: paths.map_dir/<scope>)")
	cmd.Flags().BoolVar(&skipMap, "no-map", false, "Skip the map upload")
	cmd.Flags().BoolVar(&skipFlights, "no-flights", false, "Skip the track log upload")
	return cmd
}

func newSyncCommand(ctx *commandContext) *cobra.Command {
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Move state and metadata between this machine and object storage",
	}
	syncCmd.AddCommand(newSyncDirectionCommand(ctx, "pull"))
	syncCmd.AddCommand(newSyncDirectionCommand(ctx, "push"))
	return syncCmd
}

func newSyncDirectionCommand(ctx *commandContext, direction string) *cobra.Command {
	var scope scopeFlags

	short := "Download state, metadata and track logs from the bucket"
	if direction == "push" {
		short = "Upload state, metadata and track logs to the bucket"
	}

	cmd := &cobra.Command{
		Use:   direction,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := scope.key()
			if err != nil {
				return err
			}
			cfg, logger, err := ctx.setup()
			if err != nil {
				return err
			}
			store, err := cloudstore.FromConfig(cfg, logger)
			if err != nil {
				return err
			}
			runCtx, cancel := signalContext(cmd)
			defer cancel()

			return withScopeLock(cfg, key, logger, func() error {
				var (
					result cloudstore.SyncResult
					err    error
				)
				if direction == "pull" {
					result, err = store.PullScope(runCtx, key, cfg.ScopeDownloadDir(key), cfg.StatePath(key))
				} else {
					result, err = store.PushScope(runCtx, key, cfg.ScopeDownloadDir(key), cfg.StatePath(key))
				}
				out := cmd.OutOrStdout()
				printDirResult(out, "Metadata", result.Metadata)
				printDirResult(out, "Flights", result.Flights)
				fmt.Fprintf(out, "State:    %s\n", yesNo(result.State))
				if err != nil {
					return err
				}
				if failed := result.Metadata.Failed + result.Flights.Failed; failed > 0 {
					return errors.New(direction + ": some files failed; see the log for details")
				}
				return nil
			})
		},
	}
	scope.register(cmd)
	return cmd
}

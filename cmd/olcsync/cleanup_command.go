package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"olcsync/internal/igc"
	"olcsync/internal/logging"
)

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	var scope scopeFlags
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove .igc files that contain HTML error pages",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.setup()
			if err != nil {
				return err
			}
			root := cfg.Paths.DownloadDir
			if scope.airport != "" || scope.pilot {
				key, err := scope.key()
				if err != nil {
					return err
				}
				root = cfg.ScopeDownloadDir(key)
			}

			found, err := igc.FindHTMLFiles(root)
			if err != nil {
				return fmt.Errorf("scan %s: %w", root, err)
			}
			out := cmd.OutOrStdout()
			if len(found) == 0 {
				fmt.Fprintln(out, "No invalid files found")
				return nil
			}
			removed := 0
			for _, path := range found {
				rel, relErr := filepath.Rel(cfg.Paths.DownloadDir, path)
				if relErr != nil {
					rel = path
				}
				if dryRun {
					fmt.Fprintf(out, "would remove %s\n", rel)
					continue
				}
				if err := os.Remove(path); err != nil {
					logger.Warn("remove failed", logging.String(logging.FieldFilename, rel), logging.Error(err))
					continue
				}
				removed++
				fmt.Fprintf(out, "removed %s\n", rel)
			}
			if dryRun {
				fmt.Fprintf(out, "%d invalid files found (dry run, nothing removed)\n", len(found))
			} else {
				fmt.Fprintf(out, "Removed %d of %d invalid files\n", removed, len(found))
			}
			return nil
		},
	}
	scope.register(cmd)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only list the files that would be removed")
	return cmd
}

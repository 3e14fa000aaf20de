package preflight

import (
	"context"

	"olcsync/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Network checks are skipped when offline is true.
func RunAll(ctx context.Context, cfg *config.Config, offline bool) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results,
		CheckDirectoryAccess("Download directory", cfg.Paths.DownloadDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	)
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}
	results = append(results, CheckCredentials(cfg))
	if cfg.Paths.CatalogPath != "" {
		results = append(results, CheckCatalog(ctx, cfg.Paths.CatalogPath))
	}
	if offline {
		return results
	}
	results = append(results, CheckSite(ctx, cfg.OLC.BaseURL, cfg.OLC.UserAgent))
	results = append(results, CheckStorageFromConfig(ctx, cfg))
	return results
}

// Failed reports whether any result did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}

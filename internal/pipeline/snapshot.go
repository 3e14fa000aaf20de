package pipeline

import (
	"log/slog"
	"os"
	"path/filepath"

	"olcsync/internal/flight"
	"olcsync/internal/igc"
	"olcsync/internal/logging"
	"olcsync/internal/metadata"
	"olcsync/internal/state"
)

// Snapshot is the set of dataset identifiers already handled for a scope,
// built once at the start of a run and never mutated afterwards.
type Snapshot struct {
	ids       map[string]struct{}
	fromState int
	fromMeta  int
	fromDisk  int
}

// Known reports whether id is in the snapshot.
func (s *Snapshot) Known(id string) bool {
	if s == nil {
		return false
	}
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of distinct identifiers.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

// BuildSnapshot unions the processing ledger, the downloaded metadata records
// and a scan of valid track logs under scopeDir.
func BuildSnapshot(ledger *state.Store, meta *metadata.Store, scope, scopeDir string, logger *slog.Logger) *Snapshot {
	snap := &Snapshot{ids: map[string]struct{}{}}

	if ledger != nil {
		for _, name := range ledger.Filenames() {
			if parsed, ok := flight.ParseFilename(name); ok {
				snap.add(parsed.ID)
				snap.fromState++
			}
		}
	}

	if meta != nil {
		ids, err := meta.KnownIDs(scope)
		if err != nil {
			logging.WarnWithContext(logger, "metadata scan failed", "snapshot_metadata_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "metadata does not contribute to the seen set"),
			)
		}
		for id := range ids {
			snap.add(id)
			snap.fromMeta++
		}
	}

	years, _ := os.ReadDir(scopeDir)
	for _, yearDir := range years {
		if !yearDir.IsDir() || !flight.ValidYear(yearDir.Name()) {
			continue
		}
		dir := filepath.Join(scopeDir, yearDir.Name())
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			parsed, ok := flight.ParseFilename(entry.Name())
			if !ok || !igc.IsValidFile(filepath.Join(dir, entry.Name())) {
				continue
			}
			snap.add(parsed.ID)
			snap.fromDisk++
		}
	}

	logger.Info("seen set built",
		logging.Int("identifiers", snap.Len()),
		logging.Int("from_state", snap.fromState),
		logging.Int("from_metadata", snap.fromMeta),
		logging.Int("from_files", snap.fromDisk),
	)
	return snap
}

func (s *Snapshot) add(id string) {
	if id != "" {
		s.ids[id] = struct{}{}
	}
}

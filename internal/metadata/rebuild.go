package metadata

import (
	"maps"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"olcsync/internal/flight"
	"olcsync/internal/igc"
	"olcsync/internal/logging"
	"olcsync/internal/services"
)

// RebuildResult reports one rebuilt year.
type RebuildResult struct {
	Year    string
	Records int
	// Skipped counts files that were not valid track logs or had an
	// unrecognised name.
	Skipped int
}

// RebuildFromFiles regenerates the (scope, year) document from the track logs
// in its directory. Attributes the files cannot provide (score, aircraft,
// download link) are kept from the existing record with the same identifier.
func (s *Store) RebuildFromFiles(scope, year string) (RebuildResult, error) {
	result := RebuildResult{Year: year}
	logger := s.logger.With(logging.String(logging.FieldScope, scope), logging.String(logging.FieldYear, year))

	existing, err := s.Load(scope, year)
	if err != nil {
		logging.WarnWithContext(logger, "ignoring unreadable metadata during rebuild", "metadata_unreadable",
			logging.Error(err),
			logging.String(logging.FieldImpact, "scores and aircraft are lost for this year"),
		)
		existing = map[string]Record{}
	}

	dir := s.Dir(scope, year)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return result, services.Wrap(services.ErrValidation, "metadata", "rebuild", dir, err)
	}

	rebuilt := make(map[string]Record, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), flight.Extension) {
			continue
		}
		name := entry.Name()
		parsed, ok := flight.ParseFilename(name)
		if !ok {
			logger.Debug("skipping unrecognised filename", logging.String(logging.FieldFilename, name))
			result.Skipped++
			continue
		}
		track, err := igc.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("skipping invalid track log", logging.String(logging.FieldFilename, name), logging.Error(err))
			result.Skipped++
			continue
		}
		rec := recordFromTrack(scope, name, parsed, track, existing[parsed.ID])
		if info, err := entry.Info(); err == nil && rec.DownloadedAt.IsZero() {
			rec.DownloadedAt = info.ModTime().UTC()
		}
		rebuilt[rec.ID] = rec
	}

	// Records whose file vanished stay, flagged missing.
	for id, rec := range existing {
		if _, ok := rebuilt[id]; ok {
			continue
		}
		rec.Status = StatusMissing
		rebuilt[id] = rec
	}

	if err := s.Save(scope, year, slices.Collect(maps.Values(rebuilt))); err != nil {
		return result, err
	}
	result.Records = len(rebuilt)
	logger.Info("metadata rebuilt", logging.Int("records", result.Records), logging.Int("skipped", result.Skipped))
	return result, nil
}

func recordFromTrack(scope, name string, parsed flight.ParsedName, track *igc.Track, prev Record) Record {
	rec := prev
	rec.ID = parsed.ID
	rec.Filename = name
	rec.Status = StatusDownloaded

	if track.Header.Date != "" {
		rec.Date = track.Header.Date
	}
	if pilot := strings.TrimSpace(track.Header.Pilot); pilot != "" {
		rec.Pilot = pilot
	} else if rec.Pilot == "" {
		rec.Pilot = parsed.Pilot
	}
	if rec.Airport == "" && scope != flight.PilotKey {
		rec.Airport = "Airport " + scope
	}
	if rec.Aircraft == "" {
		rec.Aircraft = strings.TrimSpace(track.Header.GliderType)
	}

	stats := track.Stats()
	if rec.Distance == nil && stats.DistanceKm > 0 {
		rec.Distance = round1(stats.DistanceKm)
	}
	if rec.Speed == nil && stats.SpeedKmh > 0 {
		rec.Speed = round1(stats.SpeedKmh)
	}
	return rec
}

func round1(v float64) *float64 {
	r := math.Round(v*10) / 10
	return &r
}

package state

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"olcsync/internal/flight"
	"olcsync/internal/igc"
	"olcsync/internal/logging"
	"olcsync/internal/services"
)

// SeedResult counts one SeedFromFiles pass.
type SeedResult struct {
	Recorded int
	// Invalid counts .igc files that are not track logs.
	Invalid int
	// Undated counts recorded logs without a header date; they join no date.
	Undated int
	Dates   []string
}

// SeedFromFiles records every valid track log below scopeDir
// ({year}/*.igc) under its HFDTE date. Logs without one are recorded by
// filename only.
// With closeDates every touched date is marked fully processed.
func (s *Store) SeedFromFiles(scopeDir string, closeDates bool) (SeedResult, error) {
	var result SeedResult
	dates := map[string]struct{}{}
	err := filepath.WalkDir(scopeDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == scopeDir {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), flight.Extension) {
			return nil
		}
		if !igc.IsValidFile(path) {
			result.Invalid++
			s.logger.Debug("skipping invalid track log", logging.String(logging.FieldFilename, d.Name()))
			return nil
		}
		date := ""
		if header, err := igc.ReadHeader(path); err == nil {
			date = header.Date
		}
		s.MarkFlightProcessed(d.Name(), date, false)
		result.Recorded++
		if date == "" {
			result.Undated++
			s.logger.Debug("track log has no HFDTE date", logging.String(logging.FieldFilename, d.Name()))
			return nil
		}
		dates[date] = struct{}{}
		return nil
	})
	if err != nil {
		return result, services.Wrap(services.ErrValidation, "state", "seed", scopeDir, err)
	}
	for date := range dates {
		result.Dates = append(result.Dates, date)
	}
	slices.Sort(result.Dates)
	if closeDates {
		for _, date := range result.Dates {
			s.MarkDateProcessed(date)
		}
	}
	s.logger.Info("ledger seeded from files",
		logging.Int("recorded", result.Recorded),
		logging.Int("invalid", result.Invalid),
		logging.Int("undated", result.Undated),
		logging.Int("dates", len(result.Dates)),
	)
	return result, nil
}

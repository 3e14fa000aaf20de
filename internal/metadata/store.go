package metadata

import (
	"cmp"
	"errors"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/goccy/go-json"

	"olcsync/internal/fileutil"
	"olcsync/internal/flight"
	"olcsync/internal/igc"
	"olcsync/internal/logging"
	"olcsync/internal/services"
)

// FileName is the per-year document name.
const FileName = "metadata.json"

// Store reads and writes metadata documents below a downloads root.
type Store struct {
	root   string
	logger *slog.Logger
	now    func() time.Time
}

// NewStore returns a store rooted at the downloads directory.
func NewStore(root string, logger *slog.Logger) *Store {
	return &Store{
		root:   root,
		logger: logging.NewComponentLogger(logger, "metadata"),
		now:    time.Now,
	}
}

// SetClockForTests overrides the timestamp source.
func (s *Store) SetClockForTests(now func() time.Time) {
	s.now = now
}

// Dir returns the directory holding scope's files for year.
func (s *Store) Dir(scope, year string) string {
	return filepath.Join(s.root, scope, year)
}

// Path returns the document location for (scope, year).
func (s *Store) Path(scope, year string) string {
	return filepath.Join(s.Dir(scope, year), FileName)
}

// Load returns the records of (scope, year) keyed by identifier. A missing
// document is an empty map.
func (s *Store) Load(scope, year string) (map[string]Record, error) {
	path := s.Path(scope, year)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]Record{}, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "metadata", "load", path, err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, services.Wrap(services.ErrValidation, "metadata", "load", path, err)
	}
	records := make(map[string]Record, len(doc.Flights))
	for _, rec := range doc.Flights {
		if rec.ID == "" {
			continue
		}
		records[rec.ID] = rec
	}
	return records, nil
}

// Save rewrites the (scope, year) document. Records are ordered by date,
// newest first, then identifier.
func (s *Store) Save(scope, year string, records []Record) error {
	sorted := slices.Clone(records)
	slices.SortFunc(sorted, func(a, b Record) int {
		if c := cmp.Compare(b.Date, a.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	doc := document{Scope: scope, Year: year, UpdatedAt: s.now().UTC(), Flights: sorted}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrValidation, "metadata", "save", "encode", err)
	}
	path := s.Path(scope, year)
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return services.Wrap(services.ErrDownload, "metadata", "save", path, err)
	}
	s.logger.Debug("metadata saved", logging.String("path", path), logging.Int("flights", len(sorted)))
	return nil
}

// AddFlight inserts or replaces rec in its year document.
func (s *Store) AddFlight(scope, year string, rec Record) error {
	records, err := s.Load(scope, year)
	if err != nil {
		return err
	}
	records[rec.ID] = rec
	return s.Save(scope, year, slices.Collect(maps.Values(records)))
}

// ValidateAndFix checks every record's file and flips its status to
// downloaded or missing. It never fails; problems are logged and counted as
// missing.
func (s *Store) ValidateAndFix(scope, year string) (valid, missing int) {
	logger := s.logger.With(logging.String(logging.FieldScope, scope), logging.String(logging.FieldYear, year))
	records, err := s.Load(scope, year)
	if err != nil {
		logging.WarnWithContext(logger, "metadata unreadable, nothing validated", "metadata_unreadable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run `olcsync metadata rebuild --from-files`"),
		)
		return 0, 0
	}
	if len(records) == 0 {
		return 0, 0
	}

	dir := s.Dir(scope, year)
	changed := false
	for id, rec := range records {
		status := StatusMissing
		if rec.Filename != "" && igc.IsValidFile(filepath.Join(dir, rec.Filename)) {
			status = StatusDownloaded
			valid++
		} else {
			missing++
		}
		if rec.Status != status {
			rec.Status = status
			records[id] = rec
			changed = true
		}
	}
	if changed {
		if err := s.Save(scope, year, slices.Collect(maps.Values(records))); err != nil {
			logging.WarnWithContext(logger, "could not persist validated metadata", "metadata_save_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "statuses are only corrected in this report"),
			)
		}
	}
	logger.Info("metadata validated", logging.Int("valid", valid), logging.Int("missing", missing))
	return valid, missing
}

// Years lists the year directories present for scope, newest first.
func (s *Store) Years(scope string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, scope))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var years []string
	for _, entry := range entries {
		if entry.IsDir() && flight.ValidYear(entry.Name()) {
			years = append(years, entry.Name())
		}
	}
	slices.Sort(years)
	slices.Reverse(years)
	return years, nil
}

// KnownIDs returns every identifier recorded as downloaded for scope.
func (s *Store) KnownIDs(scope string) (map[string]struct{}, error) {
	years, err := s.Years(scope)
	if err != nil {
		return nil, err
	}
	ids := map[string]struct{}{}
	for _, year := range years {
		records, err := s.Load(scope, year)
		if err != nil {
			logging.WarnWithContext(s.logger, "skipping unreadable metadata", "metadata_unreadable",
				logging.String(logging.FieldYear, year),
				logging.Error(err),
			)
			continue
		}
		for id, rec := range records {
			if rec.Status == StatusDownloaded {
				ids[id] = struct{}{}
			}
		}
	}
	return ids, nil
}

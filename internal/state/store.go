package state

import (
	"errors"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/goccy/go-json"

	"olcsync/internal/fileutil"
	"olcsync/internal/logging"
	"olcsync/internal/services"
)

// Store is the processing ledger of one scope. It is not safe for concurrent
// use; Lock guards against a second process instead.
type Store struct {
	path   string
	doc    document
	logger *slog.Logger
	now    func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logging.NewComponentLogger(logger, "state")
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open loads the ledger at path. A missing file yields an empty ledger. An
// unreadable document is moved aside to path+".corrupt" and replaced by an
// empty ledger.
func Open(path, scope string, opts ...Option) (*Store, error) {
	if path == "" || scope == "" {
		return nil, services.Wrap(services.ErrConfiguration, "state", "open", "path and scope are required", nil)
	}
	s := &Store{path: path, logger: logging.NewComponentLogger(nil, "state"), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.doc = newDocument(scope, s.now().UTC())
		s.logger.Debug("no state document, starting empty", logging.String("path", path))
		return s, nil
	case err != nil:
		return nil, services.Wrap(services.ErrConfiguration, "state", "open", path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		backup := path + ".corrupt"
		if renameErr := os.Rename(path, backup); renameErr != nil {
			return nil, services.Wrap(services.ErrValidation, "state", "open", "corrupt document "+path, err)
		}
		logging.WarnWithContext(s.logger, "state document unreadable, starting empty", "state_corrupt",
			logging.String("path", path),
			logging.String("backup", backup),
			logging.Error(err),
			logging.String(logging.FieldImpact, "processed flights are re-detected from files on disk"),
			logging.String(logging.FieldErrorHint, "inspect the backup or run `olcsync state init`"),
		)
		s.doc = newDocument(scope, s.now().UTC())
		return s, nil
	}
	doc.repair()
	if doc.Scope == "" {
		doc.Scope = scope
	}
	s.doc = doc
	s.logger.Debug("state loaded",
		logging.String("path", path),
		logging.Int("flights", len(doc.ProcessedFlights)),
		logging.Int("dates", len(doc.ProcessedDates)),
	)
	return s, nil
}

// Path returns the document location.
func (s *Store) Path() string { return s.path }

// Scope returns the scope key stored in the document.
func (s *Store) Scope() string { return s.doc.Scope }

// IsFlightProcessed reports whether filename is in the ledger.
func (s *Store) IsFlightProcessed(filename string) bool {
	_, ok := s.doc.ProcessedFlights[filename]
	return ok
}

// Flight returns the ledger entry for filename.
func (s *Store) Flight(filename string) (FlightRecord, bool) {
	rec, ok := s.doc.ProcessedFlights[filename]
	if !ok {
		return FlightRecord{}, false
	}
	return *rec, true
}

// IsDateProcessed reports whether date was closed with MarkDateProcessed.
// Recording flights alone never closes a date.
func (s *Store) IsDateProcessed(date string) bool {
	return s.DateStatus(date) == FullyProcessed
}

// DateStatus returns the lifecycle state of date.
func (s *Store) DateStatus(date string) DateStatus {
	entry, ok := s.doc.ProcessedDates[date]
	if !ok {
		return Unseen
	}
	return entry.Status
}

// NewFlights returns the candidates not yet in the ledger, in input order.
func (s *Store) NewFlights(candidates []string) []string {
	out := make([]string, 0, len(candidates))
	for _, name := range candidates {
		if !s.IsFlightProcessed(name) {
			out = append(out, name)
		}
	}
	return out
}

// MarkFlightProcessed records filename under date. A file keeps the date it
// was first recorded with; marking it again only refreshes its timestamp and
// upload flag. An empty date records the flight without a date entry.
func (s *Store) MarkFlightProcessed(filename, date string, uploaded bool) {
	now := s.now().UTC()
	if rec, ok := s.doc.ProcessedFlights[filename]; ok {
		rec.ProcessedAt = now
		rec.Uploaded = uploaded
		s.touch(now)
		return
	}
	s.doc.ProcessedFlights[filename] = &FlightRecord{Date: date, Uploaded: uploaded, ProcessedAt: now}
	if date == "" {
		// undated flights are tracked by filename only
		s.touch(now)
		return
	}
	entry := s.dateEntry(date)
	if !slices.Contains(entry.Flights, filename) {
		entry.Flights = append(entry.Flights, filename)
	}
	if entry.Status == Unseen {
		entry.Status = FlightsRecorded
	}
	s.touch(now)
}

// MarkDateProcessed closes date and sets each named flag.
func (s *Store) MarkDateProcessed(date string, flags ...string) {
	now := s.now().UTC()
	entry := s.dateEntry(date)
	entry.Status = FullyProcessed
	entry.LastProcessed = &now
	for _, flag := range flags {
		if flag == "" {
			continue
		}
		if entry.Flags == nil {
			entry.Flags = map[string]bool{}
		}
		entry.Flags[flag] = true
	}
	s.touch(now)
}

// FlightsForDate returns the files recorded under date.
func (s *Store) FlightsForDate(date string) []string {
	entry, ok := s.doc.ProcessedDates[date]
	if !ok {
		return nil
	}
	return slices.Clone(entry.Flights)
}

// Filenames returns every processed file, sorted.
func (s *Store) Filenames() []string {
	names := make([]string, 0, len(s.doc.ProcessedFlights))
	for name := range s.doc.ProcessedFlights {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Save rewrites the whole document atomically. Failures are logged and
// reported as false.
func (s *Store) Save() bool {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		logging.ErrorWithContext(s.logger, "encode state document", "state_save_failed", logging.Error(err))
		return false
	}
	if err := fileutil.WriteFileAtomic(s.path, data, 0o644); err != nil {
		logging.ErrorWithContext(s.logger, "write state document", "state_save_failed",
			logging.String("path", s.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions of the state directory"),
		)
		return false
	}
	s.logger.Debug("state saved", logging.String("path", s.path), logging.Int("flights", len(s.doc.ProcessedFlights)))
	return true
}

// Reset empties the ledger in memory. Call Save to persist.
func (s *Store) Reset() {
	logging.WarnWithContext(s.logger, "resetting processing state", "state_reset",
		logging.String(logging.FieldScope, s.doc.Scope),
		logging.String(logging.FieldImpact, "every flight is considered unprocessed"),
		logging.String(logging.FieldErrorHint, "files on disk are still skipped by the downloader"),
	)
	s.doc = newDocument(s.doc.Scope, s.now().UTC())
}

func (s *Store) dateEntry(date string) *DateEntry {
	entry, ok := s.doc.ProcessedDates[date]
	if !ok {
		entry = &DateEntry{Flights: []string{}}
		s.doc.ProcessedDates[date] = entry
	}
	return entry
}

func (s *Store) touch(now time.Time) {
	s.doc.LastUpdated = &now
}

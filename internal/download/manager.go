package download

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"time"

	"olcsync/internal/fileutil"
	"olcsync/internal/flight"
	"olcsync/internal/igc"
	"olcsync/internal/logging"
	"olcsync/internal/services"
)

const (
	// DefaultMaxRetries is the number of attempts per file.
	DefaultMaxRetries = 3
	// SuccessDelay follows every stored file.
	SuccessDelay = 3 * time.Second
	// FailureDelay follows every abandoned file.
	FailureDelay = 5 * time.Second

	defaultTimeout = 180 * time.Second
)

var sleep = sleepWithContext

// SetSleepForTests replaces the delay function and returns a restore func.
func SetSleepForTests(fn func(context.Context, time.Duration) error) func() {
	prev := sleep
	if fn == nil {
		fn = sleepWithContext
	}
	sleep = fn
	return func() { sleep = prev }
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SessionProvider hands out the authenticated client.
type SessionProvider interface {
	Session() (*http.Client, error)
}

// Refresher re-establishes an expired session.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Recorder is told about every stored file.
type Recorder interface {
	Record(ctx context.Context, d flight.Descriptor, path string, downloadedAt time.Time) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, d flight.Descriptor, path string, downloadedAt time.Time) error

func (f RecorderFunc) Record(ctx context.Context, d flight.Descriptor, path string, downloadedAt time.Time) error {
	return f(ctx, d, path, downloadedAt)
}

// Options controls one Download call.
type Options struct {
	Force  bool
	DryRun bool
}

// Stats counts outcomes. Total includes every file considered.
type Stats struct {
	Total      int
	Downloaded int
	Skipped    int
	Failed     int
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.Total += other.Total
	s.Downloaded += other.Downloaded
	s.Skipped += other.Skipped
	s.Failed += other.Failed
}

// Config describes a Manager.
type Config struct {
	// Root is the downloads directory; files land in Root/Scope/year.
	Root       string
	Scope      string
	Session    SessionProvider
	Refresher  Refresher
	Recorder   Recorder
	MaxRetries int
	Timeout    time.Duration
	Logger     *slog.Logger
	Now        func() time.Time
}

// Manager downloads flights for one scope.
type Manager struct {
	root       string
	scope      string
	session    SessionProvider
	refresher  Refresher
	recorder   Recorder
	maxRetries int
	timeout    time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// New builds a Manager.
func New(cfg Config) (*Manager, error) {
	if cfg.Root == "" || cfg.Scope == "" {
		return nil, services.Wrap(services.ErrConfiguration, "download", "new", "root and scope are required", nil)
	}
	if cfg.Session == nil {
		return nil, services.Wrap(services.ErrConfiguration, "download", "new", "session provider is required", nil)
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = DefaultMaxRetries
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		root:       cfg.Root,
		scope:      cfg.Scope,
		session:    cfg.Session,
		refresher:  cfg.Refresher,
		recorder:   cfg.Recorder,
		maxRetries: retries,
		timeout:    timeout,
		logger:     logging.NewComponentLogger(cfg.Logger, "download"),
		now:        now,
	}, nil
}

// Destination returns where a flight of year is stored.
func (m *Manager) Destination(year, filename string) string {
	return filepath.Join(m.root, m.scope, year, filename)
}

// Download processes years newest first. A rate-limit page stops the whole
// call and is returned as an ErrRateLimit error alongside the partial stats.
// Every other per-file failure is counted and the loop moves on.
func (m *Manager) Download(ctx context.Context, flightsByYear map[string][]flight.Descriptor, opts Options) (Stats, error) {
	years := make([]string, 0, len(flightsByYear))
	for year := range flightsByYear {
		years = append(years, year)
	}
	slices.Sort(years)
	slices.Reverse(years)

	var stats Stats
	for _, year := range years {
		stats.Total += len(flightsByYear[year])
	}
	if opts.DryRun {
		for _, year := range years {
			m.logger.Info("dry run", logging.String(logging.FieldYear, year), logging.Int("would_download", len(flightsByYear[year])))
		}
		return stats, nil
	}

	for _, year := range years {
		yearStats, err := m.downloadYear(ctx, year, flightsByYear[year], opts)
		yearStats.Total = 0
		stats.Add(yearStats)
		if err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// DownloadYear processes a single year's flights.
func (m *Manager) DownloadYear(ctx context.Context, year string, flights []flight.Descriptor, opts Options) (Stats, error) {
	if opts.DryRun {
		m.logger.Info("dry run", logging.String(logging.FieldYear, year), logging.Int("would_download", len(flights)))
		return Stats{Total: len(flights)}, nil
	}
	return m.downloadYear(ctx, year, flights, opts)
}

func (m *Manager) downloadYear(ctx context.Context, year string, flights []flight.Descriptor, opts Options) (Stats, error) {
	stats := Stats{Total: len(flights)}
	if len(flights) == 0 {
		return stats, nil
	}
	ctx = services.WithYear(ctx, year)
	logger := logging.WithContext(ctx, m.logger)

	dir := filepath.Join(m.root, m.scope, year)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return stats, services.Wrap(services.ErrDownload, "download", "mkdir", dir, err)
	}

	for _, d := range flights {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		filename := d.Filename()
		dest := filepath.Join(dir, filename)
		fileLogger := logger.With(logging.String(logging.FieldFilename, filename), logging.String(logging.FieldFlightID, d.ID))

		if igc.IsHTMLFile(dest) {
			fileLogger.Info("deleting html error page left by an earlier run")
			if err := fileutil.RemoveIfExists(dest); err != nil {
				fileLogger.Warn("could not delete html file", logging.Error(err))
			}
		}
		if fileutil.Exists(dest) && !opts.Force {
			fileLogger.Debug("skipping existing file", logging.Args(logging.DecisionAttrs("existing_file", "skip", "destination exists")...)...)
			stats.Skipped++
			continue
		}

		err := m.transfer(ctx, d, dest, fileLogger)
		switch {
		case err == nil:
			stats.Downloaded++
			fileLogger.Info("flight downloaded")
			if m.recorder != nil {
				if recErr := m.recorder.Record(ctx, d, dest, m.now().UTC()); recErr != nil {
					logging.WarnWithContext(fileLogger, "could not record download", "record_failed",
						logging.Error(recErr),
						logging.String(logging.FieldImpact, "file kept on disk but bookkeeping is incomplete"),
						logging.String(logging.FieldErrorHint, "run `olcsync metadata rebuild --from-files`"),
					)
				}
			}
			if err := sleep(ctx, SuccessDelay); err != nil {
				return stats, err
			}
		case services.Kind(err) == "rate_limit":
			logging.ErrorWithContext(fileLogger, "daily download limit reached", "rate_limited",
				logging.Error(err),
				logging.Int("downloaded", stats.Downloaded),
				logging.String(logging.FieldErrorHint, "resume tomorrow; stored files will be skipped"),
			)
			return stats, err
		case ctx.Err() != nil:
			return stats, ctx.Err()
		default:
			stats.Failed++
			logging.ErrorWithContext(fileLogger, "flight download failed", "download_failed",
				logging.Error(err),
				logging.String("url", d.DownloadURL),
			)
			if err := sleep(ctx, FailureDelay); err != nil {
				return stats, err
			}
		}
	}
	return stats, nil
}

func (m *Manager) backoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * time.Second
}

func (m *Manager) describe(d flight.Descriptor) string {
	return fmt.Sprintf("flight %s (%s)", d.ID, d.Filename())
}

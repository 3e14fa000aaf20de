package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"olcsync/internal/auth"
	"olcsync/internal/catalog"
	"olcsync/internal/config"
	"olcsync/internal/download"
	"olcsync/internal/flight"
	"olcsync/internal/logging"
	"olcsync/internal/metadata"
	"olcsync/internal/metrics"
	"olcsync/internal/services"
	"olcsync/internal/site"
	"olcsync/internal/state"
)

// Options selects what one run covers.
type Options struct {
	Scope flight.Scope
	// Years to process; empty means every supported year.
	Years    []string
	MinScore *float64
	Force    bool
	DryRun   bool
}

// Orchestrator wires the site, download manager and stores for a run.
type Orchestrator struct {
	cfg     *config.Config
	catalog *catalog.Store
	metrics *metrics.Recorder
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithCatalog records flights and runs in store.
func WithCatalog(store *catalog.Store) Option {
	return func(o *Orchestrator) { o.catalog = store }
}

// WithMetrics observes every run and writes the configured textfile.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = rec }
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New builds an Orchestrator for cfg.
func New(cfg *config.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:   cfg,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.NewComponentLogger(o.logger, "pipeline")
	return o
}

// run carries the per-run collaborators.
type run struct {
	summary  *Summary
	logger   *slog.Logger
	ledger   *state.Store
	meta     *metadata.Store
	authn    *auth.Authenticator
	lister   *site.Adapter
	manager  *download.Manager
	scopeKey string
}

// Run performs one sync. The returned summary is always populated. The error
// is non-nil for configuration or authentication failures and cancellation;
// a rate-limit abort is reported through Summary.Aborted only.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (Summary, error) {
	scopeKey := opts.Scope.Key()
	summary := &Summary{
		RunID:     o.newID(),
		Scope:     scopeKey,
		StartedAt: o.now().UTC(),
		Phase:     PhaseIdle,
		DryRun:    opts.DryRun,
	}
	ctx = services.WithRunID(ctx, summary.RunID)
	ctx = services.WithScope(ctx, scopeKey)
	r := &run{summary: summary, logger: logging.WithContext(ctx, o.logger), scopeKey: scopeKey}

	r.logger.Info("run started",
		logging.String("target", opts.Scope.String()),
		logging.Any("years", opts.Years),
		logging.Bool("force", opts.Force),
		logging.Bool("dry_run", opts.DryRun),
	)

	err := o.execute(ctx, r, opts)
	if err != nil {
		summary.Err = err
	}
	o.summarize(ctx, r)
	return *summary, err
}

func (o *Orchestrator) execute(ctx context.Context, r *run, opts Options) error {
	if err := opts.Scope.Validate(); err != nil {
		return err
	}
	user, pass, err := o.cfg.Credentials()
	if err != nil {
		return err
	}

	lock, err := state.Acquire(state.LockPath(o.cfg.Paths.StateDir, r.scopeKey))
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			r.logger.Warn("release scope lock", logging.Error(err))
		}
	}()

	r.ledger, err = state.Open(o.cfg.StatePath(r.scopeKey), r.scopeKey, state.WithLogger(o.logger))
	if err != nil {
		return err
	}
	r.meta = metadata.NewStore(o.cfg.Paths.DownloadDir, o.logger)
	if o.catalog != nil {
		if err := o.catalog.StartRun(ctx, r.summary.RunID, r.scopeKey, r.summary.StartedAt); err != nil {
			r.logger.Warn("catalog run start not recorded", logging.Error(err))
		}
	}

	if err := o.authenticate(ctx, r, user, pass); err != nil {
		return err
	}
	if err := o.wire(r); err != nil {
		return err
	}

	var snapshot *Snapshot
	if !opts.Force {
		snapshot = BuildSnapshot(r.ledger, r.meta, r.scopeKey, o.cfg.ScopeDownloadDir(r.scopeKey), r.logger)
		r.summary.Seen = snapshot.Len()
	}

	query := site.Query{
		Scope:    opts.Scope,
		Years:    opts.Years,
		MinScore: opts.MinScore,
		Known:    snapshot.Known,
	}
	dlOpts := download.Options{Force: opts.Force, DryRun: opts.DryRun}

	for result := range r.lister.Years(ctx, query) {
		if stop := o.processYear(ctx, r, result, dlOpts); stop {
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

func (o *Orchestrator) authenticate(ctx context.Context, r *run, user, pass string) error {
	r.summary.Phase = PhaseAuthenticating
	authn, err := auth.New(auth.Config{
		BaseURL:   o.cfg.OLC.BaseURL,
		UserAgent: o.cfg.OLC.UserAgent,
		Timeout:   time.Duration(o.cfg.OLC.RequestTimeout) * time.Second,
		Logger:    o.logger,
	})
	if err != nil {
		return err
	}
	if err := authn.Login(ctx, user, pass); err != nil {
		logging.ErrorWithContext(r.logger, "login failed", "auth_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check olc.username and olc.password"),
		)
		return err
	}
	r.authn = authn
	return nil
}

func (o *Orchestrator) wire(r *run) error {
	lister, err := site.New(site.Config{
		BaseURL:         o.cfg.OLC.BaseURL,
		Session:         r.authn,
		RequestInterval: time.Duration(o.cfg.OLC.RequestInterval) * time.Second,
		Logger:          o.logger,
		Now:             o.now,
	})
	if err != nil {
		return err
	}
	manager, err := download.New(download.Config{
		Root:       o.cfg.Paths.DownloadDir,
		Scope:      r.scopeKey,
		Session:    r.authn,
		Refresher:  r.authn,
		Recorder:   o.recorder(r),
		MaxRetries: o.cfg.Download.MaxRetries,
		Timeout:    time.Duration(o.cfg.OLC.DownloadTimeout) * time.Second,
		Logger:     o.logger,
		Now:        o.now,
	})
	if err != nil {
		return err
	}
	r.lister = lister
	r.manager = manager
	return nil
}

// recorder feeds a stored file into the metadata store, the ledger and the
// catalog.
func (o *Orchestrator) recorder(r *run) download.Recorder {
	return download.RecorderFunc(func(ctx context.Context, d flight.Descriptor, path string, at time.Time) error {
		rec := metadata.FromDescriptor(d, at)
		var errs []error
		if err := r.meta.AddFlight(r.scopeKey, d.Year, rec); err != nil {
			errs = append(errs, err)
		}
		r.ledger.MarkFlightProcessed(d.Filename(), d.Date, false)
		if o.catalog != nil {
			if err := o.catalog.UpsertFlight(ctx, catalog.FlightFromRecord(r.scopeKey, d.Year, rec)); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// processYear handles one streamed year and reports whether the run must stop.
func (o *Orchestrator) processYear(ctx context.Context, r *run, result site.YearResult, opts download.Options) bool {
	r.summary.Phase = PhaseListing
	ys := YearSummary{
		Year:       result.Year,
		Listed:     result.Listed,
		Known:      result.Known,
		Filtered:   result.Filtered,
		Unresolved: result.Unresolved,
	}
	logger := r.logger.With(logging.String(logging.FieldYear, result.Year))

	if result.Err != nil {
		ys.Err = result.Err
		r.summary.Years = append(r.summary.Years, ys)
		logging.WarnWithContext(logger, "year skipped", "year_failed",
			logging.Error(result.Err),
			logging.String(logging.FieldImpact, "year counted as zero flights"),
			logging.String(logging.FieldErrorHint, "rerun later; stored flights are skipped"),
		)
		return ctx.Err() != nil
	}

	r.summary.Phase = PhaseFiltering
	ys.Stats = download.Stats{Total: result.Known, Skipped: result.Known}
	logger.Info("year listed",
		logging.Int("listed", result.Listed),
		logging.Int("known", result.Known),
		logging.Int("filtered", result.Filtered),
		logging.Int("unresolved", result.Unresolved),
		logging.Int("to_download", len(result.Flights)),
	)

	r.summary.Phase = PhaseDownloading
	stats, err := r.manager.DownloadYear(ctx, result.Year, result.Flights, opts)
	ys.Stats.Add(stats)
	r.summary.Stats.Add(ys.Stats)

	if !opts.DryRun && stats.Downloaded > 0 && !r.ledger.Save() {
		logging.WarnWithContext(logger, "state checkpoint failed", "state_save_failed",
			logging.String(logging.FieldImpact, "files on disk are still detected next run"),
		)
	}

	switch {
	case err == nil:
		r.summary.Years = append(r.summary.Years, ys)
		return false
	case errors.Is(err, services.ErrRateLimit):
		r.summary.Years = append(r.summary.Years, ys)
		r.summary.Phase = PhaseAborted
		r.summary.Aborted = true
		r.summary.AbortReason = err.Error()
		logging.WarnWithContext(logger, "run aborted at the daily download limit", "rate_limited",
			logging.Int("downloaded", r.summary.Stats.Downloaded),
			logging.String(logging.FieldImpact, "remaining years are skipped until the next run"),
			logging.String(logging.FieldErrorHint, "run again tomorrow"),
		)
		return true
	case ctx.Err() != nil:
		ys.Err = err
		r.summary.Years = append(r.summary.Years, ys)
		return true
	default:
		ys.Err = err
		r.summary.Years = append(r.summary.Years, ys)
		logging.WarnWithContext(logger, "year download failed", "year_download_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "remaining flights of this year are skipped"),
		)
		return false
	}
}

func (o *Orchestrator) summarize(ctx context.Context, r *run) {
	aborted := r.summary.Aborted
	r.summary.Phase = PhaseSummarizing

	if r.ledger != nil && !r.summary.DryRun {
		r.ledger.Save()
	}
	r.summary.FinishedAt = o.now().UTC()

	// Bookkeeping must not be skipped because the run context ended.
	bg := context.WithoutCancel(ctx)
	if o.catalog != nil && r.ledger != nil {
		run := catalog.Run{
			ID:          r.summary.RunID,
			Scope:       r.scopeKey,
			StartedAt:   r.summary.StartedAt,
			FinishedAt:  r.summary.FinishedAt,
			YearsListed: r.summary.YearsListed(),
			YearsFailed: r.summary.YearsFailed(),
			Total:       r.summary.Stats.Total,
			Downloaded:  r.summary.Stats.Downloaded,
			Skipped:     r.summary.Stats.Skipped,
			Failed:      r.summary.Stats.Failed,
			Aborted:     aborted,
			DryRun:      r.summary.DryRun,
		}
		if r.summary.Err != nil {
			run.Error = r.summary.Err.Error()
		} else if aborted {
			run.Error = r.summary.AbortReason
		}
		if err := o.catalog.FinishRun(bg, run); err != nil {
			r.logger.Warn("catalog run not recorded", logging.Error(err))
		}
	}
	if o.metrics != nil && !r.summary.DryRun {
		o.metrics.Observe(metrics.Snapshot{
			Scope:       r.scopeKey,
			Total:       r.summary.Stats.Total,
			Downloaded:  r.summary.Stats.Downloaded,
			Skipped:     r.summary.Stats.Skipped,
			Failed:      r.summary.Stats.Failed,
			YearsListed: r.summary.YearsListed(),
			YearsFailed: r.summary.YearsFailed(),
			Aborted:     aborted,
			Finished:    r.summary.FinishedAt,
			Duration:    r.summary.Duration(),
		})
		if err := o.metrics.WriteTextfile(o.cfg.Paths.MetricsTextfile); err != nil {
			r.logger.Warn("metrics textfile not written", logging.Error(err))
		}
	}

	attrs := []logging.Attr{
		logging.Int("total", r.summary.Stats.Total),
		logging.Int("downloaded", r.summary.Stats.Downloaded),
		logging.Int("skipped", r.summary.Stats.Skipped),
		logging.Int("failed", r.summary.Stats.Failed),
		logging.Int("years_listed", r.summary.YearsListed()),
		logging.Int("years_failed", r.summary.YearsFailed()),
		logging.Bool("aborted", aborted),
		logging.Duration("duration", r.summary.Duration()),
	}
	if r.summary.Err != nil {
		attrs = append(attrs, logging.String("error_kind", services.Kind(r.summary.Err)))
	}
	r.logger.Info(fmt.Sprintf("run finished: %d downloaded, %d skipped, %d failed", r.summary.Stats.Downloaded, r.summary.Stats.Skipped, r.summary.Stats.Failed),
		logging.Args(attrs...)...)
	r.summary.Phase = PhaseDone
}

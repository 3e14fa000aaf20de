package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Run is one orchestrator execution.
type Run struct {
	ID          string
	Scope       string
	StartedAt   time.Time
	FinishedAt  time.Time
	YearsListed int
	YearsFailed int
	Total       int
	Downloaded  int
	Skipped     int
	Failed      int
	Aborted     bool
	DryRun      bool
	Error       string
}

// Duration is zero for unfinished runs.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

const runColumns = "run_id, scope, started_at, finished_at, years_listed, years_failed, total, downloaded, skipped, failed, aborted, dry_run, error_message"

// StartRun records a run that has not finished yet.
func (s *Store) StartRun(ctx context.Context, id, scope string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, scope, started_at) VALUES (?, ?, ?)`,
		id, scope, formatTime(startedAt),
	)
	if err != nil {
		return fmt.Errorf("start run %s: %w", id, err)
	}
	return nil
}

// FinishRun stores the final counters of run, inserting it when StartRun
// was never called.
func (s *Store) FinishRun(ctx context.Context, run Run) error {
	var errMsg any
	if run.Error != "" {
		errMsg = run.Error
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(run_id) DO UPDATE SET
            finished_at = excluded.finished_at,
            years_listed = excluded.years_listed,
            years_failed = excluded.years_failed,
            total = excluded.total,
            downloaded = excluded.downloaded,
            skipped = excluded.skipped,
            failed = excluded.failed,
            aborted = excluded.aborted,
            dry_run = excluded.dry_run,
            error_message = excluded.error_message`,
		run.ID, run.Scope, formatTime(run.StartedAt), formatTime(run.FinishedAt),
		run.YearsListed, run.YearsFailed, run.Total, run.Downloaded, run.Skipped, run.Failed,
		boolInt(run.Aborted), boolInt(run.DryRun), errMsg,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", run.ID, err)
	}
	return nil
}

// Runs lists the latest runs, newest first. An empty scope lists all.
func (s *Store) Runs(ctx context.Context, scope string, limit int) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs"
	var args []any
	if scope != "" {
		query += " WHERE scope = ?"
		args = append(args, scope)
	}
	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r        Run
			started  sql.NullString
			finished sql.NullString
			aborted  int
			dryRun   int
			errMsg   sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Scope, &started, &finished, &r.YearsListed, &r.YearsFailed,
			&r.Total, &r.Downloaded, &r.Skipped, &r.Failed, &aborted, &dryRun, &errMsg); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		r.Aborted = aborted != 0
		r.DryRun = dryRun != 0
		r.Error = errMsg.String
		out = append(out, r)
	}
	return out, rows.Err()
}

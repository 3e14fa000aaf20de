// Package metrics exposes run results as Prometheus gauges written to a
// node-exporter textfile after every run.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Snapshot is the outcome of one run.
type Snapshot struct {
	Scope       string
	Total       int
	Downloaded  int
	Skipped     int
	Failed      int
	YearsListed int
	YearsFailed int
	Aborted     bool
	Finished    time.Time
	Duration    time.Duration
}

// Recorder owns a private registry so only run metrics reach the textfile.
type Recorder struct {
	registry *prometheus.Registry

	flights     *prometheus.GaugeVec
	years       *prometheus.GaugeVec
	aborted     *prometheus.GaugeVec
	lastRun     *prometheus.GaugeVec
	runDuration *prometheus.GaugeVec
	runs        *prometheus.CounterVec
}

// NewRecorder builds a Recorder with all collectors registered.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		flights: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "olcsync_flights",
			Help: "Flights handled by the last run, by outcome",
		}, []string{"scope", "outcome"}),
		years: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "olcsync_years",
			Help: "Years listed by the last run, by result",
		}, []string{"scope", "result"}),
		aborted: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "olcsync_run_aborted",
			Help: "1 when the last run stopped at the daily download limit",
		}, []string{"scope"}),
		lastRun: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "olcsync_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}, []string{"scope"}),
		runDuration: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "olcsync_last_run_duration_seconds",
			Help: "Wall time of the last run",
		}, []string{"scope"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "olcsync_runs_total",
			Help: "Runs recorded by this process",
		}, []string{"scope"}),
	}
}

// Observe sets every gauge from snap.
func (r *Recorder) Observe(snap Snapshot) {
	scope := snap.Scope
	r.flights.WithLabelValues(scope, "total").Set(float64(snap.Total))
	r.flights.WithLabelValues(scope, "downloaded").Set(float64(snap.Downloaded))
	r.flights.WithLabelValues(scope, "skipped").Set(float64(snap.Skipped))
	r.flights.WithLabelValues(scope, "failed").Set(float64(snap.Failed))
	r.years.WithLabelValues(scope, "listed").Set(float64(snap.YearsListed))
	r.years.WithLabelValues(scope, "failed").Set(float64(snap.YearsFailed))
	aborted := 0.0
	if snap.Aborted {
		aborted = 1
	}
	r.aborted.WithLabelValues(scope).Set(aborted)
	if !snap.Finished.IsZero() {
		r.lastRun.WithLabelValues(scope).Set(float64(snap.Finished.Unix()))
	}
	r.runDuration.WithLabelValues(scope).Set(snap.Duration.Seconds())
	r.runs.WithLabelValues(scope).Inc()
}

// Gatherer exposes the private registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile atomically writes the registry in text format to path.
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

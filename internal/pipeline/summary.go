package pipeline

import (
	"time"

	"olcsync/internal/download"
)

// Phase names the orchestrator's position in a run.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseAuthenticating Phase = "authenticating"
	PhaseListing        Phase = "listing"
	PhaseFiltering      Phase = "filtering"
	PhaseDownloading    Phase = "downloading"
	PhaseAborted        Phase = "aborted"
	PhaseSummarizing    Phase = "summarizing"
	PhaseDone           Phase = "done"
)

// YearSummary is the outcome of one listed year.
type YearSummary struct {
	Year       string
	Listed     int
	Known      int
	Filtered   int
	Unresolved int
	Stats      download.Stats
	// Err is set when the year was listed or downloaded with errors and
	// counted as zero flights.
	Err error
}

// Summary is the result of a run. It is always populated, even when Run
// returns an error.
type Summary struct {
	RunID       string
	Scope       string
	StartedAt   time.Time
	FinishedAt  time.Time
	Phase       Phase
	Years       []YearSummary
	Stats       download.Stats
	Aborted     bool
	AbortReason string
	DryRun      bool
	Seen        int
	Err         error
}

// YearsListed counts years whose listing succeeded.
func (s Summary) YearsListed() int {
	n := 0
	for _, y := range s.Years {
		if y.Err == nil {
			n++
		}
	}
	return n
}

// YearsFailed counts years that were treated as empty after an error.
func (s Summary) YearsFailed() int {
	return len(s.Years) - s.YearsListed()
}

// Duration is the wall time of the run.
func (s Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

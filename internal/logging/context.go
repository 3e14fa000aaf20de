package logging

import (
	"context"
	"log/slog"

	"olcsync/internal/services"
)

const (
	// FieldComponent names the package that emitted a record.
	FieldComponent = "component"
	// FieldRunID identifies one orchestrator run.
	FieldRunID = "run_id"
	// FieldScope is the airport code or pilot scope being processed.
	FieldScope = "scope"
	// FieldYear is the season being listed or downloaded.
	FieldYear = "year"
	// FieldFlightID is the dataset identifier of a flight.
	FieldFlightID = "flight_id"
	// FieldFilename is the derived track-log filename.
	FieldFilename = "filename"
	// FieldEventType classifies warnings and errors for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to try next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldDecisionType names the kind of decision being logged.
	FieldDecisionType = "decision_type"
)

// ContextFields returns the run, scope and year carried by ctx as attrs.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if scope, ok := services.ScopeFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldScope, scope))
	}
	if year, ok := services.YearFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldYear, year))
	}
	return fields
}

// WithContext adds ContextFields(ctx) to logger.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}

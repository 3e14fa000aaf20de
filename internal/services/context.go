package services

import "context"

// runField keys the values a run carries through its context. Each one is
// copied onto log records by logging.WithContext.
type runField int

const (
	runIDField runField = iota
	scopeField
	yearField
)

func withField(ctx context.Context, key runField, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func field(ctx context.Context, key runField) (string, bool) {
	value, _ := ctx.Value(key).(string)
	return value, value != ""
}

// WithRunID tags ctx with the identifier of one download or upload run.
func WithRunID(ctx context.Context, id string) context.Context {
	return withField(ctx, runIDField, id)
}

func RunIDFromContext(ctx context.Context) (string, bool) { return field(ctx, runIDField) }

// WithScope tags ctx with the airport code or pilot key being processed.
func WithScope(ctx context.Context, scope string) context.Context {
	return withField(ctx, scopeField, scope)
}

func ScopeFromContext(ctx context.Context) (string, bool) { return field(ctx, scopeField) }

// WithYear tags ctx with the season being processed.
func WithYear(ctx context.Context, year string) context.Context {
	return withField(ctx, yearField, year)
}

func YearFromContext(ctx context.Context) (string, bool) { return field(ctx, yearField) }

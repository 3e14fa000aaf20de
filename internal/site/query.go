package site

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/sony/gobreaker/v2"

	"olcsync/internal/flight"
	"olcsync/internal/logging"
	"olcsync/internal/services"
)

// Query selects the flights to list.
type Query struct {
	Scope flight.Scope
	// Years to list, newest first after sorting; empty means every supported year.
	Years []string
	// MinScore drops rows scoring below it (or without a score) before any detail request.
	MinScore *float64
	// Known reports identifiers that are already on disk; they are not resolved.
	Known func(id string) bool
}

// YearResult is one year's worth of resolved flights.
type YearResult struct {
	Year    string
	Flights []flight.Descriptor
	// Listed counts rows the listing returned.
	Listed int
	// Known counts rows skipped because Query.Known matched.
	Known int
	// Filtered counts rows dropped by the score or airport filters.
	Filtered int
	// Unresolved counts rows whose detail page carried no usable link.
	Unresolved int
	// Err fails the whole year. An open detail circuit breaker sets it too,
	// so untried rows show up as a failed year rather than as drops.
	Err error
}

// Years streams results one year at a time, newest first. The caller can stop
// early by breaking out of the loop; YearDelay is only paid before a year
// that is actually listed. A failing year yields a result with Err set and
// the sequence continues.
func (a *Adapter) Years(ctx context.Context, q Query) iter.Seq[YearResult] {
	years := a.normalizeYears(q.Years)
	return func(yield func(YearResult) bool) {
		scope, scopeErr := a.ResolveScope(ctx, q.Scope)
		for i, year := range years {
			if ctx.Err() != nil {
				return
			}
			if scopeErr != nil {
				if !yield(YearResult{Year: year, Err: scopeErr}) {
					return
				}
				continue
			}
			if i > 0 {
				a.logger.Debug("waiting between years", logging.Duration("delay", YearDelay))
				if err := sleep(ctx, YearDelay); err != nil {
					return
				}
			}
			scoped := q
			scoped.Scope = scope
			result := a.ListYear(ctx, scoped, year)
			if !yield(result) {
				return
			}
		}
	}
}

// ListYear lists and resolves one year. Errors are reported in the result.
func (a *Adapter) ListYear(ctx context.Context, q Query, year string) YearResult {
	ctx = services.WithYear(ctx, year)
	logger := logging.WithContext(ctx, a.logger)
	result := YearResult{Year: year}

	var (
		rows []row
		err  error
	)
	if q.Scope.IsPilot() {
		rows, err = a.listFlightbook(ctx, q.Scope, year)
	} else {
		rows, err = a.listAirfield(ctx, q.Scope.Airport, year)
	}
	if err != nil {
		result.Err = services.Wrap(services.ErrScraping, "site", "list", "year "+year, err)
		logging.WarnWithContext(logger, "year listing failed", "year_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "no flights collected for this year"),
			logging.String(logging.FieldErrorHint, "retry later; the site may be slow or the page layout changed"),
		)
		return result
	}
	result.Listed = len(rows)

	sampler := logging.NewProgressSampler(10)
	for i, r := range rows {
		if ctx.Err() != nil {
			result.Err = ctx.Err()
			return result
		}
		if sampler.ShouldLog(year, i, len(rows)) {
			logger.Info("resolving flights", logging.Int("done", i), logging.Int("rows", len(rows)))
		}
		if r.ID == "" {
			result.Filtered++
			continue
		}
		if q.Known != nil && q.Known(r.ID) {
			result.Known++
			logger.Debug("flight already downloaded", logging.String(logging.FieldFlightID, r.ID))
			continue
		}
		if !passesScore(r.Score, q.MinScore) {
			result.Filtered++
			logger.Debug("flight below minimum score",
				logging.Args(append(logging.DecisionAttrs("score_filter", "skip", "below minimum"),
					logging.String(logging.FieldFlightID, r.ID))...)...)
			continue
		}
		if filter := q.Scope.AirportFilter; filter != "" && !strings.Contains(strings.ToLower(r.Airport), strings.ToLower(filter)) {
			result.Filtered++
			continue
		}

		desc, err := a.resolveRow(ctx, year, r)
		if err != nil {
			result.Unresolved++
			if ctx.Err() != nil {
				result.Err = ctx.Err()
				return result
			}
			if breakerOpen(err) {
				result.Flights = nil
				result.Err = services.Wrap(services.ErrScraping, "site", "resolve",
					fmt.Sprintf("year %s: detail pages unavailable after %d of %d rows", year, i, len(rows)), err)
				logging.WarnWithContext(logger, "detail pages unavailable, year abandoned", "detail_breaker_open",
					logging.Error(err),
					logging.Int("rows_left", len(rows)-i),
					logging.String(logging.FieldImpact, "no flights of this year are downloaded this run"),
					logging.String(logging.FieldErrorHint, "rerun later; the site is failing detail requests"),
				)
				return result
			}
			logging.WarnWithContext(logger, "flight dropped", "flight_unresolved",
				logging.String(logging.FieldFlightID, r.ID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "flight will not be downloaded this run"),
			)
			continue
		}
		result.Flights = append(result.Flights, desc)
	}
	logger.Info("year listed",
		logging.Int("listed", result.Listed),
		logging.Int("resolved", len(result.Flights)),
		logging.Int("known", result.Known),
		logging.Int("filtered", result.Filtered),
		logging.Int("unresolved", result.Unresolved),
	)
	return result
}

// breakerOpen reports a detail fetch refused by the circuit breaker without
// reaching the site.
func breakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func passesScore(score, minimum *float64) bool {
	if minimum == nil {
		return true
	}
	return score != nil && *score >= *minimum
}

func (a *Adapter) normalizeYears(years []string) []string {
	now := a.now()
	if len(years) == 0 {
		return flight.SupportedYears(now)
	}
	seen := make(map[string]bool, len(years))
	out := make([]string, 0, len(years))
	for _, y := range years {
		y = strings.TrimSpace(y)
		if !flight.InRange(y, now) || seen[y] {
			a.logger.Warn("ignoring unsupported year", logging.String(logging.FieldYear, y))
			continue
		}
		seen[y] = true
		out = append(out, y)
	}
	// four-digit years sort lexically
	slices.Sort(out)
	slices.Reverse(out)
	return out
}

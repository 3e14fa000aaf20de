package site_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"olcsync/internal/auth"
	"olcsync/internal/flight"
	"olcsync/internal/services"
	"olcsync/internal/site"
	"olcsync/internal/testsupport"
)

func fixedNow() time.Time { return time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC) }

func newAdapter(t *testing.T, fake *testsupport.FakeOLC) *site.Adapter {
	t.Helper()
	authn, err := auth.New(auth.Config{BaseURL: fake.URL})
	if err != nil {
		t.Fatalf("auth.New: %v", err)
	}
	if err := authn.Login(context.Background(), fake.Username, fake.Password); err != nil {
		t.Fatalf("Login: %v", err)
	}
	adapter, err := site.New(site.Config{BaseURL: fake.URL, Session: authn, Now: fixedNow})
	if err != nil {
		t.Fatalf("site.New: %v", err)
	}
	return adapter
}

func noSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var delays []time.Duration
	restore := site.SetSleepForTests(func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	})
	t.Cleanup(restore)
	return &delays
}

func score(v float64) *float64 { return &v }

func airportFlight(id, year string, points *float64) testsupport.FakeFlight {
	return testsupport.FakeFlight{
		ID:        id,
		LegacyID:  "-" + id,
		Year:      year,
		Date:      year + "-07-01",
		FirstName: "Jane",
		SurName:   "Doe " + id,
		Airport:   "EDKA",
		Points:    points,
		Distance:  score(312.4),
		Speed:     score(87.5),
		Plane:     "LS8",
	}
}

func TestListYearPaginatesInBatches(t *testing.T) {
	noSleep(t)
	fake := testsupport.NewFakeOLC(t)
	for i := range 120 {
		fake.AddFlights(airportFlight(fmt.Sprintf("%d", 1000+i), "2024", score(100)))
	}
	adapter := newAdapter(t, fake)

	result := adapter.ListYear(context.Background(), site.Query{Scope: flight.AirportScope("EDKA")}, "2024")
	if result.Err != nil {
		t.Fatalf("ListYear error: %v", result.Err)
	}
	if fake.ListHits() != 3 {
		t.Fatalf("expected 3 listing batches, got %d", fake.ListHits())
	}
	if result.Listed != 120 || len(result.Flights) != 120 {
		t.Fatalf("expected 120 flights, listed=%d resolved=%d", result.Listed, len(result.Flights))
	}
	if fake.TotalDetailHits() != 120 {
		t.Fatalf("expected one detail request per flight, got %d", fake.TotalDetailHits())
	}
}

func TestResolvedDescriptorCarriesLinks(t *testing.T) {
	noSleep(t)
	fake := testsupport.NewFakeOLC(t)
	fake.AddFlights(airportFlight("1818431339", "2024", score(650.5)))
	adapter := newAdapter(t, fake)

	result := adapter.ListYear(context.Background(), site.Query{Scope: flight.AirportScope("edka")}, "2024")
	if len(result.Flights) != 1 {
		t.Fatalf("expected one flight, got %+v", result)
	}
	d := result.Flights[0]
	if d.ID != "1818431339" || d.LegacyFlightID != "-1818431339" {
		t.Fatalf("unexpected ids %+v", d)
	}
	if !strings.Contains(d.DownloadURL, "download.html?flightId=-1818431339") || strings.Contains(d.DownloadURL, "kmlfile") {
		t.Fatalf("expected track-log link, got %q", d.DownloadURL)
	}
	if d.RefererURL != fake.DetailURL("1818431339") {
		t.Fatalf("expected referer to be the detail page, got %q", d.RefererURL)
	}
	if d.Pilot != "Jane Doe 1818431339" || d.Airport != "Airport EDKA" || d.Date != "2024-07-01" {
		t.Fatalf("unexpected listing fields %+v", d)
	}
	if d.Score == nil || *d.Score != 650.5 || d.Aircraft != "LS8" {
		t.Fatalf("unexpected numeric fields %+v", d)
	}
}

func TestMinScoreFilterAvoidsDetailRequests(t *testing.T) {
	noSleep(t)
	fake := testsupport.NewFakeOLC(t)
	fake.AddFlights(
		airportFlight("499", "2024", score(499.9)),
		airportFlight("500", "2024", score(500.0)),
		airportFlight("777", "2024", nil),
	)
	adapter := newAdapter(t, fake)

	result := adapter.ListYear(context.Background(), site.Query{
		Scope:    flight.AirportScope("EDKA"),
		MinScore: score(500),
	}, "2024")

	if fake.DetailHits("499") != 0 {
		t.Fatal("row scoring 499.9 must not trigger a detail request")
	}
	if fake.DetailHits("500") != 1 {
		t.Fatalf("row scoring 500.0 must trigger exactly one detail request, got %d", fake.DetailHits("500"))
	}
	if fake.DetailHits("777") != 0 {
		t.Fatal("row without a score must not pass a minimum score")
	}
	if len(result.Flights) != 1 || result.Filtered != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestKnownFlightsAreNotResolved(t *testing.T) {
	noSleep(t)
	fake := testsupport.NewFakeOLC(t)
	fake.AddFlights(airportFlight("1", "2024", nil), airportFlight("2", "2024", nil))
	adapter := newAdapter(t, fake)

	result := adapter.ListYear(context.Background(), site.Query{
		Scope: flight.AirportScope("EDKA"),
		Known: func(id string) bool { return id == "1" },
	}, "2024")
	if result.Known != 1 || len(result.Flights) != 1 || result.Flights[0].ID != "2" {
		t.Fatalf("unexpected result %+v", result)
	}
	if fake.DetailHits("1") != 0 {
		t.Fatal("known flight must not be resolved")
	}
}

func TestRowWithoutLinkIsDropped(t *testing.T) {
	noSleep(t)
	fake := testsupport.NewFakeOLC(t)
	broken := airportFlight("9", "2024", nil)
	broken.NoDownloadLink = true
	fake.AddFlights(broken, airportFlight("10", "2024", nil))
	adapter := newAdapter(t, fake)

	result := adapter.ListYear(context.Background(), site.Query{Scope: flight.AirportScope("EDKA")}, "2024")
	if result.Err != nil {
		t.Fatalf("dropped row must not fail the year: %v", result.Err)
	}
	if result.Unresolved != 1 || len(result.Flights) != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestOpenDetailBreakerFailsRemainingYears(t *testing.T) {
	noSleep(t)
	fake := testsupport.NewFakeOLC(t)
	for i := 1; i <= 8; i++ {
		f := airportFlight(fmt.Sprint(100+i), "2024", nil)
		f.DetailError = true
		fake.AddFlights(f)
	}
	fake.AddFlights(airportFlight("201", "2023", nil))
	adapter := newAdapter(t, fake)

	var results []site.YearResult
	for result := range adapter.Years(context.Background(), site.Query{
		Scope: flight.AirportScope("EDKA"),
		Years: []string{"2024", "2023"},
	}) {
		results = append(results, result)
	}
	if len(results) != 2 {
		t.Fatalf("expected two years, got %d", len(results))
	}
	for _, result := range results {
		if !errors.Is(result.Err, services.ErrScraping) {
			t.Fatalf("year %s: expected scraping error, got %v", result.Year, result.Err)
		}
		if len(result.Flights) != 0 {
			t.Fatalf("year %s: failed year must carry no flights, got %d", result.Year, len(result.Flights))
		}
	}
	if results[0].Listed != 8 || results[0].Unresolved != 6 {
		t.Fatalf("unexpected 2024 counts %+v", results[0])
	}
	if hits := fake.TotalDetailHits(); hits != 5 {
		t.Fatalf("expected the breaker to stop detail requests after 5 failures, got %d", hits)
	}
	if fake.DetailHits("201") != 0 {
		t.Fatal("2023 detail page fetched while the breaker was open")
	}
}

func TestYearsStreamsNewestFirstAndSurvivesFailures(t *testing.T) {
	delays := noSleep(t)
	fake := testsupport.NewFakeOLC(t)
	fake.AddFlights(airportFlight("1", "2024", nil), airportFlight("2", "2022", nil))
	fake.FailYear("2023")
	adapter := newAdapter(t, fake)

	var years []string
	var failed []string
	for result := range adapter.Years(context.Background(), site.Query{
		Scope: flight.AirportScope("EDKA"),
		Years: []string{"2022", "2024", "2023"},
	}) {
		years = append(years, result.Year)
		if result.Err != nil {
			if !errors.Is(result.Err, services.ErrScraping) {
				t.Fatalf("expected scraping error, got %v", result.Err)
			}
			failed = append(failed, result.Year)
		}
	}
	if strings.Join(years, ",") != "2024,2023,2022" {
		t.Fatalf("unexpected year order %v", years)
	}
	if len(failed) != 1 || failed[0] != "2023" {
		t.Fatalf("expected only 2023 to fail, got %v", failed)
	}
	if len(*delays) != 2 {
		t.Fatalf("expected a delay between each year, got %v", *delays)
	}
	for _, d := range *delays {
		if d != site.YearDelay {
			t.Fatalf("unexpected delay %s", d)
		}
	}
}

func TestYearsStopsWhenCallerBreaks(t *testing.T) {
	delays := noSleep(t)
	fake := testsupport.NewFakeOLC(t)
	fake.AddFlights(airportFlight("1", "2024", nil))
	adapter := newAdapter(t, fake)

	for range adapter.Years(context.Background(), site.Query{Scope: flight.AirportScope("EDKA"), Years: []string{"2024", "2023"}}) {
		break
	}
	if fake.ListHits() != 1 {
		t.Fatalf("expected only the first year to be listed, got %d requests", fake.ListHits())
	}
	if len(*delays) != 0 {
		t.Fatalf("no delay expected after breaking, got %v", *delays)
	}
}

func TestYearsDefaultsToSupportedRange(t *testing.T) {
	noSleep(t)
	fake := testsupport.NewFakeOLC(t)
	adapter := newAdapter(t, fake)

	count := 0
	first := ""
	for result := range adapter.Years(context.Background(), site.Query{Scope: flight.AirportScope("EDKA")}) {
		if first == "" {
			first = result.Year
		}
		count++
	}
	if first != "2026" || count != 20 {
		t.Fatalf("expected 20 years from 2026, got first=%s count=%d", first, count)
	}
}

func TestFlightbookScopeDiscoversPilotAndFiltersAirport(t *testing.T) {
	noSleep(t)
	fake := testsupport.NewFakeOLC(t)
	home := airportFlight("21", "2024", score(420))
	home.Flightbook = true
	home.Airport = "Aachen Merzbrück"
	away := airportFlight("22", "2024", score(510))
	away.Flightbook = true
	away.Airport = "Bitburg"
	fake.AddFlights(home, away, airportFlight("23", "2024", nil))
	adapter := newAdapter(t, fake)

	scope, err := adapter.ResolveScope(context.Background(), flight.PilotScope("aachen"))
	if err != nil {
		t.Fatalf("ResolveScope: %v", err)
	}
	if scope.PilotID != fake.PilotID {
		t.Fatalf("expected pilot id %s, got %q", fake.PilotID, scope.PilotID)
	}

	result := adapter.ListYear(context.Background(), site.Query{Scope: scope}, "2024")
	if result.Err != nil {
		t.Fatalf("ListYear: %v", result.Err)
	}
	if result.Listed != 2 || len(result.Flights) != 1 || result.Filtered != 1 {
		t.Fatalf("unexpected flightbook result %+v", result)
	}
	d := result.Flights[0]
	if d.ID != "21" || d.Pilot != "Jane Doe 21" || d.Date != "2024-07-01" || d.Score == nil || *d.Score != 420 {
		t.Fatalf("unexpected flightbook descriptor %+v", d)
	}
	if fake.DetailHits("22") != 0 {
		t.Fatal("airport-filtered row must not be resolved")
	}
}

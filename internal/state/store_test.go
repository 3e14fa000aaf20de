package state_test

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"olcsync/internal/services"
	"olcsync/internal/state"
)

func openStore(t *testing.T, path string) *state.Store {
	t.Helper()
	clock := time.Date(2024, 7, 2, 8, 0, 0, 0, time.UTC)
	s, err := state.Open(path, "EDKA", state.WithClock(func() time.Time { return clock }))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestNewFlightsFiltersProcessed(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "EDKA.json"))
	s.MarkFlightProcessed("A.igc", "2024-07-01", false)

	got := s.NewFlights([]string{"A.igc", "B.igc"})
	if !slices.Equal(got, []string{"B.igc"}) {
		t.Fatalf("NewFlights = %v, want [B.igc]", got)
	}
}

func TestFlightMarkDoesNotCloseDate(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "EDKA.json"))
	if s.DateStatus("2024-07-01") != state.Unseen {
		t.Fatal("expected unseen date")
	}
	s.MarkFlightProcessed("A.igc", "2024-07-01", false)
	if s.IsDateProcessed("2024-07-01") {
		t.Fatal("recording a flight must not close the date")
	}
	if s.DateStatus("2024-07-01") != state.FlightsRecorded {
		t.Fatalf("expected flights_recorded, got %s", s.DateStatus("2024-07-01"))
	}
	s.MarkDateProcessed("2024-07-01", "map")
	if !s.IsDateProcessed("2024-07-01") {
		t.Fatal("expected date closed after MarkDateProcessed")
	}
}

func TestFilenameKeepsFirstDate(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "EDKA.json"))
	s.MarkFlightProcessed("A.igc", "2024-07-01", false)
	s.MarkFlightProcessed("A.igc", "2024-07-01", true)
	s.MarkFlightProcessed("A.igc", "2024-07-05", true)

	if got := s.FlightsForDate("2024-07-01"); !slices.Equal(got, []string{"A.igc"}) {
		t.Fatalf("expected single entry, got %v", got)
	}
	if got := s.FlightsForDate("2024-07-05"); len(got) != 0 {
		t.Fatalf("file must stay under its first date, got %v", got)
	}
	rec, ok := s.Flight("A.igc")
	if !ok || !rec.Uploaded || rec.Date != "2024-07-01" {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "EDKA.json")
	s := openStore(t, path)
	s.MarkFlightProcessed("A.igc", "2024-07-01", true)
	s.MarkFlightProcessed("B.igc", "2024-07-02", false)
	s.MarkDateProcessed("2024-07-02", "tiles")
	if !s.Save() {
		t.Fatal("Save returned false")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, key := range []string{`"processed_flights"`, `"processed_dates"`, `"fully_processed"`, `"version": "1.0"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("document missing %s:\n%s", key, data)
		}
	}

	reloaded := openStore(t, path)
	if !reloaded.IsFlightProcessed("A.igc") || !reloaded.IsFlightProcessed("B.igc") {
		t.Fatal("flights lost on reload")
	}
	if !reloaded.IsDateProcessed("2024-07-02") || reloaded.IsDateProcessed("2024-07-01") {
		t.Fatal("date statuses lost on reload")
	}
	recent := reloaded.RecentDates(10)
	if len(recent) != 2 || recent[0].Date != "2024-07-02" || !slices.Equal(recent[0].Flags, []string{"tiles"}) {
		t.Fatalf("unexpected recent dates %+v", recent)
	}
	sum := reloaded.Summary()
	if sum.Flights != 2 || sum.Dates != 2 || sum.FullyProcessed != 1 || sum.Scope != "EDKA" {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestSaveReportsFailure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	s := openStore(t, filepath.Join(dir, "EDKA.json"))
	s.MarkFlightProcessed("A.igc", "2024-07-01", false)

	// Replace the state directory with a regular file so the write fails.
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dir, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if s.Save() {
		t.Fatal("expected Save to report failure when the directory is a file")
	}
	if !s.IsFlightProcessed("A.igc") {
		t.Fatal("failed save dropped in-memory state")
	}
}

func TestUndatedFlightAddsNoDateEntry(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "EDKA.json"))
	s.MarkFlightProcessed("2024_Jane_Doe_1.igc", "", false)

	if !s.IsFlightProcessed("2024_Jane_Doe_1.igc") {
		t.Fatal("undated flight not recorded")
	}
	if sum := s.Summary(); sum.Flights != 1 || sum.Dates != 0 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if len(s.RecentDates(10)) != 0 {
		t.Fatalf("unexpected dates %+v", s.RecentDates(10))
	}
}

func TestResetEmptiesLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "EDKA.json")
	s := openStore(t, path)
	s.MarkFlightProcessed("A.igc", "2024-07-01", false)
	s.Reset()
	if s.IsFlightProcessed("A.igc") || s.Summary().Dates != 0 {
		t.Fatal("reset did not clear the ledger")
	}
	if s.Scope() != "EDKA" {
		t.Fatalf("reset lost scope, got %q", s.Scope())
	}
}

func TestCorruptDocumentIsMovedAside(t *testing.T) {
	path := filepath.Join(t.TempDir(), "EDKA.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := openStore(t, path)
	if s.Summary().Flights != 0 {
		t.Fatal("expected empty ledger")
	}
	if _, err := os.Stat(path + ".corrupt"); err != nil {
		t.Fatalf("expected backup: %v", err)
	}
}

func TestLegacyDocumentDerivesStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "EDKA.json")
	legacy := `{
  "scope": "EDKA",
  "last_updated": null,
  "processed_dates": {
    "2024-07-01": {"flights": ["A.igc"], "last_processed": null},
    "2024-07-02": {"flights": ["B.igc"], "last_processed": "2024-07-03T00:00:00Z"}
  },
  "processed_flights": {
    "A.igc": {"date": "2024-07-01", "uploaded_to_r2": false, "processed_at": "2024-07-01T10:00:00Z"},
    "B.igc": {"date": "2024-07-02", "uploaded_to_r2": true, "processed_at": "2024-07-02T10:00:00Z"}
  },
  "metadata": {"created_at": "2024-01-01T00:00:00Z"}
}`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}
	s := openStore(t, path)
	if s.DateStatus("2024-07-01") != state.FlightsRecorded {
		t.Fatalf("expected flights_recorded, got %s", s.DateStatus("2024-07-01"))
	}
	if !s.IsDateProcessed("2024-07-02") {
		t.Fatal("expected dated entry with last_processed to be closed")
	}
}

func TestLockIsExclusive(t *testing.T) {
	path := state.LockPath(t.TempDir(), "EDKA")
	first, err := state.Acquire(path)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if _, err := state.Acquire(path); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for held lock, got %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	second, err := state.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	_ = second.Release()
}

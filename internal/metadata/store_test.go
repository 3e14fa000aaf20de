package metadata_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"olcsync/internal/flight"
	"olcsync/internal/metadata"
	"olcsync/internal/testsupport"
)

func ptr(v float64) *float64 { return &v }

func newStore(t *testing.T) (*metadata.Store, string) {
	t.Helper()
	root := t.TempDir()
	s := metadata.NewStore(root, nil)
	s.SetClockForTests(func() time.Time { return time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC) })
	return s, root
}

func sampleRecord(id, date string) metadata.Record {
	d := flight.Descriptor{
		ID:             id,
		LegacyFlightID: "-" + id,
		Year:           "2024",
		Date:           date,
		Pilot:          "Jane Doe",
		Airport:        "Airport EDKA",
		Score:          ptr(612.3),
		DownloadURL:    "https://example.invalid/download.html?flightId=-" + id,
		RefererURL:     "https://example.invalid/flightinfo.html?dsId=" + id,
	}
	return metadata.FromDescriptor(d, time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC))
}

func TestLoadMissingDocumentIsEmpty(t *testing.T) {
	s, _ := newStore(t)
	records, err := s.Load("EDKA", "2024")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty map, got %d", len(records))
	}
}

func TestAddFlightReplacesByID(t *testing.T) {
	s, _ := newStore(t)
	if err := s.AddFlight("EDKA", "2024", sampleRecord("1", "2024-07-01")); err != nil {
		t.Fatalf("AddFlight: %v", err)
	}
	if err := s.AddFlight("EDKA", "2024", sampleRecord("2", "2024-07-03")); err != nil {
		t.Fatalf("AddFlight: %v", err)
	}
	updated := sampleRecord("1", "2024-07-01")
	updated.Aircraft = "Discus 2"
	if err := s.AddFlight("EDKA", "2024", updated); err != nil {
		t.Fatalf("AddFlight: %v", err)
	}

	records, err := s.Load("EDKA", "2024")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records["1"].Aircraft != "Discus 2" {
		t.Fatalf("record not replaced: %+v", records["1"])
	}
	if records["2"].Filename != "2024_Jane_Doe_2.igc" || *records["2"].Score != 612.3 {
		t.Fatalf("unexpected record %+v", records["2"])
	}
}

func TestNilScoreStaysNull(t *testing.T) {
	s, _ := newStore(t)
	rec := sampleRecord("3", "2024-07-01")
	rec.Score = nil
	if err := s.AddFlight("EDKA", "2024", rec); err != nil {
		t.Fatalf("AddFlight: %v", err)
	}
	data, err := os.ReadFile(s.Path("EDKA", "2024"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"points": null`) {
		t.Fatalf("expected null points:\n%s", data)
	}
}

func TestValidateAndFixFlipsStatuses(t *testing.T) {
	s, root := newStore(t)
	present := sampleRecord("10", "2024-07-01")
	gone := sampleRecord("11", "2024-07-02")
	broken := sampleRecord("12", "2024-07-03")
	for _, rec := range []metadata.Record{present, gone, broken} {
		if err := s.AddFlight("EDKA", "2024", rec); err != nil {
			t.Fatalf("AddFlight: %v", err)
		}
	}
	testsupport.WriteIGC(t, filepath.Join(root, "EDKA", "2024", present.Filename), "2024-07-01", "Jane Doe")
	testsupport.WriteBytes(t, filepath.Join(root, "EDKA", "2024", broken.Filename), []byte(testsupport.HTMLErrorPage))

	valid, missing := s.ValidateAndFix("EDKA", "2024")
	if valid != 1 || missing != 2 {
		t.Fatalf("ValidateAndFix = (%d, %d), want (1, 2)", valid, missing)
	}
	records, _ := s.Load("EDKA", "2024")
	if records["10"].Status != metadata.StatusDownloaded ||
		records["11"].Status != metadata.StatusMissing ||
		records["12"].Status != metadata.StatusMissing {
		t.Fatalf("unexpected statuses %+v", records)
	}

	testsupport.WriteIGC(t, filepath.Join(root, "EDKA", "2024", gone.Filename), "2024-07-02", "Jane Doe")
	valid, missing = s.ValidateAndFix("EDKA", "2024")
	if valid != 2 || missing != 1 {
		t.Fatalf("second pass = (%d, %d), want (2, 1)", valid, missing)
	}
}

func TestValidateAndFixNeverFails(t *testing.T) {
	s, root := newStore(t)
	testsupport.WriteBytes(t, filepath.Join(root, "EDKA", "2024", metadata.FileName), []byte("{broken"))
	valid, missing := s.ValidateAndFix("EDKA", "2024")
	if valid != 0 || missing != 0 {
		t.Fatalf("expected zero counts, got (%d, %d)", valid, missing)
	}
}

func TestKnownIDsOnlyDownloaded(t *testing.T) {
	s, root := newStore(t)
	a := sampleRecord("20", "2024-07-01")
	b := sampleRecord("21", "2024-07-01")
	b.Status = metadata.StatusMissing
	_ = s.AddFlight("EDKA", "2024", a)
	_ = s.AddFlight("EDKA", "2024", b)
	old := sampleRecord("22", "2023-06-01")
	_ = s.AddFlight("EDKA", "2023", old)
	if err := os.MkdirAll(filepath.Join(root, "EDKA", "misc"), 0o755); err != nil {
		t.Fatal(err)
	}

	years, err := s.Years("EDKA")
	if err != nil || len(years) != 2 || years[0] != "2024" {
		t.Fatalf("Years = %v, %v", years, err)
	}
	ids, err := s.KnownIDs("EDKA")
	if err != nil {
		t.Fatalf("KnownIDs: %v", err)
	}
	if _, ok := ids["20"]; !ok {
		t.Fatal("expected 20")
	}
	if _, ok := ids["22"]; !ok {
		t.Fatal("expected 22")
	}
	if _, ok := ids["21"]; ok {
		t.Fatal("missing record must not count as known")
	}
}

func TestRebuildFromFiles(t *testing.T) {
	s, root := newStore(t)
	dir := filepath.Join(root, "EDKA", "2024")
	testsupport.WriteIGC(t, filepath.Join(dir, "2024_Max_Muster_555.igc"), "2024-05-10", "Max Muster")
	testsupport.WriteBytes(t, filepath.Join(dir, "2024_Bad_File_556.igc"), []byte(testsupport.HTMLErrorPage))
	testsupport.WriteIGC(t, filepath.Join(dir, "notes.igc"), "2024-05-10", "X")

	kept := sampleRecord("777", "2024-04-01")
	if err := s.AddFlight("EDKA", "2024", kept); err != nil {
		t.Fatal(err)
	}
	testsupport.WriteIGC(t, filepath.Join(dir, kept.Filename), "2024-04-01", "Jane Doe")

	result, err := s.RebuildFromFiles("EDKA", "2024")
	if err != nil {
		t.Fatalf("RebuildFromFiles: %v", err)
	}
	if result.Records != 2 || result.Skipped != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	records, _ := s.Load("EDKA", "2024")
	rec := records["555"]
	if rec.Date != "2024-05-10" || rec.Pilot != "Max Muster" || rec.Airport != "Airport EDKA" {
		t.Fatalf("unexpected rebuilt record %+v", rec)
	}
	if rec.Distance == nil || *rec.Distance < 110 || *rec.Distance > 112 {
		t.Fatalf("expected ~111 km distance, got %v", rec.Distance)
	}
	if rec.Speed == nil || *rec.Speed < 110 || *rec.Speed > 112 {
		t.Fatalf("expected ~111 km/h speed, got %v", rec.Speed)
	}
	if records["777"].Score == nil || *records["777"].Score != 612.3 {
		t.Fatalf("existing score lost: %+v", records["777"])
	}
}

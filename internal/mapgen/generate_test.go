package mapgen

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"olcsync/internal/logging"
	"olcsync/internal/metadata"
	"olcsync/internal/testsupport"
)

func score(v float64) *float64 { return &v }

func setup(t *testing.T) (string, *metadata.Store) {
	t.Helper()
	root := t.TempDir()
	meta := metadata.NewStore(root, logging.NewNop())
	testsupport.WriteIGC(t, filepath.Join(root, "LSZF", "2024", "2024_Anna_Muster_101.igc"), "2024-05-01", "Anna Muster")
	testsupport.WriteIGC(t, filepath.Join(root, "LSZF", "2024", "2024_Ben_Flyer_102.igc"), "2024-06-02", "Ben Flyer")
	testsupport.WriteIGC(t, filepath.Join(root, "LSZF", "2023", "2023_Cara_Soar_103.igc"), "2023-07-03", "Cara Soar")
	testsupport.WriteBytes(t, filepath.Join(root, "LSZF", "2023", "2023_Broken_104.igc"), []byte(testsupport.HTMLErrorPage))

	if err := meta.Save("LSZF", "2024", []metadata.Record{
		{ID: "101", Date: "2024-05-01", Pilot: "Anna Muster", Score: score(512.3), Aircraft: "LS8", Status: metadata.StatusDownloaded},
		{ID: "102", Date: "2024-06-02", Pilot: "Ben Flyer", Score: score(88), Status: metadata.StatusDownloaded},
	}); err != nil {
		t.Fatalf("save metadata: %v", err)
	}
	return root, meta
}

func readDoc(t *testing.T, path string) dataDocument {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	var doc dataDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return doc
}

func TestGenerateRendersEveryValidTrack(t *testing.T) {
	root, meta := setup(t)
	out := filepath.Join(t.TempDir(), "map")
	fixed := time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)

	result, err := Generate(context.Background(), Config{
		Scope:     "LSZF",
		Root:      root,
		OutputDir: out,
		Title:     "Schänis flights",
		Now:       func() time.Time { return fixed },
	}, meta)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Flights != 3 || result.Skipped != 1 {
		t.Fatalf("result = %+v", result)
	}
	if want := []string{"2023-07-03", "2024-05-01", "2024-06-02"}; !slices.Equal(result.Dates, want) {
		t.Fatalf("dates = %v, want %v", result.Dates, want)
	}

	doc := readDoc(t, result.DataPath)
	if doc.Title != "Schänis flights" || !doc.GeneratedAt.Equal(fixed) || doc.Bounds == nil {
		t.Fatalf("document header = %+v", doc)
	}
	first := doc.Flights[0]
	if first.ID != "103" || first.Pilot != "Cara Soar" || first.Score != nil {
		t.Fatalf("first flight = %+v", first)
	}
	if first.DistanceKm < 111 || first.DistanceKm > 112 {
		t.Fatalf("computed distance = %v", first.DistanceKm)
	}
	anna := doc.Flights[1]
	if anna.ID != "101" || anna.Aircraft != "LS8" || anna.Score == nil || *anna.Score != 512.3 {
		t.Fatalf("metadata not merged: %+v", anna)
	}
	if anna.Color == first.Color {
		t.Fatal("adjacent flights share a colour")
	}

	page, err := os.ReadFile(result.IndexPath)
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	html := string(page)
	for _, want := range []string{"<title>Schänis flights</title>", "leaflet.js", "L.polyline", "Anna Muster", "tile.openstreetmap.org"} {
		if !strings.Contains(html, want) {
			t.Fatalf("index.html missing %q", want)
		}
	}
}

func TestGenerateFiltersByYearAndScore(t *testing.T) {
	root, meta := setup(t)
	result, err := Generate(context.Background(), Config{
		Scope:     "LSZF",
		Root:      root,
		OutputDir: t.TempDir(),
		Years:     []string{"2024"},
		MinScore:  score(100),
		TileURL:   "https://tiles.example.org/{z}/{x}/{y}.png",
	}, meta)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Flights != 1 || result.Skipped != 1 {
		t.Fatalf("result = %+v", result)
	}
	doc := readDoc(t, result.DataPath)
	if doc.Flights[0].ID != "101" || doc.Title != "Flights from LSZF" {
		t.Fatalf("doc = %+v", doc)
	}
	page, _ := os.ReadFile(result.IndexPath)
	if !strings.Contains(string(page), "tiles.example.org") {
		t.Fatal("custom tile url not rendered")
	}
}

func TestGenerateEmptyScope(t *testing.T) {
	meta := metadata.NewStore(t.TempDir(), logging.NewNop())
	result, err := Generate(context.Background(), Config{Scope: "pilot", Root: t.TempDir(), OutputDir: t.TempDir()}, meta)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	doc := readDoc(t, result.DataPath)
	if result.Flights != 0 || doc.Bounds != nil || len(doc.Flights) != 0 || doc.Title != "My flights" {
		t.Fatalf("empty render = %+v / %+v", result, doc)
	}
}

func TestGenerateRequiresScope(t *testing.T) {
	if _, err := Generate(context.Background(), Config{OutputDir: t.TempDir()}, metadata.NewStore(t.TempDir(), nil)); err == nil {
		t.Fatal("expected error without scope")
	}
}

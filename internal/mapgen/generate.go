package mapgen

import (
	"bytes"
	"context"
	_ "embed"
	"html/template"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"olcsync/internal/fileutil"
	"olcsync/internal/flight"
	"olcsync/internal/igc"
	"olcsync/internal/logging"
	"olcsync/internal/metadata"
	"olcsync/internal/services"
)

// Output file names.
const (
	IndexFile = "index.html"
	DataFile  = "flights.json"
)

const (
	defaultTileURL     = "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"
	defaultAttribution = "&copy; OpenStreetMap contributors"
	defaultEvery       = 5
)

//go:embed index.html.tmpl
var indexSource string

var indexTemplate = template.Must(template.New(IndexFile).Parse(indexSource))

var palette = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231", "#911eb4",
	"#42d4f4", "#f032e6", "#9a6324", "#800000", "#000075",
}

// Config selects what is rendered and where.
type Config struct {
	Scope string
	// Root is the downloads root holding {scope}/{year}/*.igc.
	Root      string
	OutputDir string
	Title     string
	TileURL   string
	// Years limits rendering; empty renders every year on disk.
	Years    []string
	MinScore *float64
	// Every keeps one fix in n for the rendered path.
	Every  int
	Logger *slog.Logger
	Now    func() time.Time
}

// Flight is one rendered track.
type Flight struct {
	ID         string       `json:"id"`
	Year       string       `json:"year"`
	Date       string       `json:"date"`
	Pilot      string       `json:"pilot"`
	Aircraft   string       `json:"aircraft,omitempty"`
	Score      *float64     `json:"score"`
	DistanceKm float64      `json:"distance_km"`
	SpeedKmh   float64      `json:"speed_kmh"`
	Filename   string       `json:"filename"`
	Color      string       `json:"color"`
	Path       [][2]float64 `json:"path"`
}

// Bounds is the south-west and north-east corner of all rendered paths.
type Bounds [2][2]float64

type dataDocument struct {
	Scope       string    `json:"scope"`
	Title       string    `json:"title"`
	GeneratedAt time.Time `json:"generated_at"`
	Bounds      *Bounds   `json:"bounds,omitempty"`
	Flights     []Flight  `json:"flights"`
}

// Result reports one rendering.
type Result struct {
	IndexPath string
	DataPath  string
	Flights   int
	// Skipped counts unreadable, filtered or fix-less logs.
	Skipped int
	// Dates are the distinct flight dates rendered, oldest first.
	Dates []string
}

// Generate renders the map for cfg.Scope using meta for per-flight attributes.
func Generate(ctx context.Context, cfg Config, meta *metadata.Store) (Result, error) {
	var result Result
	logger := logging.NewComponentLogger(cfg.Logger, "mapgen").With(logging.String(logging.FieldScope, cfg.Scope))
	if cfg.Scope == "" || cfg.OutputDir == "" {
		return result, services.Wrap(services.ErrConfiguration, "mapgen", "generate", "scope and output directory are required", nil)
	}
	every := cfg.Every
	if every < 1 {
		every = defaultEvery
	}
	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}

	years := cfg.Years
	if len(years) == 0 {
		var err error
		years, err = yearDirs(filepath.Join(cfg.Root, cfg.Scope))
		if err != nil {
			return result, err
		}
	}

	var flights []Flight
	dates := map[string]struct{}{}
	for _, year := range years {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		records, err := meta.Load(cfg.Scope, year)
		if err != nil {
			logger.Warn("metadata unreadable, using file headers only", logging.String(logging.FieldYear, year), logging.Error(err))
			records = map[string]metadata.Record{}
		}
		dir := filepath.Join(cfg.Root, cfg.Scope, year)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return result, services.Wrap(services.ErrValidation, "mapgen", "read year", dir, err)
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !strings.EqualFold(filepath.Ext(name), flight.Extension) {
				continue
			}
			f, ok := buildFlight(filepath.Join(dir, name), year, records, every, cfg.MinScore, logger)
			if !ok {
				result.Skipped++
				continue
			}
			flights = append(flights, f)
			if f.Date != "" {
				dates[f.Date] = struct{}{}
			}
		}
	}

	slices.SortFunc(flights, func(a, b Flight) int {
		if c := strings.Compare(a.Date, b.Date); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	for i := range flights {
		flights[i].Color = palette[i%len(palette)]
	}

	doc := dataDocument{
		Scope:       cfg.Scope,
		Title:       title(cfg),
		GeneratedAt: now().UTC(),
		Bounds:      bounds(flights),
		Flights:     flights,
	}
	if doc.Flights == nil {
		doc.Flights = []Flight{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return result, services.Wrap(services.ErrValidation, "mapgen", "encode", "flights document", err)
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return result, services.Wrap(services.ErrConfiguration, "mapgen", "mkdir", cfg.OutputDir, err)
	}
	result.DataPath = filepath.Join(cfg.OutputDir, DataFile)
	if err := fileutil.WriteFileAtomic(result.DataPath, data, 0o644); err != nil {
		return result, services.Wrap(services.ErrValidation, "mapgen", "write", result.DataPath, err)
	}

	tileURL := cfg.TileURL
	if tileURL == "" {
		tileURL = defaultTileURL
	}
	var page bytes.Buffer
	if err := indexTemplate.Execute(&page, struct {
		Title       string
		Scope       string
		TileURL     string
		Attribution template.HTML
		Count       int
		GeneratedAt string
		Data        template.JS
	}{
		Title:       doc.Title,
		Scope:       cfg.Scope,
		TileURL:     tileURL,
		Attribution: template.HTML(defaultAttribution),
		Count:       len(flights),
		GeneratedAt: doc.GeneratedAt.Format(time.RFC3339),
		Data:        template.JS(data),
	}); err != nil {
		return result, services.Wrap(services.ErrValidation, "mapgen", "render", IndexFile, err)
	}
	result.IndexPath = filepath.Join(cfg.OutputDir, IndexFile)
	if err := fileutil.WriteFileAtomic(result.IndexPath, page.Bytes(), 0o644); err != nil {
		return result, services.Wrap(services.ErrValidation, "mapgen", "write", result.IndexPath, err)
	}

	result.Flights = len(flights)
	for date := range dates {
		result.Dates = append(result.Dates, date)
	}
	slices.Sort(result.Dates)
	logger.Info("map generated",
		logging.Int("flights", result.Flights),
		logging.Int("skipped", result.Skipped),
		logging.String("output", result.IndexPath),
	)
	return result, nil
}

func buildFlight(path, year string, records map[string]metadata.Record, every int, minScore *float64, logger *slog.Logger) (Flight, bool) {
	name := filepath.Base(path)
	track, err := igc.ReadFile(path)
	if err != nil {
		logger.Debug("skipping unreadable track log", logging.String(logging.FieldFilename, name), logging.Error(err))
		return Flight{}, false
	}
	if len(track.Fixes) == 0 {
		return Flight{}, false
	}
	f := Flight{
		Year:     year,
		Filename: name,
		Date:     track.Header.Date,
		Pilot:    track.Header.Pilot,
		Aircraft: track.Header.GliderType,
		Path:     track.Path(every),
	}
	if parsed, ok := flight.ParseFilename(name); ok {
		f.ID = parsed.ID
		if f.Pilot == "" {
			f.Pilot = parsed.Pilot
		}
	} else {
		f.ID = strings.TrimSuffix(name, filepath.Ext(name))
	}
	stats := track.Stats()
	f.DistanceKm = round1(stats.DistanceKm)
	f.SpeedKmh = round1(stats.SpeedKmh)

	if rec, ok := records[f.ID]; ok {
		if rec.Pilot != "" {
			f.Pilot = rec.Pilot
		}
		if rec.Date != "" {
			f.Date = rec.Date
		}
		if rec.Aircraft != "" {
			f.Aircraft = rec.Aircraft
		}
		f.Score = rec.Score
		if rec.Distance != nil {
			f.DistanceKm = *rec.Distance
		}
		if rec.Speed != nil {
			f.SpeedKmh = *rec.Speed
		}
	}
	if minScore != nil && (f.Score == nil || *f.Score < *minScore) {
		return Flight{}, false
	}
	return f, true
}

func yearDirs(scopeDir string) ([]string, error) {
	entries, err := os.ReadDir(scopeDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrValidation, "mapgen", "list years", scopeDir, err)
	}
	var years []string
	for _, entry := range entries {
		if entry.IsDir() && flight.ValidYear(entry.Name()) {
			years = append(years, entry.Name())
		}
	}
	slices.Sort(years)
	return years, nil
}

func bounds(flights []Flight) *Bounds {
	minLat, minLon := math.Inf(1), math.Inf(1)
	maxLat, maxLon := math.Inf(-1), math.Inf(-1)
	for _, f := range flights {
		for _, p := range f.Path {
			minLat, maxLat = math.Min(minLat, p[0]), math.Max(maxLat, p[0])
			minLon, maxLon = math.Min(minLon, p[1]), math.Max(maxLon, p[1])
		}
	}
	if math.IsInf(minLat, 1) {
		return nil
	}
	return &Bounds{{minLat, minLon}, {maxLat, maxLon}}
}

func title(cfg Config) string {
	if t := strings.TrimSpace(cfg.Title); t != "" {
		return t
	}
	if cfg.Scope == flight.PilotKey {
		return "My flights"
	}
	return "Flights from " + cfg.Scope
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

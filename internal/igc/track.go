package igc

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
)

const earthRadiusKm = 6371.0

// Header holds the H-record fields used for cataloguing.
type Header struct {
	// Date is YYYY-MM-DD, empty when HFDTE is absent or malformed.
	Date       string
	Pilot      string
	GliderType string
	GliderID   string
}

// Fix is a single B record.
type Fix struct {
	// Seconds since midnight UTC.
	Seconds int
	Lat     float64
	Lon     float64
	Valid   bool
	AltGPS  int
}

// Track is a parsed log.
type Track struct {
	Header Header
	Fixes  []Fix
}

// Stats summarizes a track.
type Stats struct {
	DistanceKm float64
	Duration   time.Duration
	// SpeedKmh is zero when the duration is zero.
	SpeedKmh float64
}

// ReadFile parses the track log at path.
func ReadFile(path string) (*Track, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Parse(file)
}

// Parse reads a Latin-1 encoded track log.
func Parse(r io.Reader) (*Track, error) {
	scanner := bufio.NewScanner(charmap.ISO8859_1.NewDecoder().Reader(r))
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	track := &Track{}
	first := true
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r ")
		if first {
			first = false
			if !ValidFirstLine([]byte(line)) {
				return nil, fmt.Errorf("%w: first line %q", ErrInvalid, truncate([]byte(line), 40))
			}
		}
		if line == "" {
			continue
		}
		switch line[0] {
		case 'H':
			parseHeaderLine(&track.Header, line)
		case 'B':
			if fix, ok := parseFix(line); ok {
				track.Fixes = append(track.Fixes, fix)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read track: %w", err)
	}
	if first {
		return nil, fmt.Errorf("%w: empty file", ErrInvalid)
	}
	return track, nil
}

// ReadHeader parses only the header of the file at path.
func ReadHeader(path string) (Header, error) {
	track, err := ReadFile(path)
	if err != nil {
		return Header{}, err
	}
	return track.Header, nil
}

func parseHeaderLine(h *Header, line string) {
	if len(line) < 5 {
		return
	}
	code := strings.ToUpper(line[2:5])
	switch code {
	case "DTE":
		if date := parseHeaderDate(line[5:]); date != "" {
			h.Date = date
		}
	case "PLT":
		if h.Pilot == "" {
			h.Pilot = headerValue(line)
		}
	case "GTY":
		h.GliderType = headerValue(line)
	case "GID":
		h.GliderID = headerValue(line)
	}
}

func headerValue(line string) string {
	if idx := strings.IndexByte(line, ':'); idx >= 0 {
		return strings.TrimSpace(line[idx+1:])
	}
	return ""
}

// parseHeaderDate accepts `DDMMYY` and `DATE:DDMMYY,NN` forms.
func parseHeaderDate(rest string) string {
	rest = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(rest)), "DATE:")
	rest = strings.TrimSpace(rest)
	if len(rest) < 6 {
		return ""
	}
	digits := rest[:6]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return ""
		}
	}
	day, _ := strconv.Atoi(digits[0:2])
	month, _ := strconv.Atoi(digits[2:4])
	year, _ := strconv.Atoi(digits[4:6])
	t := time.Date(2000+year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return ""
	}
	return t.Format(time.DateOnly)
}

func parseFix(line string) (Fix, bool) {
	if len(line) < 35 {
		return Fix{}, false
	}
	hh, err1 := strconv.Atoi(line[1:3])
	mm, err2 := strconv.Atoi(line[3:5])
	ss, err3 := strconv.Atoi(line[5:7])
	if err1 != nil || err2 != nil || err3 != nil {
		return Fix{}, false
	}
	lat, ok := parseCoordinate(line[7:15], 2)
	if !ok {
		return Fix{}, false
	}
	lon, ok := parseCoordinate(line[15:24], 3)
	if !ok {
		return Fix{}, false
	}
	alt, _ := strconv.Atoi(strings.TrimLeft(line[30:35], "0"))
	return Fix{
		Seconds: hh*3600 + mm*60 + ss,
		Lat:     lat,
		Lon:     lon,
		Valid:   line[24] == 'A',
		AltGPS:  alt,
	}, true
}

// parseCoordinate decodes DDMMmmmH / DDDMMmmmH into signed decimal degrees.
func parseCoordinate(raw string, degreeDigits int) (float64, bool) {
	if len(raw) != degreeDigits+6 {
		return 0, false
	}
	deg, err := strconv.Atoi(raw[:degreeDigits])
	if err != nil {
		return 0, false
	}
	milliMinutes, err := strconv.Atoi(raw[degreeDigits : degreeDigits+5])
	if err != nil {
		return 0, false
	}
	value := float64(deg) + float64(milliMinutes)/1000/60
	switch raw[len(raw)-1] {
	case 'N', 'E':
	case 'S', 'W':
		value = -value
	default:
		return 0, false
	}
	return value, true
}

// Haversine returns the great-circle distance in kilometres.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := math.Pi / 180
	dLat := (lat2 - lat1) * toRad
	dLon := (lon2 - lon1) * toRad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*toRad)*math.Cos(lat2*toRad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

// Stats computes path length, elapsed time and average speed. Times that go
// backwards are treated as a midnight crossing.
func (t *Track) Stats() Stats {
	if t == nil || len(t.Fixes) < 2 {
		return Stats{}
	}
	var distance float64
	elapsed := 0
	for i := 1; i < len(t.Fixes); i++ {
		prev, cur := t.Fixes[i-1], t.Fixes[i]
		distance += Haversine(prev.Lat, prev.Lon, cur.Lat, cur.Lon)
		step := cur.Seconds - prev.Seconds
		if step < 0 {
			step += 24 * 3600
		}
		elapsed += step
	}
	stats := Stats{
		DistanceKm: distance,
		Duration:   time.Duration(elapsed) * time.Second,
	}
	if hours := stats.Duration.Hours(); hours > 0 {
		stats.SpeedKmh = distance / hours
	}
	return stats
}

// Path returns [lat, lon] pairs, keeping every nth fix plus the last one.
func (t *Track) Path(every int) [][2]float64 {
	if t == nil {
		return nil
	}
	if every < 1 {
		every = 1
	}
	out := make([][2]float64, 0, len(t.Fixes)/every+1)
	for i, fix := range t.Fixes {
		if i%every != 0 && i != len(t.Fixes)-1 {
			continue
		}
		out = append(out, [2]float64{fix.Lat, fix.Lon})
	}
	return out
}

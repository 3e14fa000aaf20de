package flight

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	// FirstYear is the oldest season the site publishes.
	FirstYear = 2007
	// Extension is the track-log file suffix.
	Extension = ".igc"
)

// Filename derives `{year}_{sanitizedPilot}_{identifier}.igc`.
func Filename(year, pilot, id string) string {
	return year + "_" + SanitizePilot(pilot) + "_" + id + Extension
}

// SanitizePilot collapses whitespace runs to underscores and then drops every
// rune that is not a letter, digit, underscore, hyphen or parenthesis.
func SanitizePilot(name string) string {
	name = strings.Join(strings.Fields(name), "_")
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '_', r == '-', r == '(', r == ')':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return UnknownPilot
	}
	return b.String()
}

// ParsedName is the decomposition of a derived filename.
type ParsedName struct {
	Year  string
	Pilot string
	ID    string
}

// ParseFilename splits `{year}_{pilot}_{id}.igc`. The identifier is the last
// underscore-separated part and the pilot keeps its underscores as spaces.
func ParseFilename(name string) (ParsedName, bool) {
	if !strings.EqualFold(extension(name), Extension) {
		return ParsedName{}, false
	}
	stem := name[:len(name)-len(Extension)]
	parts := strings.Split(stem, "_")
	if len(parts) < 3 || !ValidYear(parts[0]) {
		return ParsedName{}, false
	}
	id := parts[len(parts)-1]
	if id == "" {
		return ParsedName{}, false
	}
	pilot := strings.Join(parts[1:len(parts)-1], " ")
	if strings.TrimSpace(pilot) == "" {
		pilot = UnknownPilot
	}
	return ParsedName{Year: parts[0], Pilot: pilot, ID: id}, true
}

func extension(name string) string {
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		return name[idx:]
	}
	return ""
}

var (
	isoDate    = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})`)
	dottedDate = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{2,4})`)
	slashDate  = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})`)
)

// NormalizeDate converts the site's date renderings to YYYY-MM-DD. Values
// that cannot be parsed are returned trimmed and unchanged.
func NormalizeDate(value string) string {
	value = strings.TrimSpace(value)
	if m := isoDate.FindStringSubmatch(value); m != nil {
		return m[1] + "-" + m[2] + "-" + m[3]
	}
	if m := dottedDate.FindStringSubmatch(value); m != nil {
		year := m[3]
		if len(year) == 2 {
			year = "20" + year
		}
		return formatDate(year, m[2], m[1], value)
	}
	if m := slashDate.FindStringSubmatch(value); m != nil {
		return formatDate(m[3], m[2], m[1], value)
	}
	return value
}

func formatDate(year, month, day, fallback string) string {
	y, errY := strconv.Atoi(year)
	mo, errM := strconv.Atoi(month)
	d, errD := strconv.Atoi(day)
	if errY != nil || errM != nil || errD != nil {
		return fallback
	}
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	if t.Month() != time.Month(mo) || t.Day() != d {
		return fallback
	}
	return t.Format(time.DateOnly)
}

// ParseNumber reads an optional numeric listing value. Empty, dash and
// unparseable values yield nil rather than zero.
func ParseNumber(value string) *float64 {
	value = strings.TrimSpace(value)
	value = strings.TrimRightFunc(value, func(r rune) bool {
		return unicode.IsLetter(r) || r == '/' || unicode.IsSpace(r)
	})
	if value == "" || value == "-" {
		return nil
	}
	if strings.Contains(value, ",") {
		if strings.Contains(value, ".") {
			value = strings.ReplaceAll(value, ",", "")
		} else {
			value = strings.ReplaceAll(value, ",", ".")
		}
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	return &f
}

// ValidYear reports whether value is a four-digit year.
func ValidYear(value string) bool {
	if len(value) != 4 {
		return false
	}
	_, err := strconv.Atoi(value)
	return err == nil
}

// SupportedYears lists seasons newest first, from next year back to FirstYear.
func SupportedYears(now time.Time) []string {
	last := now.Year() + 1
	years := make([]string, 0, last-FirstYear+1)
	for y := last; y >= FirstYear; y-- {
		years = append(years, strconv.Itoa(y))
	}
	return years
}

// InRange reports whether year is inside the supported range.
func InRange(year string, now time.Time) bool {
	y, err := strconv.Atoi(year)
	if err != nil || len(year) != 4 {
		return false
	}
	return y >= FirstYear && y <= now.Year()+1
}

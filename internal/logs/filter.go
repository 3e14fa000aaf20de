package logs

import (
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"olcsync/internal/logging"
)

// Filter selects log lines. Zero fields match everything.
type Filter struct {
	Scope    string
	RunID    string
	MinLevel string
}

// Empty reports whether the filter matches every line.
func (f Filter) Empty() bool {
	return f.Scope == "" && f.RunID == "" && f.MinLevel == ""
}

// Match reports whether line passes the filter.
func (f Filter) Match(line string) bool {
	if f.Empty() {
		return true
	}
	entry, ok := parseLine(line)
	if !ok {
		return false
	}
	if f.MinLevel != "" && levelRank(entry.level) < levelRank(f.MinLevel) {
		return false
	}
	if f.Scope != "" && !strings.EqualFold(entry.fields[logging.FieldScope], f.Scope) {
		return false
	}
	if f.RunID != "" && !strings.HasPrefix(entry.fields[logging.FieldRunID], f.RunID) {
		return false
	}
	return true
}

type lineEntry struct {
	level  string
	fields map[string]string
}

func parseLine(line string) (lineEntry, bool) {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "{") {
		return parseJSONLine(line)
	}
	return parseConsoleLine(line)
}

func parseJSONLine(line string) (lineEntry, bool) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return lineEntry{}, false
	}
	entry := lineEntry{fields: make(map[string]string, len(raw))}
	for key, value := range raw {
		switch v := value.(type) {
		case string:
			entry.fields[key] = v
		case float64:
			entry.fields[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			entry.fields[key] = strconv.FormatBool(v)
		}
	}
	entry.level = entry.fields["level"]
	return entry, true
}

// parseConsoleLine reads `ts LEVEL component: msg key=value ...` lines.
func parseConsoleLine(line string) (lineEntry, bool) {
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return lineEntry{}, false
	}
	entry := lineEntry{level: parts[1], fields: map[string]string{}}
	for _, token := range parts[2:] {
		key, value, ok := strings.Cut(token, "=")
		if !ok || key == "" {
			continue
		}
		if unquoted, err := strconv.Unquote(value); err == nil {
			value = unquoted
		}
		entry.fields[key] = value
	}
	return entry, true
}

func levelRank(level string) int {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return 0
	case "info":
		return 1
	case "warn", "warning":
		return 2
	case "error":
		return 3
	default:
		return 1
	}
}

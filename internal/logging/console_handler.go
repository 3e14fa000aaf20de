package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// consoleHandler writes one `ts LEVEL component: msg key=value` line per
// record. The logs command parses this layout back, so keep them in step.
type consoleHandler struct {
	out       *lockedWriter
	level     *slog.LevelVar
	preset    []kv
	prefix    string
	addSource bool
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) write(p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.w.Write(p)
	return err
}

type kv struct {
	key   string
	value slog.Value
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &consoleHandler{out: &lockedWriter{w: w}, level: lvl, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.preset = flatten(append([]kv(nil), h.preset...), h.prefix, attrs)
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = joinKey(h.prefix, name)
	return &next
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	pairs := append([]kv(nil), h.preset...)
	r.Attrs(func(a slog.Attr) bool {
		pairs = flatten(pairs, h.prefix, []slog.Attr{a})
		return true
	})

	var component string
	var sb strings.Builder
	for _, p := range pairs {
		if p.key == FieldComponent {
			if component == "" {
				component = p.value.String()
			}
			continue
		}
		sb.WriteString(" " + p.key + "=" + formatValue(p.value))
	}

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	head := ts.UTC().Format(time.RFC3339) + " " + levelName(r.Level) + " "
	if component != "" {
		head += component + ": "
	}
	msg := strings.TrimSpace(r.Message)
	if msg == "" {
		msg = "(no message)"
	}
	if h.addSource {
		if src := r.Source(); src != nil {
			msg += fmt.Sprintf(" [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	return h.out.write([]byte(head + msg + sb.String() + "\n"))
}

// flatten expands groups into dotted keys and drops empty attrs.
func flatten(dst []kv, prefix string, attrs []slog.Attr) []kv {
	for _, a := range attrs {
		if a.Equal(slog.Attr{}) {
			continue
		}
		v := a.Value.Resolve()
		if v.Kind() == slog.KindGroup {
			dst = flatten(dst, joinKey(prefix, a.Key), v.Group())
			continue
		}
		if key := joinKey(prefix, a.Key); key != "" {
			dst = append(dst, kv{key: key, value: v})
		}
	}
	return dst
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	default:
		return prefix + "." + key
	}
}

func formatValue(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindDuration:
		return v.Duration().Round(time.Millisecond).String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			s = err.Error()
		} else {
			s = fmt.Sprint(v.Any())
		}
	default:
		s = v.String()
	}
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	}
	return "DEBUG"
}

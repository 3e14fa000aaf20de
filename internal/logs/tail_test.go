package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"olcsync/internal/logs"
)

const consoleLog = `2024-06-11T10:00:00Z INFO pipeline: run started run_id=3f2a9c scope=EDKA
2024-06-11T10:00:05Z WARN site: year listing failed run_id=3f2a9c scope=EDKA year=2019
2024-06-11T10:01:00Z INFO pipeline: run started run_id=77b0e1 scope=LSZF
2024-06-11T10:02:00Z ERROR download: flight download failed run_id=77b0e1 scope=LSZF filename="2024_Jane Doe_1.igc"
`

const jsonLog = `{"ts":"2024-06-11T10:00:00Z","level":"info","msg":"run started","run_id":"3f2a9c","scope":"EDKA"}
{"ts":"2024-06-11T10:00:05Z","level":"warn","msg":"year listing failed","run_id":"3f2a9c","scope":"EDKA","year":"2019"}
{"ts":"2024-06-11T10:01:00Z","level":"error","msg":"flight download failed","run_id":"77b0e1","scope":"LSZF"}
`

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "olcsync.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestTailLastLines(t *testing.T) {
	path := writeLog(t, "a\nb\nc\n")

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	if len(result.Lines) != 2 || result.Lines[0] != "b" || result.Lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", result.Lines)
	}
	if result.Offset != 6 {
		t.Fatalf("expected offset at end of file, got %d", result.Offset)
	}
}

func TestTailMissingFile(t *testing.T) {
	result, err := logs.Tail(context.Background(), filepath.Join(t.TempDir(), "none.log"), logs.TailOptions{Offset: -1, Limit: 5})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(result.Lines) != 0 || result.Offset != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestTailFromOffsetKeepsPartialLine(t *testing.T) {
	path := writeLog(t, "one\ntwo\npart")
	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: 4})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(result.Lines) != 1 || result.Lines[0] != "two" {
		t.Fatalf("unexpected lines: %#v", result.Lines)
	}
	if result.Offset != 8 {
		t.Fatalf("expected offset before the partial line, got %d", result.Offset)
	}
}

func TestTailFiltersConsoleLines(t *testing.T) {
	path := writeLog(t, consoleLog)

	tests := []struct {
		name   string
		filter logs.Filter
		want   int
	}{
		{"scope", logs.Filter{Scope: "edka"}, 2},
		{"run prefix", logs.Filter{RunID: "77b"}, 2},
		{"level", logs.Filter{MinLevel: "warn"}, 2},
		{"combined", logs.Filter{Scope: "LSZF", MinLevel: "error"}, 1},
		{"none", logs.Filter{}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 10, Filter: tt.filter})
			if err != nil {
				t.Fatalf("tail: %v", err)
			}
			if len(result.Lines) != tt.want {
				t.Fatalf("expected %d lines, got %#v", tt.want, result.Lines)
			}
		})
	}
}

func TestTailFiltersJSONLines(t *testing.T) {
	path := writeLog(t, jsonLog+"not json\n")
	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 10, Filter: logs.Filter{Scope: "EDKA", MinLevel: "warn"}})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(result.Lines) != 1 {
		t.Fatalf("expected one line, got %#v", result.Lines)
	}
}

func TestTailFollowWaits(t *testing.T) {
	path := writeLog(t, "start\n")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	result, err := logs.Tail(ctx, path, logs.TailOptions{Offset: -1, Limit: 1})
	if err != nil {
		t.Fatalf("initial tail: %v", err)
	}
	if len(result.Lines) != 1 {
		t.Fatalf("expected initial line, got %#v", result.Lines)
	}

	done := make(chan struct{})
	go func(offset int64) {
		defer close(done)
		res, err := logs.Tail(ctx, path, logs.TailOptions{Offset: offset, Follow: true, Wait: 5 * time.Second})
		if err != nil {
			t.Errorf("follow tail error: %v", err)
		}
		if len(res.Lines) != 1 || res.Lines[0] != "later" {
			t.Errorf("unexpected follow lines: %#v", res.Lines)
		}
	}(result.Offset)

	time.Sleep(200 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString("later\n"); err != nil {
		t.Fatalf("append log: %v", err)
	}
	_ = f.Close()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("tail follow did not return")
	}
}

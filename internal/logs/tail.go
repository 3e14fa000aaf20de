package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const pollInterval = 250 * time.Millisecond

// TailOptions controls one Tail call. A negative Offset asks for the last
// Limit matching lines (all of them when Limit is 0); otherwise reading
// resumes at Offset.
type TailOptions struct {
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
	Filter Filter
}

// TailResult holds matching lines and the offset of the next unread byte.
// The offset never moves past a line that is still being written.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads complete lines from path. A missing file yields nothing and
// offset 0. With Follow set and nothing new, it polls for up to Wait.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return TailResult{}, nil
	case err != nil:
		return TailResult{Offset: opts.Offset}, fmt.Errorf("stat log file: %w", err)
	case info.IsDir():
		return TailResult{Offset: opts.Offset}, fmt.Errorf("log path %q is a directory", path)
	}

	var res TailResult
	if opts.Offset < 0 {
		res, err = scan(path, 0, opts.Filter, opts.Limit)
	} else {
		start := opts.Offset
		if start > info.Size() {
			// the file was truncated or rotated underneath us
			start = 0
		}
		res, err = scan(path, start, opts.Filter, 0)
	}
	if err != nil || len(res.Lines) > 0 || !opts.Follow || opts.Wait <= 0 {
		return res, err
	}
	return poll(ctx, path, res.Offset, opts.Wait, opts.Filter)
}

// scan reads complete lines starting at offset. keep > 0 retains only the
// last keep matches; keep == 0 retains all of them.
func scan(path string, offset int64, filter Filter, keep int) (TailResult, error) {
	res := TailResult{Offset: offset}
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return TailResult{}, nil
	}
	if err != nil {
		return res, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return res, fmt.Errorf("seek log file: %w", err)
	}
	reader := bufio.NewReaderSize(file, 64*1024)
	for {
		raw, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("read log file: %w", err)
		}
		res.Offset += int64(len(raw))
		line := trimEOL(raw)
		if !filter.Match(line) {
			continue
		}
		res.Lines = append(res.Lines, line)
		if keep > 0 && len(res.Lines) > keep {
			res.Lines = res.Lines[1:]
		}
	}
}

func trimEOL(raw string) string {
	raw = raw[:len(raw)-1]
	if n := len(raw); n > 0 && raw[n-1] == '\r' {
		return raw[:n-1]
	}
	return raw
}

func poll(ctx context.Context, path string, offset int64, wait time.Duration, filter Filter) (TailResult, error) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	res := TailResult{Offset: offset}
	for {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-deadline.C:
			return res, nil
		case <-ticker.C:
		}
		next, err := scan(path, res.Offset, filter, 0)
		if err != nil {
			return res, err
		}
		if len(next.Lines) > 0 {
			return next, nil
		}
		res.Offset = next.Offset
	}
}

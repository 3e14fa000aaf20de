package igc

import (
	"bytes"
	"errors"
	"fmt"

	"olcsync/internal/fileutil"
)

const sniffLimit = 512

// ErrInvalid marks content whose first line is not an IGC record.
var ErrInvalid = errors.New("not an igc track log")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func cleanLine(line []byte) []byte {
	line = bytes.TrimPrefix(line, utf8BOM)
	return bytes.TrimSpace(line)
}

// ValidFirstLine reports whether line opens an IGC file (an A or H record).
func ValidFirstLine(line []byte) bool {
	line = cleanLine(line)
	return len(line) > 0 && (line[0] == 'A' || line[0] == 'H')
}

// HTMLFirstLine reports whether line is a doctype or html tag.
func HTMLFirstLine(line []byte) bool {
	line = bytes.ToLower(cleanLine(line))
	return bytes.HasPrefix(line, []byte("<!doctype")) || bytes.HasPrefix(line, []byte("<html"))
}

// CheckFile returns nil when path holds a track log, ErrInvalid otherwise.
func CheckFile(path string) error {
	line, err := fileutil.FirstLine(path, sniffLimit)
	if err != nil {
		return err
	}
	if !ValidFirstLine(line) {
		return fmt.Errorf("%w: first line %q", ErrInvalid, truncate(line, 40))
	}
	return nil
}

// IsValidFile reports whether path exists and holds a track log.
func IsValidFile(path string) bool {
	return CheckFile(path) == nil
}

// IsHTMLFile reports whether path exists and holds an HTML page.
func IsHTMLFile(path string) bool {
	line, err := fileutil.FirstLine(path, sniffLimit)
	if err != nil {
		return false
	}
	return HTMLFirstLine(line)
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

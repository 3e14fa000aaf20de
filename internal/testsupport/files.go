package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// HTMLErrorPage is what the site serves instead of a track log on errors.
const HTMLErrorPage = "<!DOCTYPE html>\n<html><body>Error</body></html>\n"

// IGCContent renders a minimal track log for date (YYYY-MM-DD) and pilot with
// two fixes one degree of latitude apart, an hour apart.
func IGCContent(date, pilot string) []byte {
	ddmmyy := "010124"
	if parts := strings.Split(date, "-"); len(parts) == 3 && len(parts[0]) == 4 {
		ddmmyy = parts[2] + parts[1] + parts[0][2:]
	}
	var b strings.Builder
	b.WriteString("AXCSTEST01\r\n")
	fmt.Fprintf(&b, "HFDTEDATE:%s,01\r\n", ddmmyy)
	fmt.Fprintf(&b, "HFPLTPILOTINCHARGE:%s\r\n", pilot)
	b.WriteString("HFGTYGLIDERTYPE:ASG 29\r\n")
	b.WriteString("B1000005000000N00800000EA0050000500\r\n")
	b.WriteString("B1100005100000N00800000EA0060000600\r\n")
	return []byte(b.String())
}

// WriteIGC writes IGCContent to path, creating parent directories.
func WriteIGC(t testing.TB, path, date, pilot string) {
	t.Helper()
	WriteBytes(t, path, IGCContent(date, pilot))
}

// WriteBytes writes content to path, creating parent directories.
func WriteBytes(t testing.TB, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

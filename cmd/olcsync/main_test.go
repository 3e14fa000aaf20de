package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"olcsync/internal/config"
	"olcsync/internal/download"
	"olcsync/internal/preflight"
	"olcsync/internal/services"
	"olcsync/internal/site"
	"olcsync/internal/state"
	"olcsync/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	fake       *testsupport.FakeOLC
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	skip := func(context.Context, time.Duration) error { return nil }
	t.Cleanup(site.SetSleepForTests(skip))
	t.Cleanup(download.SetSleepForTests(skip))
	t.Setenv("HOME", t.TempDir())

	fake := testsupport.NewFakeOLC(t)
	cfg := testsupport.NewConfig(t, testsupport.WithFakeOLC(fake))
	cfg.Logging.Level = "error"
	return &cliTestEnv{cfg: cfg, fake: fake, configPath: testsupport.WriteConfigFile(t, cfg)}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func score(v float64) *float64 { return &v }

func fakeFlight(id, year, date string) testsupport.FakeFlight {
	return testsupport.FakeFlight{
		ID:        id,
		LegacyID:  "-" + id,
		Year:      year,
		Date:      date,
		FirstName: "Jane",
		SurName:   "Doe",
		Airport:   "EDKA",
		Points:    score(420),
		Plane:     "LS4",
	}
}

func TestYearsCommandNeedsNoConfig(t *testing.T) {
	out, _, err := runCLI(t, []string{"years"}, "")
	if err != nil {
		t.Fatalf("years: %v", err)
	}
	requireContains(t, out, "2007")
	requireContains(t, out, "seasons")
}

func TestDownloadRequiresScope(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"download"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "--airport") {
		t.Fatalf("expected scope error, got %v", err)
	}
}

func TestDownloadRejectsAirportOutsideDirectories(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"download", "--airport", "../escape", "--year", "2024"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "invalid airport code") {
		t.Fatalf("expected airport code error, got %v", err)
	}
	if !services.IsFatal(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(filepath.Dir(env.cfg.Paths.StateDir), "ESCAPE.json")); !os.IsNotExist(statErr) {
		t.Fatalf("state written outside the state dir: %v", statErr)
	}
}

func TestDownloadRejectsUnsupportedYear(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"download", "--airport", "edka", "--year", "1999"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "unsupported year") {
		t.Fatalf("expected year error, got %v", err)
	}
}

func TestDownloadThenQueryCatalogAndState(t *testing.T) {
	env := setupCLITestEnv(t)
	env.fake.AddFlights(fakeFlight("101", "2024", "2024-06-11"), fakeFlight("102", "2024", "2024-06-12"))

	out, _, err := runCLI(t, []string{"download", "--airport", "edka", "--year", "2024"}, env.configPath)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	requireContains(t, out, "Downloaded 2 of 2 flights for EDKA")

	if _, err := os.Stat(filepath.Join(env.cfg.Paths.DownloadDir, "EDKA", "2024", "2024_Jane_Doe_101.igc")); err != nil {
		t.Fatalf("expected track log on disk: %v", err)
	}

	out, _, err = runCLI(t, []string{"download", "--airport", "edka", "--year", "2024", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("second download: %v", err)
	}
	requireContains(t, out, `"skipped": 2`)

	out, _, err = runCLI(t, []string{"runs", "--scope", "edka"}, env.configPath)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	requireContains(t, out, "EDKA")
	requireContains(t, out, "ok")

	out, _, err = runCLI(t, []string{"flights", "--scope", "edka", "--min-score", "100"}, env.configPath)
	if err != nil {
		t.Fatalf("flights: %v", err)
	}
	requireContains(t, out, "Jane Doe")
	requireContains(t, out, "2 flights")

	out, _, err = runCLI(t, []string{"state", "show", "--airport", "edka"}, env.configPath)
	if err != nil {
		t.Fatalf("state show: %v", err)
	}
	requireContains(t, out, "Flights:         2")
	requireContains(t, out, "2024-06-12")
}

func TestDryRunWritesNothing(t *testing.T) {
	env := setupCLITestEnv(t)
	env.fake.AddFlights(fakeFlight("101", "2024", "2024-06-11"))

	out, _, err := runCLI(t, []string{"download", "--airport", "edka", "--year", "2024", "--dry-run"}, env.configPath)
	if err != nil {
		t.Fatalf("download --dry-run: %v", err)
	}
	requireContains(t, out, "Dry run: 1 flights would be downloaded")
	if _, err := os.Stat(env.cfg.StatePath("EDKA")); !os.IsNotExist(err) {
		t.Fatalf("dry run wrote state: %v", err)
	}
}

func TestListCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	env.fake.AddFlights(fakeFlight("101", "2024", "2024-06-11"))

	out, _, err := runCLI(t, []string{"list", "--airport", "edka", "--year", "2024"}, env.configPath)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, "Jane Doe")
	requireContains(t, out, "1 flights")
	if env.fake.DownloadHits("-101") != 0 {
		t.Fatal("list must not download")
	}
}

func TestStateResetNeedsConfirmation(t *testing.T) {
	env := setupCLITestEnv(t)
	ledger, err := state.Open(env.cfg.StatePath("EDKA"), "EDKA")
	if err != nil {
		t.Fatal(err)
	}
	ledger.MarkFlightProcessed("2024_Jane_Doe_101.igc", "2024-06-11", false)
	if !ledger.Save() {
		t.Fatal("save ledger")
	}

	if _, _, err := runCLI(t, []string{"state", "reset", "--airport", "edka"}, env.configPath); err == nil {
		t.Fatal("expected reset without --yes to fail")
	}
	out, _, err := runCLI(t, []string{"state", "reset", "--airport", "edka", "--yes"}, env.configPath)
	if err != nil {
		t.Fatalf("state reset: %v", err)
	}
	requireContains(t, out, "1 flights forgotten")

	reloaded, err := state.Open(env.cfg.StatePath("EDKA"), "EDKA")
	if err != nil {
		t.Fatal(err)
	}
	if len(reloaded.Filenames()) != 0 {
		t.Fatalf("ledger not reset: %v", reloaded.Filenames())
	}
}

func TestStateInitSeedsFromDisk(t *testing.T) {
	env := setupCLITestEnv(t)
	dir := filepath.Join(env.cfg.Paths.DownloadDir, "EDKA", "2024")
	testsupport.WriteIGC(t, filepath.Join(dir, "2024_Jane_Doe_101.igc"), "2024-06-11", "Jane Doe")
	testsupport.WriteBytes(t, filepath.Join(dir, "2024_Bad_102.igc"), []byte(testsupport.HTMLErrorPage))

	out, _, err := runCLI(t, []string{"state", "init", "--airport", "edka", "--mark-dates"}, env.configPath)
	if err != nil {
		t.Fatalf("state init: %v", err)
	}
	requireContains(t, out, "Recorded 1 flights across 1 dates")
	requireContains(t, out, "Skipped 1 invalid files")

	ledger, err := state.Open(env.cfg.StatePath("EDKA"), "EDKA")
	if err != nil {
		t.Fatal(err)
	}
	if !ledger.IsDateProcessed("2024-06-11") {
		t.Fatal("expected date closed")
	}
}

func TestCleanupRemovesHTMLLeftovers(t *testing.T) {
	env := setupCLITestEnv(t)
	bad := filepath.Join(env.cfg.Paths.DownloadDir, "EDKA", "2024", "2024_Bad_1.igc")
	good := filepath.Join(env.cfg.Paths.DownloadDir, "EDKA", "2024", "2024_Good_2.igc")
	testsupport.WriteBytes(t, bad, []byte(testsupport.HTMLErrorPage))
	testsupport.WriteIGC(t, good, "2024-06-11", "Good")

	out, _, err := runCLI(t, []string{"cleanup", "--dry-run"}, env.configPath)
	if err != nil {
		t.Fatalf("cleanup --dry-run: %v", err)
	}
	requireContains(t, out, "would remove")
	if _, err := os.Stat(bad); err != nil {
		t.Fatal("dry run removed the file")
	}

	out, _, err = runCLI(t, []string{"cleanup", "--airport", "edka"}, env.configPath)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	requireContains(t, out, "Removed 1 of 1")
	if _, err := os.Stat(bad); !os.IsNotExist(err) {
		t.Fatal("html leftover still present")
	}
	if _, err := os.Stat(good); err != nil {
		t.Fatal("valid track log removed")
	}
}

func TestMapCommandRendersAndClosesDates(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteIGC(t, filepath.Join(env.cfg.Paths.DownloadDir, "EDKA", "2024", "2024_Jane_Doe_101.igc"), "2024-06-11", "Jane Doe")

	out, _, err := runCLI(t, []string{"map", "--airport", "edka"}, env.configPath)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	requireContains(t, out, "Rendered 1 flights")
	if _, err := os.Stat(filepath.Join(env.cfg.Paths.MapDir, "EDKA", "index.html")); err != nil {
		t.Fatalf("index.html missing: %v", err)
	}
	ledger, err := state.Open(env.cfg.StatePath("EDKA"), "EDKA")
	if err != nil {
		t.Fatal(err)
	}
	if !ledger.IsDateProcessed("2024-06-11") {
		t.Fatal("rendered date not closed")
	}
	recent := ledger.RecentDates(1)
	if len(recent) != 1 || len(recent[0].Flags) != 1 || recent[0].Flags[0] != mapFlag {
		t.Fatalf("map flag missing: %+v", recent)
	}
}

func TestMetadataRebuildAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteIGC(t, filepath.Join(env.cfg.Paths.DownloadDir, "EDKA", "2024", "2024_Jane_Doe_101.igc"), "2024-06-11", "Jane Doe")

	if _, _, err := runCLI(t, []string{"metadata", "rebuild", "--airport", "edka"}, env.configPath); err == nil {
		t.Fatal("expected rebuild without --from-files to fail")
	}
	out, _, err := runCLI(t, []string{"metadata", "rebuild", "--airport", "edka", "--from-files"}, env.configPath)
	if err != nil {
		t.Fatalf("metadata rebuild: %v", err)
	}
	requireContains(t, out, "2024")

	out, _, err = runCLI(t, []string{"metadata", "validate", "--airport", "edka"}, env.configPath)
	if err != nil {
		t.Fatalf("metadata validate: %v", err)
	}
	requireContains(t, out, "2024")

	out, _, err = runCLI(t, []string{"flights", "--scope", "EDKA"}, env.configPath)
	if err != nil {
		t.Fatalf("flights: %v", err)
	}
	requireContains(t, out, "Jane Doe")
}

func TestUploadNeedsStorage(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"upload", "--airport", "edka"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Fatalf("expected storage configuration error, got %v", err)
	}
	_, _, err = runCLI(t, []string{"sync", "push", "--airport", "edka"}, env.configPath)
	if err == nil {
		t.Fatal("expected sync push without storage to fail")
	}
}

func TestDoctorOffline(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"doctor", "--offline"}, env.configPath)
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "[OK]")
	requireContains(t, out, "OLC credentials")
	requireContains(t, out, "skipped (--offline)")
	requireContains(t, out, "checks passed")
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "[OK] yes (pilot)")
	requireContains(t, out, "[INFO] no (not set)")

	out, _, err = runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "<redacted>")
	if strings.Contains(out, "'"+env.fake.Password+"'") || strings.Contains(out, `"`+env.fake.Password+`"`) {
		t.Fatalf("password leaked:\n%s", out)
	}

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected refusal to overwrite")
	}
}

func TestDownloadPublishesRunNotification(t *testing.T) {
	env := setupCLITestEnv(t)
	env.fake.AddFlights(fakeFlight("101", "2024", "2024-06-11"))

	var titles []string
	ntfy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		titles = append(titles, r.Header.Get("Title"))
		w.WriteHeader(http.StatusOK)
	}))
	defer ntfy.Close()
	env.cfg.Notifications.NtfyTopic = ntfy.URL
	env.configPath = testsupport.WriteConfigFile(t, env.cfg)

	if _, _, err := runCLI(t, []string{"download", "--airport", "edka", "--year", "2024"}, env.configPath); err != nil {
		t.Fatalf("download: %v", err)
	}
	if len(titles) != 1 || titles[0] != "olcsync - EDKA" {
		t.Fatalf("unexpected notifications %v", titles)
	}

	// nothing new on the second run
	if _, _, err := runCLI(t, []string{"download", "--airport", "edka", "--year", "2024"}, env.configPath); err != nil {
		t.Fatalf("second download: %v", err)
	}
	if len(titles) != 1 {
		t.Fatalf("quiet run should not notify, got %v", titles)
	}

	out, _, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "Test notification sent")
	if len(titles) != 2 || titles[1] != "olcsync - Test" {
		t.Fatalf("unexpected notifications %v", titles)
	}
}

func TestLogsCommandFiltersByScope(t *testing.T) {
	env := setupCLITestEnv(t)
	env.fake.AddFlights(fakeFlight("101", "2024", "2024-06-11"))
	if _, _, err := runCLI(t, []string{"--log-level", "info", "download", "--airport", "edka", "--year", "2024"}, env.configPath); err != nil {
		t.Fatalf("download: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs", "--scope", "edka", "-n", "200"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, `"scope":"EDKA"`)

	out, _, err = runCLI(t, []string{"logs", "--scope", "lszf"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if strings.TrimSpace(out) != "" {
		t.Fatalf("expected no lines for another scope, got:\n%s", out)
	}
}

func TestRenderStatusLine(t *testing.T) {
	plain := renderStatusLine("Catalog", statusError, "missing", false)
	if !strings.Contains(plain, "[ERROR] missing") || strings.Contains(plain, ansiRed) {
		t.Fatalf("unexpected plain line %q", plain)
	}
	colored := renderStatusLine("Catalog", statusOK, "", true)
	if !strings.HasPrefix(colored, ansiGreen) || !strings.HasSuffix(colored, ansiReset) {
		t.Fatalf("unexpected colored line %q", colored)
	}
}

func TestRenderCheckSummary(t *testing.T) {
	results := []preflight.Result{
		{Name: "Download directory", Passed: true, Detail: "ok"},
		{Name: "Object storage", Passed: true, Detail: "Disabled"},
		{Name: "OLC credentials", Detail: "missing"},
	}
	if got := renderCheckSummary(results); got != "1 of 3 checks failed" {
		t.Fatalf("unexpected summary %q", got)
	}
	if got := checkKind(results[1]); got != statusInfo {
		t.Fatalf("disabled feature should be informational, got %v", got)
	}
	if got := renderCheck(results[2], false); !strings.Contains(got, "[ERROR] missing") {
		t.Fatalf("unexpected check line %q", got)
	}
}

func TestExitCodeSeparatesSetupFailures(t *testing.T) {
	if got := exitCode(services.Wrap(services.ErrConfiguration, "config", "load", "bad", nil)); got != exitSetup {
		t.Fatalf("configuration error exit = %d", got)
	}
	if got := exitCode(errors.New("boom")); got != exitFailure {
		t.Fatalf("generic error exit = %d", got)
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}

func TestNormalizeScopeKey(t *testing.T) {
	cases := map[string]string{"edka": "EDKA", " Pilot ": "pilot", "": ""}
	for in, want := range cases {
		if got := normalizeScopeKey(in); got != want {
			t.Errorf("normalizeScopeKey(%q) = %q, want %q", in, got, want)
		}
	}
}

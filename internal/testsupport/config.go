package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"olcsync/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Request pacing is disabled so tests never wait on the limiter.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DownloadDir = filepath.Join(base, "downloads")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.MapDir = filepath.Join(base, "map")
	cfgVal.Paths.CatalogPath = filepath.Join(base, "catalog.db")
	cfgVal.OLC.Username = "pilot"
	cfgVal.OLC.Password = "secret"
	cfgVal.OLC.RequestInterval = 0
	cfgVal.OLC.RequestTimeout = 5
	cfgVal.OLC.DownloadTimeout = 5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithFakeOLC points the config at a fake site and uses its credentials.
func WithFakeOLC(site *FakeOLC) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.OLC.BaseURL = site.URL
		b.cfg.OLC.Username = site.Username
		b.cfg.OLC.Password = site.Password
	}
}

// WithCredentials overrides the login pair.
func WithCredentials(user, pass string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.OLC.Username = user
		b.cfg.OLC.Password = pass
	}
}

// WithMetricsTextfile enables the metrics textfile inside the temp tree.
func WithMetricsTextfile() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.MetricsTextfile = filepath.Join(b.baseDir, "metrics", "olcsync.prom")
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DownloadDir)
}

// WriteConfigFile serializes cfg to config.toml inside its temp tree and
// returns the path.
func WriteConfigFile(t testing.TB, cfg *config.Config) string {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(BaseDir(cfg), "config.toml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

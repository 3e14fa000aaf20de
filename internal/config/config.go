package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"olcsync/internal/fileutil"
	"olcsync/internal/services"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and file location configuration.
type Paths struct {
	DownloadDir     string `toml:"download_dir"`
	StateDir        string `toml:"state_dir"`
	LogDir          string `toml:"log_dir"`
	MapDir          string `toml:"map_dir"`
	CatalogPath     string `toml:"catalog_path"`
	MetricsTextfile string `toml:"metrics_textfile"`
}

// OLC contains the contest site connection settings and credentials.
type OLC struct {
	BaseURL         string `toml:"base_url"`
	Username        string `toml:"username"`
	Password        string `toml:"password"`
	UserAgent       string `toml:"user_agent"`
	RequestTimeout  int    `toml:"request_timeout"`
	DownloadTimeout int    `toml:"download_timeout"`
	RequestInterval int    `toml:"request_interval"`
}

// Download contains the transfer retry policy.
type Download struct {
	MaxRetries int `toml:"max_retries"`
}

// Storage contains S3-compatible object storage settings (Cloudflare R2 by default).
type Storage struct {
	Endpoint        string `toml:"endpoint"`
	AccountID       string `toml:"account_id"`
	Bucket          string `toml:"bucket"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	Region          string `toml:"region"`
	UseSSL          bool   `toml:"use_ssl"`
	PublicDomain    string `toml:"public_domain"`
}

// Map contains settings for the generated flight map.
type Map struct {
	Title   string `toml:"title"`
	TileURL string `toml:"tile_url"`
}

// Notifications contains the ntfy push settings. An empty topic disables them.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for olcsync.
//
// Configuration sections by subsystem:
//   - Paths: downloads, state documents, logs, map output, catalog
//   - OLC: site URL, credentials, timeouts and request pacing
//   - Download: retry policy for track-log transfers
//   - Storage: object storage bucket used by upload and sync
//   - Map: generated map title and base tiles
//   - Notifications: ntfy topic for run and upload events
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	OLC           OLC           `toml:"olc"`
	Download      Download      `toml:"download"`
	Storage       Storage       `toml:"storage"`
	Map           Map           `toml:"map"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

const defaultConfigPath = "~/.config/olcsync/config.toml"

// projectConfigName is picked up from the working directory when no user
// config exists.
const projectConfigName = "olcsync.toml"

// DefaultConfigPath returns the expanded user config location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load resolves the config file, decodes it over Default(), then normalizes
// and validates the result. It returns the config, the path it resolved and
// whether that file existed. A missing file is not an error.
//
// Resolution order: the explicit path, $OLCSYNC_CONFIG, the user config,
// then ./olcsync.toml.
func Load(path string) (*Config, string, bool, error) {
	resolved, exists, err := locate(path)
	if err != nil {
		return nil, "", false, err
	}
	cfg := Default()
	if exists {
		if err := decodeFile(resolved, &cfg); err != nil {
			return nil, "", false, err
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	if err := toml.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func locate(explicit string) (string, bool, error) {
	if explicit == "" {
		explicit = strings.TrimSpace(os.Getenv("OLCSYNC_CONFIG"))
	}
	if explicit != "" {
		expanded, err := expandPath(explicit)
		if err != nil {
			return "", false, err
		}
		found, err := isFile(expanded)
		return expanded, found, err
	}

	user, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	project, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}
	for _, candidate := range []string{user, project} {
		if found, _ := isFile(candidate); found {
			return candidate, true, nil
		}
	}
	return user, false, nil
}

func isFile(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("stat config: %w", err)
	case info.IsDir():
		return false, fmt.Errorf("config path %s is a directory", path)
	}
	return true, nil
}

// EnsureDirectories creates the download, state, and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DownloadDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// Credentials returns the OLC login pair or a configuration error when
// either half is missing. Callers must check this before any network activity.
func (c *Config) Credentials() (string, string, error) {
	user := strings.TrimSpace(c.OLC.Username)
	pass := c.OLC.Password
	if user == "" || pass == "" {
		return "", "", services.Wrap(services.ErrConfiguration, "config", "credentials",
			"credentials not found; set OLC_USERNAME and OLC_PASSWORD or [olc] username/password", nil)
	}
	return user, pass, nil
}

// StorageEnabled reports whether object storage is configured well enough to connect.
func (c *Config) StorageEnabled() bool {
	return c.Storage.Endpoint != "" && c.Storage.Bucket != "" &&
		c.Storage.AccessKeyID != "" && c.Storage.SecretAccessKey != ""
}

// StatePath returns the processing state document for a scope.
func (c *Config) StatePath(scope string) string {
	return filepath.Join(c.Paths.StateDir, scope+".json")
}

// ScopeDownloadDir returns the download directory for a scope.
func (c *Config) ScopeDownloadDir(scope string) string {
	return filepath.Join(c.Paths.DownloadDir, scope)
}

// ExpandPath resolves a leading ~ against the home directory and returns an
// absolute, cleaned path. The empty string passes through.
func ExpandPath(raw string) (string, error) {
	return expandPath(raw)
}

func expandPath(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	if raw == "~" || strings.HasPrefix(raw, "~/") || strings.HasPrefix(raw, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		raw = filepath.Join(home, raw[1:])
	}
	abs, err := filepath.Abs(raw)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", raw, err)
	}
	return abs, nil
}

// CreateSample writes the annotated sample configuration to path with
// owner-only permissions, since it is where credentials end up.
func CreateSample(path string) error {
	if err := fileutil.WriteFileAtomic(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

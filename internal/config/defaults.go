package config

const (
	defaultDownloadDir     = "./downloads"
	defaultStateDir        = "~/.local/share/olcsync/state"
	defaultLogDir          = "~/.local/share/olcsync/logs"
	defaultMapDir          = "./map"
	defaultCatalogPath     = "~/.local/share/olcsync/catalog.db"
	defaultBaseURL         = "https://www.onlinecontest.org"
	defaultUserAgent       = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
	defaultRequestTimeout  = 60
	defaultDownloadTimeout = 180
	defaultRequestInterval = 5
	defaultMaxRetries      = 3
	defaultBucket          = "map"
	defaultRegion          = "auto"
	defaultMapTitle        = "OLC Flights"
	defaultTileURL         = "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"
	defaultNotifyTimeout   = 10
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DownloadDir: defaultDownloadDir,
			StateDir:    defaultStateDir,
			LogDir:      defaultLogDir,
			MapDir:      defaultMapDir,
			CatalogPath: defaultCatalogPath,
		},
		OLC: OLC{
			BaseURL:         defaultBaseURL,
			UserAgent:       defaultUserAgent,
			RequestTimeout:  defaultRequestTimeout,
			DownloadTimeout: defaultDownloadTimeout,
			RequestInterval: defaultRequestInterval,
		},
		Download: Download{
			MaxRetries: defaultMaxRetries,
		},
		Storage: Storage{
			Bucket: defaultBucket,
			Region: defaultRegion,
			UseSSL: true,
		},
		Map: Map{
			Title:   defaultMapTitle,
			TileURL: defaultTileURL,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

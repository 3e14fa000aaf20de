package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeOLC()
	c.normalizeDownload()
	c.normalizeStorage()
	c.normalizeMap()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DownloadDir == "" {
		if value, ok := os.LookupEnv("OLC_DOWNLOAD_DIR"); ok && strings.TrimSpace(value) != "" {
			c.Paths.DownloadDir = strings.TrimSpace(value)
		} else {
			c.Paths.DownloadDir = defaultDownloadDir
		}
	}
	if c.Paths.DownloadDir, err = expandPath(c.Paths.DownloadDir); err != nil {
		return fmt.Errorf("paths.download_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.MapDir) == "" {
		c.Paths.MapDir = defaultMapDir
	}
	if c.Paths.MapDir, err = expandPath(c.Paths.MapDir); err != nil {
		return fmt.Errorf("paths.map_dir: %w", err)
	}
	if c.Paths.CatalogPath, err = expandPath(c.Paths.CatalogPath); err != nil {
		return fmt.Errorf("paths.catalog_path: %w", err)
	}
	if c.Paths.MetricsTextfile, err = expandPath(strings.TrimSpace(c.Paths.MetricsTextfile)); err != nil {
		return fmt.Errorf("paths.metrics_textfile: %w", err)
	}
	return nil
}

func (c *Config) normalizeOLC() {
	c.OLC.BaseURL = strings.TrimRight(strings.TrimSpace(c.OLC.BaseURL), "/")
	if c.OLC.BaseURL == "" {
		c.OLC.BaseURL = defaultBaseURL
	}
	c.OLC.Username = strings.TrimSpace(c.OLC.Username)
	if c.OLC.Username == "" {
		if value, ok := os.LookupEnv("OLC_USERNAME"); ok {
			c.OLC.Username = strings.TrimSpace(value)
		}
	}
	if c.OLC.Password == "" {
		if value, ok := os.LookupEnv("OLC_PASSWORD"); ok {
			c.OLC.Password = value
		}
	}
	c.OLC.UserAgent = strings.TrimSpace(c.OLC.UserAgent)
	if c.OLC.UserAgent == "" {
		c.OLC.UserAgent = defaultUserAgent
	}
	if c.OLC.RequestTimeout <= 0 {
		c.OLC.RequestTimeout = defaultRequestTimeout
	}
	if c.OLC.DownloadTimeout <= 0 {
		c.OLC.DownloadTimeout = defaultDownloadTimeout
	}
	if c.OLC.RequestInterval < 0 {
		c.OLC.RequestInterval = 0
	}
}

func (c *Config) normalizeDownload() {
	if c.Download.MaxRetries <= 0 {
		c.Download.MaxRetries = defaultMaxRetries
	}
}

func (c *Config) normalizeStorage() {
	c.Storage.AccountID = strings.TrimSpace(c.Storage.AccountID)
	if c.Storage.AccountID == "" {
		if value, ok := os.LookupEnv("R2_ACCOUNT_ID"); ok {
			c.Storage.AccountID = strings.TrimSpace(value)
		}
	}
	c.Storage.AccessKeyID = strings.TrimSpace(c.Storage.AccessKeyID)
	if c.Storage.AccessKeyID == "" {
		if value, ok := os.LookupEnv("R2_ACCESS_KEY_ID"); ok {
			c.Storage.AccessKeyID = strings.TrimSpace(value)
		}
	}
	c.Storage.SecretAccessKey = strings.TrimSpace(c.Storage.SecretAccessKey)
	if c.Storage.SecretAccessKey == "" {
		if value, ok := os.LookupEnv("R2_SECRET_ACCESS_KEY"); ok {
			c.Storage.SecretAccessKey = strings.TrimSpace(value)
		}
	}
	c.Storage.PublicDomain = strings.TrimSpace(c.Storage.PublicDomain)
	if c.Storage.PublicDomain == "" {
		if value, ok := os.LookupEnv("R2_PUBLIC_DOMAIN"); ok {
			c.Storage.PublicDomain = strings.TrimSpace(value)
		}
	}
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	c.Storage.Endpoint = strings.TrimPrefix(strings.TrimPrefix(c.Storage.Endpoint, "https://"), "http://")
	c.Storage.Endpoint = strings.TrimRight(c.Storage.Endpoint, "/")
	if c.Storage.Endpoint == "" && c.Storage.AccountID != "" {
		c.Storage.Endpoint = c.Storage.AccountID + ".r2.cloudflarestorage.com"
	}
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	if c.Storage.Bucket == "" {
		c.Storage.Bucket = defaultBucket
	}
	c.Storage.Region = strings.TrimSpace(c.Storage.Region)
	if c.Storage.Region == "" {
		c.Storage.Region = defaultRegion
	}
}

func (c *Config) normalizeMap() {
	c.Map.Title = strings.TrimSpace(c.Map.Title)
	if c.Map.Title == "" {
		c.Map.Title = defaultMapTitle
	}
	c.Map.TileURL = strings.TrimSpace(c.Map.TileURL)
	if c.Map.TileURL == "" {
		c.Map.TileURL = defaultTileURL
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

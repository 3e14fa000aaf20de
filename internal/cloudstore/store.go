package cloudstore

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"olcsync/internal/config"
	"olcsync/internal/logging"
	"olcsync/internal/services"
)

const (
	// CacheLong suits immutable track logs.
	CacheLong = "public, max-age=31536000"
	// CacheShort suits documents rewritten on every run.
	CacheShort = "public, max-age=3600"
)

// objectAPI is the subset of *minio.Client the store uses.
type objectAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	FGetObject(ctx context.Context, bucket, object, filePath string, opts minio.GetObjectOptions) error
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

// Config describes the bucket connection.
type Config struct {
	Endpoint        string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	UseSSL          bool
	PublicDomain    string
	Logger          *slog.Logger
}

// Store uploads to and downloads from one bucket.
type Store struct {
	api          objectAPI
	bucket       string
	publicDomain string
	logger       *slog.Logger
}

// New connects to the bucket described by cfg. No request is made.
func New(cfg Config) (*Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, services.Wrap(services.ErrConfiguration, "cloudstore", "new", "endpoint and bucket are required", nil)
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "cloudstore", "new",
			"access key missing (set storage.access_key_id/secret_access_key or R2_ACCESS_KEY_ID/R2_SECRET_ACCESS_KEY)", nil)
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "cloudstore", "new", cfg.Endpoint, err)
	}
	return newWithAPI(client, cfg), nil
}

// FromConfig builds a Store from the [storage] section.
func FromConfig(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if !cfg.StorageEnabled() {
		return nil, services.Wrap(services.ErrConfiguration, "cloudstore", "config",
			"object storage is not configured (set storage.endpoint or R2_ACCOUNT_ID)", nil)
	}
	s := cfg.Storage
	return New(Config{
		Endpoint:        s.Endpoint,
		Bucket:          s.Bucket,
		AccessKeyID:     s.AccessKeyID,
		SecretAccessKey: s.SecretAccessKey,
		Region:          s.Region,
		UseSSL:          s.UseSSL,
		PublicDomain:    s.PublicDomain,
		Logger:          logger,
	})
}

func newWithAPI(api objectAPI, cfg Config) *Store {
	return &Store{
		api:          api,
		bucket:       cfg.Bucket,
		publicDomain: strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(cfg.PublicDomain, "https://"), "http://"), "/"),
		logger:       logging.NewComponentLogger(cfg.Logger, "cloudstore"),
	}
}

// Bucket returns the bucket name.
func (s *Store) Bucket() string { return s.bucket }

// Ping checks that the bucket exists and the credentials work.
func (s *Store) Ping(ctx context.Context) error {
	ok, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return services.Wrap(services.ErrTransient, "cloudstore", "ping", s.bucket, err)
	}
	if !ok {
		return services.Wrap(services.ErrConfiguration, "cloudstore", "ping", fmt.Sprintf("bucket %q does not exist", s.bucket), nil)
	}
	return nil
}

// PublicURL returns the public address of key, or "" without a public domain.
func (s *Store) PublicURL(key string) string {
	if s.publicDomain == "" {
		return ""
	}
	return "https://" + s.publicDomain + "/" + strings.TrimPrefix(key, "/")
}

// ContentType guesses the MIME type from the key's extension.
func ContentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".igc":
		return "application/octet-stream"
	case ".json":
		return "application/json"
	case ".html":
		return "text/html; charset=utf-8"
	}
	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// JoinKey joins key parts with forward slashes.
func JoinKey(parts ...string) string {
	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Trim(filepath.ToSlash(p), "/"); p != "" {
			clean = append(clean, p)
		}
	}
	return strings.Join(clean, "/")
}

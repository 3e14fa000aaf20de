package cloudstore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"

	"olcsync/internal/fileutil"
	"olcsync/internal/logging"
	"olcsync/internal/services"
)

// UploadOptions controls one upload.
type UploadOptions struct {
	// ContentType defaults to ContentType(key).
	ContentType  string
	CacheControl string
	// Force uploads even when the remote copy matches.
	Force bool
}

// DirResult counts a directory upload.
type DirResult struct {
	Uploaded int
	Skipped  int
	Failed   int
	Total    int
}

// UploadIfChanged puts localPath at key unless the remote ETag already equals
// the local MD5.
func (s *Store) UploadIfChanged(ctx context.Context, localPath, key string, opts UploadOptions) (uploaded, skipped bool, err error) {
	sum, err := fileutil.MD5Hex(localPath)
	if err != nil {
		return false, false, services.Wrap(services.ErrValidation, "cloudstore", "upload", localPath, err)
	}
	if !opts.Force {
		same, err := s.remoteMatches(ctx, key, sum)
		if err != nil {
			return false, false, err
		}
		if same {
			s.logger.Debug("unchanged, skipping", logging.String("key", key))
			return false, true, nil
		}
	}
	contentType := opts.ContentType
	if contentType == "" {
		contentType = ContentType(key)
	}
	if _, err := s.api.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: opts.CacheControl,
	}); err != nil {
		return false, false, services.Wrap(services.ErrTransient, "cloudstore", "upload", key, err)
	}
	s.logger.Debug("uploaded", logging.String("key", key))
	return true, false, nil
}

func (s *Store) remoteMatches(ctx context.Context, key, md5sum string) (bool, error) {
	info, err := s.api.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, services.Wrap(services.ErrTransient, "cloudstore", "stat", key, err)
	}
	return strings.EqualFold(strings.Trim(info.ETag, `"`), md5sum), nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == 404
}

// UploadDir uploads every regular file below dir accepted by match (nil
// accepts all) to prefix/<relative path>. Per-file failures are logged and
// counted; the walk continues.
func (s *Store) UploadDir(ctx context.Context, dir, prefix string, match func(rel string) bool, opts UploadOptions) (DirResult, error) {
	var result DirResult
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return result, services.Wrap(services.ErrValidation, "cloudstore", "upload dir", "directory not found: "+dir, err)
	}
	walkErr := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if match != nil && !match(rel) {
			return nil
		}
		result.Total++
		uploaded, skipped, err := s.UploadIfChanged(ctx, p, JoinKey(prefix, rel), opts)
		switch {
		case err != nil:
			result.Failed++
			s.logger.Warn("upload failed", logging.String("file", rel), logging.Error(err))
		case uploaded:
			result.Uploaded++
		case skipped:
			result.Skipped++
		}
		return nil
	})
	s.logger.Info("directory upload finished",
		logging.String("prefix", prefix),
		logging.Int("uploaded", result.Uploaded),
		logging.Int("skipped", result.Skipped),
		logging.Int("failed", result.Failed),
		logging.Int("total", result.Total),
	)
	if walkErr != nil {
		return result, services.Wrap(services.ErrTransient, "cloudstore", "upload dir", dir, walkErr)
	}
	return result, nil
}

// Object is a listed remote file.
type Object struct {
	Key  string
	Size int64
	ETag string
}

// List returns every object under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]Object, error) {
	var out []Object
	for info := range s.api.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return out, services.Wrap(services.ErrTransient, "cloudstore", "list", prefix, info.Err)
		}
		out = append(out, Object{Key: info.Key, Size: info.Size, ETag: strings.Trim(info.ETag, `"`)})
	}
	return out, nil
}

// Download writes key to localPath, creating parent directories.
func (s *Store) Download(ctx context.Context, key, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return services.Wrap(services.ErrValidation, "cloudstore", "download", localPath, err)
	}
	if err := s.api.FGetObject(ctx, s.bucket, key, localPath, minio.GetObjectOptions{}); err != nil {
		if isNotFound(err) {
			return services.Wrap(services.ErrNotFound, "cloudstore", "download", key, err)
		}
		return services.Wrap(services.ErrTransient, "cloudstore", "download", key, err)
	}
	return nil
}

// PullPrefix downloads every object under prefix accepted by match into
// localDir, keeping the key layout below prefix. Files whose MD5 already
// matches are left alone.
func (s *Store) PullPrefix(ctx context.Context, prefix, localDir string, match func(key string) bool) (DirResult, error) {
	var result DirResult
	objects, err := s.List(ctx, prefix)
	if err != nil {
		return result, err
	}
	for _, obj := range objects {
		if match != nil && !match(obj.Key) {
			continue
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(obj.Key, prefix), "/")
		if rel == "" {
			continue
		}
		result.Total++
		local := filepath.Join(localDir, filepath.FromSlash(rel))
		if sum, err := fileutil.MD5Hex(local); err == nil && strings.EqualFold(sum, obj.ETag) {
			result.Skipped++
			continue
		}
		if err := s.Download(ctx, obj.Key, local); err != nil {
			if errors.Is(err, context.Canceled) {
				return result, err
			}
			result.Failed++
			s.logger.Warn("download failed", logging.String("key", obj.Key), logging.Error(err))
			continue
		}
		result.Uploaded++
	}
	return result, nil
}

func isMissing(err error) bool {
	return errors.Is(err, services.ErrNotFound)
}

package cloudstore

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"olcsync/internal/logging"
	"olcsync/internal/metadata"
)

// Remote layout.
const (
	FlightsPrefix  = "flights"
	MetadataPrefix = "metadata"
	StatePrefix    = "state"
	MapsPrefix     = "maps"
	MapIndex       = "index.html"
)

// SyncResult counts one scope sync in either direction.
type SyncResult struct {
	Flights  DirResult
	Metadata DirResult
	State    bool
}

// StateKey is the remote key of a scope's state document.
func StateKey(scope string) string {
	return JoinKey(StatePrefix, scope+".json")
}

func isIGC(rel string) bool {
	return strings.EqualFold(path.Ext(rel), ".igc")
}

func isMetadata(rel string) bool {
	return path.Base(rel) == metadata.FileName
}

// PushScope uploads a scope's track logs, metadata documents and state
// document. A missing state file is not an error.
func (s *Store) PushScope(ctx context.Context, scope, scopeDir, statePath string) (SyncResult, error) {
	var result SyncResult
	logger := s.logger.With(logging.String(logging.FieldScope, scope))
	if _, err := os.Stat(scopeDir); err == nil {
		flights, err := s.UploadFlights(ctx, scope, scopeDir)
		result.Flights = flights
		if err != nil {
			return result, err
		}
		meta, err := s.UploadDir(ctx, scopeDir, JoinKey(MetadataPrefix, scope), isMetadata, UploadOptions{CacheControl: CacheShort})
		result.Metadata = meta
		if err != nil {
			return result, err
		}
	} else {
		logger.Info("no local downloads to push", logging.String("dir", scopeDir))
	}
	if _, err := os.Stat(statePath); err == nil {
		uploaded, _, err := s.UploadIfChanged(ctx, statePath, StateKey(scope), UploadOptions{CacheControl: "no-cache"})
		if err != nil {
			return result, err
		}
		result.State = uploaded
	}
	return result, nil
}

// PullScope downloads a scope's remote metadata, track logs and state
// document into the local layout. Callers hold the scope lock.
func (s *Store) PullScope(ctx context.Context, scope, scopeDir, statePath string) (SyncResult, error) {
	var result SyncResult
	meta, err := s.PullPrefix(ctx, JoinKey(MetadataPrefix, scope), scopeDir, func(key string) bool { return isMetadata(key) })
	result.Metadata = meta
	if err != nil {
		return result, err
	}
	flights, err := s.PullPrefix(ctx, JoinKey(FlightsPrefix, scope), scopeDir, func(key string) bool { return isIGC(key) })
	result.Flights = flights
	if err != nil {
		return result, err
	}
	if err := s.Download(ctx, StateKey(scope), statePath); err != nil {
		if !isMissing(err) {
			return result, err
		}
		s.logger.Info("no remote state document", logging.String(logging.FieldScope, scope))
	} else {
		result.State = true
	}
	return result, nil
}

// UploadMap publishes a rendered map directory. index.html goes to the bucket
// root and every other file under maps/.
func (s *Store) UploadMap(ctx context.Context, mapDir string) (DirResult, error) {
	var result DirResult
	index := filepath.Join(mapDir, MapIndex)
	if _, err := os.Stat(index); err == nil {
		result.Total++
		uploaded, skipped, err := s.UploadIfChanged(ctx, index, MapIndex, UploadOptions{CacheControl: CacheShort})
		switch {
		case err != nil:
			return result, err
		case uploaded:
			result.Uploaded++
		case skipped:
			result.Skipped++
		}
	}
	rest, err := s.UploadDir(ctx, mapDir, MapsPrefix, func(rel string) bool { return rel != MapIndex }, UploadOptions{CacheControl: CacheShort})
	result.Uploaded += rest.Uploaded
	result.Skipped += rest.Skipped
	result.Failed += rest.Failed
	result.Total += rest.Total
	return result, err
}

// UploadFlights publishes a scope's track logs under flights/{scope}/.
func (s *Store) UploadFlights(ctx context.Context, scope, scopeDir string) (DirResult, error) {
	return s.UploadDir(ctx, scopeDir, JoinKey(FlightsPrefix, scope), isIGC, UploadOptions{CacheControl: CacheLong})
}

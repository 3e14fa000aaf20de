// Package cloudstore talks to an S3-compatible bucket (Cloudflare R2 in
// practice) through minio-go. Uploads are skipped when the remote ETag already
// equals the local MD5, so repeated syncs only move changed files.
package cloudstore

// Package storage is the S3-compatible object store the s3 publish target
// writes repositories into.
package storage

import (
	"context"
	"io"
)

// ObjectStorage is the subset of an object store the publisher needs.
type ObjectStorage interface {
	// EnsureBucket creates the bucket when it is missing.
	EnsureBucket(ctx context.Context) error

	// Upload streams size bytes from reader into key.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// GetURL returns the public URL of key.
	GetURL(key string) string
}

package storage

import (
	"context"
	"io"
)

// Storage is the interface for file storage backends.
type Storage interface {
	// Put stores a file under the given key.
	Put(ctx context.Context, key string, reader io.Reader, contentType string) error

	// Get retrieves a file by key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes a file by key. Returns nil if the file doesn't exist.
	Delete(ctx context.Context, key string) error

	// Exists checks whether a file is stored under the key.
	Exists(ctx context.Context, key string) (bool, error)

	// GetURL returns the public URL for a stored file.
	GetURL(key string) string

	// GetInfo returns metadata for a stored file.
	GetInfo(ctx context.Context, key string) (*FileInfo, error)
}

// FileInfo is stored object metadata.
type FileInfo struct {
	Key         string
	Size        int64
	ContentType string
	URL         string
}

// CategoryEvidence is dispute evidence uploads: images and documents.
const CategoryEvidence = "evidence"

// AllowedMimeTypes maps upload categories to accepted content types,
// detected from magic bytes rather than trusted from the client.
var AllowedMimeTypes = map[string][]string{
	CategoryEvidence: {
		"image/jpeg",
		"image/png",
		"image/webp",
		"application/pdf",
	},
}

// MaxFileSizes maps upload categories to size caps in bytes.
var MaxFileSizes = map[string]int64{
	CategoryEvidence: 10 * 1024 * 1024,
}

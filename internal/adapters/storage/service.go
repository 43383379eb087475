// Package storage archives uploaded import files in S3-compatible object storage.
package storage

import (
	"context"
	"io"
)

// Archive stores and retrieves uploaded import files.
type Archive interface {
	// Put stores data under a key derived from the operator and file name and returns the key.
	Put(ctx context.Context, telegramID int64, fileName string, data []byte) (string, error)
	// Get opens a previously archived file. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

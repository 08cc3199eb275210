package storage

import (
	"context"
	"io"
)

// BlobStore is the object-storage collaborator: binary blobs in, stable URLs
// out. Attachment payloads are staged here before the message row is written.
type BlobStore interface {
	// Put writes the blob under key and returns the URL it is served from.
	Put(ctx context.Context, key, contentType string, r io.Reader) (string, error)
	// Delete removes the blob. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
}

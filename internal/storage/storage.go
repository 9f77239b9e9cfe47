// Package storage defines the interface for object storage operations.
// Swap implementations by changing the concrete type injected at startup:
// MinIO works with any S3-compatible provider, GCS talks to Google Cloud
// Storage, and Local writes to a directory for development.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// Storage is the interface for uploading objects and resolving their locators.
type Storage interface {
	// Upload streams data to the store under the given key. size is the exact
	// byte count, or -1 when unknown. A failed upload leaves no object behind.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	// Delete removes an object identified by key.
	Delete(ctx context.Context, key string) error
	// List calls fn for every object whose key starts with prefix. Returning
	// an error from fn stops the listing and is returned by List.
	List(ctx context.Context, prefix string, fn func(Object) error) error
	// PublicURL constructs the externally resolvable URL for a given key.
	PublicURL(key string) string
}

// Object describes a stored object as reported by List.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const (
	// gcsPublicHost is the host GCS serves public objects from.
	gcsPublicHost = "https://storage.googleapis.com"

	// gcsChunkSize matches the client's default resumable chunk size.
	gcsChunkSize = 16 << 20
)

// GCSStorage uploads objects to a Google Cloud Storage bucket. Locators are
// the object's public URL, so the bucket must grant public read for them to
// resolve.
type GCSStorage struct {
	client     *storage.Client
	bucket     string
	publicBase string
}

// NewGCSStorage creates a GCSStorage for the given bucket. opts are passed
// through to the underlying GCS client, allowing credential injection. An
// empty publicBase defaults to https://storage.googleapis.com/<bucket>.
func NewGCSStorage(ctx context.Context, bucket, publicBase string, opts ...option.ClientOption) (*GCSStorage, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	if publicBase == "" {
		publicBase = gcsPublicHost + "/" + bucket
	}
	return &GCSStorage{
		client:     client,
		bucket:     bucket,
		publicBase: strings.TrimRight(publicBase, "/"),
	}, nil
}

// Upload writes content to GCS at key. The writer's context is cancelled on
// a copy failure so GCS discards the partial upload instead of finalising it.
func (s *GCSStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if size >= 0 && size < gcsChunkSize {
		// Small payloads go up in a single request.
		w.ChunkSize = 0
	}

	if _, err := io.Copy(w, reader); err != nil {
		cancel()
		_ = w.Close()
		return fmt.Errorf("upload write failed for %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("upload close failed for %q: %w", key, err)
	}
	return nil
}

// Delete removes the object at key.
func (s *GCSStorage) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete object %q: %w", key, err)
	}
	return nil
}

// List iterates the bucket under prefix.
func (s *GCSStorage) List(ctx context.Context, prefix string, fn func(Object) error) error {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("list objects in bucket %q: %w", s.bucket, err)
		}
		if err := fn(Object{Key: attrs.Name, Size: attrs.Size, LastModified: attrs.Updated}); err != nil {
			return err
		}
	}
}

// PublicURL returns the public URL of the object at key.
func (s *GCSStorage) PublicURL(key string) string {
	return s.publicBase + "/" + key
}

// Close releases the underlying client.
func (s *GCSStorage) Close() error {
	return s.client.Close()
}

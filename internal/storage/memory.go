package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStorage is a concurrency-safe in-memory Storage. It backs tests and
// can be told to fail uploads to simulate an unavailable backend.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	uploads int
	failErr error

	publicBase string
}

type memoryObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// NewMemoryStorage returns an empty MemoryStorage whose locators are
// publicBase/key.
func NewMemoryStorage(publicBase string) *MemoryStorage {
	return &MemoryStorage{
		objects:    make(map[string]memoryObject),
		publicBase: strings.TrimRight(publicBase, "/"),
	}
}

// FailUploads makes every subsequent Upload return err. A nil err restores
// normal behaviour.
func (s *MemoryStorage) FailUploads(err error) {
	s.mu.Lock()
	s.failErr = err
	s.mu.Unlock()
}

// Upload reads the whole payload and stores it under key. Nothing is stored
// if reading fails or ctx is done.
func (s *MemoryStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	s.mu.Lock()
	s.uploads++
	failErr := s.failErr
	s.mu.Unlock()

	if failErr != nil {
		return fmt.Errorf("put object %q: %w", key, failErr)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("put object %q: %w", key, err)
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("put object %q: got %d bytes, want %d", key, len(data), size)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("put object %q: %w", key, err)
	}

	s.mu.Lock()
	s.objects[key] = memoryObject{data: data, contentType: contentType, modified: time.Now()}
	s.mu.Unlock()
	return nil
}

// Delete removes the object at key.
func (s *MemoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[key]; !ok {
		return ErrNotFound
	}
	delete(s.objects, key)
	return nil
}

// List reports objects under prefix in key order.
func (s *MemoryStorage) List(ctx context.Context, prefix string, fn func(Object) error) error {
	s.mu.RLock()
	objs := make([]Object, 0, len(s.objects))
	for k, o := range s.objects {
		if strings.HasPrefix(k, prefix) {
			objs = append(objs, Object{Key: k, Size: int64(len(o.data)), LastModified: o.modified})
		}
	}
	s.mu.RUnlock()

	sort.Slice(objs, func(i, j int) bool { return objs[i].Key < objs[j].Key })
	for _, o := range objs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(o); err != nil {
			return err
		}
	}
	return nil
}

// PublicURL returns publicBase/key.
func (s *MemoryStorage) PublicURL(key string) string {
	return s.publicBase + "/" + key
}

// Open returns a reader over a copy of the object at key.
func (s *MemoryStorage) Open(key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(o.data))), nil
}

// ContentType returns the content type recorded for key.
func (s *MemoryStorage) ContentType(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.objects[key]
	return o.contentType, ok
}

// Touch overrides the modification time of key.
func (s *MemoryStorage) Touch(key string, modified time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o, ok := s.objects[key]; ok {
		o.modified = modified
		s.objects[key] = o
	}
}

// Len returns the number of stored objects.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Uploads returns how many times Upload has been called.
func (s *MemoryStorage) Uploads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uploads
}

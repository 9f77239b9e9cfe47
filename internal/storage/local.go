package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage writes objects to a directory on the local filesystem. When no
// public base is configured the locator is a file:// URL pointing at the
// written file.
type LocalStorage struct {
	baseDir    string
	publicBase string
}

// NewLocalStorage creates a LocalStorage that writes objects under baseDir.
// The directory is created if it does not already exist.
func NewLocalStorage(baseDir, publicBase string) (*LocalStorage, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create local base directory %q: %w", baseDir, err)
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute path for %q: %w", baseDir, err)
	}
	return &LocalStorage{baseDir: abs, publicBase: strings.TrimRight(publicBase, "/")}, nil
}

// Upload copies reader into a temp file next to the destination and renames
// it into place, so readers never observe a partially written object.
func (s *LocalStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, _ string) error {
	dest, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create directory for %q: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file for %q: %w", key, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: reader})
	if err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %q: %w", key, err)
	}
	if size >= 0 && n != size {
		_ = tmp.Close()
		return fmt.Errorf("write %q: short write: got %d bytes, want %d", key, n, size)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %q: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("rename %q into place: %w", key, err)
	}
	return nil
}

// Delete removes the file for key.
func (s *LocalStorage) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// List walks baseDir and reports every regular file under prefix. Temp files
// from in-flight uploads are skipped.
func (s *LocalStorage) List(ctx context.Context, prefix string, fn func(Object) error) error {
	return filepath.WalkDir(s.baseDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if errors.Is(err, fs.ErrNotExist) {
			// Removed since the directory was read.
			return nil
		}
		if err != nil {
			return err
		}
		return fn(Object{Key: key, Size: info.Size(), LastModified: info.ModTime()})
	})
}

// PublicURL returns publicBase/key, or a file:// URL when no base is set.
func (s *LocalStorage) PublicURL(key string) string {
	if s.publicBase != "" {
		return s.publicBase + "/" + key
	}
	u := &url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(s.baseDir, filepath.FromSlash(key)))}
	return u.String()
}

// Open returns a reader for the object at key.
func (s *LocalStorage) Open(key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// path resolves key below baseDir, rejecting keys that would escape it.
func (s *LocalStorage) path(key string) (string, error) {
	if key == "" {
		return "", errors.New("empty object key")
	}
	p := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if !strings.HasPrefix(p, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("object key %q escapes storage directory", key)
	}
	return p, nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

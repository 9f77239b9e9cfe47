// Package catalog persists one metadata record per stored upload.
package catalog

import (
	"context"
	"errors"
	"time"
)

// Record describes one uploaded object. It is written once, after the object
// itself has been stored, and never updated.
type Record struct {
	OriginalName string    `json:"filename"`
	StorageKey   string    `json:"stored_as"`
	FileType     string    `json:"filetype"`
	Locator      string    `json:"url"`
	ContentType  string    `json:"content_type"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
}

var (
	// ErrDuplicateKey is returned when a record with the same storage key exists.
	ErrDuplicateKey = errors.New("record already exists for storage key")

	// ErrNotFound is returned when no record references a storage key.
	ErrNotFound = errors.New("record not found")
)

// Catalog stores upload records.
type Catalog interface {
	// Insert persists rec. It is not idempotent: a second insert with the
	// same storage key fails with ErrDuplicateKey.
	Insert(ctx context.Context, rec Record) error
	// Exists reports whether a record references storageKey.
	Exists(ctx context.Context, storageKey string) (bool, error)
}

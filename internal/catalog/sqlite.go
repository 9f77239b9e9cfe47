package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
)

// SQLite is a Catalog backed by an embedded SQLite database. It suits single
// instance deployments and local development.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and ensures the
// schema exists.
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS uploads (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			storage_key TEXT NOT NULL UNIQUE,
			original_name TEXT NOT NULL,
			file_type TEXT NOT NULL,
			url TEXT NOT NULL,
			content_type TEXT NOT NULL,
			size_bytes INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_uploads_file_type ON uploads(file_type);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Insert adds rec to the uploads table.
func (s *SQLite) Insert(ctx context.Context, rec Record) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO uploads (storage_key, original_name, file_type, url, content_type, size_bytes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.StorageKey, rec.OriginalName, rec.FileType, rec.Locator, rec.ContentType, rec.Size, createdAt,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert upload record: %w", err)
	}
	return nil
}

// Exists returns true if a record references storageKey.
func (s *SQLite) Exists(ctx context.Context, storageKey string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM uploads WHERE storage_key = ?)`,
		storageKey,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check upload record: %w", err)
	}
	return exists, nil
}

// Get returns the record for storageKey.
func (s *SQLite) Get(ctx context.Context, storageKey string) (*Record, error) {
	rec := &Record{}
	err := s.db.QueryRowContext(ctx,
		`SELECT storage_key, original_name, file_type, url, content_type, size_bytes, created_at
		 FROM uploads WHERE storage_key = ?`,
		storageKey,
	).Scan(&rec.StorageKey, &rec.OriginalName, &rec.FileType, &rec.Locator, &rec.ContentType, &rec.Size, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get upload record: %w", err)
	}
	return rec, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres handles upload record persistence in PostgreSQL.
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres creates a new Postgres catalog with the given connection pool.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// Insert adds rec to the uploads table. CreatedAt is assigned by the database
// when zero.
func (p *Postgres) Insert(ctx context.Context, rec Record) error {
	_, err := p.db.Exec(ctx,
		`INSERT INTO uploads (storage_key, original_name, file_type, url, content_type, size_bytes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`,
		rec.StorageKey, rec.OriginalName, rec.FileType, rec.Locator, rec.ContentType, rec.Size, nullTime(rec),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert upload record: %w", err)
	}
	return nil
}

// Exists returns true if a record references storageKey.
func (p *Postgres) Exists(ctx context.Context, storageKey string) (bool, error) {
	var exists bool
	err := p.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM uploads WHERE storage_key = $1)`,
		storageKey,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check upload record: %w", err)
	}
	return exists, nil
}

// nullTime maps a zero CreatedAt to SQL NULL.
func nullTime(rec Record) any {
	if rec.CreatedAt.IsZero() {
		return nil
	}
	return rec.CreatedAt
}

// isUniqueViolation checks whether an error is a PostgreSQL unique_violation (code 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

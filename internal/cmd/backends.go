package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/api/option"

	"github.com/radif/uploads/internal/catalog"
	"github.com/radif/uploads/internal/config"
	"github.com/radif/uploads/internal/db"
	"github.com/radif/uploads/internal/storage"
)

// openStorage builds the object store selected by cfg. The returned close
// function is never nil.
func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, func() error, error) {
	noop := func() error { return nil }

	switch cfg.StorageBackend {
	case config.StorageMinio:
		store, err := storage.NewMinioStorage(ctx, storage.MinioConfig{
			Endpoint:   cfg.StorageEndpoint,
			AccessKey:  cfg.StorageAccessKey,
			SecretKey:  cfg.StorageSecretKey,
			Bucket:     cfg.StorageBucket,
			UseSSL:     cfg.StorageUseSSL,
			PublicBase: cfg.StoragePublicBase,
		}, logger)
		if err != nil {
			return nil, noop, fmt.Errorf("object storage init failed: %w", err)
		}
		return store, noop, nil

	case config.StorageGCS:
		var opts []option.ClientOption
		if cfg.GoogleCredentials != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.GoogleCredentials))
		}
		store, err := storage.NewGCSStorage(ctx, cfg.GCSBucket, cfg.StoragePublicBase, opts...)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to initialise GCS storage: %w", err)
		}
		return store, store.Close, nil

	case config.StorageLocal:
		store, err := storage.NewLocalStorage(cfg.LocalStorageDir, cfg.StoragePublicBase)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to initialise local storage: %w", err)
		}
		return store, noop, nil
	}

	return nil, noop, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}

// openCatalog builds the metadata catalog selected by cfg, applying pending
// migrations for Postgres.
func openCatalog(ctx context.Context, cfg *config.Config) (catalog.Catalog, func() error, error) {
	noop := func() error { return nil }

	switch cfg.CatalogBackend {
	case config.CatalogPostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("database connection failed: %w", err)
		}
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			pool.Close()
			return nil, noop, fmt.Errorf("database migration failed: %w", err)
		}
		return catalog.NewPostgres(pool), func() error { pool.Close(); return nil }, nil

	case config.CatalogSQLite:
		cat, err := catalog.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to open sqlite catalog: %w", err)
		}
		return cat, cat.Close, nil
	}

	return nil, noop, fmt.Errorf("unknown catalog backend %q", cfg.CatalogBackend)
}

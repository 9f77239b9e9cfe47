package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/radif/uploads/internal/config"
	"github.com/radif/uploads/internal/logging"
	"github.com/radif/uploads/internal/server"
	"github.com/radif/uploads/internal/upload"
)

const shutdownTimeout = 30 * time.Second

type ServeOptions struct {
	iooption.IOStreams

	cfg    *config.Config
	logger *slog.Logger
}

var (
	serveLong = templates.LongDesc(`
		Start the upload HTTP server. Settings are read from the environment,
		an optional .env file and the flags below, in increasing precedence.`)

	serveExample = templates.Examples(`
		# Start on the default port with MinIO and Postgres
		uploads serve

		# Keep everything on the local disk
		uploads serve --storage-backend local --local-dir ./data/uploads \
			--catalog-backend sqlite --sqlite-path ./data/catalog.db`)
)

func NewServeOptions(streams iooption.IOStreams) *ServeOptions {
	return &ServeOptions{IOStreams: streams}
}

func NewServeCommand(o *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Start the upload HTTP server",
		Long:    serveLong,
		Example: serveExample,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, args, o)
		},
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (default $PORT or 8080)")
	addBackendFlags(cmd)

	return cmd
}

func runServe(cmd *cobra.Command, args []string, o *ServeOptions) error {
	if err := o.Complete(cmd, args); err != nil {
		return err
	}
	if err := o.Validate(); err != nil {
		return err
	}
	return o.Run(cmd.Context())
}

// addBackendFlags registers the flags that select and locate the stores.
func addBackendFlags(cmd *cobra.Command) {
	cmd.Flags().String("storage-backend", "", "Object store: minio, gcs or local")
	cmd.Flags().StringP("bucket", "b", "", "GCS bucket name when --storage-backend=gcs")
	cmd.Flags().String("local-dir", "", "Directory for --storage-backend=local")
	cmd.Flags().String("catalog-backend", "", "Metadata catalog: postgres or sqlite")
	cmd.Flags().String("database-url", "", "Postgres connection string")
	cmd.Flags().String("sqlite-path", "", "SQLite database file")
}

// loadConfig resolves configuration for cmd and installs the default logger.
func loadConfig(cmd *cobra.Command, streams iooption.IOStreams) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := logging.New(streams.ErrOut, cfg.LogLevel, cfg.IsProduction())
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func (o *ServeOptions) Complete(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd, o.IOStreams)
	if err != nil {
		return err
	}
	o.cfg = cfg
	o.logger = logger
	return nil
}

func (o *ServeOptions) Validate() error {
	if o.cfg.Port == "" {
		return errors.New("port must not be empty")
	}
	return nil
}

func (o *ServeOptions) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger := o.cfg, o.logger

	store, closeStore, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore() //nolint:errcheck

	cat, closeCatalog, err := openCatalog(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCatalog() //nolint:errcheck

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Wire dependencies: stores → coordinator → handler
	coord := upload.NewCoordinator(store, cat,
		upload.WithLogger(logger),
		upload.WithMetrics(upload.NewMetrics(reg)),
		upload.WithTimeouts(cfg.StoreTimeout, cfg.CatalogTimeout),
	)
	uploads := upload.NewHandler(coord, logger, upload.HandlerOptions{
		MaxUploadBytes:       cfg.MaxUploadBytes,
		MultipartMemoryBytes: cfg.MultipartMemoryBytes,
	})

	router := server.NewRouter(server.Options{
		Logger:               logger,
		Uploads:              uploads,
		Gatherer:             reg,
		AllowedOrigins:       cfg.CORSAllowedOrigins,
		MaxConcurrentUploads: cfg.MaxConcurrentUploads,
		UploadBacklog:        cfg.UploadBacklog,
		BacklogTimeout:       cfg.UploadBacklogTimeout,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-egCtx.Done()
		logger.Info("shutting down gracefully...")

		// In-flight uploads finish against their own request contexts.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("forced shutdown: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		logger.Info("server listening",
			"addr", srv.Addr,
			"env", cfg.AppEnv,
			"storage", cfg.StorageBackend,
			"catalog", cfg.CatalogBackend,
		)
		logger.Info("swagger UI at http://localhost:" + cfg.Port + "/swagger/")
		err := srv.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	logger.Info("server stopped")
	return err
}

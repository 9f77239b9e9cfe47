// Package server assembles the HTTP API.
//
// Endpoints:
//
//	POST /upload            store a file and record its metadata
//	POST /api/v1/uploads    same handler under the versioned prefix
//	GET  /health            liveness probe
//	GET  /metrics           Prometheus metrics
//	GET  /swagger/*         API documentation
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	appMiddleware "github.com/radif/uploads/internal/middleware"
	"github.com/radif/uploads/internal/response"
	"github.com/radif/uploads/internal/upload"

	_ "github.com/radif/uploads/docs/swagger"
)

// Options holds the router's dependencies.
type Options struct {
	Logger   *slog.Logger
	Uploads  *upload.Handler
	Gatherer prometheus.Gatherer

	AllowedOrigins []string

	// Upload concurrency. Requests beyond MaxConcurrentUploads wait in a
	// backlog of UploadBacklog for at most BacklogTimeout, then get 429.
	MaxConcurrentUploads int
	UploadBacklog        int
	BacklogTimeout       time.Duration
}

// NewRouter returns the service's HTTP handler.
func NewRouter(o Options) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger(o.Logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   o.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Upload-Outcome"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, map[string]string{"status": "ok"})
	})

	if o.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(o.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Group(func(r chi.Router) {
		if o.MaxConcurrentUploads > 0 {
			r.Use(chiMiddleware.ThrottleBacklog(o.MaxConcurrentUploads, o.UploadBacklog, o.BacklogTimeout))
		}
		r.Post("/upload", o.Uploads.Upload)
		r.Post("/api/v1/uploads", o.Uploads.Upload)
	})

	return r
}

// Package upload ingests uploaded files: it stores the payload in an object
// store, records its metadata in a catalog and classifies partial failures.
//
// An ingest moves through
//
//	received → key_assigned → stored → completed
//
// and stops early in store_failed (object write failed, nothing persisted) or
// orphaned (object persisted, catalog write failed). Requests that fail
// validation never enter received and touch neither store.
package upload

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/radif/uploads/internal/catalog"
)

// State is a step of the ingest state machine.
type State string

const (
	StateReceived    State = "received"
	StateKeyAssigned State = "key_assigned"
	StateStored      State = "stored"
	StateCompleted   State = "completed"
	StateStoreFailed State = "store_failed"
	StateOrphaned    State = "orphaned"

	// StateRejected marks a request that failed validation.
	StateRejected State = "rejected"
)

// ObjectStore is the slice of storage.Storage the coordinator needs.
type ObjectStore interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	PublicURL(key string) string
}

// Catalog is the slice of catalog.Catalog the coordinator needs.
type Catalog interface {
	Insert(ctx context.Context, rec catalog.Record) error
}

// Request is one file handed over by the boundary layer.
type Request struct {
	Filename    string
	ContentType string
	FileType    string
	Body        io.Reader
	// Size is the exact payload length, or -1 when unknown.
	Size int64
}

// Result describes a completed ingest.
type Result struct {
	Record catalog.Record
	State  State
}

// Coordinator sequences key generation, the object write and the catalog
// write. It holds no per-request state and is safe for concurrent use.
type Coordinator struct {
	store   ObjectStore
	catalog Catalog
	newKey  KeyFunc
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time

	storeTimeout   time.Duration
	catalogTimeout time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithKeyFunc replaces the storage key generator.
func WithKeyFunc(fn KeyFunc) Option {
	return func(c *Coordinator) { c.newKey = fn }
}

// WithLogger sets the logger used to report failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithMetrics records outcomes into m.
func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithTimeouts bounds each store call. Zero leaves a call bounded only by
// the caller's context.
func WithTimeouts(store, catalog time.Duration) Option {
	return func(c *Coordinator) {
		c.storeTimeout = store
		c.catalogTimeout = catalog
	}
}

// NewCoordinator wires a Coordinator to its two stores.
func NewCoordinator(store ObjectStore, cat Catalog, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:   store,
		catalog: cat,
		newKey:  NewKey,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ingest stores req.Body and records its metadata. On failure the returned
// error is an *Error whose kind is ErrValidation, ErrStorage or
// ErrConsistency. The catalog is only written after the object write
// succeeded, and at most once.
func (c *Coordinator) Ingest(ctx context.Context, req Request) (*Result, error) {
	started := c.now()

	if err := validate(req); err != nil {
		c.metrics.observe(StateRejected, started)
		return nil, err
	}

	// received → key_assigned
	key := c.newKey(req.Filename)
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	logger := c.logger.With("key", key, "filetype", req.FileType)

	// key_assigned → stored | store_failed
	body := &countingReader{r: req.Body}
	if err := c.put(ctx, key, body, req.Size, contentType); err != nil {
		logger.Error("object store write failed", "state", StateStoreFailed, "err", err)
		c.metrics.observe(StateStoreFailed, started)
		return nil, &Error{Kind: ErrStorage, State: StateStoreFailed, StorageKey: key, Err: err}
	}
	c.metrics.addBytes(body.n)

	locator := c.store.PublicURL(key)
	rec := catalog.Record{
		OriginalName: req.Filename,
		StorageKey:   key,
		FileType:     req.FileType,
		Locator:      locator,
		ContentType:  contentType,
		Size:         body.n,
		CreatedAt:    c.now().UTC(),
	}

	// stored → completed | orphaned
	if err := c.insert(ctx, rec); err != nil {
		logger.Error("catalog write failed after object was stored; object is orphaned",
			"state", StateOrphaned, "locator", locator, "err", err)
		c.metrics.observe(StateOrphaned, started)
		return nil, &Error{Kind: ErrConsistency, State: StateOrphaned, StorageKey: key, Locator: locator, Err: err}
	}

	c.metrics.observe(StateCompleted, started)
	logger.Info("upload completed", "locator", locator, "size", rec.Size)
	return &Result{Record: rec, State: StateCompleted}, nil
}

func (c *Coordinator) put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if c.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.storeTimeout)
		defer cancel()
	}
	return c.store.Upload(ctx, key, body, size, contentType)
}

func (c *Coordinator) insert(ctx context.Context, rec catalog.Record) error {
	// A caller that gave up while the object was being written still gets
	// an orphan, but the catalog is not asked to do doomed work.
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.catalogTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.catalogTimeout)
		defer cancel()
	}
	return c.catalog.Insert(ctx, rec)
}

func validate(req Request) *Error {
	if strings.TrimSpace(req.FileType) == "" {
		return validationError("filetype is required")
	}
	if req.Body == nil {
		return validationError("file is required")
	}
	if strings.TrimSpace(req.Filename) == "" {
		return validationError("file name is required")
	}
	return nil
}

// countingReader records how many bytes the object store consumed.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

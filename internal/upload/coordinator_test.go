package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/radif/uploads/internal/catalog"
	"github.com/radif/uploads/internal/storage"
)

const testPublicBase = "https://objects.example.com/uploads"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store   *storage.MemoryStorage
	catalog *catalog.Memory
	metrics *Metrics
	coord   *Coordinator
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		store:   storage.NewMemoryStorage(testPublicBase),
		catalog: catalog.NewMemory(),
		metrics: NewMetrics(prometheus.NewRegistry()),
	}
	opts = append([]Option{WithLogger(quietLogger()), WithMetrics(f.metrics)}, opts...)
	f.coord = NewCoordinator(f.store, f.catalog, opts...)
	return f
}

func readObject(t *testing.T, s *storage.MemoryStorage, key string) []byte {
	t.Helper()

	rc, err := s.Open(key)
	require.NoError(t, err, "object %q should exist", key)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

func pdfRequest(body []byte) Request {
	return Request{
		Filename:    "report.pdf",
		ContentType: "application/pdf",
		FileType:    "doc",
		Body:        bytes.NewReader(body),
		Size:        int64(len(body)),
	}
}

func TestIngestStoresObjectThenRecord(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	body := []byte("%PDF-1.4\n%âãÏÓ\n1 0 obj\n<< /Type /Catalog >>\nendobj\n")

	res, err := f.coord.Ingest(context.Background(), pdfRequest(body))
	require.NoError(t, err, "Ingest error")
	require.Equal(t, StateCompleted, res.State)

	rec := res.Record
	require.True(t, strings.HasSuffix(rec.StorageKey, "_report.pdf"), "key should keep the filename: %q", rec.StorageKey)
	require.Equal(t, testPublicBase+"/"+rec.StorageKey, rec.Locator, "locator should contain the generated key")
	require.Equal(t, "report.pdf", rec.OriginalName)
	require.Equal(t, "doc", rec.FileType)
	require.Equal(t, "application/pdf", rec.ContentType)
	require.Equal(t, int64(len(body)), rec.Size)
	require.False(t, rec.CreatedAt.IsZero())

	// Object under the returned key, byte-identical to the upload.
	require.Equal(t, body, readObject(t, f.store, rec.StorageKey), "round trip must preserve bytes")
	ct, _ := f.store.ContentType(rec.StorageKey)
	require.Equal(t, "application/pdf", ct)

	// Catalog record references the same key.
	stored, err := f.catalog.Get(context.Background(), rec.StorageKey)
	require.NoError(t, err, "catalog should hold a record for the key")
	require.Equal(t, rec, *stored)

	require.Equal(t, float64(1), testutil.ToFloat64(f.metrics.uploads.WithLabelValues(string(StateCompleted))))
	require.Equal(t, float64(len(body)), testutil.ToFloat64(f.metrics.bytes))
}

func TestIngestDefaultsContentTypeAndCountsUnknownSize(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	res, err := f.coord.Ingest(context.Background(), Request{
		Filename: "blob",
		FileType: "raw",
		Body:     strings.NewReader("0123456789"),
		Size:     -1,
	})
	require.NoError(t, err)
	require.Equal(t, "application/octet-stream", res.Record.ContentType)
	require.Equal(t, int64(10), res.Record.Size)
}

func TestIngestValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		req    Request
		reason string
	}{
		{
			name:   "missing filetype",
			req:    Request{Filename: "a.txt", Body: strings.NewReader("x"), Size: 1},
			reason: "filetype is required",
		},
		{
			name:   "blank filetype",
			req:    Request{Filename: "a.txt", FileType: "  \t", Body: strings.NewReader("x"), Size: 1},
			reason: "filetype is required",
		},
		{
			name:   "missing file",
			req:    Request{FileType: "doc"},
			reason: "file is required",
		},
		{
			name:   "missing filename",
			req:    Request{FileType: "doc", Body: strings.NewReader("x"), Size: 1},
			reason: "file name is required",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			keys := 0
			f := newFixture(t, WithKeyFunc(func(name string) string {
				keys++
				return NewKey(name)
			}))

			res, err := f.coord.Ingest(context.Background(), tc.req)
			require.Nil(t, res)
			require.ErrorIs(t, err, ErrValidation)
			require.NotErrorIs(t, err, ErrStorage)

			var ingestErr *Error
			require.ErrorAs(t, err, &ingestErr)
			require.Equal(t, StateRejected, ingestErr.State)
			require.Equal(t, tc.reason, ingestErr.Message())

			require.Zero(t, keys, "no key should be generated")
			require.Zero(t, f.store.Uploads(), "object store must not be called")
			require.Zero(t, f.catalog.Inserts(), "catalog must not be called")
		})
	}
}

func TestIngestStorageFailureSkipsCatalog(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	unavailable := errors.New("dial tcp 10.0.0.5:9000: connect: connection refused")
	f.store.FailUploads(unavailable)

	res, err := f.coord.Ingest(context.Background(), pdfRequest([]byte("%PDF-1.4...")))
	require.Nil(t, res)
	require.ErrorIs(t, err, ErrStorage)
	require.NotErrorIs(t, err, ErrConsistency)
	require.ErrorIs(t, err, unavailable, "cause should be preserved for logging")

	var ingestErr *Error
	require.ErrorAs(t, err, &ingestErr)
	require.Equal(t, StateStoreFailed, ingestErr.State)
	require.NotEmpty(t, ingestErr.StorageKey, "key was assigned before the write")
	require.NotContains(t, ingestErr.Message(), "10.0.0.5", "client message must not leak backend detail")

	require.Zero(t, f.catalog.Inserts(), "catalog must be untouched after a failed store")
	require.Zero(t, f.catalog.Len())
	require.Equal(t, float64(1), testutil.ToFloat64(f.metrics.uploads.WithLabelValues(string(StateStoreFailed))))
}

func TestIngestCatalogFailureReportsOrphan(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.catalog.FailInserts(errors.New("server selection timeout"))
	body := []byte("orphan payload")

	res, err := f.coord.Ingest(context.Background(), pdfRequest(body))
	require.Nil(t, res)
	require.ErrorIs(t, err, ErrConsistency)
	require.NotErrorIs(t, err, ErrStorage, "an orphan must be distinguishable from a storage failure")

	var ingestErr *Error
	require.ErrorAs(t, err, &ingestErr)
	require.Equal(t, StateOrphaned, ingestErr.State)
	require.Equal(t, testPublicBase+"/"+ingestErr.StorageKey, ingestErr.Locator)
	require.Equal(t, msgOrphaned, ingestErr.Message())

	// No compensation: the object stays retrievable for reconciliation.
	require.Equal(t, body, readObject(t, f.store, ingestErr.StorageKey))
	require.Equal(t, 1, f.catalog.Inserts(), "insert is attempted exactly once")
	require.Zero(t, f.catalog.Len())
	require.Equal(t, float64(1), testutil.ToFloat64(f.metrics.uploads.WithLabelValues(string(StateOrphaned))))
}

// cancellingStore cancels the ingest context right after a successful write.
type cancellingStore struct {
	*storage.MemoryStorage
	cancel context.CancelFunc
}

func (s *cancellingStore) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if err := s.MemoryStorage.Upload(ctx, key, r, size, contentType); err != nil {
		return err
	}
	s.cancel()
	return nil
}

func TestIngestCancelledAfterStoreIsOrphan(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mem := storage.NewMemoryStorage(testPublicBase)
	cat := catalog.NewMemory()
	coord := NewCoordinator(&cancellingStore{MemoryStorage: mem, cancel: cancel}, cat, WithLogger(quietLogger()))

	_, err := coord.Ingest(ctx, pdfRequest([]byte("late cancel")))
	require.ErrorIs(t, err, ErrConsistency)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, mem.Len(), "object stays in place")
	require.Zero(t, cat.Inserts(), "catalog is not called once the caller has gone")
}

// blockingStore never finishes an upload on its own.
type blockingStore struct{}

func (blockingStore) Upload(ctx context.Context, _ string, _ io.Reader, _ int64, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingStore) PublicURL(key string) string { return testPublicBase + "/" + key }

func TestIngestStoreTimeout(t *testing.T) {
	t.Parallel()

	cat := catalog.NewMemory()
	coord := NewCoordinator(blockingStore{}, cat,
		WithLogger(quietLogger()),
		WithTimeouts(20*time.Millisecond, time.Second),
	)

	start := time.Now()
	_, err := coord.Ingest(context.Background(), pdfRequest([]byte("slow")))
	require.ErrorIs(t, err, ErrStorage)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 5*time.Second, "store call should be aborted promptly")
	require.Zero(t, cat.Inserts())
}

func TestIngestConcurrentIdenticalUploads(t *testing.T) {
	t.Parallel()

	const n = 1000
	f := newFixture(t)
	body := []byte("identical content")

	var (
		mu   sync.Mutex
		keys = make(map[string]struct{}, n)
	)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			res, err := f.coord.Ingest(context.Background(), pdfRequest(body))
			if err != nil {
				return err
			}
			mu.Lock()
			keys[res.Record.StorageKey] = struct{}{}
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.Len(t, keys, n, "uploads are not deduplicated and keys never collide")
	require.Equal(t, n, f.store.Len())
	require.Equal(t, n, f.catalog.Len())
	for key := range keys {
		exists, err := f.catalog.Exists(context.Background(), key)
		require.NoError(t, err)
		require.True(t, exists, "record missing for %q", key)
	}
}

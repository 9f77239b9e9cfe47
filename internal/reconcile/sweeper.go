// Package reconcile finds stored objects that have no catalog record.
//
// An ingest that stored its object but failed to write the record leaves an
// orphan behind. The sweeper lists the object store, asks the catalog about
// every object older than a grace period and reports (or deletes) the ones
// nobody references. The grace period keeps in-flight ingests, whose record
// is about to be written, out of the result.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/radif/uploads/internal/storage"
)

// Store is the object store being swept.
type Store interface {
	List(ctx context.Context, prefix string, fn func(storage.Object) error) error
	Delete(ctx context.Context, key string) error
}

// Index answers whether a catalog record references a storage key.
type Index interface {
	Exists(ctx context.Context, storageKey string) (bool, error)
}

// Options tunes a sweep.
type Options struct {
	// GracePeriod skips objects modified more recently than this.
	GracePeriod time.Duration
	// Delete removes orphans instead of only reporting them.
	Delete bool
	// Concurrency bounds parallel catalog lookups. Defaults to 8.
	Concurrency int
	// Prefix limits the sweep to keys with this prefix.
	Prefix string
}

// Report summarises a sweep.
type Report struct {
	Scanned int      `json:"scanned"`
	Skipped int      `json:"skipped"`
	Orphans []string `json:"orphans"`
	Deleted int      `json:"deleted"`
}

// Sweeper reconciles an object store against a catalog.
type Sweeper struct {
	store  Store
	index  Index
	logger *slog.Logger
	opts   Options
	now    func() time.Time
}

// NewSweeper creates a Sweeper.
func NewSweeper(store Store, index Index, logger *slog.Logger, opts Options) *Sweeper {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: store, index: index, logger: logger, opts: opts, now: time.Now}
}

// Run performs one sweep. A catalog or delete failure aborts the sweep and is
// returned together with the partial report.
func (s *Sweeper) Run(ctx context.Context) (*Report, error) {
	var (
		mu     sync.Mutex
		report = &Report{Orphans: []string{}}
		cutoff = s.now().Add(-s.opts.GracePeriod)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	listErr := s.store.List(gctx, s.opts.Prefix, func(obj storage.Object) error {
		if err := gctx.Err(); err != nil {
			return err
		}

		mu.Lock()
		report.Scanned++
		if obj.LastModified.After(cutoff) {
			report.Skipped++
			mu.Unlock()
			return nil
		}
		mu.Unlock()

		g.Go(func() error {
			deleted, orphan, err := s.check(gctx, obj.Key)
			if err != nil {
				return err
			}
			if !orphan {
				return nil
			}
			mu.Lock()
			report.Orphans = append(report.Orphans, obj.Key)
			if deleted {
				report.Deleted++
			}
			mu.Unlock()
			return nil
		})
		return nil
	})

	waitErr := g.Wait()
	sort.Strings(report.Orphans)

	// A worker failure cancels gctx, which in turn fails List; report the
	// root cause.
	if waitErr != nil {
		return report, waitErr
	}
	if listErr != nil {
		return report, fmt.Errorf("list objects: %w", listErr)
	}

	s.logger.Info("sweep finished",
		"scanned", report.Scanned,
		"skipped", report.Skipped,
		"orphans", len(report.Orphans),
		"deleted", report.Deleted,
		"dry_run", !s.opts.Delete,
	)
	return report, nil
}

func (s *Sweeper) check(ctx context.Context, key string) (deleted, orphan bool, err error) {
	exists, err := s.index.Exists(ctx, key)
	if err != nil {
		return false, false, fmt.Errorf("look up %q: %w", key, err)
	}
	if exists {
		return false, false, nil
	}

	if !s.opts.Delete {
		s.logger.Warn("orphaned object", "key", key)
		return false, true, nil
	}

	if err := s.store.Delete(ctx, key); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, true, nil
		}
		return false, true, fmt.Errorf("delete %q: %w", key, err)
	}
	s.logger.Warn("deleted orphaned object", "key", key)
	return true, true, nil
}

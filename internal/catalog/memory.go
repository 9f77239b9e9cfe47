package catalog

import (
	"context"
	"fmt"
	"sync"
)

// Memory is a concurrency-safe in-memory Catalog for tests and local runs.
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
	inserts int
	failErr error
}

// NewMemory returns an empty Memory catalog.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record)}
}

// FailInserts makes every subsequent Insert return err. A nil err restores
// normal behaviour.
func (m *Memory) FailInserts(err error) {
	m.mu.Lock()
	m.failErr = err
	m.mu.Unlock()
}

func (m *Memory) Insert(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.inserts++
	if m.failErr != nil {
		return fmt.Errorf("insert upload record: %w", m.failErr)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("insert upload record: %w", err)
	}
	if _, ok := m.records[rec.StorageKey]; ok {
		return ErrDuplicateKey
	}
	m.records[rec.StorageKey] = rec
	return nil
}

func (m *Memory) Exists(_ context.Context, storageKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.records[storageKey]
	return ok, nil
}

// Get returns a copy of the record for storageKey.
func (m *Memory) Get(_ context.Context, storageKey string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[storageKey]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Inserts returns how many times Insert has been called, successful or not.
func (m *Memory) Inserts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inserts
}

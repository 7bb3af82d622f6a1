package mocks

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/rbhughes/old-purrio-geographix/internal/domain"
	"github.com/rbhughes/old-purrio-geographix/internal/store"
)

type ledgerKey struct {
	batchID string
	taskID  int64
}

// MockLedgerStore implements store.LedgerStore in memory.
type MockLedgerStore struct {
	InsertEntriesFn        func(ctx context.Context, entries []domain.LedgerEntry) error
	DeleteEntryFn          func(ctx context.Context, batchID string, taskID int64) error
	UpdateEntryStatusFn    func(ctx context.Context, batchID string, taskID int64, status domain.TaskStatus) error
	CountEntriesFn         func(ctx context.Context, batchID string) (int, error)
	CountByStatusFn        func(ctx context.Context, batchID string) (map[domain.TaskStatus]int, error)
	FindOrphanedSubTasksFn func(ctx context.Context, olderThan time.Duration) ([]int64, error)

	mu      sync.Mutex
	entries map[ledgerKey]domain.LedgerEntry
}

var _ store.LedgerStore = (*MockLedgerStore)(nil)

// NewMockLedgerStore creates an empty MockLedgerStore.
func NewMockLedgerStore() *MockLedgerStore {
	return &MockLedgerStore{entries: make(map[ledgerKey]domain.LedgerEntry)}
}

// Entries returns a snapshot of the rows for batchID.
func (m *MockLedgerStore) Entries(batchID string) []domain.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.LedgerEntry
	for k, e := range m.entries {
		if k.batchID == batchID {
			out = append(out, e)
		}
	}
	return out
}

// InsertEntries implements store.LedgerStore.
func (m *MockLedgerStore) InsertEntries(ctx context.Context, entries []domain.LedgerEntry) error {
	if m.InsertEntriesFn != nil {
		return m.InsertEntriesFn(ctx, entries)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		k := ledgerKey{e.BatchID, e.TaskID}
		if _, ok := m.entries[k]; ok {
			return store.ErrDuplicate
		}
		m.entries[k] = e
	}
	return nil
}

// DeleteEntry implements store.LedgerStore.
func (m *MockLedgerStore) DeleteEntry(ctx context.Context, batchID string, taskID int64) error {
	if m.DeleteEntryFn != nil {
		return m.DeleteEntryFn(ctx, batchID, taskID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	k := ledgerKey{batchID, taskID}
	if _, ok := m.entries[k]; !ok {
		return store.ErrLedgerEntryNotFound
	}
	delete(m.entries, k)
	return nil
}

// UpdateEntryStatus implements store.LedgerStore.
func (m *MockLedgerStore) UpdateEntryStatus(
	ctx context.Context,
	batchID string,
	taskID int64,
	status domain.TaskStatus,
) error {
	if m.UpdateEntryStatusFn != nil {
		return m.UpdateEntryStatusFn(ctx, batchID, taskID, status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	k := ledgerKey{batchID, taskID}
	e, ok := m.entries[k]
	if !ok {
		return store.ErrLedgerEntryNotFound
	}
	e.Status = status
	m.entries[k] = e
	return nil
}

// CountEntries implements store.LedgerStore.
func (m *MockLedgerStore) CountEntries(ctx context.Context, batchID string) (int, error) {
	if m.CountEntriesFn != nil {
		return m.CountEntriesFn(ctx, batchID)
	}
	return len(m.Entries(batchID)), nil
}

// CountByStatus implements store.LedgerStore.
func (m *MockLedgerStore) CountByStatus(ctx context.Context, batchID string) (map[domain.TaskStatus]int, error) {
	if m.CountByStatusFn != nil {
		return m.CountByStatusFn(ctx, batchID)
	}
	counts := make(map[domain.TaskStatus]int)
	for _, e := range m.Entries(batchID) {
		counts[e.Status]++
	}
	return counts, nil
}

// FindOrphanedSubTasks implements store.LedgerStore. The in-memory default
// has no view of the task table and reports none.
func (m *MockLedgerStore) FindOrphanedSubTasks(ctx context.Context, olderThan time.Duration) ([]int64, error) {
	if m.FindOrphanedSubTasksFn != nil {
		return m.FindOrphanedSubTasksFn(ctx, olderThan)
	}
	return nil, nil
}

// WithTx implements store.LedgerStore.
func (m *MockLedgerStore) WithTx(tx *sql.Tx) store.LedgerStore {
	return m
}

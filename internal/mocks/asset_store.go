package mocks

import (
	"context"
	"database/sql"
	"sync"

	"github.com/rbhughes/old-purrio-geographix/internal/domain"
	"github.com/rbhughes/old-purrio-geographix/internal/store"
)

// MockAssetStore implements store.AssetStore in memory, keeping the latest
// document per asset and id.
type MockAssetStore struct {
	EnsureTableFn     func(ctx context.Context, asset string) error
	UpsertDocumentsFn func(ctx context.Context, asset string, docs []domain.AssetDocument) (int, error)

	mu     sync.Mutex
	tables map[string]map[string]domain.AssetDocument
}

var _ store.AssetStore = (*MockAssetStore)(nil)

// NewMockAssetStore creates an empty MockAssetStore.
func NewMockAssetStore() *MockAssetStore {
	return &MockAssetStore{tables: make(map[string]map[string]domain.AssetDocument)}
}

// Documents returns the stored documents of asset keyed by id.
func (m *MockAssetStore) Documents(asset string) map[string]domain.AssetDocument {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]domain.AssetDocument, len(m.tables[asset]))
	for k, v := range m.tables[asset] {
		out[k] = v
	}
	return out
}

// EnsureTable implements store.AssetStore.
func (m *MockAssetStore) EnsureTable(ctx context.Context, asset string) error {
	if m.EnsureTableFn != nil {
		return m.EnsureTableFn(ctx, asset)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tables[asset] == nil {
		m.tables[asset] = make(map[string]domain.AssetDocument)
	}
	return nil
}

// UpsertDocuments implements store.AssetStore.
func (m *MockAssetStore) UpsertDocuments(ctx context.Context, asset string, docs []domain.AssetDocument) (int, error) {
	if m.UpsertDocumentsFn != nil {
		return m.UpsertDocumentsFn(ctx, asset, docs)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	table, ok := m.tables[asset]
	if !ok {
		return 0, store.ErrNotFound
	}
	for _, d := range docs {
		table[d.ID] = d
	}
	return len(docs), nil
}

// WithTx implements store.AssetStore.
func (m *MockAssetStore) WithTx(tx *sql.Tx) store.AssetStore {
	return m
}

// MockAssetSearcher implements store.AssetSearcher.
type MockAssetSearcher struct {
	SearchDocumentsFn func(ctx context.Context, query string, args ...any) ([]domain.SearchResult, error)
	CountDocumentsFn  func(ctx context.Context, query string, args ...any) (int, error)
}

var _ store.AssetSearcher = (*MockAssetSearcher)(nil)

// SearchDocuments implements store.AssetSearcher.
func (m *MockAssetSearcher) SearchDocuments(ctx context.Context, query string, args ...any) ([]domain.SearchResult, error) {
	if m.SearchDocumentsFn != nil {
		return m.SearchDocumentsFn(ctx, query, args...)
	}
	return nil, nil
}

// CountDocuments implements store.AssetSearcher.
func (m *MockAssetSearcher) CountDocuments(ctx context.Context, query string, args ...any) (int, error) {
	if m.CountDocumentsFn != nil {
		return m.CountDocumentsFn(ctx, query, args...)
	}
	return 0, nil
}

// MockSearchResultStore implements store.SearchResultStore in memory.
type MockSearchResultStore struct {
	SaveResultsFn func(ctx context.Context, results []domain.SearchResult) error

	mu      sync.Mutex
	Results []domain.SearchResult
}

var _ store.SearchResultStore = (*MockSearchResultStore)(nil)

// SaveResults implements store.SearchResultStore.
func (m *MockSearchResultStore) SaveResults(ctx context.Context, results []domain.SearchResult) error {
	if m.SaveResultsFn != nil {
		return m.SaveResultsFn(ctx, results)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Results = append(m.Results, results...)
	return nil
}

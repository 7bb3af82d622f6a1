package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/rbhughes/old-purrio-geographix/internal/domain"
	"github.com/rbhughes/old-purrio-geographix/internal/store"
)

// MockDNASource serves DNA from a map keyed by "suite/asset".
type MockDNASource struct {
	FetchDNAFn func(ctx context.Context, suite, asset string) (*domain.DNA, error)

	DNA map[string]domain.DNA
}

// FetchDNA returns the configured DNA or store.ErrNotFound.
func (m *MockDNASource) FetchDNA(ctx context.Context, suite, asset string) (*domain.DNA, error) {
	if m.FetchDNAFn != nil {
		return m.FetchDNAFn(ctx, suite, asset)
	}
	dna, ok := m.DNA[suite+"/"+asset]
	if !ok {
		return nil, fmt.Errorf("dna for %s/%s: %w", suite, asset, store.ErrNotFound)
	}
	return &dna, nil
}

// MockQuerier stands in for the legacy executor and records every
// statement it receives.
type MockQuerier struct {
	QueryFn     func(ctx context.Context, conn domain.Conn, stmt string) ([]map[string]any, error)
	QueryManyFn func(ctx context.Context, conn domain.Conn, stmts []string) ([][]map[string]any, error)

	mu         sync.Mutex
	Statements []string
}

// Query implements the single statement form.
func (m *MockQuerier) Query(ctx context.Context, conn domain.Conn, stmt string) ([]map[string]any, error) {
	m.record(stmt)
	if m.QueryFn != nil {
		return m.QueryFn(ctx, conn, stmt)
	}
	return nil, nil
}

// QueryMany implements the batched form. Without QueryManyFn it runs each
// statement through Query.
func (m *MockQuerier) QueryMany(ctx context.Context, conn domain.Conn, stmts []string) ([][]map[string]any, error) {
	if m.QueryManyFn != nil {
		for _, s := range stmts {
			m.record(s)
		}
		return m.QueryManyFn(ctx, conn, stmts)
	}
	out := make([][]map[string]any, 0, len(stmts))
	for _, s := range stmts {
		rows, err := m.Query(ctx, conn, s)
		if err != nil {
			return nil, err
		}
		out = append(out, rows)
	}
	return out, nil
}

func (m *MockQuerier) record(stmt string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Statements = append(m.Statements, stmt)
}

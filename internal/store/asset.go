package store

import (
	"context"
	"database/sql"

	"github.com/rbhughes/old-purrio-geographix/internal/domain"
)

// AssetStore defines the interface for normalized asset document tables.
// Each asset kind has its own table named after it.
type AssetStore interface {
	// EnsureTable creates the table for asset if it does not exist.
	EnsureTable(ctx context.Context, asset string) error

	// UpsertDocuments inserts docs into the asset table, overwriting every
	// non-key column of rows whose id already exists. Returns the number of
	// rows written.
	UpsertDocuments(ctx context.Context, asset string, docs []domain.AssetDocument) (int, error)

	// WithTx returns an AssetStore that uses the provided transaction.
	WithTx(tx *sql.Tx) AssetStore
}

// AssetSearcher runs full-text queries over asset document tables.
type AssetSearcher interface {
	// SearchDocuments runs query with args and returns the hit rows.
	SearchDocuments(ctx context.Context, query string, args ...any) ([]domain.SearchResult, error)

	// CountDocuments runs a COUNT query with args.
	CountDocuments(ctx context.Context, query string, args ...any) (int, error)
}

// SearchResultStore defines the interface for writing search results.
type SearchResultStore interface {
	SaveResults(ctx context.Context, results []domain.SearchResult) error
}

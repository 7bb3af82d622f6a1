package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rbhughes/old-purrio-geographix/internal/domain"
	"github.com/rbhughes/old-purrio-geographix/internal/platform/logger"
	"github.com/rbhughes/old-purrio-geographix/internal/store"
)

// PostgresAssetStore implements store.AssetStore and store.AssetSearcher.
// Asset tables are created on first use.
type PostgresAssetStore struct {
	db     store.DBTX
	logger *slog.Logger
	tables *tableRegistry
}

type tableRegistry struct {
	mu     sync.Mutex
	exists map[string]bool
}

// NewPostgresAssetStore creates a new PostgresAssetStore.
func NewPostgresAssetStore(db store.DBTX, logger *slog.Logger) *PostgresAssetStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresAssetStore{
		db:     db,
		logger: logger.With(slog.String("component", "asset_store")),
		tables: &tableRegistry{exists: make(map[string]bool)},
	}
}

var (
	_ store.AssetStore    = (*PostgresAssetStore)(nil)
	_ store.AssetSearcher = (*PostgresAssetStore)(nil)
)

// WithTx implements store.AssetStore.WithTx
func (s *PostgresAssetStore) WithTx(tx *sql.Tx) store.AssetStore {
	return &PostgresAssetStore{db: tx, logger: s.logger, tables: s.tables}
}

// EnsureTable creates the table for asset if it does not exist yet. It
// should be called outside the page transaction so concurrent pages of a
// new asset do not race on the catalog.
func (s *PostgresAssetStore) EnsureTable(ctx context.Context, asset string) error {
	table, err := QuoteTable(asset)
	if err != nil {
		return err
	}

	s.tables.mu.Lock()
	defer s.tables.mu.Unlock()
	if s.tables.exists[asset] {
		return nil
	}

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id          TEXT PRIMARY KEY,
			repo_id     TEXT NOT NULL,
			repo_name   TEXT,
			well_id     TEXT,
			suite       TEXT,
			tag         TEXT,
			doc         JSONB,
			ts          TSVECTOR GENERATED ALWAYS AS (
				jsonb_to_tsvector('english', coalesce(doc, '{}'::jsonb), '["string", "numeric"]')
			) STORED,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s USING GIN (ts);
		CREATE INDEX IF NOT EXISTS %[3]s ON %[1]s (repo_id);
	`, table, asset+"_ts_idx", asset+"_repo_idx")

	if _, err := s.db.ExecContext(ctx, ddl); err != nil && !IsUniqueViolation(err) {
		return fmt.Errorf("failed to create asset table %s: %w", asset, MapError(err))
	}
	s.tables.exists[asset] = true
	return nil
}

// UpsertDocuments implements store.AssetStore.UpsertDocuments
func (s *PostgresAssetStore) UpsertDocuments(ctx context.Context, asset string, docs []domain.AssetDocument) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	table, err := QuoteTable(asset)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	stmt, err := s.db.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, repo_id, repo_name, well_id, suite, tag, doc, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (id) DO UPDATE SET
			repo_id = EXCLUDED.repo_id,
			repo_name = EXCLUDED.repo_name,
			well_id = EXCLUDED.well_id,
			suite = EXCLUDED.suite,
			tag = EXCLUDED.tag,
			doc = EXCLUDED.doc,
			updated_at = now()
	`, table))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert into %s: %w", asset, MapError(err))
	}
	defer func() { _ = stmt.Close() }()

	for _, d := range docs {
		doc, err := json.Marshal(d.Doc)
		if err != nil {
			return 0, fmt.Errorf("failed to encode doc %s: %w", d.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, d.ID, d.RepoID, d.RepoName, d.WellID, d.Suite, d.Tag, doc); err != nil {
			log.Error("failed to upsert asset document",
				slog.String("asset", asset),
				slog.String("doc_id", d.ID),
				slog.String("error", err.Error()))
			return 0, fmt.Errorf("failed to upsert into %s: %w", asset, MapError(err))
		}
	}

	return len(docs), nil
}

// SearchDocuments implements store.AssetSearcher.SearchDocuments. The query
// must select repo_id, repo_name, well_id, suite, tag, doc and asset, in
// that order.
func (s *PostgresAssetStore) SearchDocuments(ctx context.Context, query string, args ...any) ([]domain.SearchResult, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var hits []domain.SearchResult
	for rows.Next() {
		var (
			hit                     domain.SearchResult
			repoName, wellID, suite sql.NullString
			tag                     sql.NullString
			doc                     []byte
		)
		if err := rows.Scan(&hit.RepoID, &repoName, &wellID, &suite, &tag, &doc, &hit.Asset); err != nil {
			return nil, fmt.Errorf("failed to scan search hit: %w", err)
		}
		hit.RepoName = repoName.String
		hit.WellID = wellID.String
		hit.Suite = suite.String
		hit.Tag = tag.String
		if err := unmarshalOptional(doc, &hit.Doc); err != nil {
			return nil, fmt.Errorf("search hit has invalid doc: %w", err)
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// CountDocuments implements store.AssetSearcher.CountDocuments
func (s *PostgresAssetStore) CountDocuments(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count query failed: %w", MapError(err))
	}
	return n, nil
}

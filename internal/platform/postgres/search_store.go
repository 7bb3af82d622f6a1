package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/rbhughes/old-purrio-geographix/internal/domain"
	"github.com/rbhughes/old-purrio-geographix/internal/store"
)

// PostgresSearchResultStore implements store.SearchResultStore.
type PostgresSearchResultStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresSearchResultStore creates a new PostgresSearchResultStore.
func NewPostgresSearchResultStore(db store.DBTX, logger *slog.Logger) *PostgresSearchResultStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresSearchResultStore{
		db:     db,
		logger: logger.With(slog.String("component", "search_result_store")),
	}
}

var _ store.SearchResultStore = (*PostgresSearchResultStore)(nil)

// SaveResults implements store.SearchResultStore.SaveResults
func (s *PostgresSearchResultStore) SaveResults(ctx context.Context, results []domain.SearchResult) error {
	for _, r := range results {
		body, err := json.Marshal(r.SearchBody)
		if err != nil {
			return fmt.Errorf("failed to encode search body: %w", err)
		}
		doc, err := marshalOptional(r.Doc)
		if err != nil {
			return fmt.Errorf("failed to encode search hit doc: %w", err)
		}

		_, err = s.db.ExecContext(ctx, `
			INSERT INTO search_result (search_id, user_id, directive, asset, active,
			                           search_body, sql, repo_id, repo_name, well_id, suite, tag, doc)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, r.SearchID, r.UserID, r.Directive, r.Asset, r.Active, body, r.SQL,
			r.RepoID, r.RepoName, r.WellID, r.Suite, r.Tag, doc)
		if err != nil {
			return fmt.Errorf("failed to save search result: %w", MapError(err))
		}
	}
	s.logger.Debug("saved search results", slog.Int("count", len(results)))
	return nil
}

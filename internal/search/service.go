package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rbhughes/old-purrio-geographix/internal/domain"
	"github.com/rbhughes/old-purrio-geographix/internal/platform/logger"
	"github.com/rbhughes/old-purrio-geographix/internal/store"
)

// HitLimit caps the rows written back per asset.
const HitLimit = 100

// Result directives written to the search result table.
const (
	DirectiveResult        = "search_result"
	DirectiveStoragePrompt = "storage_prompt"
)

// Summary reports the total hits for one asset in the storage prompt row.
type Summary struct {
	Asset     string `json:"asset"`
	SQL       string `json:"sql"`
	TotalHits int    `json:"total_hits"`
}

// Service runs search tasks.
type Service struct {
	searcher store.AssetSearcher
	results  store.SearchResultStore
	logger   *slog.Logger
}

// NewService creates a Service.
func NewService(searcher store.AssetSearcher, results store.SearchResultStore, logger *slog.Logger) (*Service, error) {
	if searcher == nil {
		return nil, fmt.Errorf("%w: asset searcher cannot be nil", domain.ErrValidation)
	}
	if results == nil {
		return nil, fmt.Errorf("%w: search result store cannot be nil", domain.ErrValidation)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		searcher: searcher,
		results:  results,
		logger:   logger.With(slog.String("component", "search")),
	}, nil
}

// Search queries every asset in body. For each asset with at least one
// match it saves up to HitLimit hits; it always finishes with one storage
// prompt row summarizing the totals.
func (s *Service) Search(ctx context.Context, body *domain.SearchBody) error {
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.Int64("search_id", body.SearchID))

	summary := make([]Summary, 0, len(body.Assets))
	for _, asset := range body.Assets {
		q, err := BuildQuery(asset, body)
		if err != nil {
			return err
		}

		hits, err := s.searcher.SearchDocuments(ctx, q.Limited(HitLimit), q.Args...)
		if err != nil {
			return fmt.Errorf("failed to search %s: %w", asset, err)
		}
		total, err := s.searcher.CountDocuments(ctx, q.Count(), q.Args...)
		if err != nil {
			return fmt.Errorf("failed to count %s hits: %w", asset, err)
		}

		summary = append(summary, Summary{Asset: asset, SQL: q.SQL, TotalHits: total})
		log.Info("search finished for asset",
			slog.String("asset", asset),
			slog.Int("hits", len(hits)),
			slog.Int("total_hits", total))

		if total == 0 {
			continue
		}
		if err := s.results.SaveResults(ctx, s.resultRows(body, q, hits)); err != nil {
			return fmt.Errorf("failed to save %s hits: %w", asset, err)
		}
	}

	prompt := domain.SearchResult{
		SearchID:   body.SearchID,
		UserID:     body.UserID,
		Directive:  DirectiveStoragePrompt,
		SearchBody: summary,
	}
	if err := s.results.SaveResults(ctx, []domain.SearchResult{prompt}); err != nil {
		return fmt.Errorf("failed to save search summary: %w", err)
	}
	return nil
}

// resultRows decorates hits with the search metadata. An empty hit list
// still yields one row so the asset shows up in the results.
func (s *Service) resultRows(body *domain.SearchBody, q Query, hits []domain.SearchResult) []domain.SearchResult {
	base := domain.SearchResult{
		SearchID:   body.SearchID,
		UserID:     body.UserID,
		Directive:  DirectiveResult,
		Asset:      q.Asset,
		Active:     true,
		SearchBody: body,
		SQL:        q.SQL,
	}
	if len(hits) == 0 {
		return []domain.SearchResult{base}
	}

	rows := make([]domain.SearchResult, len(hits))
	for i, h := range hits {
		r := base
		r.RepoID = h.RepoID
		r.RepoName = h.RepoName
		r.WellID = h.WellID
		r.Suite = h.Suite
		r.Tag = h.Tag
		r.Doc = h.Doc
		rows[i] = r
	}
	return rows
}

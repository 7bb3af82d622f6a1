package etl

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/rbhughes/old-purrio-geographix/internal/domain"
	"github.com/rbhughes/old-purrio-geographix/internal/legacy"
	"github.com/rbhughes/old-purrio-geographix/internal/platform/logger"
	"github.com/rbhughes/old-purrio-geographix/internal/store"
)

// Querier runs a statement against a legacy database.
type Querier interface {
	Query(ctx context.Context, conn domain.Conn, stmt string) ([]legacy.Row, error)
}

// Loader handles extract-page sub-tasks.
type Loader struct {
	db      *sql.DB
	assets  store.AssetStore
	querier Querier
	logger  *slog.Logger
}

// NewLoader creates a Loader writing through assets on db.
func NewLoader(db *sql.DB, assets store.AssetStore, querier Querier, logger *slog.Logger) (*Loader, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: db cannot be nil", domain.ErrValidation)
	}
	if assets == nil {
		return nil, fmt.Errorf("%w: asset store cannot be nil", domain.ErrValidation)
	}
	if querier == nil {
		return nil, fmt.Errorf("%w: querier cannot be nil", domain.ErrValidation)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		db:      db,
		assets:  assets,
		querier: querier,
		logger:  logger.With(slog.String("component", "etl_loader")),
	}, nil
}

// HandlePage fetches the rows selected by body, composes their documents
// and upserts them in a single transaction. It returns the number of
// documents written.
func (l *Loader) HandlePage(ctx context.Context, body *domain.ExtractPageBody) (int, error) {
	log := logger.FromContextOrDefault(ctx, l.logger).With(
		slog.String("asset", body.Asset),
		slog.String("batch_id", body.BatchID),
		slog.String("repo_id", body.RepoID))

	rows, err := l.querier.Query(ctx, body.Conn, body.Selector)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch page: %w", err)
	}

	docs, warnings, err := ComposeDocs(body, rows)
	if err != nil {
		return 0, fmt.Errorf("failed to compose documents: %w", err)
	}
	for _, w := range warnings {
		log.Warn("column needs a new transform",
			slog.String("column", w.Column),
			slog.String("kind", w.Kind))
	}

	if len(docs) == 0 {
		log.Info("page selected no rows")
		return 0, nil
	}

	if err := l.assets.EnsureTable(ctx, body.Asset); err != nil {
		return 0, fmt.Errorf("failed to prepare asset table: %w", err)
	}

	var written int
	err = store.RunInTransaction(ctx, l.db, func(ctx context.Context, tx *sql.Tx) error {
		n, err := l.assets.WithTx(tx).UpsertDocuments(ctx, body.Asset, docs)
		if err != nil {
			return err
		}
		written = n
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upsert page: %w", err)
	}

	log.Info("page loaded",
		slog.Int("rows", len(rows)),
		slog.Int("upserted", written))
	return written, nil
}

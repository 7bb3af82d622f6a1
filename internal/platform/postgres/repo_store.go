package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/rbhughes/old-purrio-geographix/internal/domain"
	"github.com/rbhughes/old-purrio-geographix/internal/platform/logger"
	"github.com/rbhughes/old-purrio-geographix/internal/store"
)

// PostgresRepoStore implements the store.RepoStore interface using PostgreSQL
type PostgresRepoStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresRepoStore creates a new PostgresRepoStore.
func NewPostgresRepoStore(db store.DBTX, logger *slog.Logger) *PostgresRepoStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepoStore{
		db:     db,
		logger: logger.With(slog.String("component", "repo_store")),
	}
}

var _ store.RepoStore = (*PostgresRepoStore)(nil)

// GetRepo implements store.RepoStore.GetRepo
func (s *PostgresRepoStore) GetRepo(ctx context.Context, id string) (*domain.Repo, error) {
	var (
		r                                  domain.Repo
		conn, connAux, wellCounts, outline []byte
		repoMod                            sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, fs_path, suite, conn, conn_aux, well_counts,
		       bytes, files, directories, repo_mod, outline, updated_at
		FROM repo
		WHERE id = $1
	`, id).Scan(
		&r.ID, &r.Name, &r.FSPath, &r.Suite, &conn, &connAux, &wellCounts,
		&r.Bytes, &r.Files, &r.Directories, &repoMod, &outline, &r.UpdatedAt,
	)
	if err != nil {
		if IsNotFound(MapError(err)) {
			return nil, store.ErrRepoNotFound
		}
		return nil, fmt.Errorf("failed to get repo %s: %w", id, MapError(err))
	}

	if err := unmarshalOptional(conn, &r.Conn); err != nil {
		return nil, fmt.Errorf("repo %s has invalid conn: %w", id, err)
	}
	if err := unmarshalOptional(connAux, &r.ConnAux); err != nil {
		return nil, fmt.Errorf("repo %s has invalid conn_aux: %w", id, err)
	}
	if err := unmarshalOptional(wellCounts, &r.WellCounts); err != nil {
		return nil, fmt.Errorf("repo %s has invalid well_counts: %w", id, err)
	}
	if err := unmarshalOptional(outline, &r.Outline); err != nil {
		return nil, fmt.Errorf("repo %s has invalid outline: %w", id, err)
	}
	if repoMod.Valid {
		r.RepoMod = repoMod.Time
	}
	return &r, nil
}

// UpsertRepos implements store.RepoStore.UpsertRepos
func (s *PostgresRepoStore) UpsertRepos(ctx context.Context, repos []domain.Repo) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	for _, r := range repos {
		conn, err := json.Marshal(r.Conn)
		if err != nil {
			return fmt.Errorf("failed to encode conn for repo %s: %w", r.ID, err)
		}
		connAux, err := marshalOptional(r.ConnAux)
		if err != nil {
			return fmt.Errorf("failed to encode conn_aux for repo %s: %w", r.ID, err)
		}
		wellCounts, err := marshalOptional(r.WellCounts)
		if err != nil {
			return fmt.Errorf("failed to encode well_counts for repo %s: %w", r.ID, err)
		}
		outline, err := marshalOptional(r.Outline)
		if err != nil {
			return fmt.Errorf("failed to encode outline for repo %s: %w", r.ID, err)
		}
		var repoMod any
		if !r.RepoMod.IsZero() {
			repoMod = r.RepoMod
		}

		_, err = s.db.ExecContext(ctx, `
			INSERT INTO repo (id, name, fs_path, suite, conn, conn_aux, well_counts,
			                  bytes, files, directories, repo_mod, outline, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				fs_path = EXCLUDED.fs_path,
				suite = EXCLUDED.suite,
				conn = EXCLUDED.conn,
				conn_aux = EXCLUDED.conn_aux,
				well_counts = EXCLUDED.well_counts,
				bytes = EXCLUDED.bytes,
				files = EXCLUDED.files,
				directories = EXCLUDED.directories,
				repo_mod = EXCLUDED.repo_mod,
				outline = EXCLUDED.outline,
				updated_at = now()
		`, r.ID, r.Name, r.FSPath, r.Suite, conn, connAux, wellCounts,
			r.Bytes, r.Files, r.Directories, repoMod, outline)
		if err != nil {
			log.Error("failed to upsert repo",
				slog.String("repo_id", r.ID),
				slog.String("error", err.Error()))
			return fmt.Errorf("failed to upsert repo %s: %w", r.ID, MapError(err))
		}
	}

	log.Info("upserted repos", slog.Int("count", len(repos)))
	return nil
}

func unmarshalOptional(raw []byte, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// marshalOptional encodes v, mapping empty maps and slices to SQL NULL.
func marshalOptional(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 0 {
			return nil, nil
		}
	case map[string]int64:
		if len(t) == 0 {
			return nil, nil
		}
	case [][2]float64:
		if len(t) == 0 {
			return nil, nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

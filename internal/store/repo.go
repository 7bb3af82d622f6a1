package store

import (
	"context"

	"github.com/rbhughes/old-purrio-geographix/internal/domain"
)

// RepoStore defines the interface for discovered repo records.
type RepoStore interface {
	// GetRepo retrieves a repo by id.
	// Returns ErrRepoNotFound if the repo does not exist.
	GetRepo(ctx context.Context, id string) (*domain.Repo, error)

	// UpsertRepos inserts or replaces repos keyed by id.
	UpsertRepos(ctx context.Context, repos []domain.Repo) error
}

package mocks

import (
	"context"
	"sync"

	"github.com/rbhughes/old-purrio-geographix/internal/domain"
	"github.com/rbhughes/old-purrio-geographix/internal/store"
)

// MockRepoStore implements store.RepoStore in memory.
type MockRepoStore struct {
	GetRepoFn     func(ctx context.Context, id string) (*domain.Repo, error)
	UpsertReposFn func(ctx context.Context, repos []domain.Repo) error

	mu    sync.Mutex
	repos map[string]domain.Repo
}

var _ store.RepoStore = (*MockRepoStore)(nil)

// NewMockRepoStore creates a MockRepoStore holding repos.
func NewMockRepoStore(repos ...domain.Repo) *MockRepoStore {
	m := &MockRepoStore{repos: make(map[string]domain.Repo)}
	for _, r := range repos {
		m.repos[r.ID] = r
	}
	return m
}

// GetRepo implements store.RepoStore.
func (m *MockRepoStore) GetRepo(ctx context.Context, id string) (*domain.Repo, error) {
	if m.GetRepoFn != nil {
		return m.GetRepoFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.repos[id]
	if !ok {
		return nil, store.ErrRepoNotFound
	}
	return &r, nil
}

// UpsertRepos implements store.RepoStore.
func (m *MockRepoStore) UpsertRepos(ctx context.Context, repos []domain.Repo) error {
	if m.UpsertReposFn != nil {
		return m.UpsertReposFn(ctx, repos)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range repos {
		m.repos[r.ID] = r
	}
	return nil
}

package discovery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/rbhughes/old-purrio-geographix/internal/domain"
	"github.com/rbhughes/old-purrio-geographix/internal/mocks"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, fs afero.Fs, p string, size int, mod time.Time) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, p, []byte(strings.Repeat("x", size)), 0o644))
	require.NoError(t, fs.Chtimes(p, mod, mod))
}

// projectFS lays out one complete project, one missing its Global
// directory and one unrelated file tree.
func projectFS(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	engine := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, fs.MkdirAll("/ggx/sample/Stratton/Global", 0o755))
	writeFile(t, fs, "/ggx/sample/Stratton/gxdb.db", 100, engine)
	writeFile(t, fs, "/ggx/sample/Stratton/gxdb_production.db", 50, engine)
	writeFile(t, fs, "/ggx/sample/Stratton/gxdb.log", 10, engine)
	writeFile(t, fs, "/ggx/sample/Stratton/Global/layers.xml", 20, recent)
	writeFile(t, fs, "/ggx/sample/Stratton/notes.txt", 5, old)

	require.NoError(t, fs.MkdirAll("/ggx/sample/Broken", 0o755))
	writeFile(t, fs, "/ggx/sample/Broken/gxdb.db", 1, old)
	writeFile(t, fs, "/ggx/sample/Broken/gxdb_production.db", 1, old)

	writeFile(t, fs, "/ggx/other/readme.md", 1, old)
	return fs
}

func TestDiscover(t *testing.T) {
	querier := &mocks.MockQuerier{
		QueryManyFn: func(ctx context.Context, conn domain.Conn, stmts []string) ([][]map[string]any, error) {
			out := make([][]map[string]any, len(stmts))
			for i := range stmts {
				out[i] = []map[string]any{{"tally": int64(i + 1)}}
			}
			out[1] = []map[string]any{{"TALLY": nil}}
			return out, nil
		},
	}
	svc, err := NewService(projectFS(t), querier, "scarab", testLogger())
	require.NoError(t, err)

	repos, err := svc.Discover(context.Background(), &domain.DiscoverBody{ReconRoot: `\ggx\sample`, Suite: "geographix"})
	require.NoError(t, err)
	require.Len(t, repos, 1)

	repo := repos[0]
	assert.Equal(t, domain.Hashify("/ggx/sample/Stratton"), repo.ID)
	assert.Equal(t, "Stratton", repo.Name)
	assert.Equal(t, "/ggx/sample/Stratton", repo.FSPath)
	assert.Equal(t, "geographix", repo.Suite)
	assert.Equal(t, domain.Conn{
		AutoStart:   "YES",
		FilePath:    "/ggx/sample/Stratton/gxdb.db",
		LogicalName: "Stratton-sample",
		Driver:      "SQL Anywhere 17",
		Server:      "GGX_SCARAB",
		User:        "dba",
		Password:    "sql",
	}, repo.Conn)
	assert.Equal(t, map[string]any{"ggx_host": "scarab"}, repo.ConnAux)

	assert.Len(t, repo.WellCounts, len(wellCounters))
	assert.Equal(t, int64(1), repo.WellCounts["well_count"])
	assert.Equal(t, int64(0), repo.WellCounts["wells_with_completion"])
	assert.Equal(t, int64(12), repo.WellCounts["wells_with_zone"])
	assert.Len(t, querier.Statements, len(wellCounters))

	assert.Equal(t, int64(185), repo.Bytes)
	assert.Equal(t, int64(5), repo.Files)
	assert.Equal(t, int64(1), repo.Directories)
	assert.True(t, repo.RepoMod.Equal(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)), "got %s", repo.RepoMod)
}

func TestDiscoverHostFromBody(t *testing.T) {
	svc, err := NewService(projectFS(t), &mocks.MockQuerier{}, "scarab", testLogger())
	require.NoError(t, err)

	repos, err := svc.Discover(context.Background(), &domain.DiscoverBody{ReconRoot: "/ggx", Suite: "geographix", GGXHost: "beetle"})
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "GGX_BEETLE", repos[0].Conn.Server)
}

func TestDiscoverQueryFailureKeepsRepo(t *testing.T) {
	querier := &mocks.MockQuerier{
		QueryManyFn: func(ctx context.Context, conn domain.Conn, stmts []string) ([][]map[string]any, error) {
			return nil, errors.New("database name not unique")
		},
	}
	svc, err := NewService(projectFS(t), querier, "scarab", testLogger())
	require.NoError(t, err)

	repos, err := svc.Discover(context.Background(), &domain.DiscoverBody{ReconRoot: "/ggx", Suite: "geographix"})
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Nil(t, repos[0].WellCounts)
	assert.Equal(t, int64(5), repos[0].Files)
}

func TestDiscoverMissingRoot(t *testing.T) {
	svc, err := NewService(afero.NewMemMapFs(), &mocks.MockQuerier{}, "scarab", testLogger())
	require.NoError(t, err)

	_, err = svc.Discover(context.Background(), &domain.DiscoverBody{ReconRoot: "/nowhere", Suite: "geographix"})
	assert.ErrorIs(t, err, ErrRootNotFound)
}

func TestIsProject(t *testing.T) {
	fs := projectFS(t)
	assert.True(t, IsProject(fs, "/ggx/sample/Stratton"))
	assert.False(t, IsProject(fs, "/ggx/sample/Broken"))
	assert.False(t, IsProject(fs, "/ggx/other"))
}

func TestNewServiceValidates(t *testing.T) {
	_, err := NewService(nil, &mocks.MockQuerier{}, "h", nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = NewService(afero.NewMemMapFs(), nil, "h", nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

package batch_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rbhughes/old-purrio-geographix/internal/batch"
	"github.com/rbhughes/old-purrio-geographix/internal/domain"
	"github.com/rbhughes/old-purrio-geographix/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWorker = "worker-1"

type fixture struct {
	sqlMock sqlmock.Sqlmock
	tasks   *mocks.MockTaskStore
	ledger  *mocks.MockLedgerStore
	querier *mocks.MockQuerier
	dna     *mocks.MockDNASource
	coord   *batch.Coordinator
	parent  domain.Task
}

func newFixture(t *testing.T, count any) *fixture {
	t.Helper()

	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		sqlMock: sqlMock,
		tasks:   mocks.NewMockTaskStore(),
		ledger:  mocks.NewMockLedgerStore(),
		querier: &mocks.MockQuerier{
			QueryFn: func(ctx context.Context, conn domain.Conn, stmt string) ([]map[string]any, error) {
				if count == nil {
					return nil, nil
				}
				return []map[string]any{{"COUNT": count}}, nil
			},
		},
	}

	repos := mocks.NewMockRepoStore(domain.Repo{
		ID:    "repo-1",
		Name:  "Anadarko",
		Suite: "geographix",
		Conn:  domain.Conn{FilePath: `C:\ggx\Anadarko\gxdb.db`, LogicalName: "Anadarko-ggx", Driver: "SQL Anywhere 17"},
	})
	f.dna = &mocks.MockDNASource{DNA: map[string]domain.DNA{
		"geographix/well": {
			Select:          "SELECT w.uwi AS w_uwi, w.well_name AS w_well_name FROM well w __RECENT__",
			Order:           "ORDER BY w.uwi",
			WhereRecentSlot: "__RECENT__",
			AssetIDKeys:     []string{"w_uwi"},
			WellIDKeys:      []string{"w_uwi"},
			Prefixes:        map[string]string{"w_": "well"},
		},
	}}

	f.coord, err = batch.NewCoordinator(batch.Deps{
		DB:      db,
		Tasks:   f.tasks,
		Ledger:  f.ledger,
		Repos:   repos,
		DNA:     f.dna,
		Querier: f.querier,
	}, testWorker, 500, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	f.parent = domain.Task{
		ID:        42,
		Worker:    testWorker,
		Directive: domain.DirectiveExtractBatch,
		Status:    domain.TaskStatusProcessing,
		Body: &domain.ExtractBatchBody{
			Asset:  "well",
			RepoID: "repo-1",
			Suite:  "geographix",
			Tag:    "q3",
		},
	}
	f.tasks.Put(f.parent)
	return f
}

func (f *fixture) batchID(t *testing.T) string {
	t.Helper()
	id, err := batch.BatchID(f.parent.Body.(*domain.ExtractBatchBody))
	require.NoError(t, err)
	return id
}

func (f *fixture) subTasks() []domain.Task {
	var out []domain.Task
	for _, tk := range f.tasks.Tasks() {
		if tk.Directive == domain.DirectiveExtractPage {
			out = append(out, tk)
		}
	}
	return out
}

func TestNewCoordinatorValidatesDeps(t *testing.T) {
	t.Parallel()

	_, err := batch.NewCoordinator(batch.Deps{}, testWorker, 500, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestHandleExtractBatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t, int64(1137))
	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()

	n, err := f.coord.HandleExtractBatch(context.Background(), &f.parent)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, f.sqlMock.ExpectationsWereMet())

	require.Len(t, f.querier.Statements, 1)
	assert.Equal(t,
		"SELECT COUNT(*) AS count FROM ( SELECT w.uwi AS w_uwi, w.well_name AS w_well_name FROM well w  ) c WHERE 1=1",
		f.querier.Statements[0])

	_, err = f.tasks.GetTask(context.Background(), f.parent.ID)
	assert.Error(t, err, "parent task should be deleted")

	subs := f.subTasks()
	require.Len(t, subs, 3)

	batchID := f.batchID(t)
	wantWindows := []string{"SELECT TOP 500 START AT 1 ", "SELECT TOP 500 START AT 501 ", "SELECT TOP 137 START AT 1001 "}
	for i, sub := range subs {
		assert.Equal(t, testWorker, sub.Worker)
		assert.Equal(t, domain.TaskStatusPending, sub.Status)

		body, ok := sub.Body.(*domain.ExtractPageBody)
		require.True(t, ok)
		assert.True(t, strings.HasPrefix(body.Selector, wantWindows[i]), body.Selector)
		assert.True(t, strings.HasSuffix(body.Selector, "WHERE 1=1 ORDER BY w.uwi;"), body.Selector)
		assert.Equal(t, batchID, body.BatchID)
		assert.Equal(t, "repo-1", body.RepoID)
		assert.Equal(t, "Anadarko", body.RepoName)
		assert.Equal(t, "geographix", body.Suite)
		assert.Equal(t, "q3", body.Tag)
		assert.Equal(t, []string{"w_uwi"}, body.AssetIDKeys)
		assert.Equal(t, "Anadarko-ggx", body.Conn.LogicalName)
	}

	entries := f.ledger.Entries(batchID)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, domain.TaskStatusPending, e.Status)
		assert.Equal(t, 3, e.NumTasks)
		assert.Equal(t, domain.DirectiveExtractPage, e.Directive)
	}
}

func TestHandleExtractBatchRecencyAndFilter(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "10")
	body := f.parent.Body.(*domain.ExtractBatchBody)
	body.Recency = 7
	body.WhereClause = "w.county = 'Weld'"
	body.Chunk = 4

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()

	n, err := f.coord.HandleExtractBatch(context.Background(), &f.parent)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Contains(t, f.querier.Statements[0], "WHERE row_changed_date >= DATEADD(DAY, -7, CURRENT DATE)")
	assert.Contains(t, f.querier.Statements[0], "WHERE 1=1 AND w.county = 'Weld'")

	last := f.subTasks()[2].Body.(*domain.ExtractPageBody)
	assert.True(t, strings.HasPrefix(last.Selector, "SELECT TOP 2 START AT 9 "), last.Selector)
}

func TestHandleExtractBatchNoMatchingRecords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		count any
	}{
		{name: "no result", count: nil},
		{name: "zero count", count: int64(0)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.count)

			_, err := f.coord.HandleExtractBatch(context.Background(), &f.parent)
			assert.ErrorIs(t, err, batch.ErrNoMatchingRecords)
			assert.Empty(t, f.subTasks())
			assert.Empty(t, f.ledger.Entries(f.batchID(t)))
			require.NoError(t, f.sqlMock.ExpectationsWereMet())
		})
	}
}

func TestHandleExtractBatchRollsBackOnLedgerFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 20)
	f.ledger.InsertEntriesFn = func(ctx context.Context, entries []domain.LedgerEntry) error {
		return errors.New("ledger unavailable")
	}
	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectRollback()

	_, err := f.coord.HandleExtractBatch(context.Background(), &f.parent)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger unavailable")
	require.NoError(t, f.sqlMock.ExpectationsWereMet())

	_, err = f.tasks.GetTask(context.Background(), f.parent.ID)
	assert.NoError(t, err, "parent task should survive a rolled back batch")
}

func TestHandleExtractBatchRejectsWrongBody(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	wrong := domain.Task{ID: 7, Body: &domain.HaltBody{Suite: "geographix"}}

	_, err := f.coord.HandleExtractBatch(context.Background(), &wrong)
	assert.ErrorIs(t, err, domain.ErrInvalidTask)
}

func TestBatchLifecycle(t *testing.T) {
	t.Parallel()

	run := func(t *testing.T) (*fixture, []domain.Task, string) {
		f := newFixture(t, 1137)
		f.sqlMock.ExpectBegin()
		f.sqlMock.ExpectCommit()
		_, err := f.coord.HandleExtractBatch(context.Background(), &f.parent)
		require.NoError(t, err)
		return f, f.subTasks(), f.batchID(t)
	}

	t.Run("all sub-tasks succeed", func(t *testing.T) {
		f, subs, batchID := run(t)
		ctx := context.Background()

		for i, sub := range subs {
			finished, err := f.coord.OnSubTaskFinished(ctx, sub.ID, batchID)
			require.NoError(t, err)
			assert.Equal(t, i == len(subs)-1, finished)
		}

		done, err := f.coord.IsBatchFinished(ctx, batchID)
		require.NoError(t, err)
		assert.True(t, done)
	})

	t.Run("one sub-task fails", func(t *testing.T) {
		f, subs, batchID := run(t)
		ctx := context.Background()

		for _, sub := range subs[:len(subs)-1] {
			_, err := f.coord.OnSubTaskFinished(ctx, sub.ID, batchID)
			require.NoError(t, err)
		}
		require.NoError(t, f.coord.OnSubTaskFailed(ctx, subs[len(subs)-1].ID, batchID))

		for i := 0; i < 3; i++ {
			done, err := f.coord.IsBatchFinished(ctx, batchID)
			require.NoError(t, err)
			assert.False(t, done)
		}

		progress, err := f.coord.Progress(ctx, batchID)
		require.NoError(t, err)
		assert.Equal(t, batch.Progress{BatchID: batchID, Remaining: 1, Failed: 1}, progress)
	})

	t.Run("finishing twice is harmless", func(t *testing.T) {
		f, subs, batchID := run(t)
		ctx := context.Background()

		_, err := f.coord.OnSubTaskFinished(ctx, subs[0].ID, batchID)
		require.NoError(t, err)
		_, err = f.coord.OnSubTaskFinished(ctx, subs[0].ID, batchID)
		require.NoError(t, err)

		assert.Len(t, f.ledger.Entries(batchID), len(subs)-1)
	})
}

func TestIsBatchFinishedPropagatesErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	f.ledger.CountEntriesFn = func(ctx context.Context, batchID string) (int, error) {
		return 0, sql.ErrConnDone
	}

	_, err := f.coord.IsBatchFinished(context.Background(), "b")
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestHandleExtractBatchRejectsDNAWithoutAssetIDKeys(t *testing.T) {
	t.Parallel()

	f := newFixture(t, int64(1137))
	dna := f.dna.DNA["geographix/well"]
	dna.AssetIDKeys = nil
	f.dna.DNA["geographix/well"] = dna

	n, err := f.coord.HandleExtractBatch(context.Background(), &f.parent)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidFormat)
	assert.Zero(t, n)
	assert.Contains(t, err.Error(), "AssetIDKeys")

	assert.Empty(t, f.querier.Statements, "no count query for unusable dna")
	assert.Empty(t, f.subTasks())
	assert.Empty(t, f.ledger.Entries(f.batchID(t)))
	_, err = f.tasks.GetTask(context.Background(), f.parent.ID)
	assert.NoError(t, err, "parent task is left for the dispatcher to fail")
	require.NoError(t, f.sqlMock.ExpectationsWereMet())
}

func TestHandleExtractBatchRejectsDNAWithoutSelect(t *testing.T) {
	t.Parallel()

	f := newFixture(t, int64(10))
	dna := f.dna.DNA["geographix/well"]
	dna.Select = ""
	f.dna.DNA["geographix/well"] = dna

	_, err := f.coord.HandleExtractBatch(context.Background(), &f.parent)
	assert.ErrorIs(t, err, domain.ErrInvalidFormat)
	assert.Empty(t, f.subTasks())
}

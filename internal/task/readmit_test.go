package task

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rbhughes/old-purrio-geographix/internal/domain"
	"github.com/rbhughes/old-purrio-geographix/internal/events"
	"github.com/rbhughes/old-purrio-geographix/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPages struct {
	mu    sync.Mutex
	calls map[string]int
}

func (p *countingPages) HandlePage(ctx context.Context, body *domain.ExtractPageBody) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[body.Selector]++
	return 1, nil
}

func (p *countingPages) counts() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int, len(p.calls))
	for k, v := range p.calls {
		out[k] = v
	}
	return out
}

func pageRecord(id int64) string {
	body := fmt.Sprintf(`{"asset": "well", "asset_id_keys": ["w.uwi"], "batch_id": "b1", "repo_id": "r1",
		"selector": "select %d", "suite": "geographix"}`, id)
	return fmt.Sprintf(`{"id": %d, "worker": "w1", "status": "PENDING", "directive": "extract-page", "body": %s}`, id, body)
}

// A burst of sub-task events larger than the queue must still run every
// sub-task exactly once, via the reaper's pending sweep.
func TestPendingSubTasksSurviveQueueOverflow(t *testing.T) {
	const total = 10
	ctx := context.Background()

	tasks := mocks.NewMockTaskStore()
	pages := &countingPages{calls: make(map[string]int)}
	dispatcher, err := NewDispatcher(DispatcherDeps{
		Tasks:    tasks,
		Repos:    mocks.NewMockRepoStore(),
		Batches:  &fakeBatches{},
		Pages:    pages,
		Discover: &fakeDiscover{},
		Search:   &fakeSearch{},
		Halt:     func(ctx context.Context, body *domain.HaltBody) {},
	}, setupTestLogger())
	require.NoError(t, err)

	work := newManager(dispatcher, 3, 1)
	search := newManager(dispatcher, 3, 1)
	in := NewIngestor("w1", []string{"geographix"}, work, search, setupTestLogger())

	old := time.Now().Add(-time.Hour)
	rejected := 0
	for id := int64(1); id <= total; id++ {
		event, err := events.ParseNotification(payload(pageRecord(id)))
		require.NoError(t, err)

		// The row the event announces.
		task, ok := in.Ingest(payload(pageRecord(id)))
		require.True(t, ok)
		task.UpdatedAt = old
		tasks.Put(*task)

		if err := in.HandleEvent(ctx, event); err != nil {
			assert.ErrorIs(t, err, ErrQueueFull)
			rejected++
		}
	}
	assert.Equal(t, total-3, rejected)

	reaper := NewReaper(tasks, mocks.NewMockLedgerStore(), in, "w1", reaperConfig("FAILED"), setupTestLogger())

	require.NoError(t, work.Start(ctx))
	require.NoError(t, search.Start(ctx))

	require.Eventually(t, func() bool {
		if _, err := reaper.Sweep(ctx); err != nil {
			return false
		}
		return len(tasks.Tasks()) == 0
	}, 5*time.Second, 10*time.Millisecond)

	work.Stop()
	search.Stop()
	work.Wait()
	search.Wait()

	counts := pages.counts()
	require.Len(t, counts, total)
	for selector, n := range counts {
		assert.Equal(t, 1, n, selector)
	}
	assert.Len(t, tasks.Deleted, total)
}

package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rbhughes/old-purrio-geographix/internal/config"
	"github.com/rbhughes/old-purrio-geographix/internal/domain"
	"github.com/rbhughes/old-purrio-geographix/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reaperConfig(resetTo string) config.ReaperConfig {
	return config.ReaperConfig{
		StuckTaskAge:  time.Minute,
		PendingAge:    time.Minute,
		CheckInterval: 10 * time.Millisecond,
		ResetTo:       resetTo,
	}
}

type resubmitRecorder struct {
	mu    sync.Mutex
	ids   []int64
	limit int
}

func (r *resubmitRecorder) Resubmit(ctx context.Context, t *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limit > 0 && len(r.ids) == r.limit {
		return fmt.Errorf("failed to enqueue task %d: %w", t.ID, ErrQueueFull)
	}
	r.ids = append(r.ids, t.ID)
	return nil
}

func (r *resubmitRecorder) seen() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.ids...)
}

func TestReaperSweep(t *testing.T) {
	tests := []struct {
		name    string
		resetTo string
		want    domain.TaskStatus
	}{
		{name: "default fails stuck tasks", resetTo: "FAILED", want: domain.TaskStatusFailed},
		{name: "pending opt in", resetTo: "PENDING", want: domain.TaskStatusPending},
		{name: "unknown falls back to failed", resetTo: "", want: domain.TaskStatusFailed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tasks := mocks.NewMockTaskStore()
			old := time.Now().Add(-time.Hour)
			tasks.Put(domain.Task{ID: 1, Worker: "w1", Status: domain.TaskStatusProcessing, UpdatedAt: old})
			tasks.Put(domain.Task{ID: 2, Worker: "w1", Status: domain.TaskStatusProcessing, UpdatedAt: time.Now()})
			tasks.Put(domain.Task{ID: 3, Worker: "w2", Status: domain.TaskStatusProcessing, UpdatedAt: old})
			tasks.Put(domain.Task{ID: 4, Worker: "w1", Status: domain.TaskStatusPending, UpdatedAt: old})

			r := NewReaper(tasks, mocks.NewMockLedgerStore(), nil, "w1", reaperConfig(tc.resetTo), setupTestLogger())

			res, err := r.Sweep(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, res.Reset)
			assert.Zero(t, res.Readmitted)

			got, err := tasks.GetTask(context.Background(), 1)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Status)

			for _, id := range []int64{2, 3} {
				other, err := tasks.GetTask(context.Background(), id)
				require.NoError(t, err)
				assert.Equal(t, domain.TaskStatusProcessing, other.Status)
			}
		})
	}
}

func TestReaperReportsOrphans(t *testing.T) {
	ledger := mocks.NewMockLedgerStore()
	var asked time.Duration
	ledger.FindOrphanedSubTasksFn = func(ctx context.Context, olderThan time.Duration) ([]int64, error) {
		asked = olderThan
		return []int64{5, 6}, nil
	}

	r := NewReaper(mocks.NewMockTaskStore(), ledger, nil, "w1", reaperConfig("FAILED"), setupTestLogger())
	_, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Minute, asked)
}

func TestReaperSweepError(t *testing.T) {
	tasks := mocks.NewMockTaskStore()
	tasks.GetProcessingTasksFn = func(ctx context.Context, worker string, olderThan time.Duration) ([]domain.Task, error) {
		return nil, errors.New("db down")
	}

	r := NewReaper(tasks, mocks.NewMockLedgerStore(), nil, "w1", reaperConfig("FAILED"), setupTestLogger())
	_, err := r.Sweep(context.Background())
	assert.ErrorContains(t, err, "db down")
}

func TestReaperRunStopsOnCancel(t *testing.T) {
	tasks := mocks.NewMockTaskStore()
	swept := make(chan struct{}, 1)
	tasks.GetProcessingTasksFn = func(ctx context.Context, worker string, olderThan time.Duration) ([]domain.Task, error) {
		select {
		case swept <- struct{}{}:
		default:
		}
		return nil, nil
	}

	r := NewReaper(tasks, mocks.NewMockLedgerStore(), nil, "w1", reaperConfig("FAILED"), setupTestLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case <-swept:
	case <-time.After(time.Second):
		t.Fatal("reaper never swept")
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}

func TestReaperReadmitsPendingTasks(t *testing.T) {
	tasks := mocks.NewMockTaskStore()
	old := time.Now().Add(-time.Hour)
	tasks.Put(domain.Task{ID: 1, Worker: "w1", Status: domain.TaskStatusPending, UpdatedAt: old})
	tasks.Put(domain.Task{ID: 2, Worker: "w1", Status: domain.TaskStatusPending, UpdatedAt: time.Now()})
	tasks.Put(domain.Task{ID: 3, Worker: "w2", Status: domain.TaskStatusPending, UpdatedAt: old})
	tasks.Put(domain.Task{ID: 4, Worker: "w1", Status: domain.TaskStatusFailed, UpdatedAt: old})
	tasks.Put(domain.Task{ID: 5, Worker: "w1", Status: domain.TaskStatusPending, UpdatedAt: old})
	resubmit := &resubmitRecorder{}

	r := NewReaper(tasks, mocks.NewMockLedgerStore(), resubmit, "w1", reaperConfig("FAILED"), setupTestLogger())
	res, err := r.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Readmitted)
	assert.Equal(t, []int64{1, 5}, resubmit.seen())
}

func TestReaperDefersReadmissionWhenQueueFull(t *testing.T) {
	tasks := mocks.NewMockTaskStore()
	old := time.Now().Add(-time.Hour)
	for id := int64(1); id <= 5; id++ {
		tasks.Put(domain.Task{ID: id, Worker: "w1", Status: domain.TaskStatusPending, UpdatedAt: old})
	}
	resubmit := &resubmitRecorder{limit: 2}

	r := NewReaper(tasks, mocks.NewMockLedgerStore(), resubmit, "w1", reaperConfig("FAILED"), setupTestLogger())
	res, err := r.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Readmitted)
	assert.Equal(t, []int64{1, 2}, resubmit.seen())
}

func TestReaperPendingLookupError(t *testing.T) {
	tasks := mocks.NewMockTaskStore()
	tasks.GetPendingTasksFn = func(ctx context.Context, worker string, olderThan time.Duration) ([]domain.Task, error) {
		return nil, errors.New("db down")
	}

	r := NewReaper(tasks, mocks.NewMockLedgerStore(), &resubmitRecorder{}, "w1", reaperConfig("FAILED"), setupTestLogger())
	_, err := r.Sweep(context.Background())
	assert.ErrorContains(t, err, "failed to find pending tasks")
}

func TestReaperRunSweepsAtStart(t *testing.T) {
	tasks := mocks.NewMockTaskStore()
	tasks.Put(domain.Task{ID: 1, Worker: "w1", Status: domain.TaskStatusPending, UpdatedAt: time.Now().Add(-time.Hour)})
	resubmit := &resubmitRecorder{}

	cfg := reaperConfig("FAILED")
	cfg.CheckInterval = time.Hour
	r := NewReaper(tasks, mocks.NewMockLedgerStore(), resubmit, "w1", cfg, setupTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	assert.Eventually(t, func() bool { return len(resubmit.seen()) == 1 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

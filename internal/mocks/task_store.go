package mocks

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/rbhughes/old-purrio-geographix/internal/domain"
	"github.com/rbhughes/old-purrio-geographix/internal/store"
)

// MockTaskStore implements store.TaskStore in memory.
type MockTaskStore struct {
	InsertTasksFn        func(ctx context.Context, tasks []domain.Task) ([]domain.Task, error)
	GetTaskFn            func(ctx context.Context, id int64) (*domain.Task, error)
	UpdateTaskStatusFn   func(ctx context.Context, id int64, status domain.TaskStatus) error
	ClaimTaskFn          func(ctx context.Context, id int64) error
	DeleteTaskFn         func(ctx context.Context, id int64) error
	GetProcessingTasksFn func(ctx context.Context, worker string, olderThan time.Duration) ([]domain.Task, error)
	GetPendingTasksFn    func(ctx context.Context, worker string, olderThan time.Duration) ([]domain.Task, error)

	mu     sync.Mutex
	tasks  map[int64]domain.Task
	nextID int64
	// StatusLog records every status change in call order.
	StatusLog []StatusChange
	// Deleted records every deleted id in call order.
	Deleted []int64
}

// StatusChange is one UpdateTaskStatus call.
type StatusChange struct {
	ID     int64
	Status domain.TaskStatus
}

var _ store.TaskStore = (*MockTaskStore)(nil)

// NewMockTaskStore creates an empty MockTaskStore.
func NewMockTaskStore() *MockTaskStore {
	return &MockTaskStore{tasks: make(map[int64]domain.Task)}
}

// Put stores t as-is, for test setup.
func (m *MockTaskStore) Put(t domain.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
	if t.ID > m.nextID {
		m.nextID = t.ID
	}
}

// Tasks returns a snapshot of stored tasks ordered by id.
func (m *MockTaskStore) Tasks() []domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// InsertTasks implements store.TaskStore.
func (m *MockTaskStore) InsertTasks(ctx context.Context, tasks []domain.Task) ([]domain.Task, error) {
	if m.InsertTasksFn != nil {
		return m.InsertTasksFn(ctx, tasks)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		m.nextID++
		t.ID = m.nextID
		t.CreatedAt = time.Now()
		t.UpdatedAt = t.CreatedAt
		m.tasks[t.ID] = t
		out = append(out, t)
	}
	return out, nil
}

// GetTask implements store.TaskStore.
func (m *MockTaskStore) GetTask(ctx context.Context, id int64) (*domain.Task, error) {
	if m.GetTaskFn != nil {
		return m.GetTaskFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return &t, nil
}

// UpdateTaskStatus implements store.TaskStore.
func (m *MockTaskStore) UpdateTaskStatus(ctx context.Context, id int64, status domain.TaskStatus) error {
	if m.UpdateTaskStatusFn != nil {
		return m.UpdateTaskStatusFn(ctx, id, status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StatusLog = append(m.StatusLog, StatusChange{ID: id, Status: status})
	t, ok := m.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	t.Status = status
	t.UpdatedAt = time.Now()
	m.tasks[id] = t
	return nil
}

// ClaimTask implements store.TaskStore. A successful claim is recorded in
// StatusLog as a PROCESSING change.
func (m *MockTaskStore) ClaimTask(ctx context.Context, id int64) error {
	if m.ClaimTaskFn != nil {
		return m.ClaimTaskFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	if t.Status != domain.TaskStatusPending {
		return store.ErrTaskNotPending
	}
	m.StatusLog = append(m.StatusLog, StatusChange{ID: id, Status: domain.TaskStatusProcessing})
	t.Status = domain.TaskStatusProcessing
	t.UpdatedAt = time.Now()
	m.tasks[id] = t
	return nil
}

// DeleteTask implements store.TaskStore.
func (m *MockTaskStore) DeleteTask(ctx context.Context, id int64) error {
	if m.DeleteTaskFn != nil {
		return m.DeleteTaskFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[id]; !ok {
		return store.ErrTaskNotFound
	}
	delete(m.tasks, id)
	m.Deleted = append(m.Deleted, id)
	return nil
}

// GetProcessingTasks implements store.TaskStore.
func (m *MockTaskStore) GetProcessingTasks(
	ctx context.Context,
	worker string,
	olderThan time.Duration,
) ([]domain.Task, error) {
	if m.GetProcessingTasksFn != nil {
		return m.GetProcessingTasksFn(ctx, worker, olderThan)
	}
	return m.stale(domain.TaskStatusProcessing, worker, olderThan), nil
}

// GetPendingTasks implements store.TaskStore.
func (m *MockTaskStore) GetPendingTasks(
	ctx context.Context,
	worker string,
	olderThan time.Duration,
) ([]domain.Task, error) {
	if m.GetPendingTasksFn != nil {
		return m.GetPendingTasksFn(ctx, worker, olderThan)
	}
	return m.stale(domain.TaskStatusPending, worker, olderThan), nil
}

func (m *MockTaskStore) stale(status domain.TaskStatus, worker string, olderThan time.Duration) []domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	var out []domain.Task
	for _, t := range m.tasks {
		if t.Worker == worker && t.Status == status && t.UpdatedAt.Before(cutoff) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// WithTx implements store.TaskStore.
func (m *MockTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return m
}

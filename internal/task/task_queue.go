package task

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rbhughes/old-purrio-geographix/internal/domain"
)

// Common errors returned by the TaskQueue
var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
)

// TaskQueue is a bounded FIFO of tasks. Enqueue and TryDequeue never block.
type TaskQueue struct {
	mu     sync.RWMutex
	tasks  chan *domain.Task
	logger *slog.Logger
	closed bool
}

// NewTaskQueue creates a new task queue with the specified buffer size
func NewTaskQueue(size int, logger *slog.Logger) *TaskQueue {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskQueue{
		tasks:  make(chan *domain.Task, size),
		logger: logger,
	}
}

// Enqueue adds a task to the queue for processing
// Returns an error if the queue is full or closed
func (q *TaskQueue) Enqueue(t *domain.Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- t:
		q.logger.Debug("task enqueued",
			slog.Int64("task_id", t.ID),
			slog.String("directive", string(t.Directive)),
			slog.Int("queue_len", len(q.tasks)),
			slog.Int("queue_cap", cap(q.tasks)))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.tasks))
	}
}

// TryDequeue removes the oldest task, if any.
func (q *TaskQueue) TryDequeue() (*domain.Task, bool) {
	select {
	case t, ok := <-q.tasks:
		return t, ok
	default:
		return nil, false
	}
}

// Close closes the task queue, preventing further task submission. Tasks
// already queued can still be dequeued.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.tasks)
		q.logger.Info("task queue closed", slog.Int("remaining", len(q.tasks)))
	}
}

// Len returns the number of queued tasks.
func (q *TaskQueue) Len() int {
	return len(q.tasks)
}

// Cap returns the queue capacity.
func (q *TaskQueue) Cap() int {
	return cap(q.tasks)
}

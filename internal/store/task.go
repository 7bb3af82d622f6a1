package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rbhughes/old-purrio-geographix/internal/domain"
)

// TaskStore defines the interface for the shared task table.
type TaskStore interface {
	// InsertTasks inserts tasks and returns them with their assigned ids,
	// in input order.
	InsertTasks(ctx context.Context, tasks []domain.Task) ([]domain.Task, error)

	// GetTask retrieves a task by id.
	// Returns ErrTaskNotFound if the task does not exist.
	GetTask(ctx context.Context, id int64) (*domain.Task, error)

	// UpdateTaskStatus sets the status of a task.
	// Returns ErrTaskNotFound if the task does not exist.
	UpdateTaskStatus(ctx context.Context, id int64, status domain.TaskStatus) error

	// ClaimTask moves a PENDING task to PROCESSING. It returns
	// ErrTaskNotFound if the task does not exist and ErrTaskNotPending if it
	// is in any other status, so a task is claimed at most once.
	ClaimTask(ctx context.Context, id int64) error

	// DeleteTask removes a task. Deleting a missing task returns ErrTaskNotFound.
	DeleteTask(ctx context.Context, id int64) error

	// GetProcessingTasks returns tasks owned by worker that have been
	// PROCESSING for longer than olderThan.
	GetProcessingTasks(ctx context.Context, worker string, olderThan time.Duration) ([]domain.Task, error)

	// GetPendingTasks returns tasks owned by worker that have been PENDING
	// for longer than olderThan.
	GetPendingTasks(ctx context.Context, worker string, olderThan time.Duration) ([]domain.Task, error)

	// WithTx returns a TaskStore that uses the provided transaction.
	WithTx(tx *sql.Tx) TaskStore
}

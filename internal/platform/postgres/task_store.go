package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rbhughes/old-purrio-geographix/internal/domain"
	"github.com/rbhughes/old-purrio-geographix/internal/platform/logger"
	"github.com/rbhughes/old-purrio-geographix/internal/store"
)

// PostgresTaskStore implements the store.TaskStore interface using PostgreSQL
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgresTaskStore.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

var _ store.TaskStore = (*PostgresTaskStore)(nil)

// WithTx implements store.TaskStore.WithTx
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{db: tx, logger: s.logger}
}

// InsertTasks implements store.TaskStore.InsertTasks
func (s *PostgresTaskStore) InsertTasks(ctx context.Context, tasks []domain.Task) ([]domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	if len(tasks) == 0 {
		return nil, nil
	}

	stmt, err := s.db.PrepareContext(ctx, `
		INSERT INTO task (worker, directive, status, body)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare task insert: %w", MapError(err))
	}
	defer func() { _ = stmt.Close() }()

	inserted := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if !domain.IsValidStatus(t.Status) {
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, t.Status)
		}
		body, err := t.BodyJSON()
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s body: %w", t.Directive, err)
		}

		err = stmt.QueryRowContext(ctx, t.Worker, t.Directive, t.Status, body).
			Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			log.Error("failed to insert task",
				slog.String("directive", string(t.Directive)),
				slog.String("error", err.Error()))
			return nil, fmt.Errorf("failed to insert task: %w", MapError(err))
		}
		inserted = append(inserted, t)
	}

	log.Debug("inserted tasks", slog.Int("count", len(inserted)))
	return inserted, nil
}

// GetTask implements store.TaskStore.GetTask
func (s *PostgresTaskStore) GetTask(ctx context.Context, id int64) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, worker, directive, status, body, created_at, updated_at
		FROM task
		WHERE id = $1
	`, id)

	t, err := scanTask(row)
	if err != nil {
		if IsNotFound(err) {
			return nil, store.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task %d: %w", id, err)
	}
	return t, nil
}

// UpdateTaskStatus implements store.TaskStore.UpdateTaskStatus
func (s *PostgresTaskStore) UpdateTaskStatus(ctx context.Context, id int64, status domain.TaskStatus) error {
	log := logger.FromContextOrDefault(ctx, s.logger)
	if !domain.IsValidStatus(status) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidStatus, status)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE task
		SET status = $1, updated_at = now()
		WHERE id = $2
	`, status, id)
	if err != nil {
		log.Error("failed to update task status",
			slog.Int64("task_id", id),
			slog.String("status", string(status)),
			slog.String("error", err.Error()))
		return store.NewStoreError("task", "update", "failed to update status",
			fmt.Errorf("%w: %w", store.ErrUpdateFailed, MapError(err)))
	}
	return CheckRowsAffected(result, store.ErrTaskNotFound)
}

// DeleteTask implements store.TaskStore.DeleteTask
func (s *PostgresTaskStore) DeleteTask(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM task WHERE id = $1`, id)
	if err != nil {
		return store.NewStoreError("task", "delete", fmt.Sprintf("failed to delete task %d", id),
			fmt.Errorf("%w: %w", store.ErrDeleteFailed, MapError(err)))
	}
	return CheckRowsAffected(result, store.ErrTaskNotFound)
}

// ClaimTask implements store.TaskStore.ClaimTask
func (s *PostgresTaskStore) ClaimTask(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE task
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, domain.TaskStatusProcessing, id, domain.TaskStatusPending)
	if err != nil {
		return store.NewStoreError("task", "claim", fmt.Sprintf("failed to claim task %d", id),
			fmt.Errorf("%w: %w", store.ErrUpdateFailed, MapError(err)))
	}
	// Zero rows means the task is missing or not PENDING.
	if err := CheckRowsAffected(result, store.ErrTaskNotPending); !errors.Is(err, store.ErrTaskNotPending) {
		return err
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM task WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check task %d: %w", id, MapError(err))
	}
	if !exists {
		return store.ErrTaskNotFound
	}
	return store.ErrTaskNotPending
}

// GetProcessingTasks implements store.TaskStore.GetProcessingTasks
func (s *PostgresTaskStore) GetProcessingTasks(
	ctx context.Context,
	worker string,
	olderThan time.Duration,
) ([]domain.Task, error) {
	return s.staleTasks(ctx, domain.TaskStatusProcessing, worker, olderThan)
}

// GetPendingTasks implements store.TaskStore.GetPendingTasks
func (s *PostgresTaskStore) GetPendingTasks(
	ctx context.Context,
	worker string,
	olderThan time.Duration,
) ([]domain.Task, error) {
	return s.staleTasks(ctx, domain.TaskStatusPending, worker, olderThan)
}

// staleTasks returns worker's tasks in status that were last updated more
// than olderThan ago, oldest first.
func (s *PostgresTaskStore) staleTasks(
	ctx context.Context,
	status domain.TaskStatus,
	worker string,
	olderThan time.Duration,
) ([]domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.String("status", string(status)))

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, worker, directive, status, body, created_at, updated_at
		FROM task
		WHERE status = $1 AND worker = $2 AND updated_at < $3
		ORDER BY updated_at ASC
	`, status, worker, time.Now().UTC().Add(-olderThan))
	if err != nil {
		log.Error("failed to query stale tasks", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to query %s tasks: %w", status, MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			// Left for an operator; the body no longer decodes.
			log.Warn("skipping undecodable task row", slog.String("error", err.Error()))
			continue
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return tasks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		t    domain.Task
		body []byte
	)
	if err := row.Scan(&t.ID, &t.Worker, &t.Directive, &t.Status, &body, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, MapError(err)
	}
	decoded, err := domain.DecodeBody(t.Directive, body)
	if err != nil {
		return nil, err
	}
	t.Body = decoded
	return &t, nil
}

// IsNotFound reports whether err is or wraps store.ErrNotFound or sql.ErrNoRows.
func IsNotFound(err error) bool {
	return store.IsNotFoundError(err) || err == sql.ErrNoRows
}

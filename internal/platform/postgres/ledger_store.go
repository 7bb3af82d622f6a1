package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/rbhughes/old-purrio-geographix/internal/domain"
	"github.com/rbhughes/old-purrio-geographix/internal/platform/logger"
	"github.com/rbhughes/old-purrio-geographix/internal/store"
)

// PostgresLedgerStore implements the store.LedgerStore interface using PostgreSQL
type PostgresLedgerStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresLedgerStore creates a new PostgresLedgerStore.
func NewPostgresLedgerStore(db store.DBTX, logger *slog.Logger) *PostgresLedgerStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresLedgerStore{
		db:     db,
		logger: logger.With(slog.String("component", "ledger_store")),
	}
}

var _ store.LedgerStore = (*PostgresLedgerStore)(nil)

// WithTx implements store.LedgerStore.WithTx
func (s *PostgresLedgerStore) WithTx(tx *sql.Tx) store.LedgerStore {
	return &PostgresLedgerStore{db: tx, logger: s.logger}
}

// InsertEntries implements store.LedgerStore.InsertEntries
func (s *PostgresLedgerStore) InsertEntries(ctx context.Context, entries []domain.LedgerEntry) error {
	log := logger.FromContextOrDefault(ctx, s.logger)
	if len(entries) == 0 {
		return nil
	}

	stmt, err := s.db.PrepareContext(ctx, `
		INSERT INTO batch_ledger (batch_id, task_id, status, num_tasks, directive)
		VALUES ($1, $2, $3, $4, $5)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare ledger insert: %w", MapError(err))
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.BatchID, e.TaskID, e.Status, e.NumTasks, e.Directive); err != nil {
			log.Error("failed to insert ledger entry",
				slog.String("batch_id", e.BatchID),
				slog.Int64("task_id", e.TaskID),
				slog.String("error", err.Error()))
			return fmt.Errorf("failed to insert ledger entry: %w", MapError(err))
		}
	}
	return nil
}

// DeleteEntry implements store.LedgerStore.DeleteEntry
func (s *PostgresLedgerStore) DeleteEntry(ctx context.Context, batchID string, taskID int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM batch_ledger WHERE batch_id = $1 AND task_id = $2`,
		batchID, taskID)
	if err != nil {
		return store.NewStoreError("ledger", "delete", "failed to delete entry",
			fmt.Errorf("%w: %w", store.ErrDeleteFailed, MapError(err)))
	}
	return CheckRowsAffected(result, store.ErrLedgerEntryNotFound)
}

// UpdateEntryStatus implements store.LedgerStore.UpdateEntryStatus
func (s *PostgresLedgerStore) UpdateEntryStatus(
	ctx context.Context,
	batchID string,
	taskID int64,
	status domain.TaskStatus,
) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE batch_ledger SET status = $1 WHERE batch_id = $2 AND task_id = $3`,
		status, batchID, taskID)
	if err != nil {
		return store.NewStoreError("ledger", "update", "failed to update entry",
			fmt.Errorf("%w: %w", store.ErrUpdateFailed, MapError(err)))
	}
	return CheckRowsAffected(result, store.ErrLedgerEntryNotFound)
}

// CountEntries implements store.LedgerStore.CountEntries
func (s *PostgresLedgerStore) CountEntries(ctx context.Context, batchID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM batch_ledger WHERE batch_id = $1`, batchID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count ledger entries: %w", MapError(err))
	}
	return n, nil
}

// CountByStatus implements store.LedgerStore.CountByStatus
func (s *PostgresLedgerStore) CountByStatus(ctx context.Context, batchID string) (map[domain.TaskStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM batch_ledger
		WHERE batch_id = $1
		GROUP BY status
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to count ledger entries by status: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[domain.TaskStatus]int)
	for rows.Next() {
		var (
			status domain.TaskStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan ledger count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// FindOrphanedSubTasks implements store.LedgerStore.FindOrphanedSubTasks
func (s *PostgresLedgerStore) FindOrphanedSubTasks(ctx context.Context, olderThan time.Duration) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id
		FROM task t
		LEFT JOIN batch_ledger l ON l.task_id = t.id
		WHERE t.directive = $1
		  AND l.task_id IS NULL
		  AND t.created_at < $2
		ORDER BY t.id
	`, domain.DirectiveExtractPage, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return nil, fmt.Errorf("failed to query orphaned sub-tasks: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan orphaned sub-task: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rbhughes/old-purrio-geographix/internal/domain"
)

// LedgerStore defines the interface for the batch ledger, keyed by
// (batch_id, task_id).
type LedgerStore interface {
	// InsertEntries writes one row per entry.
	InsertEntries(ctx context.Context, entries []domain.LedgerEntry) error

	// DeleteEntry removes the row for (batchID, taskID).
	// Returns ErrLedgerEntryNotFound if no such row exists.
	DeleteEntry(ctx context.Context, batchID string, taskID int64) error

	// UpdateEntryStatus sets the status of the row for (batchID, taskID).
	// Returns ErrLedgerEntryNotFound if no such row exists.
	UpdateEntryStatus(ctx context.Context, batchID string, taskID int64, status domain.TaskStatus) error

	// CountEntries returns the number of rows remaining for batchID.
	CountEntries(ctx context.Context, batchID string) (int, error)

	// CountByStatus returns remaining rows for batchID grouped by status.
	CountByStatus(ctx context.Context, batchID string) (map[domain.TaskStatus]int, error)

	// FindOrphanedSubTasks returns ids of extract-page tasks older than
	// olderThan that have no ledger row.
	FindOrphanedSubTasks(ctx context.Context, olderThan time.Duration) ([]int64, error)

	// WithTx returns a LedgerStore that uses the provided transaction.
	WithTx(tx *sql.Tx) LedgerStore
}

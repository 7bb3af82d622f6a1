package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rbhughes/old-purrio-geographix/internal/config"
	"github.com/rbhughes/old-purrio-geographix/internal/domain"
	"github.com/rbhughes/old-purrio-geographix/internal/store"
)

// Resubmitter re-admits a stored task to the queues.
type Resubmitter interface {
	Resubmit(ctx context.Context, t *domain.Task) error
}

// Reaper periodically resets tasks this worker left in PROCESSING for too
// long, re-admits tasks left PENDING, and reports extract-page tasks that have
// no ledger row.
type Reaper struct {
	tasks      store.TaskStore
	ledger     store.LedgerStore
	resubmit   Resubmitter
	workerID   string
	age        time.Duration
	pendingAge time.Duration
	interval   time.Duration
	resetTo    domain.TaskStatus
	logger     *slog.Logger
}

// SweepResult counts what one sweep changed.
type SweepResult struct {
	Reset      int
	Readmitted int
}

// NewReaper creates a Reaper from cfg. A nil resubmit disables re-admission
// of pending tasks.
func NewReaper(
	tasks store.TaskStore,
	ledger store.LedgerStore,
	resubmit Resubmitter,
	workerID string,
	cfg config.ReaperConfig,
	logger *slog.Logger,
) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.CheckInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	resetTo := domain.TaskStatus(cfg.ResetTo)
	if resetTo != domain.TaskStatusPending {
		resetTo = domain.TaskStatusFailed
	}
	pendingAge := cfg.PendingAge
	if pendingAge <= 0 {
		pendingAge = 2 * time.Minute
	}
	return &Reaper{
		tasks:      tasks,
		ledger:     ledger,
		resubmit:   resubmit,
		workerID:   workerID,
		age:        cfg.StuckTaskAge,
		pendingAge: pendingAge,
		interval:   interval,
		resetTo:    resetTo,
		logger:     logger.With(slog.String("component", "reaper")),
	}
}

// Run sweeps once at start, to pick up tasks written while the worker was
// down, then every interval until ctx is done.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("sweep failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep resets stuck tasks, re-admits pending ones and reports orphaned
// sub-tasks, once.
func (r *Reaper) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	stuck, err := r.tasks.GetProcessingTasks(ctx, r.workerID, r.age)
	if err != nil {
		return res, fmt.Errorf("failed to find stuck tasks: %w", err)
	}

	for _, t := range stuck {
		if err := r.tasks.UpdateTaskStatus(ctx, t.ID, r.resetTo); err != nil {
			r.logger.Error("failed to reset stuck task",
				slog.Int64("task_id", t.ID),
				slog.String("directive", string(t.Directive)),
				slog.String("error", err.Error()))
			continue
		}
		r.logger.Warn("reset stuck task",
			slog.Int64("task_id", t.ID),
			slog.String("directive", string(t.Directive)),
			slog.String("status", string(r.resetTo)))
		res.Reset++
	}

	if r.resubmit != nil {
		n, err := r.readmit(ctx)
		res.Readmitted = n
		if err != nil {
			return res, err
		}
	}

	orphans, err := r.ledger.FindOrphanedSubTasks(ctx, r.age)
	if err != nil {
		return res, fmt.Errorf("failed to find orphaned sub-tasks: %w", err)
	}
	if len(orphans) > 0 {
		r.logger.Warn("found sub-tasks without a ledger row", slog.Any("task_ids", orphans))
	}

	return res, nil
}

// readmit hands PENDING tasks older than pendingAge back to the queues,
// oldest first. It stops at the first full queue; the rest wait for the next
// sweep.
func (r *Reaper) readmit(ctx context.Context) (int, error) {
	pending, err := r.tasks.GetPendingTasks(ctx, r.workerID, r.pendingAge)
	if err != nil {
		return 0, fmt.Errorf("failed to find pending tasks: %w", err)
	}

	n := 0
	for i := range pending {
		t := &pending[i]
		if err := r.resubmit.Resubmit(ctx, t); err != nil {
			if errors.Is(err, ErrQueueFull) {
				r.logger.Info("queue full, deferring re-admission",
					slog.Int("readmitted", n),
					slog.Int("deferred", len(pending)-i))
				break
			}
			r.logger.Error("failed to re-admit task",
				slog.Int64("task_id", t.ID),
				slog.String("error", err.Error()))
			continue
		}
		n++
	}
	if n > 0 {
		r.logger.Info("re-admitted pending tasks", slog.Int("count", n))
	}
	return n, nil
}

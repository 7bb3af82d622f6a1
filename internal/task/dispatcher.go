package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/rbhughes/old-purrio-geographix/internal/batch"
	"github.com/rbhughes/old-purrio-geographix/internal/domain"
	"github.com/rbhughes/old-purrio-geographix/internal/platform/logger"
	"github.com/rbhughes/old-purrio-geographix/internal/redact"
	"github.com/rbhughes/old-purrio-geographix/internal/store"
)

// BatchCoordinator handles extract-batch tasks and the ledger bookkeeping
// of their sub-tasks.
type BatchCoordinator interface {
	HandleExtractBatch(ctx context.Context, t *domain.Task) (int, error)
	OnSubTaskFinished(ctx context.Context, taskID int64, batchID string) (bool, error)
	OnSubTaskFailed(ctx context.Context, taskID int64, batchID string) error
}

// PageLoader handles extract-page tasks.
type PageLoader interface {
	HandlePage(ctx context.Context, body *domain.ExtractPageBody) (int, error)
}

// Discoverer inventories repos below a root directory.
type Discoverer interface {
	Discover(ctx context.Context, body *domain.DiscoverBody) ([]domain.Repo, error)
}

// Searcher runs search tasks.
type Searcher interface {
	Search(ctx context.Context, body *domain.SearchBody) error
}

// HaltFunc performs an orderly shutdown. It must not block on in-flight
// tasks, since it is called from one of them.
type HaltFunc func(ctx context.Context, body *domain.HaltBody)

// DispatcherDeps holds the collaborators of a Dispatcher.
type DispatcherDeps struct {
	Tasks    store.TaskStore
	Repos    store.RepoStore
	Batches  BatchCoordinator
	Pages    PageLoader
	Discover Discoverer
	Search   Searcher
	Halt     HaltFunc
}

// Dispatcher drives a task through PENDING -> PROCESSING -> deleted or
// FAILED, routing it to the handler for its directive.
type Dispatcher struct {
	deps   DispatcherDeps
	logger *slog.Logger
}

var _ Handler = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher.
func NewDispatcher(deps DispatcherDeps, logger *slog.Logger) (*Dispatcher, error) {
	switch {
	case deps.Tasks == nil:
		return nil, fmt.Errorf("%w: task store cannot be nil", domain.ErrValidation)
	case deps.Repos == nil:
		return nil, fmt.Errorf("%w: repo store cannot be nil", domain.ErrValidation)
	case deps.Batches == nil:
		return nil, fmt.Errorf("%w: batch coordinator cannot be nil", domain.ErrValidation)
	case deps.Pages == nil:
		return nil, fmt.Errorf("%w: page loader cannot be nil", domain.ErrValidation)
	case deps.Discover == nil:
		return nil, fmt.Errorf("%w: discoverer cannot be nil", domain.ErrValidation)
	case deps.Search == nil:
		return nil, fmt.Errorf("%w: searcher cannot be nil", domain.ErrValidation)
	}
	if deps.Halt == nil {
		deps.Halt = func(context.Context, *domain.HaltBody) {}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		deps:   deps,
		logger: logger.With(slog.String("component", "dispatcher")),
	}, nil
}

// Dispatch claims t and runs it to completion. Success deletes the task; a
// handler error leaves it FAILED. Tasks that cannot be claimed are skipped and
// tasks with an unrecognized directive are left untouched.
func (d *Dispatcher) Dispatch(ctx context.Context, t *domain.Task) {
	log := logger.FromContextOrDefault(ctx, d.logger).With(
		slog.String("dispatch_id", uuid.NewString()),
		slog.Int64("task_id", t.ID),
		slog.String("directive", string(t.Directive)))
	ctx = logger.WithLogger(ctx, log)

	if _, unknown := t.Body.(*domain.UnknownBody); unknown || !domain.IsKnownDirective(t.Directive) {
		log.Warn("unknown directive, leaving task untouched")
		return
	}

	if err := d.deps.Tasks.ClaimTask(ctx, t.ID); err != nil {
		switch {
		case errors.Is(err, store.ErrTaskNotFound):
			log.Warn("task no longer exists, skipping")
		case errors.Is(err, store.ErrTaskNotPending):
			log.Debug("task already claimed, skipping")
		default:
			// Still PENDING; the reaper re-admits it.
			log.Error("failed to claim task", slog.String("error", err.Error()))
		}
		return
	}

	log.Info("processing task")

	err := d.route(ctx, t)
	if errors.Is(err, batch.ErrNoMatchingRecords) {
		log.Info("batch selected no records")
		err = nil
	}
	if err != nil {
		d.fail(ctx, log, t, err)
		return
	}

	d.complete(ctx, log, t)
}

// route is an exhaustive match over the body variants.
func (d *Dispatcher) route(ctx context.Context, t *domain.Task) error {
	switch body := t.Body.(type) {
	case *domain.ExtractBatchBody:
		n, err := d.deps.Batches.HandleExtractBatch(ctx, t)
		if err != nil {
			return err
		}
		logger.FromContext(ctx).Info("batch decomposed", slog.Int("sub_tasks", n))
		return nil

	case *domain.ExtractPageBody:
		_, err := d.deps.Pages.HandlePage(ctx, body)
		return err

	case *domain.DiscoverBody:
		repos, err := d.deps.Discover.Discover(ctx, body)
		if err != nil {
			return err
		}
		if err := d.deps.Repos.UpsertRepos(ctx, repos); err != nil {
			return fmt.Errorf("failed to store discovered repos: %w", err)
		}
		for _, r := range repos {
			logger.FromContext(ctx).Info("discovered repo",
				slog.String("repo_id", r.ID),
				slog.String("fs_path", r.FSPath))
		}
		return nil

	case *domain.SearchBody:
		return d.deps.Search.Search(ctx, body)

	case *domain.HaltBody:
		return nil

	default:
		return fmt.Errorf("%w: no handler for body %T", domain.ErrInvalidTask, body)
	}
}

func (d *Dispatcher) complete(ctx context.Context, log *slog.Logger, t *domain.Task) {
	// The batch handler deletes its own task inside its transaction.
	if err := d.deps.Tasks.DeleteTask(ctx, t.ID); err != nil && !errors.Is(err, store.ErrTaskNotFound) {
		log.Error("failed to delete completed task", slog.String("error", err.Error()))
	}

	switch body := t.Body.(type) {
	case *domain.ExtractPageBody:
		if _, err := d.deps.Batches.OnSubTaskFinished(ctx, t.ID, body.BatchID); err != nil {
			log.Error("failed to record finished sub-task",
				slog.String("batch_id", body.BatchID),
				slog.String("error", err.Error()))
		}
	case *domain.HaltBody:
		log.Info("halt requested", slog.String("reason", body.Reason))
		d.deps.Halt(ctx, body)
	}

	log.Info("task completed")
}

func (d *Dispatcher) fail(ctx context.Context, log *slog.Logger, t *domain.Task, cause error) {
	log.Error("task failed", slog.String("error", redact.Error(cause)))

	if body, ok := t.Body.(*domain.ExtractPageBody); ok {
		if err := d.deps.Batches.OnSubTaskFailed(ctx, t.ID, body.BatchID); err != nil {
			log.Error("failed to record failed sub-task",
				slog.String("batch_id", body.BatchID),
				slog.String("error", err.Error()))
		}
	}

	if err := d.deps.Tasks.UpdateTaskStatus(ctx, t.ID, domain.TaskStatusFailed); err != nil {
		log.Error("failed to mark task failed", slog.String("error", err.Error()))
	}
}

package batch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rbhughes/old-purrio-geographix/internal/domain"
	"github.com/rbhughes/old-purrio-geographix/internal/legacy"
	"github.com/rbhughes/old-purrio-geographix/internal/platform/logger"
	"github.com/rbhughes/old-purrio-geographix/internal/store"
)

// ErrNoMatchingRecords is returned by HandleExtractBatch when the count
// query finds nothing to extract. It is an outcome, not a failure: no
// sub-tasks or ledger rows are written.
var ErrNoMatchingRecords = errors.New("no matching records")

// DNASource returns extraction metadata for an asset kind of a suite.
type DNASource interface {
	FetchDNA(ctx context.Context, suite, asset string) (*domain.DNA, error)
}

// Querier runs a statement against a legacy database.
type Querier interface {
	Query(ctx context.Context, conn domain.Conn, stmt string) ([]legacy.Row, error)
}

// Deps holds the collaborators of a Coordinator.
type Deps struct {
	DB      *sql.DB
	Tasks   store.TaskStore
	Ledger  store.LedgerStore
	Repos   store.RepoStore
	DNA     DNASource
	Querier Querier
}

// Coordinator fans extract-batch tasks out into extract-page sub-tasks and
// tracks them in the batch ledger.
type Coordinator struct {
	deps         Deps
	workerID     string
	defaultChunk int
	validate     *validator.Validate
	logger       *slog.Logger
}

// Progress summarizes the ledger rows remaining for a batch.
type Progress struct {
	BatchID   string `json:"batch_id"`
	Remaining int    `json:"remaining"`
	Pending   int    `json:"pending"`
	Failed    int    `json:"failed"`
	Finished  bool   `json:"finished"`
}

// NewCoordinator creates a Coordinator. Sub-tasks are owned by workerID and
// bodies without a chunk size use defaultChunk.
func NewCoordinator(deps Deps, workerID string, defaultChunk int, logger *slog.Logger) (*Coordinator, error) {
	switch {
	case deps.DB == nil:
		return nil, fmt.Errorf("%w: db cannot be nil", domain.ErrValidation)
	case deps.Tasks == nil:
		return nil, fmt.Errorf("%w: task store cannot be nil", domain.ErrValidation)
	case deps.Ledger == nil:
		return nil, fmt.Errorf("%w: ledger store cannot be nil", domain.ErrValidation)
	case deps.Repos == nil:
		return nil, fmt.Errorf("%w: repo store cannot be nil", domain.ErrValidation)
	case deps.DNA == nil:
		return nil, fmt.Errorf("%w: dna source cannot be nil", domain.ErrValidation)
	case deps.Querier == nil:
		return nil, fmt.Errorf("%w: querier cannot be nil", domain.ErrValidation)
	case workerID == "":
		return nil, fmt.Errorf("%w: worker id cannot be empty", domain.ErrValidation)
	}
	if defaultChunk < 1 {
		return nil, fmt.Errorf("%w: default chunk must be positive", domain.ErrValidation)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{
		deps:         deps,
		workerID:     workerID,
		defaultChunk: defaultChunk,
		validate:     validator.New(),
		logger:       logger.With(slog.String("component", "batch_coordinator")),
	}, nil
}

// HandleExtractBatch plans the pages of an extract-batch task, writes one
// sub-task and one ledger row per page and deletes the parent task, all in
// one transaction. It returns the number of sub-tasks written.
func (c *Coordinator) HandleExtractBatch(ctx context.Context, task *domain.Task) (int, error) {
	log := logger.FromContextOrDefault(ctx, c.logger)

	body, ok := task.Body.(*domain.ExtractBatchBody)
	if !ok {
		return 0, fmt.Errorf("%w: task %d is not an extract-batch task", domain.ErrInvalidTask, task.ID)
	}

	repo, err := c.deps.Repos.GetRepo(ctx, body.RepoID)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve repo %s: %w", body.RepoID, err)
	}

	dna, err := c.deps.DNA.FetchDNA(ctx, body.Suite, body.Asset)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch dna for %s/%s: %w", body.Suite, body.Asset, err)
	}
	if err := c.validate.Struct(dna); err != nil {
		return 0, fmt.Errorf("%w: dna for %s/%s: %v", domain.ErrInvalidFormat, body.Suite, body.Asset, err)
	}

	selectSQL := SpliceRecency(dna.Select, dna.WhereRecentSlot, body.Recency)
	where := BuildWhere(body.WhereClause)

	total, err := c.countRows(ctx, repo.Conn, CountSQL(selectSQL, where))
	if err != nil {
		return 0, err
	}

	chunk := body.Chunk
	if chunk <= 0 {
		chunk = c.defaultChunk
	}

	batchID, err := BatchID(body)
	if err != nil {
		return 0, err
	}

	subTasks := c.subTasks(body, repo, dna, batchID, selectSQL, where, PlanPages(total, chunk))
	// Sub-tasks must pass the ingestor's admission checks.
	for _, st := range subTasks {
		if err := c.validate.Struct(st.Body); err != nil {
			return 0, fmt.Errorf("%w: sub-task for batch %s: %v", domain.ErrInvalidFormat, batchID, err)
		}
	}

	log.Info("decomposing batch",
		slog.Int64("task_id", task.ID),
		slog.String("batch_id", batchID),
		slog.String("asset", body.Asset),
		slog.String("repo_id", body.RepoID),
		slog.Int("total_rows", total),
		slog.Int("chunk", chunk),
		slog.Int("sub_tasks", len(subTasks)))

	err = store.RunInTransaction(ctx, c.deps.DB, func(ctx context.Context, tx *sql.Tx) error {
		tasks := c.deps.Tasks.WithTx(tx)

		inserted, err := tasks.InsertTasks(ctx, subTasks)
		if err != nil {
			return fmt.Errorf("failed to insert sub-tasks: %w", err)
		}

		entries := make([]domain.LedgerEntry, 0, len(inserted))
		for _, t := range inserted {
			entries = append(entries, domain.LedgerEntry{
				BatchID:   batchID,
				TaskID:    t.ID,
				Status:    domain.TaskStatusPending,
				NumTasks:  len(inserted),
				Directive: domain.DirectiveExtractPage,
			})
		}
		if err := c.deps.Ledger.WithTx(tx).InsertEntries(ctx, entries); err != nil {
			return fmt.Errorf("failed to insert ledger entries: %w", err)
		}

		if err := tasks.DeleteTask(ctx, task.ID); err != nil && !errors.Is(err, store.ErrTaskNotFound) {
			return fmt.Errorf("failed to delete batch task: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return len(subTasks), nil
}

func (c *Coordinator) countRows(ctx context.Context, conn domain.Conn, stmt string) (int, error) {
	rows, err := c.deps.Querier.Query(ctx, conn, stmt)
	if err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	if len(rows) == 0 {
		return 0, ErrNoMatchingRecords
	}

	total, err := countValue(rows[0])
	if err != nil {
		return 0, err
	}
	if total <= 0 {
		return 0, ErrNoMatchingRecords
	}
	return total, nil
}

// countValue reads the count column, whatever case and type the driver
// returned it in.
func countValue(row legacy.Row) (int, error) {
	var v any
	found := false
	for k, val := range row {
		if strings.EqualFold(k, "count") {
			v, found = val, true
			break
		}
	}
	if !found {
		return 0, fmt.Errorf("%w: count query returned no count column", domain.ErrInvalidFormat)
	}

	switch n := v.(type) {
	case nil:
		return 0, nil
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case []byte:
		return strconv.Atoi(strings.TrimSpace(string(n)))
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	default:
		return 0, fmt.Errorf("%w: unexpected count type %T", domain.ErrInvalidFormat, v)
	}
}

func (c *Coordinator) subTasks(
	body *domain.ExtractBatchBody,
	repo *domain.Repo,
	dna *domain.DNA,
	batchID, selectSQL, where string,
	pages []domain.Page,
) []domain.Task {
	suite := repo.Suite
	if suite == "" {
		suite = body.Suite
	}
	repoName := repo.Name
	if repoName == "" {
		repoName = body.RepoName
	}

	tasks := make([]domain.Task, 0, len(pages))
	for _, p := range pages {
		tasks = append(tasks, domain.Task{
			Worker:    c.workerID,
			Directive: domain.DirectiveExtractPage,
			Status:    domain.TaskStatusPending,
			Body: &domain.ExtractPageBody{
				Asset:       body.Asset,
				AssetIDKeys: dna.AssetIDKeys,
				BatchID:     batchID,
				Conn:        repo.Conn,
				Prefixes:    dna.Prefixes,
				RepoID:      repo.ID,
				RepoName:    repoName,
				Selector:    PageSelector(selectSQL, where, dna.Order, p.Offset, p.Length),
				Suite:       suite,
				Tag:         body.Tag,
				WellIDKeys:  dna.WellIDKeys,
				Xforms:      dna.Xforms,
			},
		})
	}
	return tasks
}

// OnSubTaskFinished removes the ledger row of a completed sub-task and
// reports whether that finished the batch.
func (c *Coordinator) OnSubTaskFinished(ctx context.Context, taskID int64, batchID string) (bool, error) {
	log := logger.FromContextOrDefault(ctx, c.logger)

	if err := c.deps.Ledger.DeleteEntry(ctx, batchID, taskID); err != nil {
		if !errors.Is(err, store.ErrLedgerEntryNotFound) {
			return false, fmt.Errorf("failed to delete ledger entry: %w", err)
		}
		log.Warn("ledger entry already gone",
			slog.String("batch_id", batchID),
			slog.Int64("task_id", taskID))
	}

	finished, err := c.IsBatchFinished(ctx, batchID)
	if err != nil {
		return false, err
	}
	if finished {
		log.Info("batch finished", slog.String("batch_id", batchID))
	}
	return finished, nil
}

// OnSubTaskFailed marks the ledger row of a failed sub-task FAILED. The row
// stays in place, so the batch never reports finished.
func (c *Coordinator) OnSubTaskFailed(ctx context.Context, taskID int64, batchID string) error {
	if err := c.deps.Ledger.UpdateEntryStatus(ctx, batchID, taskID, domain.TaskStatusFailed); err != nil {
		return fmt.Errorf("failed to mark ledger entry failed: %w", err)
	}
	logger.FromContextOrDefault(ctx, c.logger).Warn("batch has a failed sub-task",
		slog.String("batch_id", batchID),
		slog.Int64("task_id", taskID))
	return nil
}

// IsBatchFinished reports whether no ledger rows remain for batchID.
func (c *Coordinator) IsBatchFinished(ctx context.Context, batchID string) (bool, error) {
	n, err := c.deps.Ledger.CountEntries(ctx, batchID)
	if err != nil {
		return false, fmt.Errorf("failed to count ledger entries: %w", err)
	}
	return n == 0, nil
}

// Progress returns the remaining ledger rows of batchID by status.
func (c *Coordinator) Progress(ctx context.Context, batchID string) (Progress, error) {
	counts, err := c.deps.Ledger.CountByStatus(ctx, batchID)
	if err != nil {
		return Progress{}, fmt.Errorf("failed to count ledger entries: %w", err)
	}

	p := Progress{BatchID: batchID}
	for status, n := range counts {
		p.Remaining += n
		switch status {
		case domain.TaskStatusFailed:
			p.Failed += n
		default:
			p.Pending += n
		}
	}
	p.Finished = p.Remaining == 0
	return p, nil
}

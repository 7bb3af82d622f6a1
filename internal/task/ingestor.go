package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rbhughes/old-purrio-geographix/internal/domain"
	"github.com/rbhughes/old-purrio-geographix/internal/events"
)

// Ingestor turns change events into tasks and admits the ones this worker
// owns to the right queue.
type Ingestor struct {
	workerID string
	suites   map[string]bool
	validate *validator.Validate
	work     Enqueuer
	search   Enqueuer
	logger   *slog.Logger
}

var _ events.EventHandler = (*Ingestor)(nil)

// NewIngestor creates an Ingestor for workerID serving suites. Search tasks
// go to search, everything else to work.
func NewIngestor(workerID string, suites []string, work, search Enqueuer, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	set := make(map[string]bool, len(suites))
	for _, s := range suites {
		set[strings.ToLower(s)] = true
	}
	return &Ingestor{
		workerID: workerID,
		suites:   set,
		validate: validator.New(),
		work:     work,
		search:   search,
		logger:   logger.With(slog.String("component", "ingestor")),
	}
}

// Ingest decodes a raw `{"type", "record"}` payload and returns the task
// if this worker should run it.
func (i *Ingestor) Ingest(payload []byte) (*domain.Task, bool) {
	event, err := events.ParseNotification(payload)
	if err != nil {
		i.logger.Warn("rejected payload", slog.String("error", err.Error()))
		return nil, false
	}
	return i.admit(event.Record)
}

// HandleEvent implements events.EventHandler. Rejected events are logged and
// dropped; only a failed enqueue is returned as an error.
func (i *Ingestor) HandleEvent(ctx context.Context, event *events.ChangeEvent) error {
	if event.Type == events.KindDelete {
		return nil
	}

	t, ok := i.admit(event.Record)
	if !ok {
		return nil
	}
	return i.enqueue(t)
}

// Resubmit re-admits a stored task, for tasks whose change event was missed
// or rejected by a full queue. It returns nil without enqueueing when t is no
// longer admissible.
func (i *Ingestor) Resubmit(ctx context.Context, t *domain.Task) error {
	if t == nil || !i.check(t) {
		return nil
	}
	return i.enqueue(t)
}

func (i *Ingestor) enqueue(t *domain.Task) error {
	q := i.work
	if t.Directive == domain.DirectiveSearch {
		q = i.search
	}
	if err := q.Enqueue(t); err != nil {
		i.logger.Error("failed to enqueue task",
			slog.Int64("task_id", t.ID),
			slog.String("directive", string(t.Directive)),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to enqueue task %d: %w", t.ID, err)
	}
	return nil
}

func (i *Ingestor) admit(record json.RawMessage) (*domain.Task, bool) {
	if len(record) == 0 || string(record) == "null" {
		i.logger.Warn("rejected event", slog.String("error", domain.ErrMissingRecord.Error()))
		return nil, false
	}

	var t domain.Task
	if err := json.Unmarshal(record, &t); err != nil {
		i.logger.Warn("rejected event", slog.String("error", err.Error()))
		return nil, false
	}
	if !i.check(&t) {
		return nil, false
	}
	return &t, true
}

// check reports whether this worker should run t.
func (i *Ingestor) check(t *domain.Task) bool {
	log := i.logger.With(slog.Int64("task_id", t.ID), slog.String("directive", string(t.Directive)))

	if t.Worker != i.workerID {
		log.Debug("ignoring task for another worker", slog.String("worker", t.Worker))
		return false
	}
	if t.Status != domain.TaskStatusPending {
		log.Debug("ignoring task that is not pending", slog.String("status", string(t.Status)))
		return false
	}
	if t.Body == nil {
		log.Warn("rejected task without body")
		return false
	}
	if !i.servesAny(t.Body.TargetSuites()) {
		log.Debug("ignoring task for another suite", slog.Any("suites", t.Body.TargetSuites()))
		return false
	}
	if _, unknown := t.Body.(*domain.UnknownBody); !unknown {
		if err := i.validate.Struct(t.Body); err != nil {
			log.Warn("rejected invalid task body", slog.String("error", err.Error()))
			return false
		}
	}
	return true
}

func (i *Ingestor) servesAny(suites []string) bool {
	for _, s := range suites {
		if i.suites[strings.ToLower(s)] {
			return true
		}
	}
	return false
}

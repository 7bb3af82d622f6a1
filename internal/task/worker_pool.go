package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rbhughes/old-purrio-geographix/internal/domain"
)

// WorkerPool runs a fixed number of goroutines that hand submitted tasks to
// a Handler.
type WorkerPool struct {
	// jobs is unbuffered so Submit waits for an idle worker
	jobs chan *domain.Task

	// workerCount is the number of concurrent workers to start
	workerCount int

	// wg tracks active worker goroutines for clean shutdown
	wg sync.WaitGroup

	handler Handler
	active  atomic.Int32
	stop    sync.Once
	logger  *slog.Logger
}

// NewWorkerPool creates a pool of workerCount workers. A non-positive count
// defaults to 1.
func NewWorkerPool(workerCount int, handler Handler, logger *slog.Logger) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	if workerCount <= 0 {
		logger.Warn("invalid worker count specified, using default",
			slog.Int("specified_count", workerCount),
			slog.Int("default_count", 1))
		workerCount = 1
	}

	return &WorkerPool{
		jobs:        make(chan *domain.Task),
		workerCount: workerCount,
		handler:     handler,
		logger:      logger,
	}
}

// Start launches the workers. Tasks run with ctx.
func (p *WorkerPool) Start(ctx context.Context) {
	p.logger.Info("starting worker pool", slog.Int("worker_count", p.workerCount))

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Submit blocks until a worker accepts t.
func (p *WorkerPool) Submit(t *domain.Task) {
	p.jobs <- t
}

// Stop lets workers finish their current task and waits for them to exit.
// Submit must not be called after Stop.
func (p *WorkerPool) Stop() {
	p.stop.Do(func() { close(p.jobs) })
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// Size returns the number of workers.
func (p *WorkerPool) Size() int {
	return p.workerCount
}

// Active returns the number of workers currently running a task.
func (p *WorkerPool) Active() int {
	return int(p.active.Load())
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	p.logger.Debug("starting worker", slog.Int("worker_id", id))
	for t := range p.jobs {
		p.run(ctx, t, id)
	}
	p.logger.Debug("stopping worker", slog.Int("worker_id", id))
}

func (p *WorkerPool) run(ctx context.Context, t *domain.Task, id int) {
	p.active.Add(1)
	defer p.active.Add(-1)

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task handler panicked",
				slog.Int("worker_id", id),
				slog.Int64("task_id", t.ID),
				slog.String("panic", fmt.Sprint(r)))
		}
	}()

	p.handler.Dispatch(ctx, t)
}

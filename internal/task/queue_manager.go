package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbhughes/old-purrio-geographix/internal/domain"
)

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("queue manager already started")

// DefaultPollInterval is how long the admission loop sleeps when the queue
// is empty.
const DefaultPollInterval = 100 * time.Millisecond

// QueueManagerConfig sizes a QueueManager.
type QueueManagerConfig struct {
	// Name identifies the queue in logs and stats
	Name string

	// QueueSize bounds the number of waiting tasks
	QueueSize int

	// PoolSize is the number of tasks executed concurrently
	PoolSize int

	// PollInterval overrides DefaultPollInterval when positive
	PollInterval time.Duration
}

// QueueStats is a point-in-time view of a QueueManager.
type QueueStats struct {
	Name     string `json:"name"`
	Length   int    `json:"length"`
	Capacity int    `json:"capacity"`
	PoolSize int    `json:"pool_size"`
	Active   int    `json:"active"`
	Running  bool   `json:"running"`
}

// QueueManager owns a bounded FIFO and the worker pool that drains it.
type QueueManager struct {
	name    string
	queue   *TaskQueue
	pool    *WorkerPool
	poll    time.Duration
	running atomic.Bool
	mu      sync.Mutex
	started bool
	stopped bool
	done    chan struct{}
	logger  *slog.Logger
}

// NewQueueManager creates a stopped QueueManager whose workers hand tasks
// to handler.
func NewQueueManager(cfg QueueManagerConfig, handler Handler, logger *slog.Logger) *QueueManager {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "queue_manager"), slog.String("queue", cfg.Name))

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	return &QueueManager{
		name:   cfg.Name,
		queue:  NewTaskQueue(cfg.QueueSize, logger),
		pool:   NewWorkerPool(cfg.PoolSize, handler, logger),
		poll:   poll,
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Enqueue adds t to the queue without blocking. It returns ErrQueueFull
// when the queue is at capacity and ErrQueueClosed after Stop.
func (m *QueueManager) Enqueue(t *domain.Task) error {
	return m.queue.Enqueue(t)
}

// Start launches the worker pool and the admission loop. Tasks run with
// ctx, which should outlive Stop so in-flight work is not interrupted.
func (m *QueueManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return ErrAlreadyStarted
	}
	if m.stopped {
		return ErrQueueClosed
	}

	m.started = true
	m.running.Store(true)
	m.pool.Start(ctx)
	go m.loop()

	m.logger.Info("queue manager started",
		slog.Int("capacity", m.queue.Cap()),
		slog.Int("pool_size", m.pool.Size()))
	return nil
}

// Stop closes the queue to new tasks and returns immediately. The loop
// keeps submitting queued tasks until the queue is empty, then waits for
// in-flight tasks and exits. Use Wait to block until then.
func (m *QueueManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}
	m.stopped = true
	m.queue.Close()
	m.running.Store(false)
	m.logger.Info("queue manager stopping", slog.Int("remaining", m.queue.Len()))
	if !m.started {
		close(m.done)
	}
}

// Wait blocks until the manager has stopped and every task it accepted has
// finished.
func (m *QueueManager) Wait() {
	<-m.done
}

// Done is closed when the manager has fully stopped.
func (m *QueueManager) Done() <-chan struct{} {
	return m.done
}

// Stats returns the current queue and pool state.
func (m *QueueManager) Stats() QueueStats {
	return QueueStats{
		Name:     m.name,
		Length:   m.queue.Len(),
		Capacity: m.queue.Cap(),
		PoolSize: m.pool.Size(),
		Active:   m.pool.Active(),
		Running:  m.running.Load(),
	}
}

// loop polls the queue instead of blocking on it so a stop is noticed
// without new work arriving.
func (m *QueueManager) loop() {
	defer close(m.done)
	defer m.pool.Stop()

	for {
		if t, ok := m.queue.TryDequeue(); ok {
			m.pool.Submit(t)
			continue
		}
		if !m.running.Load() {
			// Close happened before running was cleared, so nothing new
			// can arrive; drain what is left.
			for {
				t, ok := m.queue.TryDequeue()
				if !ok {
					break
				}
				m.pool.Submit(t)
			}
			m.logger.Info("queue manager stopped")
			return
		}
		time.Sleep(m.poll)
	}
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rbhughes/old-purrio-geographix/internal/api"
	"github.com/rbhughes/old-purrio-geographix/internal/batch"
	"github.com/rbhughes/old-purrio-geographix/internal/config"
	"github.com/rbhughes/old-purrio-geographix/internal/discovery"
	"github.com/rbhughes/old-purrio-geographix/internal/dna"
	"github.com/rbhughes/old-purrio-geographix/internal/domain"
	"github.com/rbhughes/old-purrio-geographix/internal/etl"
	"github.com/rbhughes/old-purrio-geographix/internal/events"
	"github.com/rbhughes/old-purrio-geographix/internal/legacy"
	"github.com/rbhughes/old-purrio-geographix/internal/platform/postgres"
	"github.com/rbhughes/old-purrio-geographix/internal/platform/realtime"
	"github.com/rbhughes/old-purrio-geographix/internal/platform/supabase"
	"github.com/rbhughes/old-purrio-geographix/internal/search"
	"github.com/rbhughes/old-purrio-geographix/internal/task"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

const (
	// drainTimeout bounds how long shutdown waits for in-flight tasks.
	drainTimeout = 10 * time.Minute

	edgeAttempts = 3
)

// application holds the worker's components.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	session     *supabase.Session
	subscriber  events.Subscriber
	emitter     *events.InMemoryEventEmitter
	coordinator *batch.Coordinator
	work        *task.QueueManager
	search      *task.QueueManager
	reaper      *task.Reaper

	mu     sync.Mutex
	cancel context.CancelFunc
}

// newApplication wires every component from cfg. When Supabase is in use
// the session is signed in before anything subscribes.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{config: cfg, logger: logger, db: db}

	if cfg.UsesSupabase() {
		app.session = supabase.NewSession(cfg.Supabase.URL, cfg.Supabase.Key, nil, logger)
		if err := app.session.SignIn(ctx, cfg.Supabase.Email, cfg.Supabase.Password); err != nil {
			return nil, err
		}
	}

	taskStore := postgres.NewPostgresTaskStore(db, logger)
	ledgerStore := postgres.NewPostgresLedgerStore(db, logger)
	repoStore := postgres.NewPostgresRepoStore(db, logger)
	assetStore := postgres.NewPostgresAssetStore(db, logger)
	resultStore := postgres.NewPostgresSearchResultStore(db, logger)

	executor := legacy.NewExecutor(cfg.Legacy, logger)

	dnaSource, err := app.dnaSource()
	if err != nil {
		return nil, err
	}

	app.coordinator, err = batch.NewCoordinator(batch.Deps{
		DB:      db,
		Tasks:   taskStore,
		Ledger:  ledgerStore,
		Repos:   repoStore,
		DNA:     dnaSource,
		Querier: executor,
	}, cfg.Worker.ID, cfg.Batch.DefaultChunkSize, logger)
	if err != nil {
		return nil, err
	}

	loader, err := etl.NewLoader(db, assetStore, executor, logger)
	if err != nil {
		return nil, err
	}

	discoverer, err := discovery.NewService(afero.NewOsFs(), executor, hostname(cfg.Worker.ID), logger)
	if err != nil {
		return nil, err
	}

	searcher, err := search.NewService(assetStore, resultStore, logger)
	if err != nil {
		return nil, err
	}

	dispatcher, err := task.NewDispatcher(task.DispatcherDeps{
		Tasks:    taskStore,
		Repos:    repoStore,
		Batches:  app.coordinator,
		Pages:    loader,
		Discover: discoverer,
		Search:   searcher,
		Halt:     app.halt,
	}, logger)
	if err != nil {
		return nil, err
	}

	app.work = task.NewQueueManager(task.QueueManagerConfig{
		Name:      "work",
		QueueSize: cfg.Queue.QueueSize,
		PoolSize:  cfg.Queue.WorkPoolSize,
	}, dispatcher, logger)
	app.search = task.NewQueueManager(task.QueueManagerConfig{
		Name:      "search",
		QueueSize: cfg.Queue.QueueSize,
		PoolSize:  cfg.Queue.SearchPoolSize,
	}, dispatcher, logger)

	ingestor := task.NewIngestor(cfg.Worker.ID, cfg.Worker.Suites, app.work, app.search, logger)
	app.emitter = events.NewInMemoryEventEmitter(logger)
	app.emitter.RegisterHandler(ingestor, events.KindInsert, events.KindUpdate)

	app.subscriber, err = app.newSubscriber()
	if err != nil {
		return nil, err
	}

	app.reaper = task.NewReaper(taskStore, ledgerStore, ingestor, cfg.Worker.ID, cfg.Reaper, logger)

	logger.Info("worker initialized",
		slog.Any("suites", cfg.Worker.Suites),
		slog.String("events", cfg.Events.Source),
		slog.String("dna", cfg.DNA.Source))
	return app, nil
}

func (app *application) dnaSource() (batch.DNASource, error) {
	switch app.config.DNA.Source {
	case "file":
		src, err := dna.LoadFile(app.config.DNA.File)
		if err != nil {
			return nil, err
		}
		return src, nil
	case "edge":
		return supabase.NewFunctions(app.config.Supabase.URL, app.config.Supabase.Key, app.session,
			nil, edgeAttempts, time.Second, app.logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown dna source %q", domain.ErrValidation, app.config.DNA.Source)
	}
}

func (app *application) newSubscriber() (events.Subscriber, error) {
	switch app.config.Events.Source {
	case "postgres":
		return postgres.NewListener(app.config.Database.URL, app.config.Events.Channel, app.logger), nil
	case "realtime":
		client, err := realtime.NewClient(realtime.Config{
			URL:    app.config.Supabase.URL,
			APIKey: app.config.Supabase.Key,
			Table:  "task",
			Token:  app.session.AccessToken,
		}, app.logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("%w: unknown events source %q", domain.ErrValidation, app.config.Events.Source)
	}
}

// Run starts the queue managers, the subscription, the reaper and the
// status server, and blocks until a halt task, a signal or a fatal error.
// In-flight tasks finish before Run returns.
func (app *application) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	app.mu.Lock()
	app.cancel = cancel
	app.mu.Unlock()

	// Tasks keep running after the run context ends so a halt or signal
	// does not interrupt them.
	taskCtx, cancelTasks := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelTasks()

	if err := app.work.Start(taskCtx); err != nil {
		return fmt.Errorf("failed to start work queue: %w", err)
	}
	if err := app.search.Start(taskCtx); err != nil {
		return fmt.Errorf("failed to start search queue: %w", err)
	}

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return app.subscriber.Subscribe(gctx, app.emitter)
	})
	g.Go(func() error {
		return app.reaper.Run(gctx)
	})
	if app.config.Status.Addr != "" {
		app.serveStatus(gctx, g)
	}
	g.Go(func() error {
		<-gctx.Done()
		app.work.Stop()
		app.search.Stop()
		return nil
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		app.logger.Error("worker stopped on error", slog.String("error", err.Error()))
	}

	app.drain()
	app.cleanup()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (app *application) serveStatus(ctx context.Context, g *errgroup.Group) {
	handler := api.NewStatusHandler(app.config.Worker.ID, app.coordinator, app.work, app.search)
	server := &http.Server{
		Addr:              app.config.Status.Addr,
		Handler:           api.NewRouter(handler, app.logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		app.logger.Info("status server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("status server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
}

// halt is called by the dispatcher from a worker goroutine, so it must not
// wait for the queues to drain.
func (app *application) halt(ctx context.Context, body *domain.HaltBody) {
	app.logger.Info("halting worker", slog.String("reason", body.Reason))
	app.work.Stop()
	app.search.Stop()

	app.mu.Lock()
	cancel := app.cancel
	app.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (app *application) drain() {
	app.work.Stop()
	app.search.Stop()

	done := make(chan struct{})
	go func() {
		app.work.Wait()
		app.search.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		app.logger.Warn("gave up waiting for in-flight tasks", slog.Duration("timeout", drainTimeout))
	}
}

// cleanup releases the session and the database.
func (app *application) cleanup() {
	if app.session != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := app.session.SignOut(ctx); err != nil {
			app.logger.Warn("failed to sign out", slog.String("error", err.Error()))
		}
		cancel()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", slog.String("error", err.Error()))
		}
	}

	app.logger.Info("worker shutdown completed")
}

// hostname returns the lower-cased machine name used to address project
// database servers, falling back to fallback.
func hostname(fallback string) string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return fallback
	}
	return strings.ToLower(h)
}

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rbhughes/old-purrio-geographix/internal/config"
	"github.com/rbhughes/old-purrio-geographix/internal/domain"
	"github.com/rbhughes/old-purrio-geographix/internal/platform/postgres"
	"github.com/rbhughes/old-purrio-geographix/internal/platform/realtime"
	"github.com/rbhughes/old-purrio-geographix/internal/platform/supabase"
	"github.com/rbhughes/old-purrio-geographix/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newQueue(name string) *task.QueueManager {
	return task.NewQueueManager(task.QueueManagerConfig{Name: name, QueueSize: 4, PoolSize: 1},
		task.HandlerFunc(func(context.Context, *domain.Task) {}), testLogger())
}

func TestHaltStopsQueuesAndCancels(t *testing.T) {
	app := &application{
		config: &config.Config{},
		logger: testLogger(),
		work:   newQueue("work"),
		search: newQueue("search"),
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app.cancel = cancel

	require.NoError(t, app.work.Start(context.Background()))

	app.halt(context.Background(), &domain.HaltBody{Suite: "geographix", Reason: "test"})

	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.ErrorIs(t, app.work.Enqueue(&domain.Task{ID: 1}), task.ErrQueueClosed)
	assert.ErrorIs(t, app.search.Enqueue(&domain.Task{ID: 2}), task.ErrQueueClosed)

	select {
	case <-app.work.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("work queue did not stop")
	}
	select {
	case <-app.search.Done():
	case <-time.After(time.Second):
		t.Fatal("unstarted search queue did not report done")
	}
}

func TestDNASourceFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dna.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
suites:
  geographix:
    well:
      select: SELECT w.uwi AS w_uwi FROM well w
      asset_id_keys: [w_uwi]
`), 0o600))

	app := &application{
		config: &config.Config{DNA: config.DNAConfig{Source: "file", File: path}},
		logger: testLogger(),
	}
	src, err := app.dnaSource()
	require.NoError(t, err)

	d, err := src.FetchDNA(context.Background(), "geographix", "well")
	require.NoError(t, err)
	assert.Equal(t, []string{"w_uwi"}, d.AssetIDKeys)

	app.config.DNA.File = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = app.dnaSource()
	assert.Error(t, err)
}

func TestDNASourceFromEdge(t *testing.T) {
	app := &application{
		config:  &config.Config{DNA: config.DNAConfig{Source: "edge"}, Supabase: config.SupabaseConfig{URL: "http://127.0.0.1:1", Key: "k"}},
		logger:  testLogger(),
		session: supabase.NewSession("http://127.0.0.1:1", "k", nil, testLogger()),
	}
	src, err := app.dnaSource()
	require.NoError(t, err)
	assert.IsType(t, &supabase.Functions{}, src)
}

func TestNewSubscriber(t *testing.T) {
	app := &application{
		config: &config.Config{
			Database: config.DatabaseConfig{URL: "postgres://localhost/purr"},
			Events:   config.EventsConfig{Source: "postgres", Channel: "task_events"},
			Supabase: config.SupabaseConfig{URL: "https://abc.supabase.co", Key: "anon"},
		},
		logger:  testLogger(),
		session: supabase.NewSession("https://abc.supabase.co", "anon", nil, testLogger()),
	}

	sub, err := app.newSubscriber()
	require.NoError(t, err)
	assert.IsType(t, &postgres.Listener{}, sub)

	app.config.Events.Source = "realtime"
	sub, err = app.newSubscriber()
	require.NoError(t, err)
	assert.IsType(t, &realtime.Client{}, sub)

	app.config.Events.Source = "carrier-pigeon"
	_, err = app.newSubscriber()
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSlogGooseLogger(t *testing.T) {
	var buf bytes.Buffer
	l := &slogGooseLogger{logger: slog.New(slog.NewTextHandler(&buf, nil))}

	l.Printf("OK   %s", "00001_init.sql")
	l.Fatalf("failed %d", 1)

	assert.Contains(t, buf.String(), `level=INFO msg="OK   00001_init.sql"`)
	assert.Contains(t, buf.String(), `level=ERROR msg="failed 1"`)
}

func TestMigrateArgs(t *testing.T) {
	assert.NoError(t, migrateCmd.Args(migrateCmd, []string{"up"}))
	assert.NoError(t, migrateCmd.Args(migrateCmd, []string{"status"}))
	assert.Error(t, migrateCmd.Args(migrateCmd, []string{"sideways"}))
	assert.Error(t, migrateCmd.Args(migrateCmd, nil))
}

func TestHostnameFallback(t *testing.T) {
	h := hostname("fallback")
	assert.NotEmpty(t, h)
	assert.Equal(t, strings.ToLower(h), h)
}

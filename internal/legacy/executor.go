package legacy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rbhughes/old-purrio-geographix/internal/config"
	"github.com/rbhughes/old-purrio-geographix/internal/domain"
	"github.com/rbhughes/old-purrio-geographix/internal/platform/logger"
	"github.com/rbhughes/old-purrio-geographix/internal/redact"
	"github.com/sethvargo/go-retry"
)

// Row maps column names to values for one result row.
type Row = map[string]any

// ErrDatabaseInUse is returned when the database stayed locked by another
// process after every attempt.
var ErrDatabaseInUse = errors.New("legacy database in use")

// lockMessage is the SQL Anywhere error text for a file already served
// under another name.
const lockMessage = "database name not unique"

// Opener opens a database handle for a connection string.
type Opener func(driver, dsn string) (*sql.DB, error)

// Executor runs statements against legacy databases.
type Executor struct {
	driver   string
	attempts uint64
	delay    time.Duration
	open     Opener
	dsn      func(domain.Conn) string
	logger   *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithOpener replaces sql.Open.
func WithOpener(open Opener) Option {
	return func(e *Executor) { e.open = open }
}

// WithDSN replaces the ODBC connection string builder.
func WithDSN(fn func(domain.Conn) string) Option {
	return func(e *Executor) { e.dsn = fn }
}

// NewExecutor creates an Executor from cfg.
func NewExecutor(cfg config.LegacyConfig, logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	e := &Executor{
		driver:   cfg.Driver,
		attempts: uint64(attempts),
		delay:    cfg.RetryDelay,
		open:     sql.Open,
		dsn:      domain.Conn.ConnectionString,
		logger:   logger.With(slog.String("component", "legacy_executor")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Query runs one statement and returns its rows.
func (e *Executor) Query(ctx context.Context, conn domain.Conn, stmt string) ([]Row, error) {
	results, err := e.QueryMany(ctx, conn, []string{stmt})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// QueryMany runs stmts in order on one connection and returns one result
// set per statement. On the lock condition the whole batch is retried
// without the file path, up to the configured attempt count.
func (e *Executor) QueryMany(ctx context.Context, conn domain.Conn, stmts []string) ([][]Row, error) {
	log := logger.FromContextOrDefault(ctx, e.logger)

	backoff := retry.WithMaxRetries(e.attempts-1, retry.NewConstant(max(e.delay, time.Millisecond)))

	current := conn
	attempt := 0
	var results [][]Row
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		var err error
		results, err = e.run(ctx, current, stmts)
		if err == nil {
			return nil
		}
		if !IsDatabaseInUse(err) {
			return err
		}

		log.Warn("legacy database in use, retrying by logical name",
			slog.String("dbn", current.LogicalName),
			slog.Int("attempt", attempt),
			slog.String("error", redact.Error(err)))
		current = current.WithoutFilePath()
		return retry.RetryableError(err)
	})
	if err != nil {
		if IsDatabaseInUse(err) {
			return nil, fmt.Errorf("%w after %d attempts: %v", ErrDatabaseInUse, attempt, err)
		}
		return nil, err
	}
	return results, nil
}

func (e *Executor) run(ctx context.Context, conn domain.Conn, stmts []string) (results [][]Row, err error) {
	db, err := e.open(e.driver, e.dsn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to open legacy connection: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close legacy connection: %w", cerr)
		}
	}()

	// One physical connection keeps the statements in a single session.
	db.SetMaxOpenConns(1)
	c, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to legacy database: %w", err)
	}
	defer func() { _ = c.Close() }()

	results = make([][]Row, 0, len(stmts))
	for i, stmt := range stmts {
		rows, err := queryRows(ctx, c, stmt)
		if err != nil {
			return nil, fmt.Errorf("statement %d failed: %w", i, err)
		}
		results = append(results, rows)
	}
	return results, nil
}

func queryRows(ctx context.Context, c *sql.Conn, stmt string) ([]Row, error) {
	rows, err := c.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// IsDatabaseInUse reports whether err is the lock condition.
func IsDatabaseInUse(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), lockMessage)
}

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rbhughes/old-purrio-geographix/internal/events"
	"github.com/sethvargo/go-retry"
)

// Listener delivers task change events from a Postgres NOTIFY channel. It
// holds one dedicated connection and reconnects with capped exponential
// backoff when the connection drops.
type Listener struct {
	url     string
	channel string
	logger  *slog.Logger

	// MaxBackoff caps the delay between reconnect attempts.
	MaxBackoff time.Duration
}

// NewListener creates a Listener for channel on the database at url.
func NewListener(url, channel string, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		url:        url,
		channel:    channel,
		logger:     logger.With(slog.String("component", "pg_listener"), slog.String("channel", channel)),
		MaxBackoff: 30 * time.Second,
	}
}

var _ events.Subscriber = (*Listener)(nil)

// Subscribe implements events.Subscriber. It returns nil when ctx is done.
func (l *Listener) Subscribe(ctx context.Context, handler events.EventHandler) error {
	for {
		conn, err := l.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		err = l.listen(ctx, conn, handler)
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = conn.Close(closeCtx)
		cancel()

		if ctx.Err() != nil {
			return nil
		}
		l.logger.Warn("notification stream interrupted, reconnecting", slog.String("error", err.Error()))
	}
}

func (l *Listener) connect(ctx context.Context) (*pgx.Conn, error) {
	backoff := retry.WithCappedDuration(l.MaxBackoff, retry.NewExponential(500*time.Millisecond))

	var conn *pgx.Conn
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, err := pgx.Connect(ctx, l.url)
		if err != nil {
			l.logger.Warn("failed to connect for LISTEN", slog.String("error", err.Error()))
			return retry.RetryableError(err)
		}
		if _, err := c.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
			_ = c.Close(ctx)
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", l.channel, err)
	}

	l.logger.Info("listening for task changes")
	return conn, nil
}

func (l *Listener) listen(ctx context.Context, conn *pgx.Conn, handler events.EventHandler) error {
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}

		event, err := events.ParseNotification([]byte(n.Payload))
		if err != nil {
			l.logger.Warn("dropping notification", slog.String("error", err.Error()))
			continue
		}
		if event.Truncated {
			if err := l.reload(ctx, conn, event); err != nil {
				l.logger.Warn("dropping truncated notification", slog.String("error", err.Error()))
				continue
			}
		}

		if err := handler.HandleEvent(ctx, event); err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Error("event handler failed",
				slog.String("event_id", event.ID.String()),
				slog.String("error", err.Error()))
		}
	}
}

// reload replaces the record of a truncated event with the full row.
func (l *Listener) reload(ctx context.Context, conn *pgx.Conn, event *events.ChangeEvent) error {
	var ref struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(event.Record, &ref); err != nil {
		return fmt.Errorf("truncated record has no id: %w", err)
	}

	var raw []byte
	err := conn.QueryRow(ctx, `SELECT row_to_json(t) FROM task t WHERE t.id = $1`, ref.ID).Scan(&raw)
	if err != nil {
		return fmt.Errorf("failed to reload task %d: %w", ref.ID, err)
	}
	event.Record = raw
	event.Truncated = false
	return nil
}

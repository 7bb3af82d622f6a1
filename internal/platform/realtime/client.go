package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rbhughes/old-purrio-geographix/internal/events"
	"github.com/sethvargo/go-retry"
)

// Phoenix channel events used by the realtime server.
const (
	eventJoin      = "phx_join"
	eventReply     = "phx_reply"
	eventError     = "phx_error"
	eventClose     = "phx_close"
	eventHeartbeat = "heartbeat"
	eventChanges   = "postgres_changes"
)

// ErrChannelRejected is returned when the server refuses or closes the
// channel.
var ErrChannelRejected = errors.New("realtime channel rejected")

// message is a Phoenix vsn 1.0.0 frame.
type message struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
}

type reply struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

// TokenFunc returns the current access token sent with the join, or "" for
// anonymous access.
type TokenFunc func() string

// Config configures a Client.
type Config struct {
	// URL is the project URL, e.g. https://abc.supabase.co
	URL string

	// APIKey is the anon key sent as the apikey query parameter
	APIKey string

	// Table is the watched table in the public schema
	Table string

	// Token supplies the user access token for row level security
	Token TokenFunc

	// Heartbeat overrides the 30s keepalive interval
	Heartbeat time.Duration

	// MaxBackoff caps the delay between reconnect attempts
	MaxBackoff time.Duration
}

// Client delivers task change events from a realtime channel. It reconnects
// with capped exponential backoff when the socket drops or the channel is
// closed by the server.
type Client struct {
	endpoint  string
	topic     string
	token     TokenFunc
	heartbeat time.Duration
	backoff   time.Duration
	dialer    websocket.Dialer
	logger    *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	ref  int
}

var _ events.Subscriber = (*Client)(nil)

// NewClient creates a Client. The websocket endpoint is derived from
// cfg.URL.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	endpoint, err := Endpoint(cfg.URL, cfg.APIKey)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	table := cfg.Table
	if table == "" {
		table = "task"
	}
	heartbeat := cfg.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	backoff := cfg.MaxBackoff
	if backoff <= 0 {
		backoff = 30 * time.Second
	}
	token := cfg.Token
	if token == nil {
		token = func() string { return "" }
	}
	topic := "realtime:public:" + table

	return &Client{
		endpoint:  endpoint,
		topic:     topic,
		token:     token,
		heartbeat: heartbeat,
		backoff:   backoff,
		dialer:    websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:    logger.With(slog.String("component", "realtime"), slog.String("topic", topic)),
	}, nil
}

// Endpoint converts a project URL into its realtime websocket URL.
func Endpoint(projectURL, apiKey string) (string, error) {
	u, err := url.Parse(projectURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid realtime url %q", projectURL)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("invalid realtime url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/realtime/v1/websocket"
	q := url.Values{}
	q.Set("apikey", apiKey)
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Subscribe implements events.Subscriber. It returns nil when ctx is done.
func (c *Client) Subscribe(ctx context.Context, handler events.EventHandler) error {
	for {
		conn, err := c.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		err = c.session(ctx, conn, handler)
		c.closeConn()

		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("realtime channel interrupted, reconnecting", slog.String("error", err.Error()))
	}
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	backoff := retry.WithCappedDuration(c.backoff, retry.NewExponential(500*time.Millisecond))

	var conn *websocket.Conn
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		ws, _, err := c.dialer.DialContext(ctx, c.endpoint, nil)
		if err != nil {
			c.logger.Warn("failed to dial realtime", slog.String("error", err.Error()))
			return retry.RetryableError(err)
		}
		conn = ws
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to realtime: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.ref = 0
	c.mu.Unlock()
	return conn, nil
}

// session joins the channel and reads until the connection fails.
func (c *Client) session(ctx context.Context, conn *websocket.Conn, handler events.EventHandler) error {
	done := make(chan struct{})
	defer close(done)

	// Unblock ReadJSON when ctx is cancelled.
	go func() {
		select {
		case <-ctx.Done():
			c.closeConn()
		case <-done:
		}
	}()

	joinRef, err := c.join()
	if err != nil {
		return err
	}
	go c.keepAlive(done)

	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}

		switch msg.Event {
		case eventReply:
			if msg.Ref != joinRef {
				continue
			}
			var r reply
			if err := json.Unmarshal(msg.Payload, &r); err != nil {
				return fmt.Errorf("%w: unreadable join reply", ErrChannelRejected)
			}
			if r.Status != "ok" {
				return fmt.Errorf("%w: %s", ErrChannelRejected, string(r.Response))
			}
			c.logger.Info("subscribed to task changes")

		case eventError, eventClose:
			if msg.Topic == c.topic {
				return fmt.Errorf("%w: %s", ErrChannelRejected, msg.Event)
			}

		case string(events.KindInsert), string(events.KindUpdate), string(events.KindDelete):
			c.deliver(ctx, msg.Payload, handler)

		case eventChanges:
			var wrapped struct {
				Data json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal(msg.Payload, &wrapped); err != nil || len(wrapped.Data) == 0 {
				c.logger.Warn("dropping realtime message without data")
				continue
			}
			c.deliver(ctx, wrapped.Data, handler)
		}
	}
}

func (c *Client) deliver(ctx context.Context, payload []byte, handler events.EventHandler) {
	event, err := events.ParseNotification(payload)
	if err != nil {
		c.logger.Warn("dropping realtime message", slog.String("error", err.Error()))
		return
	}
	if err := handler.HandleEvent(ctx, event); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("event handler failed",
			slog.String("event_id", event.ID.String()),
			slog.String("error", err.Error()))
	}
}

func (c *Client) join() (string, error) {
	payload := map[string]any{
		"config": map[string]any{
			"postgres_changes": []map[string]string{
				{"event": "*", "schema": "public", "table": strings.TrimPrefix(c.topic, "realtime:public:")},
			},
		},
	}
	if tok := c.token(); tok != "" {
		payload["access_token"] = tok
	}
	return c.send(c.topic, eventJoin, payload)
}

func (c *Client) keepAlive(done <-chan struct{}) {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if _, err := c.send("phoenix", eventHeartbeat, struct{}{}); err != nil {
				c.logger.Warn("heartbeat failed", slog.String("error", err.Error()))
				c.closeConn()
				return
			}
		}
	}
}

// send writes one frame and returns its ref. Writes are serialized since
// the heartbeat runs on its own goroutine.
func (c *Client) send(topic, event string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return "", websocket.ErrCloseSent
	}
	c.ref++
	ref := fmt.Sprintf("%d", c.ref)
	if err := c.conn.WriteJSON(message{Topic: topic, Event: event, Payload: raw, Ref: ref}); err != nil {
		return "", err
	}
	return ref, nil
}

func (c *Client) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

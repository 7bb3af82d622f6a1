package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind is the row operation that produced a change event.
type Kind string

// Change event kinds
const (
	KindInsert Kind = "INSERT"
	KindUpdate Kind = "UPDATE"
	KindDelete Kind = "DELETE"
)

// ErrMalformedEvent is returned when a notification payload cannot be
// decoded into a ChangeEvent.
var ErrMalformedEvent = errors.New("malformed change event")

// ChangeEvent is a row change on the shared task table, delivered by a
// Subscriber. Record holds the new row as JSON.
type ChangeEvent struct {
	// ID is a unique identifier for this delivery
	ID uuid.UUID `json:"id"`

	// Type is the row operation
	Type Kind `json:"type"`

	// Table is the table the change happened on, when known
	Table string `json:"table,omitempty"`

	// Record is the changed row serialized as JSON
	Record json.RawMessage `json:"record"`

	// ReceivedAt is when the subscriber received the change
	ReceivedAt time.Time `json:"received_at"`

	// Truncated is set when the source dropped the record body to fit a
	// size limit; the subscriber must reload it before delivery.
	Truncated bool `json:"truncated,omitempty"`
}

// NewChangeEvent creates a ChangeEvent for record.
func NewChangeEvent(kind Kind, table string, record any) (*ChangeEvent, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	return &ChangeEvent{
		ID:         uuid.New(),
		Type:       kind,
		Table:      table,
		Record:     raw,
		ReceivedAt: time.Now(),
	}, nil
}

// ParseNotification decodes a `{"type": ..., "record": ...}` payload as
// produced by the task_notify trigger.
func ParseNotification(payload []byte) (*ChangeEvent, error) {
	var msg struct {
		Type      Kind            `json:"type"`
		Table     string          `json:"table"`
		Truncated bool            `json:"truncated"`
		Record    json.RawMessage `json:"record"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}
	return &ChangeEvent{
		ID:         uuid.New(),
		Type:       msg.Type,
		Table:      msg.Table,
		Record:     msg.Record,
		ReceivedAt: time.Now(),
		Truncated:  msg.Truncated,
	}, nil
}

// HasRecord reports whether the event carries a non-null record.
func (e *ChangeEvent) HasRecord() bool {
	return len(e.Record) > 0 && string(e.Record) != "null"
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *ChangeEvent) error
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(ctx context.Context, event *ChangeEvent) error

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *ChangeEvent) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows subscribers to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *ChangeEvent) error
}

// Subscriber delivers change events from an external source. Subscribe
// blocks, calling handler for each event on a single goroutine, until ctx
// is done or the subscription fails permanently.
type Subscriber interface {
	Subscribe(ctx context.Context, handler EventHandler) error
}

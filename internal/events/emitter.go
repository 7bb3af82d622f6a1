package events

import (
	"context"
	"log/slog"
	"sync"
)

type registration struct {
	handler EventHandler
	kinds   map[Kind]bool
}

func (r registration) wants(kind Kind) bool {
	return len(r.kinds) == 0 || r.kinds[kind]
}

// InMemoryEventEmitter fans change events out to registered handlers in
// process. It also satisfies EventHandler, so it can sit directly behind a
// Subscriber.
type InMemoryEventEmitter struct {
	registrations []registration
	mu            sync.RWMutex
	logger        *slog.Logger
}

// NewInMemoryEventEmitter creates an emitter with no handlers.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryEventEmitter{
		logger: logger.With(slog.String("component", "event_emitter")),
	}
}

// RegisterHandler adds handler for events of the given kinds, or for every
// kind when none are given.
func (e *InMemoryEventEmitter) RegisterHandler(handler EventHandler, kinds ...Kind) {
	reg := registration{handler: handler}
	if len(kinds) > 0 {
		reg.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			reg.kinds[k] = true
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.registrations = append(e.registrations, reg)
	e.logger.Debug("registered event handler",
		slog.Int("handler_count", len(e.registrations)),
		slog.Any("kinds", kinds))
}

// HandleEvent forwards to EmitEvent.
func (e *InMemoryEventEmitter) HandleEvent(ctx context.Context, event *ChangeEvent) error {
	return e.EmitEvent(ctx, event)
}

// EmitEvent delivers event to every handler registered for its kind, in
// registration order. A failing handler does not stop delivery; the first
// error is returned.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *ChangeEvent) error {
	e.mu.RLock()
	regs := make([]registration, len(e.registrations))
	copy(regs, e.registrations)
	e.mu.RUnlock()

	log := e.logger.With(
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.Type)))

	delivered := 0
	var firstErr error
	for i, reg := range regs {
		if !reg.wants(event.Type) {
			continue
		}
		delivered++
		if err := reg.handler.HandleEvent(ctx, event); err != nil {
			log.Error("handler failed to process event",
				slog.Int("handler_index", i),
				slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if delivered == 0 {
		log.Debug("no handler registered for event")
	}
	return firstErr
}

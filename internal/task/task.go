package task

import (
	"context"

	"github.com/rbhughes/old-purrio-geographix/internal/domain"
)

// Handler executes one task. Handlers report failure through the task's
// stored status, not a return value.
type Handler interface {
	Dispatch(ctx context.Context, t *domain.Task)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, t *domain.Task)

// Dispatch calls f.
func (f HandlerFunc) Dispatch(ctx context.Context, t *domain.Task) {
	f(ctx, t)
}

// Enqueuer accepts tasks without blocking.
type Enqueuer interface {
	Enqueue(t *domain.Task) error
}

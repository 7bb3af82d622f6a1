package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rbhughes/old-purrio-geographix/internal/api/middleware"
)

// NewRouter wires the status endpoints.
func NewRouter(h *StatusHandler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewTraceMiddleware(logger))

	r.Get("/healthz", h.Health)
	r.Get("/queues", h.Queues)
	r.Get("/batches/{batchID}", h.Batch)

	return r
}

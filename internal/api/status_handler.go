package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rbhughes/old-purrio-geographix/internal/api/shared"
	"github.com/rbhughes/old-purrio-geographix/internal/batch"
	"github.com/rbhughes/old-purrio-geographix/internal/task"
)

// QueueReporter exposes the state of one queue manager.
type QueueReporter interface {
	Stats() task.QueueStats
}

// BatchReporter reports the progress of a batch.
type BatchReporter interface {
	Progress(ctx context.Context, batchID string) (batch.Progress, error)
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Worker string `json:"worker"`
}

// StatusHandler serves the status endpoints.
type StatusHandler struct {
	workerID string
	queues   []QueueReporter
	batches  BatchReporter
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(workerID string, batches BatchReporter, queues ...QueueReporter) *StatusHandler {
	return &StatusHandler{workerID: workerID, queues: queues, batches: batches}
}

// Health handles GET /healthz.
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{Status: "ok", Worker: h.workerID})
}

// Queues handles GET /queues.
func (h *StatusHandler) Queues(w http.ResponseWriter, r *http.Request) {
	stats := make([]task.QueueStats, 0, len(h.queues))
	for _, q := range h.queues {
		stats = append(stats, q.Stats())
	}
	shared.RespondWithJSON(w, r, http.StatusOK, stats)
}

// Batch handles GET /batches/{batchID}.
func (h *StatusHandler) Batch(w http.ResponseWriter, r *http.Request) {
	batchID := strings.TrimSpace(chi.URLParam(r, "batchID"))
	if batchID == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "batch id is required")
		return
	}

	progress, err := h.batches.Progress(r.Context(), batchID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "failed to read batch progress", err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, progress)
}

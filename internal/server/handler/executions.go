package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// ExecutionHandler serves cycle execution summaries.
type ExecutionHandler struct {
	store  domain.ExecutionStore
	logger *slog.Logger
}

// NewExecutionHandler creates an ExecutionHandler.
func NewExecutionHandler(store domain.ExecutionStore, logger *slog.Logger) *ExecutionHandler {
	return &ExecutionHandler{store: store, logger: logger.With(slog.String("handler", "executions"))}
}

// ListRecent returns the newest executions, optionally for one cycle.
// GET /api/executions?cycle=&limit=
func (h *ExecutionHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultLimit, maxLimit)
	execs, err := h.store.ListRecent(r.Context(), r.URL.Query().Get("cycle"), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list executions failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	if execs == nil {
		execs = []domain.CycleExecution{}
	}
	writeJSON(w, http.StatusOK, execs)
}

// Get returns one execution by group id.
// GET /api/executions/{group_id}
func (h *ExecutionHandler) Get(w http.ResponseWriter, r *http.Request) {
	exec, err := h.store.GetByGroupID(r.Context(), r.PathValue("group_id"))
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "get execution failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to get execution")
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

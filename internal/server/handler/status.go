package handler

import (
	"net/http"

	"github.com/alanyoungcy/arbengine/internal/engine"
)

// StatusSource is anything that reports an engine status.
type StatusSource interface {
	Status() engine.Status
}

// StatusHandler serves the process mode and every engine's status.
type StatusHandler struct {
	mode    string
	engines []StatusSource
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, engines []StatusSource) *StatusHandler {
	return &StatusHandler{mode: mode, engines: engines}
}

// GetStatus responds with the mode and the engines' latest ticks.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	cycles := make([]engine.Status, 0, len(h.engines))
	for _, e := range h.engines {
		cycles = append(cycles, e.Status())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":   h.mode,
		"cycles": cycles,
	})
}

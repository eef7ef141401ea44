package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// BalanceHandler serves the engines' last published balances per venue.
type BalanceHandler struct {
	cache  domain.BalanceCache
	logger *slog.Logger
}

// NewBalanceHandler creates a BalanceHandler.
func NewBalanceHandler(cache domain.BalanceCache, logger *slog.Logger) *BalanceHandler {
	return &BalanceHandler{cache: cache, logger: logger.With(slog.String("handler", "balances"))}
}

// GetBalances returns the cached balances of one venue.
// GET /api/balances/{venue}
func (h *BalanceHandler) GetBalances(w http.ResponseWriter, r *http.Request) {
	venue := r.PathValue("venue")
	bal, ts, err := h.cache.GetBalances(r.Context(), venue)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no balances for "+venue)
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "get balances failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to get balances")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"venue":      venue,
		"balances":   bal,
		"updated_at": ts.UTC().Format(time.RFC3339Nano),
	})
}

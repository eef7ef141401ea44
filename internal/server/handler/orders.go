package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// OrderHandler serves persisted legs.
type OrderHandler struct {
	store  domain.OrderStore
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(store domain.OrderStore, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{store: store, logger: logger.With(slog.String("handler", "orders"))}
}

// ListOrders filters legs by status, venue and instrument key.
// GET /api/orders?status=NEW,PLAN&venue=&instrument=&limit=
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	filter := domain.OrderFilter{
		Venues:         queryList(r, "venue"),
		InstrumentKeys: queryList(r, "instrument"),
		Limit:          queryInt(r, "limit", defaultLimit, maxLimit),
	}
	for _, s := range queryList(r, "status") {
		st := domain.OrderStatus(s)
		if !st.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status "+s)
			return
		}
		filter.Statuses = append(filter.Statuses, st)
	}

	orders, err := h.store.Find(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "find orders failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	if orders == nil {
		orders = []domain.ArbitrageOrder{}
	}
	writeJSON(w, http.StatusOK, orders)
}

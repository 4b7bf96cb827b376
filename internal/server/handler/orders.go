package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/relaytaker/internal/domain"
	"github.com/alanyoungcy/relaytaker/internal/platform/relay"
)

// RelayService is the read side of the relay used by the API.
type RelayService interface {
	ListOrders(ctx context.Context, symbolA, symbolB string) ([]domain.Order, error)
	ListTradablePairs(ctx context.Context, symbolA string) ([]string, error)
}

// OrdersHandler serves order book and pair queries.
type OrdersHandler struct {
	relay  RelayService
	logger *slog.Logger
}

func NewOrdersHandler(relay RelayService, logger *slog.Logger) *OrdersHandler {
	return &OrdersHandler{relay: relay, logger: logger}
}

type listOrdersResponse struct {
	Orders []relay.APIOrder `json:"orders"`
}

// ListOrders returns orders selling symbol a for symbol b in relay JSON, so
// an entry can be posted back to /api/fills unchanged.
// GET /api/orders?a=ETH&b=ZRX
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orders, err := h.relay.ListOrders(r.Context(), q.Get("a"), q.Get("b"))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list orders failed", slog.String("error", err.Error()))
		writeError(w, statusFor(err), err.Error())
		return
	}

	out := make([]relay.APIOrder, 0, len(orders))
	for _, o := range orders {
		out = append(out, relay.APIOrderFromDomain(o))
	}
	writeJSON(w, http.StatusOK, listOrdersResponse{Orders: out})
}

// ListPairs returns the symbols tradable against token.
// GET /api/pairs?token=ETH
func (h *OrdersHandler) ListPairs(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.relay.ListTradablePairs(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list pairs failed", slog.String("error", err.Error()))
		writeError(w, statusFor(err), err.Error())
		return
	}
	if symbols == nil {
		symbols = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbols": symbols})
}

package admin

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lovemage/3c-morty-sub000/internal/handler"
	"github.com/lovemage/3c-morty-sub000/internal/httputil"
	"github.com/lovemage/3c-morty-sub000/internal/model"
	"github.com/lovemage/3c-morty-sub000/internal/store"
)

// --- List Orders ---

type ListOrdersHandler struct {
	store store.OrderStore
}

func NewListOrdersHandler(s store.OrderStore) *ListOrdersHandler {
	return &ListOrdersHandler{store: s}
}

type listOrdersResponse struct {
	Orders  []*model.ThirdPartyOrder `json:"orders"`
	Total   int                      `json:"total"`
	Page    int                      `json:"page"`
	PerPage int                      `json:"per_page"`
}

func (h *ListOrdersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	page, perPage, err := httputil.ParsePagination(r.URL.Query().Get("page"), r.URL.Query().Get("per_page"))
	if err != nil {
		handler.RespondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	filters := store.OrderFilters{Page: page, PerPage: perPage}
	if cs := r.URL.Query().Get("client_system"); cs != "" {
		filters.ClientSystem = &cs
	}
	if s := r.URL.Query().Get("status"); s != "" {
		status := model.OrderStatus(s)
		switch status {
		case model.OrderPending, model.OrderPaid, model.OrderExpired, model.OrderCancelled:
			filters.Status = &status
		default:
			handler.RespondError(w, http.StatusBadRequest, "invalid_request", "Unknown status filter")
			return
		}
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			handler.RespondError(w, http.StatusBadRequest, "invalid_request", "from must be RFC3339")
			return
		}
		filters.From = &t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			handler.RespondError(w, http.StatusBadRequest, "invalid_request", "to must be RFC3339")
			return
		}
		filters.To = &t
	}

	orders, total, err := h.store.ListOrders(r.Context(), filters)
	if err != nil {
		log.Error().Err(err).Msg("failed to list orders")
		handler.RespondError(w, http.StatusInternalServerError, "internal_error", "Failed to list orders")
		return
	}

	handler.RespondJSON(w, http.StatusOK, listOrdersResponse{
		Orders:  orders,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	})
}

// --- Get Order ---

type GetOrderHandler struct {
	orders       store.OrderStore
	transactions store.TransactionStore
}

func NewGetOrderHandler(orders store.OrderStore, transactions store.TransactionStore) *GetOrderHandler {
	return &GetOrderHandler{orders: orders, transactions: transactions}
}

type getOrderResponse struct {
	Order        *model.ThirdPartyOrder        `json:"order"`
	Transactions []*model.ProcessorTransaction `json:"transactions"`
}

func (h *GetOrderHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		handler.RespondError(w, http.StatusBadRequest, "invalid_request", "Invalid order ID")
		return
	}

	order, err := h.orders.GetOrderByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			handler.RespondError(w, http.StatusNotFound, "not_found", "Order not found")
			return
		}
		log.Error().Err(err).Str("order_id", id.String()).Msg("failed to load order")
		handler.RespondError(w, http.StatusInternalServerError, "internal_error", "Failed to load order")
		return
	}

	txns, err := h.transactions.ListTransactionsByOrder(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("order_id", id.String()).Msg("failed to load transactions")
		handler.RespondError(w, http.StatusInternalServerError, "internal_error", "Failed to load transactions")
		return
	}

	handler.RespondJSON(w, http.StatusOK, getOrderResponse{Order: order, Transactions: txns})
}

// --- Cancel Order ---

type CancelOrderHandler struct {
	store store.OrderStore
}

func NewCancelOrderHandler(s store.OrderStore) *CancelOrderHandler {
	return &CancelOrderHandler{store: s}
}

func (h *CancelOrderHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		handler.RespondError(w, http.StatusBadRequest, "invalid_request", "Invalid order ID")
		return
	}

	order, err := h.store.CancelOrder(r.Context(), id)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		handler.RespondError(w, http.StatusNotFound, "not_found", "Order not found")
		return
	case errors.Is(err, store.ErrOrderNotPayable):
		handler.RespondError(w, http.StatusConflict, "invalid_status", "Only pending orders can be cancelled")
		return
	default:
		log.Error().Err(err).Str("order_id", id.String()).Msg("failed to cancel order")
		handler.RespondError(w, http.StatusInternalServerError, "internal_error", "Failed to cancel order")
		return
	}

	log.Info().Str("order_id", order.ID.String()).Str("admin", adminEmail(r)).Msg("order cancelled by operator")
	handler.RespondJSON(w, http.StatusOK, order)
}

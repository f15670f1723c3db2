package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lovemage/3c-morty-sub000/internal/middleware"
	"github.com/lovemage/3c-morty-sub000/internal/model"
	"github.com/lovemage/3c-morty-sub000/internal/service"
)

type OrderStatusHandler struct {
	svc *service.OrderService
}

func NewOrderStatusHandler(svc *service.OrderService) *OrderStatusHandler {
	return &OrderStatusHandler{svc: svc}
}

type OrderStatusResponse struct {
	OrderID         string         `json:"order_id"`
	ExternalOrderID string         `json:"external_order_id"`
	Status          string         `json:"status"`
	Amount          int64          `json:"amount"`
	Description     string         `json:"description"`
	PaymentURL      string         `json:"payment_url,omitempty"`
	Barcode         *model.Barcode `json:"barcode,omitempty"`
	BarcodeStatus   string         `json:"barcode_status"`
	ExpireAt        time.Time      `json:"expire_at"`
	PaidAt          *time.Time     `json:"paid_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

func (h *OrderStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	apiKey := middleware.GetAPIKey(r.Context())
	if apiKey == nil {
		RespondError(w, http.StatusUnauthorized, "invalid_api_key", "Missing API key")
		return
	}

	externalOrderID := chi.URLParam(r, "externalOrderID")
	if externalOrderID == "" {
		RespondError(w, http.StatusBadRequest, "invalid_request", "Missing external order id")
		return
	}

	order, err := h.svc.Status(r.Context(), apiKey, externalOrderID)
	if err != nil {
		service.RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, OrderStatusResponse{
		OrderID:         order.ID.String(),
		ExternalOrderID: order.ExternalOrderID,
		Status:          string(order.Status),
		Amount:          order.Amount,
		Description:     order.Description,
		PaymentURL:      order.PaymentURL,
		Barcode:         order.Barcode,
		BarcodeStatus:   string(order.BarcodeStatus),
		ExpireAt:        order.ExpireAt,
		PaidAt:          order.PaidAt,
		CreatedAt:       order.CreatedAt,
	})
}

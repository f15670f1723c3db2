package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/lovemage/3c-morty-sub000/internal/middleware"
	"github.com/lovemage/3c-morty-sub000/internal/service"
	"github.com/lovemage/3c-morty-sub000/internal/validation"
)

type CreateOrderHandler struct {
	svc *service.OrderService
}

func NewCreateOrderHandler(svc *service.OrderService) *CreateOrderHandler {
	return &CreateOrderHandler{svc: svc}
}

type CreateOrderRequest struct {
	ExternalOrderID string `json:"external_order_id" validate:"required"`
	Amount          int64  `json:"amount" validate:"required,gt=0"`
	Description     string `json:"description" validate:"required,max=200"`
	CallbackURL     string `json:"callback_url,omitempty" validate:"omitempty,url"`
}

type CreateOrderResponse struct {
	OrderID         string            `json:"order_id"`
	ExternalOrderID string            `json:"external_order_id"`
	Status          string            `json:"status"`
	Amount          int64             `json:"amount"`
	MerchantTradeNo string            `json:"merchant_trade_no"`
	PaymentURL      string            `json:"payment_url,omitempty"`
	CheckoutURL     string            `json:"checkout_url"`
	CheckoutParams  map[string]string `json:"checkout_params"`
	ExpireAt        time.Time         `json:"expire_at"`
}

func (h *CreateOrderHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	apiKey := middleware.GetAPIKey(r.Context())
	if apiKey == nil {
		RespondError(w, http.StatusUnauthorized, "invalid_api_key", "Missing API key")
		return
	}

	var req CreateOrderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if err := validation.Struct(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := h.svc.Create(r.Context(), apiKey, service.CreateOrderInput{
		ExternalOrderID: req.ExternalOrderID,
		Amount:          req.Amount,
		Description:     req.Description,
		CallbackURL:     req.CallbackURL,
	})
	if err != nil {
		service.RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusCreated, CreateOrderResponse{
		OrderID:         result.Order.ID.String(),
		ExternalOrderID: result.Order.ExternalOrderID,
		Status:          string(result.Order.Status),
		Amount:          result.Order.Amount,
		MerchantTradeNo: result.MerchantTradeNo,
		PaymentURL:      result.Order.PaymentURL,
		CheckoutURL:     result.CheckoutURL,
		CheckoutParams:  result.CheckoutParams,
		ExpireAt:        result.Order.ExpireAt,
	})
}

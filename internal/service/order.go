package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lovemage/3c-morty-sub000/internal/ecpay"
	"github.com/lovemage/3c-morty-sub000/internal/model"
	"github.com/lovemage/3c-morty-sub000/internal/store"
	"github.com/lovemage/3c-morty-sub000/internal/validation"
)

// tradeNoAttempts bounds retries on a merchant trade number collision.
const tradeNoAttempts = 3

// ProcessorClient submits a signed checkout parameter set to the processor.
type ProcessorClient interface {
	Submit(ctx context.Context, params map[string]string) (*ecpay.SubmitResult, error)
}

// AmountBounds are the configured order amount limits in the minor currency
// unit.
type AmountBounds struct {
	Min int64
	Max int64
}

// OrderService drives payment-creation and status queries for client systems.
type OrderService struct {
	store         store.Store
	builder       *ecpay.Builder
	client        ProcessorClient
	bounds        AmountBounds
	checkoutURL   string
	submitTimeout time.Duration
}

func NewOrderService(st store.Store, builder *ecpay.Builder, client ProcessorClient, bounds AmountBounds, checkoutURL string, submitTimeout time.Duration) *OrderService {
	return &OrderService{
		store:         st,
		builder:       builder,
		client:        client,
		bounds:        bounds,
		checkoutURL:   checkoutURL,
		submitTimeout: submitTimeout,
	}
}

// CreateOrderInput contains a validated payment-creation request.
type CreateOrderInput struct {
	ExternalOrderID string
	Amount          int64
	Description     string
	CallbackURL     string
}

// CreateOrderResult contains the stored order plus the processor-submission
// data handed back to the client system.
type CreateOrderResult struct {
	Order           *model.ThirdPartyOrder
	MerchantTradeNo string
	CheckoutURL     string
	CheckoutParams  map[string]string
}

// Create validates the request, persists the order and its processor
// transaction, then submits the checkout to the processor. A duplicate
// (external order id, client system) pair maps to a 409 so retrying clients
// can treat it as already accepted.
func (s *OrderService) Create(ctx context.Context, apiKey *model.APIKey, input CreateOrderInput) (*CreateOrderResult, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := &model.ThirdPartyOrder{
		ExternalOrderID: input.ExternalOrderID,
		ClientSystem:    apiKey.ClientSystem,
		Amount:          input.Amount,
		Description:     input.Description,
		CallbackURL:     input.CallbackURL,
		Status:          model.OrderPending,
		BarcodeStatus:   model.BarcodePending,
		ExpireAt:        now.AddDate(0, 0, s.builder.StoreExpireDays()),
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		if errors.Is(err, store.ErrDuplicateOrder) {
			return nil, NewConflict("duplicate_order", "An order with this external order id already exists")
		}
		log.Error().Err(err).Str("external_order_id", input.ExternalOrderID).Msg("failed to create order")
		return nil, NewInternal("internal_error", "Failed to create order")
	}

	req, err := s.createTransaction(ctx, order, now)
	if err != nil {
		return nil, err
	}

	// Submission is bounded and never retried here; on timeout the client
	// retries and the idempotency key turns that into a 409.
	submitCtx, cancel := context.WithTimeout(ctx, s.submitTimeout)
	defer cancel()

	result, err := s.client.Submit(submitCtx, req.Params)
	if err != nil {
		if errors.Is(err, ecpay.ErrTimeout) {
			log.Warn().Str("merchant_trade_no", req.MerchantTradeNo).Msg("processor submit timed out")
			return nil, NewGatewayTimeout("processor_timeout", "Payment processor did not respond in time; retry the request")
		}
		log.Error().Err(err).Str("merchant_trade_no", req.MerchantTradeNo).Msg("processor submit failed")
		return nil, NewUnavailable("processor_error", "Payment processor rejected the submission")
	}

	if err := s.store.RecordSubmitResponse(ctx, req.MerchantTradeNo, &result.RtnCode, result.RtnMsg, result.Raw); err != nil {
		log.Error().Err(err).Str("merchant_trade_no", req.MerchantTradeNo).Msg("failed to record submit response")
	}
	if result.PaymentURL != "" {
		order.PaymentURL = result.PaymentURL
		if err := s.store.SetOrderPaymentURL(ctx, order.ID, result.PaymentURL); err != nil {
			log.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to store payment url")
		}
	}

	return &CreateOrderResult{
		Order:           order,
		MerchantTradeNo: req.MerchantTradeNo,
		CheckoutURL:     s.checkoutURL,
		CheckoutParams:  req.Params,
	}, nil
}

// Status returns the order identified by the caller's client system and its
// own external order id.
func (s *OrderService) Status(ctx context.Context, apiKey *model.APIKey, externalOrderID string) (*model.ThirdPartyOrder, error) {
	order, err := s.store.GetOrderByExternalID(ctx, apiKey.ClientSystem, externalOrderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NewNotFound("not_found", "Order not found")
		}
		log.Error().Err(err).Str("external_order_id", externalOrderID).Msg("failed to load order")
		return nil, NewInternal("internal_error", "Failed to load order")
	}
	return order, nil
}

func (s *OrderService) validateInput(input CreateOrderInput) error {
	if err := validation.ExternalOrderID(input.ExternalOrderID); err != nil {
		return NewBadRequest("invalid_request", err.Error())
	}
	if input.Amount < s.bounds.Min || input.Amount > s.bounds.Max {
		return NewBadRequest("invalid_amount",
			fmt.Sprintf("amount must be between %d and %d", s.bounds.Min, s.bounds.Max))
	}
	if input.Description == "" {
		return NewBadRequest("invalid_request", "description is required")
	}
	if input.CallbackURL != "" {
		u, err := url.Parse(input.CallbackURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return NewBadRequest("invalid_request", "callback_url must be an absolute http(s) URL")
		}
	}
	return nil
}

// createTransaction builds a signed request and persists its transaction row
// before the processor is contacted, retrying on a trade number collision.
func (s *OrderService) createTransaction(ctx context.Context, order *model.ThirdPartyOrder, now time.Time) (*ecpay.BarcodeRequest, error) {
	for attempt := 0; attempt < tradeNoAttempts; attempt++ {
		req, err := s.builder.BuildBarcodeRequest(order, now)
		if err != nil {
			log.Error().Err(err).Msg("failed to build barcode request")
			return nil, NewInternal("internal_error", "Failed to build payment request")
		}

		err = s.store.CreateTransaction(ctx, &model.ProcessorTransaction{
			OrderID:         order.ID,
			MerchantTradeNo: req.MerchantTradeNo,
			Amount:          order.Amount,
		})
		if err == nil {
			return req, nil
		}
		if !errors.Is(err, store.ErrDuplicateTradeNo) {
			log.Error().Err(err).Str("merchant_trade_no", req.MerchantTradeNo).Msg("failed to create transaction")
			return nil, NewInternal("internal_error", "Failed to create payment request")
		}
		log.Warn().Str("merchant_trade_no", req.MerchantTradeNo).Msg("merchant trade number collision, regenerating")
	}
	return nil, NewInternal("trade_no_exhausted", "Could not allocate a unique merchant trade number")
}

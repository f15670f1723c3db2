package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lovemage/3c-morty-sub000/internal/ecpay"
	"github.com/lovemage/3c-morty-sub000/internal/model"
)

type fakeProcessor struct {
	result  *ecpay.SubmitResult
	err     error
	submits int
}

func (f *fakeProcessor) Submit(ctx context.Context, params map[string]string) (*ecpay.SubmitResult, error) {
	f.submits++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func testOrderService(st *fakeStore, proc *fakeProcessor) *OrderService {
	builder := ecpay.NewBuilder(
		"2000132", "key12345", "iv123456",
		"https://pay.example.com/callbacks/return",
		"https://pay.example.com/callbacks/payment-info",
		"MT", 7,
	)
	return NewOrderService(st, builder, proc,
		AmountBounds{Min: 30, Max: 20000},
		"https://processor.example.com/checkout", 10*time.Second)
}

func testAPIKey() *model.APIKey {
	return &model.APIKey{ClientSystem: "shop-a", Active: true}
}

func validInput() CreateOrderInput {
	return CreateOrderInput{
		ExternalOrderID: "ORD-1001",
		Amount:          1500,
		Description:     "game points",
	}
}

func TestCreateOrder(t *testing.T) {
	st := newFakeStore()
	proc := &fakeProcessor{result: &ecpay.SubmitResult{RtnCode: 1, RtnMsg: "Succeeded", PaymentURL: "https://processor.example.com/pay/abc"}}
	svc := testOrderService(st, proc)

	result, err := svc.Create(context.Background(), testAPIKey(), validInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Order.Status != model.OrderPending {
		t.Fatalf("new order must be pending, got %s", result.Order.Status)
	}
	if result.Order.ClientSystem != "shop-a" {
		t.Fatalf("client system must come from the API key, got %s", result.Order.ClientSystem)
	}
	if result.MerchantTradeNo == "" {
		t.Fatal("expected a merchant trade number")
	}
	if result.Order.PaymentURL != "https://processor.example.com/pay/abc" {
		t.Fatalf("unexpected payment url: %s", result.Order.PaymentURL)
	}
	if result.CheckoutParams["CheckMacValue"] == "" {
		t.Fatal("checkout params must be signed")
	}
	if len(st.transactions) != 1 {
		t.Fatalf("expected one transaction row, got %d", len(st.transactions))
	}
	if proc.submits != 1 {
		t.Fatalf("expected one processor submission, got %d", proc.submits)
	}
}

func TestCreateOrderDuplicateIsConflict(t *testing.T) {
	st := newFakeStore()
	proc := &fakeProcessor{result: &ecpay.SubmitResult{RtnCode: 1}}
	svc := testOrderService(st, proc)

	if _, err := svc.Create(context.Background(), testAPIKey(), validInput()); err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	_, err := svc.Create(context.Background(), testAPIKey(), validInput())
	var svcErr *Error
	if !errors.As(err, &svcErr) || svcErr.Kind != ErrConflict || svcErr.Code != "duplicate_order" {
		t.Fatalf("expected duplicate_order conflict, got %v", err)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	st := newFakeStore()
	proc := &fakeProcessor{result: &ecpay.SubmitResult{RtnCode: 1}}
	svc := testOrderService(st, proc)

	for _, tc := range []struct {
		name   string
		mutate func(*CreateOrderInput)
	}{
		{"amount below minimum", func(in *CreateOrderInput) { in.Amount = 29 }},
		{"amount above maximum", func(in *CreateOrderInput) { in.Amount = 20001 }},
		{"empty external order id", func(in *CreateOrderInput) { in.ExternalOrderID = "" }},
		{"invalid external order id", func(in *CreateOrderInput) { in.ExternalOrderID = "has spaces" }},
		{"empty description", func(in *CreateOrderInput) { in.Description = "" }},
		{"relative callback url", func(in *CreateOrderInput) { in.CallbackURL = "/hooks/paid" }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			input := validInput()
			tc.mutate(&input)

			_, err := svc.Create(context.Background(), testAPIKey(), input)
			var svcErr *Error
			if !errors.As(err, &svcErr) || svcErr.Kind != ErrBadRequest {
				t.Fatalf("expected a bad request error, got %v", err)
			}
			if proc.submits != 0 {
				t.Fatal("invalid input must not reach the processor")
			}
		})
	}
}

func TestCreateOrderRetriesTradeNoCollision(t *testing.T) {
	st := newFakeStore()
	st.tradeNoCollisions = 2
	proc := &fakeProcessor{result: &ecpay.SubmitResult{RtnCode: 1}}
	svc := testOrderService(st, proc)

	result, err := svc.Create(context.Background(), testAPIKey(), validInput())
	if err != nil {
		t.Fatalf("expected collision retries to succeed, got %v", err)
	}
	if result.MerchantTradeNo == "" {
		t.Fatal("expected a merchant trade number after retries")
	}
}

func TestCreateOrderTradeNoExhaustion(t *testing.T) {
	st := newFakeStore()
	st.tradeNoCollisions = 3
	proc := &fakeProcessor{result: &ecpay.SubmitResult{RtnCode: 1}}
	svc := testOrderService(st, proc)

	_, err := svc.Create(context.Background(), testAPIKey(), validInput())
	var svcErr *Error
	if !errors.As(err, &svcErr) || svcErr.Code != "trade_no_exhausted" {
		t.Fatalf("expected trade_no_exhausted, got %v", err)
	}
	if proc.submits != 0 {
		t.Fatal("exhausted allocation must not reach the processor")
	}
}

func TestCreateOrderProcessorTimeout(t *testing.T) {
	st := newFakeStore()
	proc := &fakeProcessor{err: ecpay.ErrTimeout}
	svc := testOrderService(st, proc)

	_, err := svc.Create(context.Background(), testAPIKey(), validInput())
	var svcErr *Error
	if !errors.As(err, &svcErr) || svcErr.Kind != ErrGatewayTimeout || svcErr.Code != "processor_timeout" {
		t.Fatalf("expected processor_timeout gateway timeout, got %v", err)
	}

	// The transaction row must survive the timeout so a late callback can
	// still correlate.
	if len(st.transactions) != 1 {
		t.Fatalf("expected the transaction row to be persisted, got %d", len(st.transactions))
	}
}

func TestStatus(t *testing.T) {
	st := newFakeStore()
	proc := &fakeProcessor{result: &ecpay.SubmitResult{RtnCode: 1}}
	svc := testOrderService(st, proc)

	if _, err := svc.Create(context.Background(), testAPIKey(), validInput()); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	t.Run("own order", func(t *testing.T) {
		order, err := svc.Status(context.Background(), testAPIKey(), "ORD-1001")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if order.ExternalOrderID != "ORD-1001" {
			t.Fatalf("unexpected order: %+v", order)
		}
	})

	t.Run("other client system sees not found", func(t *testing.T) {
		other := &model.APIKey{ClientSystem: "shop-b", Active: true}
		_, err := svc.Status(context.Background(), other, "ORD-1001")
		var svcErr *Error
		if !errors.As(err, &svcErr) || svcErr.Kind != ErrNotFound {
			t.Fatalf("expected not found for foreign client system, got %v", err)
		}
	})
}

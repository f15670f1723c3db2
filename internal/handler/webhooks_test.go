package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

type fakeCallbackProcessor struct {
	returnErr      error
	paymentInfoErr error
	gotValues      url.Values
}

func (f *fakeCallbackProcessor) HandleReturn(ctx context.Context, values url.Values) error {
	f.gotValues = values
	return f.returnErr
}

func (f *fakeCallbackProcessor) HandlePaymentInfo(ctx context.Context, values url.Values) error {
	f.gotValues = values
	return f.paymentInfoErr
}

func postForm(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/callbacks/return", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func TestWebhookReturnAcksSuccess(t *testing.T) {
	proc := &fakeCallbackProcessor{}
	h := NewWebhookHandler(proc)

	rr := postForm(t, h.Return, "MerchantTradeNo=MT1&RtnCode=1&TradeAmt=100")

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if got := rr.Body.String(); got != "1|OK" {
		t.Fatalf("unexpected ack body: %q", got)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("ack must be plain text, got %s", ct)
	}
	if proc.gotValues.Get("MerchantTradeNo") != "MT1" {
		t.Fatal("form values must reach the processor service")
	}
}

func TestWebhookReturnAcksFailureWithReason(t *testing.T) {
	proc := &fakeCallbackProcessor{returnErr: errors.New("CheckMacValue verification failed")}
	h := NewWebhookHandler(proc)

	rr := postForm(t, h.Return, "MerchantTradeNo=MT1")

	// The processor reads the body, never the status code.
	if rr.Code != http.StatusOK {
		t.Fatalf("failure acks must still be HTTP 200, got %d", rr.Code)
	}
	if got := rr.Body.String(); got != "0|CheckMacValue verification failed" {
		t.Fatalf("unexpected ack body: %q", got)
	}
}

func TestWebhookPaymentInfoAcks(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		h := NewWebhookHandler(&fakeCallbackProcessor{})
		rr := postForm(t, h.PaymentInfo, "MerchantTradeNo=MT1&RtnCode=10100073")
		if got := rr.Body.String(); got != "1|OK" {
			t.Fatalf("unexpected ack body: %q", got)
		}
	})

	t.Run("failure", func(t *testing.T) {
		h := NewWebhookHandler(&fakeCallbackProcessor{paymentInfoErr: errors.New("unknown MerchantTradeNo")})
		rr := postForm(t, h.PaymentInfo, "MerchantTradeNo=MT1&RtnCode=10100073")
		if got := rr.Body.String(); got != "0|unknown MerchantTradeNo" {
			t.Fatalf("unexpected ack body: %q", got)
		}
	})
}

func TestWebhookUnparseableBody(t *testing.T) {
	proc := &fakeCallbackProcessor{}
	h := NewWebhookHandler(proc)

	req := httptest.NewRequest(http.MethodPost, "/callbacks/return", strings.NewReader("%zz"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.Return(rr, req)

	if proc.gotValues != nil {
		t.Fatal("service must not be called for an unparseable body")
	}
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if !strings.HasPrefix(rr.Body.String(), "0|") {
		t.Fatalf("expected a failure ack, got %q", rr.Body.String())
	}
}

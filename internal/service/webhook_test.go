package service

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lovemage/3c-morty-sub000/internal/barcode"
	"github.com/lovemage/3c-morty-sub000/internal/model"
	"github.com/lovemage/3c-morty-sub000/internal/sign"
)

const (
	testMerchantID = "2000132"
	testHashKey    = "key12345"
	testHashIV     = "iv123456"
)

func testWebhookService(st *fakeStore) *WebhookService {
	formatter := barcode.NewFormatter("https://img.example.com/barcode")
	return NewWebhookService(st, formatter, nil, testMerchantID, testHashKey, testHashIV)
}

// seedPendingOrder plants a pending order with one processor transaction.
func seedPendingOrder(t *testing.T, st *fakeStore, amount int64) (*model.ThirdPartyOrder, string) {
	t.Helper()
	order := &model.ThirdPartyOrder{
		ID:              uuid.New(),
		ExternalOrderID: "ORD-1001",
		ClientSystem:    "shop-a",
		Amount:          amount,
		Status:          model.OrderPending,
		BarcodeStatus:   model.BarcodePending,
		ExpireAt:        time.Now().AddDate(0, 0, 7),
	}
	st.orders = append(st.orders, order)

	tradeNo := "MT20250102030405AB"
	st.transactions = append(st.transactions, &model.ProcessorTransaction{
		ID:              uuid.New(),
		OrderID:         order.ID,
		MerchantTradeNo: tradeNo,
		Amount:          amount,
	})
	return order, tradeNo
}

func signedCallback(fields map[string]string) url.Values {
	values := url.Values{}
	for k, v := range fields {
		values.Set(k, v)
	}
	values.Set(sign.FieldName, sign.Sign(fields, testHashKey, testHashIV))
	return values
}

func paidCallback(tradeNo string, amount string) url.Values {
	return signedCallback(map[string]string{
		"MerchantID":      testMerchantID,
		"MerchantTradeNo": tradeNo,
		"TradeNo":         "2501020304051234",
		"RtnCode":         "1",
		"RtnMsg":          "Succeeded",
		"TradeAmt":        amount,
		"PaymentDate":     "2025/01/03 10:20:30",
		"PaymentType":     "BARCODE_BARCODE",
	})
}

func TestHandleReturnMarksPaid(t *testing.T) {
	st := newFakeStore()
	svc := testWebhookService(st)
	order, tradeNo := seedPendingOrder(t, st, 1500)

	if err := svc.HandleReturn(context.Background(), paidCallback(tradeNo, "1500")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if order.Status != model.OrderPaid {
		t.Fatalf("expected paid, got %s", order.Status)
	}
	if order.PaidAt == nil {
		t.Fatal("expected paid_at to be set")
	}
}

func TestHandleReturnRedeliveryIsIdempotent(t *testing.T) {
	st := newFakeStore()
	svc := testWebhookService(st)
	order, tradeNo := seedPendingOrder(t, st, 1500)

	if err := svc.HandleReturn(context.Background(), paidCallback(tradeNo, "1500")); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	firstPaidAt := *order.PaidAt

	if err := svc.HandleReturn(context.Background(), paidCallback(tradeNo, "1500")); err != nil {
		t.Fatalf("redelivery must ack success, got %v", err)
	}
	if !order.PaidAt.Equal(firstPaidAt) {
		t.Fatal("redelivery must not change the original paid timestamp")
	}
}

func TestHandleReturnRejectsForgedSignature(t *testing.T) {
	st := newFakeStore()
	svc := testWebhookService(st)
	_, tradeNo := seedPendingOrder(t, st, 1500)

	values := paidCallback(tradeNo, "1500")
	values.Set("TradeAmt", "1")

	if err := svc.HandleReturn(context.Background(), values); err == nil {
		t.Fatal("expected tampered callback to be rejected")
	}
	if st.orders[0].Status != model.OrderPending {
		t.Fatal("forged callback must not change order state")
	}
}

func TestHandleReturnAmountMismatchLeavesPending(t *testing.T) {
	st := newFakeStore()
	svc := testWebhookService(st)
	order, tradeNo := seedPendingOrder(t, st, 1500)

	// Properly signed but for a diverging amount.
	if err := svc.HandleReturn(context.Background(), paidCallback(tradeNo, "9999")); err == nil {
		t.Fatal("expected amount mismatch to be rejected")
	}
	if order.Status != model.OrderPending {
		t.Fatalf("amount mismatch must leave the order pending, got %s", order.Status)
	}
}

func TestHandleReturnUnknownTradeNo(t *testing.T) {
	st := newFakeStore()
	svc := testWebhookService(st)

	if err := svc.HandleReturn(context.Background(), paidCallback("MT99999999999999ZZ", "100")); err == nil {
		t.Fatal("expected unknown trade number to be rejected")
	}
}

func TestHandleReturnWrongMerchant(t *testing.T) {
	st := newFakeStore()
	svc := testWebhookService(st)
	_, tradeNo := seedPendingOrder(t, st, 1500)

	values := signedCallback(map[string]string{
		"MerchantID":      "9999999",
		"MerchantTradeNo": tradeNo,
		"RtnCode":         "1",
		"TradeAmt":        "1500",
	})
	if err := svc.HandleReturn(context.Background(), values); err == nil {
		t.Fatal("expected foreign merchant id to be rejected")
	}
}

func TestHandleReturnFailedTradeAcksWithoutTransition(t *testing.T) {
	st := newFakeStore()
	svc := testWebhookService(st)
	order, tradeNo := seedPendingOrder(t, st, 1500)

	values := signedCallback(map[string]string{
		"MerchantID":      testMerchantID,
		"MerchantTradeNo": tradeNo,
		"RtnCode":         "10300066",
		"RtnMsg":          "paid fail",
		"TradeAmt":        "1500",
	})

	if err := svc.HandleReturn(context.Background(), values); err != nil {
		t.Fatalf("failed trade must still ack success, got %v", err)
	}
	if order.Status != model.OrderPending {
		t.Fatalf("failed trade must not transition the order, got %s", order.Status)
	}
	if txn := st.findTransaction(tradeNo); txn.RtnCode == nil || *txn.RtnCode != 10300066 {
		t.Fatal("failed trade result must be recorded on the transaction")
	}
}

func TestHandleReturnExpiredOrderRejected(t *testing.T) {
	st := newFakeStore()
	svc := testWebhookService(st)
	order, tradeNo := seedPendingOrder(t, st, 1500)
	order.Status = model.OrderExpired

	if err := svc.HandleReturn(context.Background(), paidCallback(tradeNo, "1500")); err == nil {
		t.Fatal("expected paid callback for an expired order to be rejected")
	}
	if order.Status != model.OrderExpired {
		t.Fatalf("order must stay expired, got %s", order.Status)
	}
}

func barcodeCallback(tradeNo, b1, b2, b3 string) url.Values {
	return signedCallback(map[string]string{
		"MerchantID":      testMerchantID,
		"MerchantTradeNo": tradeNo,
		"TradeNo":         "2501020304051234",
		"RtnCode":         "10100073",
		"RtnMsg":          "Get CVS Code Succeeded.",
		"TradeAmt":        "1500",
		"Barcode1":        b1,
		"Barcode2":        b2,
		"Barcode3":        b3,
		"ExpireDate":      "2025/07/08",
	})
}

func TestHandlePaymentInfoAttachesBarcode(t *testing.T) {
	st := newFakeStore()
	svc := testWebhookService(st)
	order, tradeNo := seedPendingOrder(t, st, 1500)

	values := barcodeCallback(tradeNo, "1407086CY", "1557341899384519", "0708B4000000100")
	if err := svc.HandlePaymentInfo(context.Background(), values); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if order.Barcode == nil {
		t.Fatal("expected a barcode on the order")
	}
	if order.Barcode.FullCode != "1407086CY-1557341899384519-0708B4000000100" {
		t.Fatalf("unexpected full code: %s", order.Barcode.FullCode)
	}
	if order.BarcodeStatus != model.BarcodeGenerated {
		t.Fatalf("expected generated barcode status, got %s", order.BarcodeStatus)
	}
	if order.Status != model.OrderPending {
		t.Fatalf("barcode delivery must not mark the order paid, got %s", order.Status)
	}
}

func TestHandlePaymentInfoPlaceholderSegments(t *testing.T) {
	st := newFakeStore()
	svc := testWebhookService(st)
	order, tradeNo := seedPendingOrder(t, st, 1500)

	values := barcodeCallback(tradeNo, "--", "--", "--")
	if err := svc.HandlePaymentInfo(context.Background(), values); err != nil {
		t.Fatalf("placeholder delivery must ack success, got %v", err)
	}

	if order.Barcode != nil {
		t.Fatal("placeholder segments must not attach a barcode")
	}
	if order.BarcodeStatus != model.BarcodePending {
		t.Fatalf("barcode status must stay pending, got %s", order.BarcodeStatus)
	}
}

func TestHandlePaymentInfoExpiredOrderKeepsBarcodeDead(t *testing.T) {
	st := newFakeStore()
	svc := testWebhookService(st)
	order, tradeNo := seedPendingOrder(t, st, 1500)
	order.Status = model.OrderExpired
	order.BarcodeStatus = model.BarcodeExpired

	values := barcodeCallback(tradeNo, "1407086CY", "1557341899384519", "0708B4000000100")
	if err := svc.HandlePaymentInfo(context.Background(), values); err != nil {
		t.Fatalf("redelivery for a dead order must ack success, got %v", err)
	}

	if order.Barcode != nil {
		t.Fatal("expired order must not regain a scannable barcode")
	}
	if order.BarcodeStatus != model.BarcodeExpired {
		t.Fatalf("barcode status must stay expired, got %s", order.BarcodeStatus)
	}
}

func TestHandlePaymentInfoRejectsForgedSignature(t *testing.T) {
	st := newFakeStore()
	svc := testWebhookService(st)
	order, tradeNo := seedPendingOrder(t, st, 1500)

	values := barcodeCallback(tradeNo, "1407086CY", "1557341899384519", "0708B4000000100")
	values.Set("Barcode2", "0000000000000000")

	if err := svc.HandlePaymentInfo(context.Background(), values); err == nil {
		t.Fatal("expected tampered callback to be rejected")
	}
	if order.Barcode != nil {
		t.Fatal("forged callback must not attach a barcode")
	}
}

func TestSweeperRunOnce(t *testing.T) {
	st := newFakeStore()
	order, _ := seedPendingOrder(t, st, 1500)
	order.ExpireAt = time.Now().Add(-time.Hour)

	fresh := &model.ThirdPartyOrder{
		ID:              uuid.New(),
		ExternalOrderID: "ORD-2002",
		ClientSystem:    "shop-a",
		Amount:          100,
		Status:          model.OrderPending,
		ExpireAt:        time.Now().Add(time.Hour),
	}
	st.orders = append(st.orders, fresh)

	paidAt := time.Now().Add(-2 * time.Hour)
	settled := &model.ThirdPartyOrder{
		ID:              uuid.New(),
		ExternalOrderID: "ORD-2003",
		ClientSystem:    "shop-a",
		Amount:          200,
		Status:          model.OrderPaid,
		BarcodeStatus:   model.BarcodeGenerated,
		ExpireAt:        time.Now().Add(-time.Hour),
		PaidAt:          &paidAt,
	}
	st.orders = append(st.orders, settled)

	sweeper := NewSweeper(st, time.Minute)
	expired, err := sweeper.RunOnce(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if expired != 1 {
		t.Fatalf("expected one expired order, got %d", expired)
	}
	if order.Status != model.OrderExpired {
		t.Fatalf("stale order must expire, got %s", order.Status)
	}
	if fresh.Status != model.OrderPending {
		t.Fatalf("fresh order must stay pending, got %s", fresh.Status)
	}
	if settled.Status != model.OrderPaid || settled.BarcodeStatus != model.BarcodeGenerated {
		t.Fatalf("paid order must never be swept, got %s/%s", settled.Status, settled.BarcodeStatus)
	}
}

package service

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lovemage/3c-morty-sub000/internal/barcode"
	"github.com/lovemage/3c-morty-sub000/internal/ecpay"
	"github.com/lovemage/3c-morty-sub000/internal/store"
)

// WebhookService verifies and applies processor callbacks. Both entry points
// return nil when the processor should receive a success ack; any error maps
// to a failure ack and the processor will redeliver.
type WebhookService struct {
	store      store.Store
	formatter  *barcode.Formatter
	notifier   *Notifier
	merchantID string
	hashKey    string
	hashIV     string
}

func NewWebhookService(st store.Store, formatter *barcode.Formatter, notifier *Notifier, merchantID, hashKey, hashIV string) *WebhookService {
	return &WebhookService{
		store:      st,
		formatter:  formatter,
		notifier:   notifier,
		merchantID: merchantID,
		hashKey:    hashKey,
		hashIV:     hashIV,
	}
}

// HandleReturn processes the trade-result callback. A verified success result
// transitions the order to paid; redeliveries of an already-paid order ack
// success without changing anything.
func (s *WebhookService) HandleReturn(ctx context.Context, values url.Values) error {
	if !ecpay.VerifyValues(values, s.hashKey, s.hashIV) {
		log.Warn().Str("merchant_trade_no", values.Get("MerchantTradeNo")).Msg("return callback failed signature check")
		return errors.New("CheckMacValue verification failed")
	}

	n, err := ecpay.ParseReturnNotification(values)
	if err != nil {
		log.Warn().Err(err).Msg("malformed return callback")
		return err
	}
	if n.MerchantID != s.merchantID {
		log.Warn().Str("merchant_id", n.MerchantID).Msg("return callback for unknown merchant")
		return errors.New("unknown MerchantID")
	}

	rawPayload := []byte(values.Encode())

	if !n.Paid() {
		// Record the failed trade on the transaction and ack success so the
		// processor stops redelivering a result we have already seen.
		if err := s.store.RecordTradeResult(ctx, n.MerchantTradeNo, n.RtnCode, n.RtnMsg, rawPayload); err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Error().Err(err).Str("merchant_trade_no", n.MerchantTradeNo).Msg("failed to record trade result")
			return errors.New("failed to record trade result")
		}
		log.Info().Str("merchant_trade_no", n.MerchantTradeNo).Int("rtn_code", n.RtnCode).Str("rtn_msg", n.RtnMsg).
			Msg("return callback reported unsuccessful trade")
		return nil
	}

	paidAt := n.PaymentDate
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}

	order, err := s.store.MarkPaid(ctx, n.MerchantTradeNo, paidAt, n.TradeAmt, store.TradeUpdate{
		TradeNo:     n.TradeNo,
		PaymentType: n.PaymentType,
		RtnCode:     n.RtnCode,
		RtnMsg:      n.RtnMsg,
		RawPayload:  rawPayload,
	})
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		log.Warn().Str("merchant_trade_no", n.MerchantTradeNo).Msg("return callback for unknown trade number")
		return errors.New("unknown MerchantTradeNo")
	case errors.Is(err, store.ErrAmountMismatch):
		// Never mark paid on a diverging amount; this needs an operator.
		log.Error().Str("merchant_trade_no", n.MerchantTradeNo).Int64("callback_amount", n.TradeAmt).
			Msg("return callback amount mismatch")
		return errors.New("amount mismatch")
	case errors.Is(err, store.ErrOrderNotPayable):
		log.Warn().Str("merchant_trade_no", n.MerchantTradeNo).Msg("return callback for non-payable order")
		return errors.New("order is not payable")
	default:
		log.Error().Err(err).Str("merchant_trade_no", n.MerchantTradeNo).Msg("failed to mark order paid")
		return errors.New("failed to update order")
	}

	log.Info().Str("merchant_trade_no", n.MerchantTradeNo).Str("order_id", order.ID.String()).
		Msg("order marked paid")

	if s.notifier != nil && order.CallbackURL != "" {
		go s.notifier.NotifyPaid(order)
	}
	return nil
}

// HandlePaymentInfo processes the barcode-info callback delivered right after
// checkout. All-placeholder segments mean the processor has not issued a
// barcode yet; that delivery is acked without touching the order.
func (s *WebhookService) HandlePaymentInfo(ctx context.Context, values url.Values) error {
	if !ecpay.VerifyValues(values, s.hashKey, s.hashIV) {
		log.Warn().Str("merchant_trade_no", values.Get("MerchantTradeNo")).Msg("payment-info callback failed signature check")
		return errors.New("CheckMacValue verification failed")
	}

	n, err := ecpay.ParsePaymentInfoNotification(values)
	if err != nil {
		log.Warn().Err(err).Msg("malformed payment-info callback")
		return err
	}
	if n.MerchantID != s.merchantID {
		log.Warn().Str("merchant_id", n.MerchantID).Msg("payment-info callback for unknown merchant")
		return errors.New("unknown MerchantID")
	}

	if n.RtnCode != ecpay.RtnCodeBarcodeIssued {
		if err := s.store.RecordTradeResult(ctx, n.MerchantTradeNo, n.RtnCode, n.RtnMsg, []byte(values.Encode())); err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Error().Err(err).Str("merchant_trade_no", n.MerchantTradeNo).Msg("failed to record payment-info result")
			return errors.New("failed to record payment-info result")
		}
		log.Info().Str("merchant_trade_no", n.MerchantTradeNo).Int("rtn_code", n.RtnCode).
			Msg("payment-info callback without issued barcode")
		return nil
	}

	bc := s.formatter.Format(n.Barcode1, n.Barcode2, n.Barcode3, n.PaymentNo, n.ExpireDate)
	if bc == nil {
		log.Info().Str("merchant_trade_no", n.MerchantTradeNo).Msg("payment-info callback carried placeholder segments")
		return nil
	}

	order, err := s.store.AttachBarcode(ctx, n.MerchantTradeNo, bc, []byte(values.Encode()))
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		log.Warn().Str("merchant_trade_no", n.MerchantTradeNo).Msg("payment-info callback for unknown trade number")
		return errors.New("unknown MerchantTradeNo")
	case errors.Is(err, store.ErrOrderNotPayable):
		// A dead order stays dead: ack so the processor stops redelivering,
		// but never hand a scannable barcode back to an expired order.
		log.Warn().Str("merchant_trade_no", n.MerchantTradeNo).Msg("payment-info callback for expired or cancelled order")
		return nil
	default:
		log.Error().Err(err).Str("merchant_trade_no", n.MerchantTradeNo).Msg("failed to attach barcode")
		return errors.New("failed to attach barcode")
	}

	log.Info().Str("merchant_trade_no", n.MerchantTradeNo).Str("order_id", order.ID.String()).
		Msg("barcode attached to order")

	if s.notifier != nil && order.CallbackURL != "" {
		go s.notifier.NotifyBarcode(order)
	}
	return nil
}

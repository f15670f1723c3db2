package ecpay

import (
	"strconv"
	"time"

	"github.com/lovemage/3c-morty-sub000/internal/model"
	"github.com/lovemage/3c-morty-sub000/internal/sign"
)

// Builder assembles signed barcode checkout parameter sets. Field casing and
// value formatting are dictated by the processor and must not change.
type Builder struct {
	merchantID      string
	hashKey         string
	hashIV          string
	returnURL       string
	paymentInfoURL  string
	storeExpireDays int
	tradeNoPrefix   string
}

func NewBuilder(merchantID, hashKey, hashIV, returnURL, paymentInfoURL, tradeNoPrefix string, storeExpireDays int) *Builder {
	return &Builder{
		merchantID:      merchantID,
		hashKey:         hashKey,
		hashIV:          hashIV,
		returnURL:       returnURL,
		paymentInfoURL:  paymentInfoURL,
		storeExpireDays: storeExpireDays,
		tradeNoPrefix:   tradeNoPrefix,
	}
}

// BarcodeRequest is a ready-to-submit parameter set for one payment attempt.
type BarcodeRequest struct {
	MerchantTradeNo string
	Params          map[string]string
}

// StoreExpireDays governs when a pending order lapses at the store counter.
func (b *Builder) StoreExpireDays() int {
	return b.storeExpireDays
}

// BuildBarcodeRequest composes and signs the checkout parameters for order.
// A fresh merchant trade number is generated per call.
func (b *Builder) BuildBarcodeRequest(order *model.ThirdPartyOrder, now time.Time) (*BarcodeRequest, error) {
	tradeNo, err := NewTradeNo(b.tradeNoPrefix, now)
	if err != nil {
		return nil, err
	}

	params := map[string]string{
		"MerchantID":        b.merchantID,
		"MerchantTradeNo":   tradeNo,
		"MerchantTradeDate": now.UTC().Format(TradeDateLayout),
		"PaymentType":       PaymentTypeAio,
		"ChoosePayment":     ChoosePaymentBarcode,
		// Plain decimal integer. Thousands separators break the checksum.
		"TotalAmount":     strconv.FormatInt(order.Amount, 10),
		"TradeDesc":       order.Description,
		"ItemName":        order.Description,
		"ReturnURL":       b.returnURL,
		"PaymentInfoURL":  b.paymentInfoURL,
		"StoreExpireDate": strconv.Itoa(b.storeExpireDays),
		"EncryptType":     EncryptTypeSHA256,
	}
	params[sign.FieldName] = sign.Sign(params, b.hashKey, b.hashIV)

	return &BarcodeRequest{MerchantTradeNo: tradeNo, Params: params}, nil
}

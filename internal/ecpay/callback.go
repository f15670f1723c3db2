package ecpay

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/lovemage/3c-morty-sub000/internal/sign"
)

// The two callback bodies are distinct shapes on distinct endpoints; each is
// parsed into its own type at the boundary rather than a loose field bag.

// ReturnNotification is the trade-result callback: the processor reporting
// whether the customer paid.
type ReturnNotification struct {
	MerchantID      string
	MerchantTradeNo string
	TradeNo         string
	RtnCode         int
	RtnMsg          string
	TradeAmt        int64
	PaymentDate     time.Time
	PaymentType     string
	Raw             url.Values
}

// Paid reports whether the notification carries a successful trade result.
func (n *ReturnNotification) Paid() bool {
	return n.RtnCode == RtnCodePaid
}

// PaymentInfoNotification is the barcode-info callback: the segments the
// customer presents at the store counter.
type PaymentInfoNotification struct {
	MerchantID      string
	MerchantTradeNo string
	TradeNo         string
	RtnCode         int
	RtnMsg          string
	TradeAmt        int64
	PaymentNo       string
	Barcode1        string
	Barcode2        string
	Barcode3        string
	ExpireDate      *time.Time
	PaymentType     string
	Raw             url.Values
}

// VerifyValues checks the CheckMacValue carried in a callback body.
func VerifyValues(values url.Values, key, iv string) bool {
	return sign.Verify(flatten(values), values.Get(sign.FieldName), key, iv)
}

// ParseReturnNotification decodes and validates a trade-result body. The
// signature must be verified separately, before trusting any field.
func ParseReturnNotification(values url.Values) (*ReturnNotification, error) {
	n := &ReturnNotification{
		MerchantID:      values.Get("MerchantID"),
		MerchantTradeNo: values.Get("MerchantTradeNo"),
		TradeNo:         values.Get("TradeNo"),
		RtnMsg:          values.Get("RtnMsg"),
		PaymentType:     values.Get("PaymentType"),
		Raw:             values,
	}
	if n.MerchantTradeNo == "" {
		return nil, fmt.Errorf("missing MerchantTradeNo")
	}

	var err error
	if n.RtnCode, err = strconv.Atoi(values.Get("RtnCode")); err != nil {
		return nil, fmt.Errorf("invalid RtnCode %q", values.Get("RtnCode"))
	}
	if n.TradeAmt, err = strconv.ParseInt(values.Get("TradeAmt"), 10, 64); err != nil {
		return nil, fmt.Errorf("invalid TradeAmt %q", values.Get("TradeAmt"))
	}
	if raw := values.Get("PaymentDate"); raw != "" {
		if n.PaymentDate, err = time.Parse(TradeDateLayout, raw); err != nil {
			return nil, fmt.Errorf("invalid PaymentDate %q", raw)
		}
	}
	return n, nil
}

// ParsePaymentInfoNotification decodes and validates a barcode-info body.
func ParsePaymentInfoNotification(values url.Values) (*PaymentInfoNotification, error) {
	n := &PaymentInfoNotification{
		MerchantID:      values.Get("MerchantID"),
		MerchantTradeNo: values.Get("MerchantTradeNo"),
		TradeNo:         values.Get("TradeNo"),
		RtnMsg:          values.Get("RtnMsg"),
		PaymentNo:       values.Get("PaymentNo"),
		Barcode1:        values.Get("Barcode1"),
		Barcode2:        values.Get("Barcode2"),
		Barcode3:        values.Get("Barcode3"),
		PaymentType:     values.Get("PaymentType"),
		Raw:             values,
	}
	if n.MerchantTradeNo == "" {
		return nil, fmt.Errorf("missing MerchantTradeNo")
	}

	var err error
	if n.RtnCode, err = strconv.Atoi(values.Get("RtnCode")); err != nil {
		return nil, fmt.Errorf("invalid RtnCode %q", values.Get("RtnCode"))
	}
	if n.TradeAmt, err = strconv.ParseInt(values.Get("TradeAmt"), 10, 64); err != nil {
		return nil, fmt.Errorf("invalid TradeAmt %q", values.Get("TradeAmt"))
	}
	if raw := values.Get("ExpireDate"); raw != "" {
		t, err := parseExpireDate(raw)
		if err != nil {
			return nil, err
		}
		n.ExpireDate = &t
	}
	return n, nil
}

// parseExpireDate accepts both the date-only and the full timestamp layout;
// deliveries differ between the processor's environments.
func parseExpireDate(raw string) (time.Time, error) {
	if t, err := time.Parse(TradeDateLayout, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(BarcodeExpireLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid ExpireDate %q", raw)
	}
	return t, nil
}

func flatten(values url.Values) map[string]string {
	params := make(map[string]string, len(values))
	for k := range values {
		params[k] = values.Get(k)
	}
	return params
}

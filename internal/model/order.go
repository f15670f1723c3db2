package model

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderExpired   OrderStatus = "expired"
	OrderCancelled OrderStatus = "cancelled"
)

type BarcodeStatus string

const (
	BarcodePending   BarcodeStatus = "pending"
	BarcodeGenerated BarcodeStatus = "generated"
	BarcodeExpired   BarcodeStatus = "expired"
)

// Barcode is the normalized convenience-store payment barcode record built
// from the processor's three raw segments.
type Barcode struct {
	Segments    []string   `json:"segments"`
	FullCode    string     `json:"full_code"`
	CompactCode string     `json:"compact_code"`
	ImageURL    string     `json:"image_url"`
	ReferenceNo string     `json:"reference_no,omitempty"`
	ExpireAt    *time.Time `json:"expire_at,omitempty"`
}

// ThirdPartyOrder is a payment order submitted by an external client system.
// The pair (ClientSystem, ExternalOrderID) is the idempotency key.
type ThirdPartyOrder struct {
	ID              uuid.UUID     `json:"id"`
	ExternalOrderID string        `json:"external_order_id"`
	ClientSystem    string        `json:"client_system"`
	Amount          int64         `json:"amount"`
	Description     string        `json:"description"`
	CallbackURL     string        `json:"callback_url,omitempty"`
	Status          OrderStatus   `json:"status"`
	PaymentURL      string        `json:"payment_url,omitempty"`
	Barcode         *Barcode      `json:"barcode,omitempty"`
	BarcodeStatus   BarcodeStatus `json:"barcode_status"`
	FulfillmentID   *uuid.UUID    `json:"fulfillment_id,omitempty"`
	ExpireAt        time.Time     `json:"expire_at"`
	PaidAt          *time.Time    `json:"paid_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// ProcessorTransaction is one payment attempt against the external processor,
// keyed by the merchant trade number callbacks correlate on.
type ProcessorTransaction struct {
	ID              uuid.UUID  `json:"id"`
	OrderID         uuid.UUID  `json:"order_id"`
	MerchantTradeNo string     `json:"merchant_trade_no"`
	TradeNo         string     `json:"trade_no,omitempty"`
	PaymentType     string     `json:"payment_type,omitempty"`
	Amount          int64      `json:"amount"`
	RtnCode         *int       `json:"rtn_code,omitempty"`
	RtnMsg          string     `json:"rtn_msg,omitempty"`
	PaymentDate     *time.Time `json:"payment_date,omitempty"`
	RawResponse     []byte     `json:"-"`
	BarcodeDetail   []byte     `json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

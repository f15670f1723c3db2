package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lovemage/3c-morty-sub000/internal/model"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrDuplicateOrder reports a second submission with the same
	// (client_system, external_order_id) idempotency key.
	ErrDuplicateOrder = errors.New("duplicate order")

	// ErrDuplicateTradeNo reports a merchant trade number collision; callers
	// regenerate and retry.
	ErrDuplicateTradeNo = errors.New("duplicate merchant trade number")

	// ErrAmountMismatch reports a callback amount that differs from the
	// stored order amount.
	ErrAmountMismatch = errors.New("callback amount does not match order amount")

	// ErrOrderNotPayable reports a paid-callback for an order that already
	// left the pending state through expiry or cancellation.
	ErrOrderNotPayable = errors.New("order is not in a payable state")

	// ErrHasOrders blocks hard-deleting an API key with dependent orders.
	ErrHasOrders = errors.New("api key has dependent orders")
)

// APIKeyStore defines operations for API key management.
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, key *model.APIKey) error
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*model.APIKey, error)
	GetAPIKeyByID(ctx context.Context, id uuid.UUID) (*model.APIKey, error)
	ListAPIKeys(ctx context.Context, page, perPage int) ([]*model.APIKey, int, error)
	UpdateAPIKey(ctx context.Context, id uuid.UUID, updates APIKeyUpdates) error
	SetAPIKeyActive(ctx context.Context, id uuid.UUID, active bool) error
	DeleteAPIKey(ctx context.Context, id uuid.UUID) error
	RegenerateAPIKey(ctx context.Context, id uuid.UUID, keyHash, keyPrefix string) error
}

// TradeUpdate carries the return-callback fields recorded on the processor
// transaction when an order is marked paid.
type TradeUpdate struct {
	TradeNo     string
	PaymentType string
	RtnCode     int
	RtnMsg      string
	RawPayload  []byte
}

// OrderStore defines operations for third-party orders and their processor
// transactions. All mutations run in a transaction and bump updated_at.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *model.ThirdPartyOrder) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*model.ThirdPartyOrder, error)
	GetOrderByExternalID(ctx context.Context, clientSystem, externalOrderID string) (*model.ThirdPartyOrder, error)
	ListOrders(ctx context.Context, filters OrderFilters) ([]*model.ThirdPartyOrder, int, error)
	CountOrdersByStatus(ctx context.Context, status model.OrderStatus) (int64, error)
	CountOrdersByClientSystem(ctx context.Context, clientSystem string) (int64, error)
	SetOrderPaymentURL(ctx context.Context, id uuid.UUID, paymentURL string) error
	CancelOrder(ctx context.Context, id uuid.UUID) (*model.ThirdPartyOrder, error)

	// MarkPaid transitions the order matched by merchantTradeNo to paid.
	// Idempotent when already paid; ErrNotFound on an unknown trade number;
	// ErrAmountMismatch when amount diverges from the stored order.
	MarkPaid(ctx context.Context, merchantTradeNo string, paidAt time.Time, amount int64, update TradeUpdate) (*model.ThirdPartyOrder, error)

	// AttachBarcode stores the barcode record and flips barcode_status to
	// generated. Permitted while the order is still pending.
	AttachBarcode(ctx context.Context, merchantTradeNo string, bc *model.Barcode, detail []byte) (*model.ThirdPartyOrder, error)

	// RecordTradeResult records a non-success trade result on the processor
	// transaction without touching order state.
	RecordTradeResult(ctx context.Context, merchantTradeNo string, rtnCode int, rtnMsg string, rawPayload []byte) error

	ExpireStaleOrders(ctx context.Context, now time.Time) (int64, error)
}

// TransactionStore defines operations for processor transaction rows.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx *model.ProcessorTransaction) error
	GetTransactionByTradeNo(ctx context.Context, merchantTradeNo string) (*model.ProcessorTransaction, error)
	ListTransactionsByOrder(ctx context.Context, orderID uuid.UUID) ([]*model.ProcessorTransaction, error)
	RecordSubmitResponse(ctx context.Context, merchantTradeNo string, rtnCode *int, rtnMsg string, rawResponse []byte) error
}

// CallLogStore defines operations for the append-only gateway audit log.
type CallLogStore interface {
	CreateCallLog(ctx context.Context, entry *model.APICallLog) error
	ListCallLogs(ctx context.Context, filters CallLogFilters) ([]*model.APICallLog, int, error)
}

// Store combines all store interfaces.
type Store interface {
	APIKeyStore
	OrderStore
	TransactionStore
	CallLogStore
}

type APIKeyUpdates struct {
	Name            *string  `json:"name,omitempty"`
	RateLimitMax    *int     `json:"rate_limit_max,omitempty"`
	RateLimitWindow *int     `json:"rate_limit_window,omitempty"`
	AllowedIPs      []string `json:"allowed_ips,omitempty"`
}

type OrderFilters struct {
	ClientSystem *string
	Status       *model.OrderStatus
	From         *time.Time
	To           *time.Time
	Page         int
	PerPage      int
}

type CallLogFilters struct {
	APIKeyID     *uuid.UUID
	ClientSystem *string
	From         *time.Time
	To           *time.Time
	Page         int
	PerPage      int
}

package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lovemage/3c-morty-sub000/internal/model"
	"github.com/lovemage/3c-morty-sub000/internal/store"
)

// fakeStore is an in-memory store.Store for service tests. Only the methods
// the order and webhook services touch carry real behavior.
type fakeStore struct {
	orders       []*model.ThirdPartyOrder
	transactions []*model.ProcessorTransaction

	// tradeNoCollisions forces the first N CreateTransaction calls to fail
	// with ErrDuplicateTradeNo.
	tradeNoCollisions int

	createOrderErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{}
}

func (f *fakeStore) CreateOrder(ctx context.Context, order *model.ThirdPartyOrder) error {
	if f.createOrderErr != nil {
		return f.createOrderErr
	}
	for _, o := range f.orders {
		if o.ClientSystem == order.ClientSystem && o.ExternalOrderID == order.ExternalOrderID {
			return store.ErrDuplicateOrder
		}
	}
	order.ID = uuid.New()
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	f.orders = append(f.orders, order)
	return nil
}

func (f *fakeStore) GetOrderByID(ctx context.Context, id uuid.UUID) (*model.ThirdPartyOrder, error) {
	for _, o := range f.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) GetOrderByExternalID(ctx context.Context, clientSystem, externalOrderID string) (*model.ThirdPartyOrder, error) {
	for _, o := range f.orders {
		if o.ClientSystem == clientSystem && o.ExternalOrderID == externalOrderID {
			return o, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListOrders(ctx context.Context, filters store.OrderFilters) ([]*model.ThirdPartyOrder, int, error) {
	return f.orders, len(f.orders), nil
}

func (f *fakeStore) CountOrdersByStatus(ctx context.Context, status model.OrderStatus) (int64, error) {
	var n int64
	for _, o := range f.orders {
		if o.Status == status {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CountOrdersByClientSystem(ctx context.Context, clientSystem string) (int64, error) {
	var n int64
	for _, o := range f.orders {
		if o.ClientSystem == clientSystem {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) SetOrderPaymentURL(ctx context.Context, id uuid.UUID, paymentURL string) error {
	o, err := f.GetOrderByID(ctx, id)
	if err != nil {
		return err
	}
	o.PaymentURL = paymentURL
	return nil
}

func (f *fakeStore) CancelOrder(ctx context.Context, id uuid.UUID) (*model.ThirdPartyOrder, error) {
	o, err := f.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status != model.OrderPending {
		return o, store.ErrOrderNotPayable
	}
	o.Status = model.OrderCancelled
	return o, nil
}

func (f *fakeStore) MarkPaid(ctx context.Context, merchantTradeNo string, paidAt time.Time, amount int64, update store.TradeUpdate) (*model.ThirdPartyOrder, error) {
	txn := f.findTransaction(merchantTradeNo)
	if txn == nil {
		return nil, store.ErrNotFound
	}
	order, err := f.GetOrderByID(ctx, txn.OrderID)
	if err != nil {
		return nil, err
	}

	if order.Status == model.OrderPaid {
		return order, nil
	}
	if amount != order.Amount {
		return nil, store.ErrAmountMismatch
	}
	if order.Status != model.OrderPending {
		return nil, store.ErrOrderNotPayable
	}

	order.Status = model.OrderPaid
	order.PaidAt = &paidAt
	txn.TradeNo = update.TradeNo
	txn.PaymentType = update.PaymentType
	txn.RtnCode = &update.RtnCode
	txn.RtnMsg = update.RtnMsg
	return order, nil
}

func (f *fakeStore) AttachBarcode(ctx context.Context, merchantTradeNo string, bc *model.Barcode, detail []byte) (*model.ThirdPartyOrder, error) {
	txn := f.findTransaction(merchantTradeNo)
	if txn == nil {
		return nil, store.ErrNotFound
	}
	order, err := f.GetOrderByID(ctx, txn.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status != model.OrderPending && order.Status != model.OrderPaid {
		return nil, store.ErrOrderNotPayable
	}
	order.Barcode = bc
	order.BarcodeStatus = model.BarcodeGenerated
	txn.BarcodeDetail = detail
	return order, nil
}

func (f *fakeStore) RecordTradeResult(ctx context.Context, merchantTradeNo string, rtnCode int, rtnMsg string, rawPayload []byte) error {
	txn := f.findTransaction(merchantTradeNo)
	if txn == nil {
		return store.ErrNotFound
	}
	txn.RtnCode = &rtnCode
	txn.RtnMsg = rtnMsg
	return nil
}

func (f *fakeStore) ExpireStaleOrders(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for _, o := range f.orders {
		if o.Status == model.OrderPending && o.ExpireAt.Before(now) {
			o.Status = model.OrderExpired
			if o.BarcodeStatus == model.BarcodeGenerated {
				o.BarcodeStatus = model.BarcodeExpired
			}
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CreateTransaction(ctx context.Context, txn *model.ProcessorTransaction) error {
	if f.tradeNoCollisions > 0 {
		f.tradeNoCollisions--
		return store.ErrDuplicateTradeNo
	}
	for _, existing := range f.transactions {
		if existing.MerchantTradeNo == txn.MerchantTradeNo {
			return store.ErrDuplicateTradeNo
		}
	}
	txn.ID = uuid.New()
	f.transactions = append(f.transactions, txn)
	return nil
}

func (f *fakeStore) GetTransactionByTradeNo(ctx context.Context, merchantTradeNo string) (*model.ProcessorTransaction, error) {
	if txn := f.findTransaction(merchantTradeNo); txn != nil {
		return txn, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListTransactionsByOrder(ctx context.Context, orderID uuid.UUID) ([]*model.ProcessorTransaction, error) {
	var out []*model.ProcessorTransaction
	for _, txn := range f.transactions {
		if txn.OrderID == orderID {
			out = append(out, txn)
		}
	}
	return out, nil
}

func (f *fakeStore) RecordSubmitResponse(ctx context.Context, merchantTradeNo string, rtnCode *int, rtnMsg string, rawResponse []byte) error {
	txn := f.findTransaction(merchantTradeNo)
	if txn == nil {
		return store.ErrNotFound
	}
	txn.RtnCode = rtnCode
	txn.RtnMsg = rtnMsg
	txn.RawResponse = rawResponse
	return nil
}

func (f *fakeStore) findTransaction(merchantTradeNo string) *model.ProcessorTransaction {
	for _, txn := range f.transactions {
		if txn.MerchantTradeNo == merchantTradeNo {
			return txn
		}
	}
	return nil
}

// API key and call log methods are unused by these tests.

func (f *fakeStore) CreateAPIKey(ctx context.Context, key *model.APIKey) error { return nil }
func (f *fakeStore) GetAPIKeyByHash(ctx context.Context, keyHash string) (*model.APIKey, error) {
	return nil, store.ErrNotFound
}
func (f *fakeStore) GetAPIKeyByID(ctx context.Context, id uuid.UUID) (*model.APIKey, error) {
	return nil, store.ErrNotFound
}
func (f *fakeStore) ListAPIKeys(ctx context.Context, page, perPage int) ([]*model.APIKey, int, error) {
	return nil, 0, nil
}
func (f *fakeStore) UpdateAPIKey(ctx context.Context, id uuid.UUID, updates store.APIKeyUpdates) error {
	return nil
}
func (f *fakeStore) SetAPIKeyActive(ctx context.Context, id uuid.UUID, active bool) error {
	return nil
}
func (f *fakeStore) DeleteAPIKey(ctx context.Context, id uuid.UUID) error { return nil }
func (f *fakeStore) RegenerateAPIKey(ctx context.Context, id uuid.UUID, keyHash, keyPrefix string) error {
	return nil
}
func (f *fakeStore) CreateCallLog(ctx context.Context, entry *model.APICallLog) error { return nil }
func (f *fakeStore) ListCallLogs(ctx context.Context, filters store.CallLogFilters) ([]*model.APICallLog, int, error) {
	return nil, 0, nil
}

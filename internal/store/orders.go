package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lovemage/3c-morty-sub000/internal/model"
)

const orderColumns = `id, external_order_id, client_system, amount, description,
	callback_url, status, payment_url, barcode, barcode_status, fulfillment_id,
	expire_at, paid_at, created_at, updated_at`

func (p *Postgres) CreateOrder(ctx context.Context, order *model.ThirdPartyOrder) error {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO third_party_orders (
			external_order_id, client_system, amount, description,
			callback_url, status, barcode_status, expire_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`,
		order.ExternalOrderID, order.ClientSystem, order.Amount, order.Description,
		nullString(order.CallbackURL), order.Status, order.BarcodeStatus, order.ExpireAt,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "third_party_orders_client_external_key") {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (p *Postgres) GetOrderByID(ctx context.Context, id uuid.UUID) (*model.ThirdPartyOrder, error) {
	return p.scanOrder(ctx, p.pool, `SELECT `+orderColumns+` FROM third_party_orders WHERE id = $1`, id)
}

func (p *Postgres) GetOrderByExternalID(ctx context.Context, clientSystem, externalOrderID string) (*model.ThirdPartyOrder, error) {
	return p.scanOrder(ctx, p.pool, `
		SELECT `+orderColumns+` FROM third_party_orders
		WHERE client_system = $1 AND external_order_id = $2
	`, clientSystem, externalOrderID)
}

func (p *Postgres) ListOrders(ctx context.Context, filters OrderFilters) ([]*model.ThirdPartyOrder, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	argIdx := 1

	if filters.ClientSystem != nil {
		where += fmt.Sprintf(" AND client_system = $%d", argIdx)
		args = append(args, *filters.ClientSystem)
		argIdx++
	}
	if filters.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, *filters.Status)
		argIdx++
	}
	if filters.From != nil {
		where += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *filters.From)
		argIdx++
	}
	if filters.To != nil {
		where += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *filters.To)
		argIdx++
	}

	var total int
	if err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM third_party_orders "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	page := filters.Page
	if page < 1 {
		page = 1
	}
	perPage := filters.PerPage
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	offset := (page - 1) * perPage

	args = append(args, perPage, offset)
	query := fmt.Sprintf(`
		SELECT %s FROM third_party_orders %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, orderColumns, where, argIdx, argIdx+1)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []*model.ThirdPartyOrder
	for rows.Next() {
		order, err := scanOrderFromRow(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	return orders, total, nil
}

func (p *Postgres) CountOrdersByStatus(ctx context.Context, status model.OrderStatus) (int64, error) {
	var count int64
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM third_party_orders WHERE status = $1`, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return count, nil
}

func (p *Postgres) CountOrdersByClientSystem(ctx context.Context, clientSystem string) (int64, error) {
	var count int64
	err := p.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM third_party_orders WHERE client_system = $1
	`, clientSystem).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count orders by client system: %w", err)
	}
	return count, nil
}

func (p *Postgres) SetOrderPaymentURL(ctx context.Context, id uuid.UUID, paymentURL string) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE third_party_orders SET payment_url = $1, updated_at = NOW() WHERE id = $2
	`, paymentURL, id)
	if err != nil {
		return fmt.Errorf("set payment_url: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CancelOrder is administrative only; it moves a pending order to cancelled.
func (p *Postgres) CancelOrder(ctx context.Context, id uuid.UUID) (*model.ThirdPartyOrder, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE third_party_orders SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return nil, fmt.Errorf("cancel order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		order, getErr := p.GetOrderByID(ctx, id)
		if getErr != nil {
			return nil, ErrNotFound
		}
		return order, ErrOrderNotPayable
	}
	return p.GetOrderByID(ctx, id)
}

// MarkPaid drives the pending→paid transition for the order matched by its
// merchant trade number. The row lock plus conditional UPDATE serializes
// concurrent and redelivered callbacks: a redelivery for an already-paid
// order is an idempotent no-op.
func (p *Postgres) MarkPaid(ctx context.Context, merchantTradeNo string, paidAt time.Time, amount int64, update TradeUpdate) (*model.ThirdPartyOrder, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin mark paid: %w", err)
	}
	defer tx.Rollback(ctx)

	var orderID uuid.UUID
	var status model.OrderStatus
	var orderAmount int64
	err = tx.QueryRow(ctx, `
		SELECT o.id, o.status, o.amount
		FROM third_party_orders o
		JOIN processor_transactions t ON t.order_id = o.id
		WHERE t.merchant_trade_no = $1
		FOR UPDATE OF o
	`, merchantTradeNo).Scan(&orderID, &status, &orderAmount)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup order by trade no: %w", err)
	}

	if status == model.OrderPaid {
		return p.scanOrder(ctx, tx, `SELECT `+orderColumns+` FROM third_party_orders WHERE id = $1`, orderID)
	}
	if orderAmount != amount {
		return nil, ErrAmountMismatch
	}
	if status != model.OrderPending {
		return nil, ErrOrderNotPayable
	}

	_, err = tx.Exec(ctx, `
		UPDATE processor_transactions
		SET trade_no = $1, payment_type = $2, rtn_code = $3, rtn_msg = $4,
		    payment_date = $5, raw_response = $6, updated_at = NOW()
		WHERE merchant_trade_no = $7
	`, nullString(update.TradeNo), nullString(update.PaymentType), update.RtnCode, update.RtnMsg,
		paidAt, update.RawPayload, merchantTradeNo)
	if err != nil {
		return nil, fmt.Errorf("record trade result: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE third_party_orders SET status = 'paid', paid_at = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'pending'
	`, paidAt, orderID)
	if err != nil {
		return nil, fmt.Errorf("mark order paid: %w", err)
	}

	order, err := p.scanOrder(ctx, tx, `SELECT `+orderColumns+` FROM third_party_orders WHERE id = $1`, orderID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit mark paid: %w", err)
	}
	return order, nil
}

// AttachBarcode stores the normalized barcode record. The processor routinely
// delivers the barcode before the final payment confirmation, so pending
// orders accept it; paid orders accept redeliveries without state change.
// Expired and cancelled orders never regain a scannable barcode: a late
// redelivery returns ErrOrderNotPayable and leaves the row untouched.
func (p *Postgres) AttachBarcode(ctx context.Context, merchantTradeNo string, bc *model.Barcode, detail []byte) (*model.ThirdPartyOrder, error) {
	bcJSON, err := json.Marshal(bc)
	if err != nil {
		return nil, fmt.Errorf("marshal barcode: %w", err)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin attach barcode: %w", err)
	}
	defer tx.Rollback(ctx)

	var orderID uuid.UUID
	var status model.OrderStatus
	err = tx.QueryRow(ctx, `
		SELECT o.id, o.status
		FROM third_party_orders o
		JOIN processor_transactions t ON t.order_id = o.id
		WHERE t.merchant_trade_no = $1
		FOR UPDATE OF o
	`, merchantTradeNo).Scan(&orderID, &status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup order by trade no: %w", err)
	}

	if status != model.OrderPending && status != model.OrderPaid {
		return nil, ErrOrderNotPayable
	}

	_, err = tx.Exec(ctx, `
		UPDATE processor_transactions SET barcode_detail = $1, updated_at = NOW()
		WHERE merchant_trade_no = $2
	`, detail, merchantTradeNo)
	if err != nil {
		return nil, fmt.Errorf("record barcode detail: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE third_party_orders
		SET barcode = $1, barcode_status = 'generated', updated_at = NOW()
		WHERE id = $2 AND status IN ('pending', 'paid')
	`, bcJSON, orderID)
	if err != nil {
		return nil, fmt.Errorf("attach barcode: %w", err)
	}

	order, err := p.scanOrder(ctx, tx, `SELECT `+orderColumns+` FROM third_party_orders WHERE id = $1`, orderID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit attach barcode: %w", err)
	}
	return order, nil
}

func (p *Postgres) RecordTradeResult(ctx context.Context, merchantTradeNo string, rtnCode int, rtnMsg string, rawPayload []byte) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE processor_transactions
		SET rtn_code = $1, rtn_msg = $2, raw_response = $3, updated_at = NOW()
		WHERE merchant_trade_no = $4
	`, rtnCode, rtnMsg, rawPayload, merchantTradeNo)
	if err != nil {
		return fmt.Errorf("record trade result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ExpireStaleOrders bulk-moves pending orders past their expiry to expired.
// Paid orders are never touched regardless of age.
func (p *Postgres) ExpireStaleOrders(ctx context.Context, now time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE third_party_orders
		SET status = 'expired', barcode_status = CASE WHEN barcode_status = 'generated' THEN 'expired' ELSE barcode_status END,
		    updated_at = NOW()
		WHERE status = 'pending' AND expire_at < $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("expire stale orders: %w", err)
	}
	return tag.RowsAffected(), nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (p *Postgres) scanOrder(ctx context.Context, q queryer, query string, args ...interface{}) (*model.ThirdPartyOrder, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ErrNotFound
	}
	return scanOrderFromRow(rows)
}

func scanOrderFromRow(rows pgx.Rows) (*model.ThirdPartyOrder, error) {
	var order model.ThirdPartyOrder
	var callbackURL, paymentURL *string
	var bcJSON []byte

	err := rows.Scan(
		&order.ID, &order.ExternalOrderID, &order.ClientSystem, &order.Amount, &order.Description,
		&callbackURL, &order.Status, &paymentURL, &bcJSON, &order.BarcodeStatus, &order.FulfillmentID,
		&order.ExpireAt, &order.PaidAt, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}

	if callbackURL != nil {
		order.CallbackURL = *callbackURL
	}
	if paymentURL != nil {
		order.PaymentURL = *paymentURL
	}
	if bcJSON != nil {
		if err := json.Unmarshal(bcJSON, &order.Barcode); err != nil {
			return nil, fmt.Errorf("unmarshal barcode: %w", err)
		}
	}

	return &order, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lovemage/3c-morty-sub000/internal/model"
)

const transactionColumns = `id, order_id, merchant_trade_no, trade_no, payment_type,
	amount, rtn_code, rtn_msg, payment_date, raw_response, barcode_detail,
	created_at, updated_at`

// CreateTransaction inserts the processor transaction row. It is written
// before the processor is contacted so a callback racing ahead of the
// checkout response still finds its correlation key.
func (p *Postgres) CreateTransaction(ctx context.Context, txn *model.ProcessorTransaction) error {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO processor_transactions (
			order_id, merchant_trade_no, amount
		) VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`,
		txn.OrderID, txn.MerchantTradeNo, txn.Amount,
	).Scan(&txn.ID, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "processor_transactions_merchant_trade_no_key") {
			return ErrDuplicateTradeNo
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (p *Postgres) GetTransactionByTradeNo(ctx context.Context, merchantTradeNo string) (*model.ProcessorTransaction, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+transactionColumns+` FROM processor_transactions WHERE merchant_trade_no = $1
	`, merchantTradeNo)
	if err != nil {
		return nil, fmt.Errorf("query transaction: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ErrNotFound
	}
	return scanTransactionFromRow(rows)
}

func (p *Postgres) ListTransactionsByOrder(ctx context.Context, orderID uuid.UUID) ([]*model.ProcessorTransaction, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+transactionColumns+` FROM processor_transactions
		WHERE order_id = $1 ORDER BY created_at ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []*model.ProcessorTransaction
	for rows.Next() {
		txn, err := scanTransactionFromRow(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

func (p *Postgres) RecordSubmitResponse(ctx context.Context, merchantTradeNo string, rtnCode *int, rtnMsg string, rawResponse []byte) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE processor_transactions
		SET rtn_code = $1, rtn_msg = $2, raw_response = $3, updated_at = NOW()
		WHERE merchant_trade_no = $4
	`, rtnCode, nullString(rtnMsg), rawResponse, merchantTradeNo)
	if err != nil {
		return fmt.Errorf("record submit response: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTransactionFromRow(rows pgx.Rows) (*model.ProcessorTransaction, error) {
	var txn model.ProcessorTransaction
	var tradeNo, paymentType, rtnMsg *string

	err := rows.Scan(
		&txn.ID, &txn.OrderID, &txn.MerchantTradeNo, &tradeNo, &paymentType,
		&txn.Amount, &txn.RtnCode, &rtnMsg, &txn.PaymentDate, &txn.RawResponse, &txn.BarcodeDetail,
		&txn.CreatedAt, &txn.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	if tradeNo != nil {
		txn.TradeNo = *tradeNo
	}
	if paymentType != nil {
		txn.PaymentType = *paymentType
	}
	if rtnMsg != nil {
		txn.RtnMsg = *rtnMsg
	}
	return &txn, nil
}

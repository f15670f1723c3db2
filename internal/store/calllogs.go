package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lovemage/3c-morty-sub000/internal/model"
)

// CreateCallLog appends one audit row. Rows are never updated or deleted by
// the payment flow.
func (p *Postgres) CreateCallLog(ctx context.Context, entry *model.APICallLog) error {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO api_call_logs (
			api_key_id, client_system, endpoint, method,
			status_code, duration_ms, client_ip, error_code
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`,
		entry.APIKeyID, nullString(entry.ClientSystem), entry.Endpoint, entry.Method,
		entry.StatusCode, entry.DurationMS, entry.ClientIP, nullString(entry.ErrorCode),
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert api_call_log: %w", err)
	}
	return nil
}

func (p *Postgres) ListCallLogs(ctx context.Context, filters CallLogFilters) ([]*model.APICallLog, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	argIdx := 1

	if filters.APIKeyID != nil {
		where += fmt.Sprintf(" AND api_key_id = $%d", argIdx)
		args = append(args, *filters.APIKeyID)
		argIdx++
	}
	if filters.ClientSystem != nil {
		where += fmt.Sprintf(" AND client_system = $%d", argIdx)
		args = append(args, *filters.ClientSystem)
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
	if err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM api_call_logs "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count api_call_logs: %w", err)
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
		SELECT id, api_key_id, client_system, endpoint, method,
		       status_code, duration_ms, client_ip, error_code, created_at
		FROM api_call_logs %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, argIdx, argIdx+1)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list api_call_logs: %w", err)
	}
	defer rows.Close()

	var entries []*model.APICallLog
	for rows.Next() {
		entry, err := scanCallLogFromRow(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	return entries, total, nil
}

func scanCallLogFromRow(rows pgx.Rows) (*model.APICallLog, error) {
	var entry model.APICallLog
	var clientSystem, errorCode *string

	err := rows.Scan(
		&entry.ID, &entry.APIKeyID, &clientSystem, &entry.Endpoint, &entry.Method,
		&entry.StatusCode, &entry.DurationMS, &entry.ClientIP, &errorCode, &entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan api_call_log: %w", err)
	}

	if clientSystem != nil {
		entry.ClientSystem = *clientSystem
	}
	if errorCode != nil {
		entry.ErrorCode = *errorCode
	}
	return &entry, nil
}

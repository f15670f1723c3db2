package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lovemage/3c-morty-sub000/internal/model"
)

const apiKeyColumns = `id, name, key_hash, key_prefix, client_system, active,
	rate_limit_max, rate_limit_window, allowed_ips, created_at, updated_at`

func (p *Postgres) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	var allowedIPs []byte
	if key.AllowedIPs != nil {
		var err error
		allowedIPs, err = json.Marshal(key.AllowedIPs)
		if err != nil {
			return fmt.Errorf("marshal allowed_ips: %w", err)
		}
	}

	err := p.pool.QueryRow(ctx, `
		INSERT INTO api_keys (
			name, key_hash, key_prefix, client_system, active,
			rate_limit_max, rate_limit_window, allowed_ips
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`,
		key.Name, key.KeyHash, key.KeyPrefix, key.ClientSystem, key.Active,
		key.RateLimitMax, key.RateLimitWindow, allowedIPs,
	).Scan(&key.ID, &key.CreatedAt, &key.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return fmt.Errorf("api key secret already exists: %w", err)
		}
		return fmt.Errorf("insert api_key: %w", err)
	}
	return nil
}

func (p *Postgres) GetAPIKeyByHash(ctx context.Context, keyHash string) (*model.APIKey, error) {
	return p.scanAPIKey(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = $1`, keyHash)
}

func (p *Postgres) GetAPIKeyByID(ctx context.Context, id uuid.UUID) (*model.APIKey, error) {
	return p.scanAPIKey(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE id = $1`, id)
}

func (p *Postgres) ListAPIKeys(ctx context.Context, page, perPage int) ([]*model.APIKey, int, error) {
	var total int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM api_keys`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count api_keys: %w", err)
	}

	offset := (page - 1) * perPage
	rows, err := p.pool.Query(ctx, `
		SELECT `+apiKeyColumns+` FROM api_keys ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`, perPage, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list api_keys: %w", err)
	}
	defer rows.Close()

	var keys []*model.APIKey
	for rows.Next() {
		key, err := scanAPIKeyFromRow(rows)
		if err != nil {
			return nil, 0, err
		}
		keys = append(keys, key)
	}
	return keys, total, nil
}

func (p *Postgres) UpdateAPIKey(ctx context.Context, id uuid.UUID, updates APIKeyUpdates) error {
	setClauses := []string{}
	args := []interface{}{}
	argIdx := 1

	if updates.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argIdx))
		args = append(args, *updates.Name)
		argIdx++
	}
	if updates.RateLimitMax != nil {
		setClauses = append(setClauses, fmt.Sprintf("rate_limit_max = $%d", argIdx))
		args = append(args, *updates.RateLimitMax)
		argIdx++
	}
	if updates.RateLimitWindow != nil {
		setClauses = append(setClauses, fmt.Sprintf("rate_limit_window = $%d", argIdx))
		args = append(args, *updates.RateLimitWindow)
		argIdx++
	}
	if updates.AllowedIPs != nil {
		ips, err := json.Marshal(updates.AllowedIPs)
		if err != nil {
			return fmt.Errorf("marshal allowed_ips: %w", err)
		}
		setClauses = append(setClauses, fmt.Sprintf("allowed_ips = $%d", argIdx))
		args = append(args, ips)
		argIdx++
	}

	if len(setClauses) == 0 {
		return nil
	}

	setClauses = append(setClauses, "updated_at = NOW()")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE api_keys SET %s WHERE id = $%d",
		strings.Join(setClauses, ", "), argIdx)

	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update api_key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) SetAPIKeyActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE api_keys SET active = $1, updated_at = NOW() WHERE id = $2
	`, active, id)
	if err != nil {
		return fmt.Errorf("set api_key active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAPIKey permanently removes a key. Keys whose client system still owns
// orders cannot be removed; deactivate them instead.
func (p *Postgres) DeleteAPIKey(ctx context.Context, id uuid.UUID) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete api_key: %w", err)
	}
	defer tx.Rollback(ctx)

	var clientSystem string
	err = tx.QueryRow(ctx, `SELECT client_system FROM api_keys WHERE id = $1 FOR UPDATE`, id).Scan(&clientSystem)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrNotFound
		}
		return fmt.Errorf("lookup api_key: %w", err)
	}

	var orders int64
	err = tx.QueryRow(ctx, `SELECT COUNT(*) FROM third_party_orders WHERE client_system = $1`, clientSystem).Scan(&orders)
	if err != nil {
		return fmt.Errorf("count dependent orders: %w", err)
	}
	if orders > 0 {
		return ErrHasOrders
	}

	if _, err := tx.Exec(ctx, `DELETE FROM api_keys WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete api_key: %w", err)
	}
	return tx.Commit(ctx)
}

func (p *Postgres) RegenerateAPIKey(ctx context.Context, id uuid.UUID, keyHash, keyPrefix string) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE api_keys SET key_hash = $1, key_prefix = $2, updated_at = NOW() WHERE id = $3
	`, keyHash, keyPrefix, id)
	if err != nil {
		return fmt.Errorf("regenerate api_key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) scanAPIKey(ctx context.Context, query string, args ...interface{}) (*model.APIKey, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query api_key: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ErrNotFound
	}
	return scanAPIKeyFromRow(rows)
}

func scanAPIKeyFromRow(rows pgx.Rows) (*model.APIKey, error) {
	var key model.APIKey
	var ipsJSON []byte

	err := rows.Scan(
		&key.ID, &key.Name, &key.KeyHash, &key.KeyPrefix,
		&key.ClientSystem, &key.Active,
		&key.RateLimitMax, &key.RateLimitWindow,
		&ipsJSON,
		&key.CreatedAt, &key.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan api_key: %w", err)
	}

	if ipsJSON != nil {
		if err := json.Unmarshal(ipsJSON, &key.AllowedIPs); err != nil {
			return nil, fmt.Errorf("unmarshal allowed_ips: %w", err)
		}
	}

	return &key, nil
}

package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Gamenter95/wewa/internal/domain"
)

// TokenRepository implements domain.TokenRepository using PostgreSQL.
type TokenRepository struct {
	pool *pgxpool.Pool
}

// NewTokenRepository creates a new TokenRepository.
func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{
		pool: pool,
	}
}

// GetByToken retrieves a gateway token by its secret value.
// Token state is read on every call so that a revocation applies to the next request.
func (r *TokenRepository) GetByToken(ctx context.Context, token string) (*domain.GatewayToken, error) {
	query := `
		SELECT id, token, account_id, is_active, gateway_enabled, created_at
		FROM gateway_tokens
		WHERE token = $1
	`

	var t domain.GatewayToken
	err := conn(ctx, r.pool).QueryRow(ctx, query, token).Scan(
		&t.ID,
		&t.Token,
		&t.AccountID,
		&t.IsActive,
		&t.GatewayEnabled,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get gateway token: %w", err)
	}
	return &t, nil
}

package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Gamenter95/wewa/internal/domain"
)

// idempotencyKeyIndex is the partial unique index on (from_account_id, idempotency_key).
const idempotencyKeyIndex = "idx_transactions_idempotency_key"

// LedgerRepository implements domain.LedgerRepository using PostgreSQL.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{
		pool: pool,
	}
}

// Append persists a transaction record. Records are never updated afterwards.
func (r *LedgerRepository) Append(ctx context.Context, record *domain.TransactionRecord) error {
	query := `
		INSERT INTO transactions (
			id, from_account_id, to_account_id, to_phone_number,
			amount, comment, status, idempotency_key,
			sender_balance_after, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := conn(ctx, r.pool).Exec(ctx, query,
		record.ID,
		record.FromAccountID,
		record.ToAccountID,
		record.ToPhoneNumber,
		record.Amount,
		record.Comment,
		string(record.Status),
		record.IdempotencyKey,
		record.SenderBalanceAfter,
		record.CreatedAt,
	)
	if err != nil {
		if isPgUniqueViolation(err, idempotencyKeyIndex) {
			return domain.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// GetByIdempotencyKey retrieves the record a sender created with the given key.
// It returns nil, nil if there is none.
func (r *LedgerRepository) GetByIdempotencyKey(ctx context.Context, senderID uuid.UUID, key string) (*domain.TransactionRecord, error) {
	query := `
		SELECT id, from_account_id, to_account_id, to_phone_number,
		       amount, comment, status, idempotency_key,
		       sender_balance_after, created_at
		FROM transactions
		WHERE from_account_id = $1 AND idempotency_key = $2
	`

	record, err := scanRecord(conn(ctx, r.pool).QueryRow(ctx, query, senderID, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get transaction by idempotency key: %w", err)
	}
	return record, nil
}

func scanRecord(row pgx.Row) (*domain.TransactionRecord, error) {
	var (
		record domain.TransactionRecord
		status string
	)
	err := row.Scan(
		&record.ID,
		&record.FromAccountID,
		&record.ToAccountID,
		&record.ToPhoneNumber,
		&record.Amount,
		&record.Comment,
		&status,
		&record.IdempotencyKey,
		&record.SenderBalanceAfter,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.Status = domain.TransactionStatus(status)
	return &record, nil
}

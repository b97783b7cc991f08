package domain

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountRepository defines the Account Store contract the engine depends on.
type AccountRepository interface {
	// GetByID retrieves an account by its unique identifier.
	// Returns ErrAccountNotFound if the account doesn't exist.
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)

	// GetByPhoneNumber retrieves the single account registered with the phone number.
	// Returns ErrAccountNotFound if there is none.
	GetByPhoneNumber(ctx context.Context, phone string) (*Account, error)

	// Lock acquires a row lock on the account for the duration of the transaction
	// and returns its current state. Must be called within a transaction context.
	Lock(ctx context.Context, id uuid.UUID) (*Account, error)

	// UpdateBalance sets the balance of a locked account.
	UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error
}

// TokenRepository is the read-only view of the Gateway Token Registry.
type TokenRepository interface {
	// GetByToken returns the token row or ErrTokenNotFound.
	GetByToken(ctx context.Context, token string) (*GatewayToken, error)
}

// LedgerRepository is the append-only Transaction Ledger.
type LedgerRepository interface {
	// Append inserts a new record. Returns ErrDuplicateIdempotencyKey if the
	// record's (sender, idempotency key) pair is already recorded.
	Append(ctx context.Context, record *TransactionRecord) error

	// GetByIdempotencyKey returns the record for (sender, key), or nil if none exists.
	GetByIdempotencyKey(ctx context.Context, senderID uuid.UUID, key string) (*TransactionRecord, error)
}

// TransactionManager defines the interface for managing database transactions.
type TransactionManager interface {
	// WithTransaction executes fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	// Otherwise, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventPublisher publishes domain events to external systems.
type EventPublisher interface {
	PublishTransferCompleted(ctx context.Context, record *TransactionRecord, sender, receiver *Account) error
}

// TransferRecorder observes terminal transfer outcomes, e.g. for metrics.
type TransferRecorder interface {
	ObserveTransfer(outcome string, seconds float64)
}

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account represents a wallet balance owned by a registered user.
// Receivers are addressed by phone number, senders by the account that owns the gateway token.
type Account struct {
	ID          uuid.UUID       // Unique identifier of the account
	PhoneNumber string          // Unique phone number, used for receiver lookup
	Balance     decimal.Decimal // Current balance, never negative, two decimal places
	CreatedAt   time.Time       // Timestamp when the account was created
	UpdatedAt   time.Time       // Timestamp of the last balance change
}

// GatewayToken is a bearer credential that lets external callers push funds
// out of the owning account. Tokens are written by the token-management service only.
type GatewayToken struct {
	ID             uuid.UUID
	Token          string
	AccountID      uuid.UUID
	IsActive       bool // false once revoked, permanent
	GatewayEnabled bool // reversible toggle
	CreatedAt      time.Time
}

// Usable reports whether the token may authorize a transfer.
func (t *GatewayToken) Usable() bool {
	return t.IsActive && t.GatewayEnabled
}

// TransactionStatus is the outcome stored on a ledger record.
type TransactionStatus string

const (
	// TransactionStatusSuccess indicates both balances were updated
	TransactionStatusSuccess TransactionStatus = "success"

	// TransactionStatusInsufficientFunds indicates the sender balance was below the amount
	TransactionStatusInsufficientFunds TransactionStatus = "insufficient_funds"

	// TransactionStatusFailedUpdate indicates the atomic balance update could not be committed
	TransactionStatusFailedUpdate TransactionStatus = "failed_update"
)

// TransactionRecord is an immutable ledger entry for one transfer attempt.
type TransactionRecord struct {
	ID                 uuid.UUID         // Receipt reference returned to the caller
	FromAccountID      uuid.UUID         // Sender account
	ToAccountID        *uuid.UUID        // Receiver account, nil when it could not be resolved
	ToPhoneNumber      string            // Requested receiver phone, always recorded
	Amount             decimal.Decimal   // Rounded amount that was compared and applied
	Comment            string            // Caller-supplied free text, stored verbatim
	Status             TransactionStatus // Outcome of the attempt
	IdempotencyKey     *string           // Optional caller key scoped to the sender
	SenderBalanceAfter *decimal.Decimal  // Sender balance after a successful transfer
	CreatedAt          time.Time
}

// NewTransactionRecord creates a ledger record for an attempt from sender to receiver.
func NewTransactionRecord(sender, receiver *Account, req TransferRequest, amount decimal.Decimal, status TransactionStatus) *TransactionRecord {
	rec := &TransactionRecord{
		ID:            uuid.New(),
		FromAccountID: sender.ID,
		ToPhoneNumber: req.ToPhoneNumber,
		Amount:        amount,
		Comment:       req.Comment,
		Status:        status,
		CreatedAt:     time.Now().UTC(),
	}
	if receiver != nil {
		id := receiver.ID
		rec.ToAccountID = &id
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		rec.IdempotencyKey = &key
	}
	return rec
}

// TransferRequest is the raw, unvalidated input of one gateway call.
type TransferRequest struct {
	Token          string
	ToPhoneNumber  string
	Amount         string
	Comment        string
	IdempotencyKey string
}

// TransferResult is returned for a committed transfer.
type TransferResult struct {
	TransactionID uuid.UUID
	FromPhone     string
	ToPhone       string
	Amount        decimal.Decimal
	Comment       string
	NewBalance    decimal.Decimal
	Replayed      bool // true when served from a prior attempt with the same idempotency key
}

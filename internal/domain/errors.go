package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of business outcomes a transfer can fail with.
// The string value is the stable machine-readable code sent to callers.
type ErrorKind string

const (
	ErrorKindInvalidAmount     ErrorKind = "invalid_amount"
	ErrorKindSameAccount       ErrorKind = "same_account"
	ErrorKindInvalidToken      ErrorKind = "invalid_token"
	ErrorKindGatewayDisabled   ErrorKind = "gateway_disabled"
	ErrorKindSenderNotFound    ErrorKind = "sender_not_found"
	ErrorKindReceiverNotFound  ErrorKind = "receiver_not_found"
	ErrorKindInsufficientFunds ErrorKind = "insufficient_funds"
	ErrorKindUpdateFailed      ErrorKind = "transaction_failed"

	// ErrorKindIdempotencyConflict is returned when an idempotency key is reused
	// with a different receiver or amount.
	ErrorKindIdempotencyConflict ErrorKind = "idempotency_key_reused"
)

// Error is a business error of a known kind with an optional underlying cause.
type Error struct {
	Kind ErrorKind
	Err  error
}

func newError(kind ErrorKind, cause error) *Error {
	return &Error{Kind: kind, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so callers can compare against the sentinels below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	// ErrInvalidAmount is returned when the amount is not a positive decimal
	ErrInvalidAmount = newError(ErrorKindInvalidAmount, nil)

	// ErrSameAccount is returned when the receiver phone belongs to the sender
	ErrSameAccount = newError(ErrorKindSameAccount, nil)

	// ErrInvalidToken is returned when the gateway token does not exist
	ErrInvalidToken = newError(ErrorKindInvalidToken, nil)

	// ErrGatewayDisabled is returned when the token is revoked or its gateway is switched off
	ErrGatewayDisabled = newError(ErrorKindGatewayDisabled, nil)

	// ErrSenderNotFound is returned when the token owner's account is missing
	ErrSenderNotFound = newError(ErrorKindSenderNotFound, nil)

	// ErrReceiverNotFound is returned when no account has the requested phone number
	ErrReceiverNotFound = newError(ErrorKindReceiverNotFound, nil)

	// ErrInsufficientFunds is returned when the sender balance is below the amount
	ErrInsufficientFunds = newError(ErrorKindInsufficientFunds, nil)

	// ErrUpdateFailed is returned when the atomic balance update could not be committed
	ErrUpdateFailed = newError(ErrorKindUpdateFailed, nil)

	// ErrIdempotencyConflict is returned when a key is replayed with different parameters
	ErrIdempotencyConflict = newError(ErrorKindIdempotencyConflict, nil)
)

// Storage-level errors returned by repositories.
var (
	// ErrAccountNotFound is returned by the account store on a lookup miss
	ErrAccountNotFound = errors.New("account not found")

	// ErrTokenNotFound is returned by the token registry on a lookup miss
	ErrTokenNotFound = errors.New("gateway token not found")

	// ErrDuplicateIdempotencyKey is returned by the ledger when (sender, key) is already recorded
	ErrDuplicateIdempotencyKey = errors.New("transaction with idempotency key already exists")
)

// KindOf returns the business kind carried by err, if any.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// errorForStatus maps a recorded non-success status back to the error returned to the caller.
func errorForStatus(status TransactionStatus) error {
	switch status {
	case TransactionStatusInsufficientFunds:
		return ErrInsufficientFunds
	case TransactionStatusFailedUpdate:
		return ErrUpdateFailed
	default:
		return nil
	}
}

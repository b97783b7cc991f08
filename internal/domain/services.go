package domain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ledgerWriteTimeout bounds the ledger append that follows a failed or
// rejected atomic section, which runs even if the request context expired.
const ledgerWriteTimeout = 5 * time.Second

// TransferEngine validates and executes gateway transfers.
// All shared state lives behind the repositories; the engine only tracks
// event publications that are still in flight.
type TransferEngine struct {
	accounts  AccountRepository
	tokens    TokenRepository
	ledger    LedgerRepository
	txManager TransactionManager

	publisher EventPublisher
	recorder  TransferRecorder
	logger    logrus.FieldLogger
	timeout   time.Duration

	events sync.WaitGroup
}

// EngineOption configures optional collaborators of the TransferEngine.
type EngineOption func(*TransferEngine)

// WithEventPublisher emits a transfer.completed event after every committed transfer.
func WithEventPublisher(p EventPublisher) EngineOption {
	return func(e *TransferEngine) { e.publisher = p }
}

// WithRecorder reports every terminal outcome to r.
func WithRecorder(r TransferRecorder) EngineOption {
	return func(e *TransferEngine) { e.recorder = r }
}

// WithLogger sets the logger. Defaults to the logrus standard logger.
func WithLogger(l logrus.FieldLogger) EngineOption {
	return func(e *TransferEngine) { e.logger = l }
}

// WithTimeout bounds every store call made for a single transfer.
func WithTimeout(d time.Duration) EngineOption {
	return func(e *TransferEngine) { e.timeout = d }
}

// NewTransferEngine creates a new TransferEngine.
func NewTransferEngine(
	accounts AccountRepository,
	tokens TokenRepository,
	ledger LedgerRepository,
	txManager TransactionManager,
	opts ...EngineOption,
) *TransferEngine {
	e := &TransferEngine{
		accounts:  accounts,
		tokens:    tokens,
		ledger:    ledger,
		txManager: txManager,
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteTransfer moves req.Amount from the token owner's account to the
// account registered with req.ToPhoneNumber.
//
// Failures before the balance check (amount, token, account resolution)
// leave no trace in the ledger. From the balance check onward every attempt
// produces exactly one TransactionRecord whose status matches the returned error:
// success (nil), insufficient_funds (ErrInsufficientFunds) or
// failed_update (ErrUpdateFailed).
func (s *TransferEngine) ExecuteTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	start := time.Now()
	result, err := s.executeTransfer(ctx, req)
	s.observe(start, err)
	return result, err
}

func (s *TransferEngine) executeTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	amount, err := ParseAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	token, err := s.resolveToken(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	sender, receiver, err := s.resolveAccounts(ctx, token.AccountID, req.ToPhoneNumber)
	if err != nil {
		return nil, err
	}
	if sender.ID == receiver.ID {
		return nil, ErrSameAccount
	}

	if req.IdempotencyKey != "" {
		prior, err := s.ledger.GetByIdempotencyKey(ctx, sender.ID, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if prior != nil {
			return s.replay(prior, req, amount, sender)
		}
	}

	return s.commitTransfer(ctx, req, amount, sender, receiver)
}

func (s *TransferEngine) resolveToken(ctx context.Context, token string) (*GatewayToken, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	tok, err := s.tokens.GetByToken(ctx, token)
	if errors.Is(err, ErrTokenNotFound) {
		s.logger.Warn("gateway token does not exist")
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up gateway token: %w", err)
	}

	if !tok.Usable() {
		s.logger.WithFields(logrus.Fields{
			"account_id":      tok.AccountID,
			"is_active":       tok.IsActive,
			"gateway_enabled": tok.GatewayEnabled,
		}).Warn("gateway token is revoked or disabled")
		return nil, ErrGatewayDisabled
	}
	return tok, nil
}

// resolveAccounts looks up sender and receiver concurrently.
// A missing sender is reported ahead of a missing receiver.
func (s *TransferEngine) resolveAccounts(ctx context.Context, senderID uuid.UUID, phone string) (*Account, *Account, error) {
	if phone == "" {
		return nil, nil, ErrReceiverNotFound
	}

	var (
		g                      errgroup.Group
		sender, receiver       *Account
		senderErr, receiverErr error
	)
	g.Go(func() error {
		sender, senderErr = s.accounts.GetByID(ctx, senderID)
		return nil
	})
	g.Go(func() error {
		receiver, receiverErr = s.accounts.GetByPhoneNumber(ctx, phone)
		return nil
	})
	_ = g.Wait()

	switch {
	case errors.Is(senderErr, ErrAccountNotFound):
		return nil, nil, ErrSenderNotFound
	case senderErr != nil:
		return nil, nil, fmt.Errorf("failed to get sender account: %w", senderErr)
	case errors.Is(receiverErr, ErrAccountNotFound):
		return nil, nil, ErrReceiverNotFound
	case receiverErr != nil:
		return nil, nil, fmt.Errorf("failed to get receiver account: %w", receiverErr)
	}
	return sender, receiver, nil
}

// commitTransfer runs the balance check and the dual update in one transaction.
// The success record is appended inside that transaction, so it exists iff both
// balances changed. Rejected and failed attempts are recorded after it ends.
func (s *TransferEngine) commitTransfer(ctx context.Context, req TransferRequest, amount decimal.Decimal, sender, receiver *Account) (*TransferResult, error) {
	log := s.logger.WithFields(logrus.Fields{
		"sender_id":   sender.ID,
		"receiver_id": receiver.ID,
		"to_phone":    req.ToPhoneNumber,
		"amount":      FormatAmount(amount),
	})

	var (
		insufficient bool
		record       *TransactionRecord
	)
	txErr := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		insufficient, record = false, nil

		lockedSender, lockedReceiver, err := s.lockPair(txCtx, sender.ID, receiver.ID)
		if err != nil {
			return err
		}

		if lockedSender.Balance.LessThan(amount) {
			insufficient = true
			sender = lockedSender
			return nil
		}

		newSenderBalance := lockedSender.Balance.Sub(amount)
		newReceiverBalance := lockedReceiver.Balance.Add(amount)

		if err := s.accounts.UpdateBalance(txCtx, lockedSender.ID, newSenderBalance); err != nil {
			return fmt.Errorf("failed to debit sender account: %w", err)
		}
		if err := s.accounts.UpdateBalance(txCtx, lockedReceiver.ID, newReceiverBalance); err != nil {
			return fmt.Errorf("failed to credit receiver account: %w", err)
		}

		rec := NewTransactionRecord(lockedSender, lockedReceiver, req, amount, TransactionStatusSuccess)
		rec.SenderBalanceAfter = &newSenderBalance
		if err := s.ledger.Append(txCtx, rec); err != nil {
			return err
		}

		lockedSender.Balance = newSenderBalance
		lockedReceiver.Balance = newReceiverBalance
		sender, receiver, record = lockedSender, lockedReceiver, rec
		return nil
	})

	if txErr != nil {
		if errors.Is(txErr, ErrDuplicateIdempotencyKey) {
			return s.replayConcurrent(ctx, req, amount, sender)
		}
		log.WithError(txErr).Error("atomic balance update failed")
		// No money moved, so the key stays free for a retry.
		failed := NewTransactionRecord(sender, receiver, req, amount, TransactionStatusFailedUpdate)
		failed.IdempotencyKey = nil
		if err := s.appendDetached(ctx, failed); err != nil {
			log.WithError(err).Error("failed to record failed_update transaction")
		}
		return nil, newError(ErrorKindUpdateFailed, txErr)
	}

	if insufficient {
		rejected := NewTransactionRecord(sender, receiver, req, amount, TransactionStatusInsufficientFunds)
		if err := s.appendDetached(ctx, rejected); err != nil {
			if errors.Is(err, ErrDuplicateIdempotencyKey) {
				return s.replayConcurrent(ctx, req, amount, sender)
			}
			log.WithError(err).Error("failed to record insufficient_funds transaction")
			return nil, fmt.Errorf("failed to record transaction: %w", err)
		}
		log.WithField("balance", FormatAmount(sender.Balance)).Warn("insufficient funds")
		return nil, ErrInsufficientFunds
	}

	log.WithField("transaction_id", record.ID).Info("transfer committed")
	s.publishCompleted(record, sender, receiver)

	return &TransferResult{
		TransactionID: record.ID,
		FromPhone:     sender.PhoneNumber,
		ToPhone:       req.ToPhoneNumber,
		Amount:        amount,
		Comment:       req.Comment,
		NewBalance:    sender.Balance,
	}, nil
}

// lockPair locks both accounts in a deterministic order to prevent deadlocks.
func (s *TransferEngine) lockPair(ctx context.Context, senderID, receiverID uuid.UUID) (*Account, *Account, error) {
	var sender, receiver *Account
	var err error
	if senderID.String() < receiverID.String() {
		if sender, err = s.accounts.Lock(ctx, senderID); err != nil {
			return nil, nil, fmt.Errorf("failed to lock sender account: %w", err)
		}
		if receiver, err = s.accounts.Lock(ctx, receiverID); err != nil {
			return nil, nil, fmt.Errorf("failed to lock receiver account: %w", err)
		}
	} else {
		if receiver, err = s.accounts.Lock(ctx, receiverID); err != nil {
			return nil, nil, fmt.Errorf("failed to lock receiver account: %w", err)
		}
		if sender, err = s.accounts.Lock(ctx, senderID); err != nil {
			return nil, nil, fmt.Errorf("failed to lock sender account: %w", err)
		}
	}
	return sender, receiver, nil
}

// appendDetached writes a ledger record even when ctx has already expired.
func (s *TransferEngine) appendDetached(ctx context.Context, record *TransactionRecord) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
	defer cancel()
	return s.ledger.Append(writeCtx, record)
}

// replayConcurrent serves a request that lost the race on its idempotency key.
func (s *TransferEngine) replayConcurrent(ctx context.Context, req TransferRequest, amount decimal.Decimal, sender *Account) (*TransferResult, error) {
	readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
	defer cancel()

	prior, err := s.ledger.GetByIdempotencyKey(readCtx, sender.ID, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction for idempotency key: %w", err)
	}
	if prior == nil {
		return nil, fmt.Errorf("transaction for idempotency key %q vanished", req.IdempotencyKey)
	}
	return s.replay(prior, req, amount, sender)
}

// replay returns the outcome of a prior attempt made with the same idempotency key.
func (s *TransferEngine) replay(prior *TransactionRecord, req TransferRequest, amount decimal.Decimal, sender *Account) (*TransferResult, error) {
	if prior.ToPhoneNumber != req.ToPhoneNumber || !prior.Amount.Equal(amount) {
		return nil, ErrIdempotencyConflict
	}

	s.logger.WithFields(logrus.Fields{
		"transaction_id":  prior.ID,
		"idempotency_key": req.IdempotencyKey,
		"status":          prior.Status,
	}).Info("replaying transfer outcome")

	if err := errorForStatus(prior.Status); err != nil {
		return nil, err
	}

	newBalance := sender.Balance
	if prior.SenderBalanceAfter != nil {
		newBalance = *prior.SenderBalanceAfter
	}
	return &TransferResult{
		TransactionID: prior.ID,
		FromPhone:     sender.PhoneNumber,
		ToPhone:       prior.ToPhoneNumber,
		Amount:        prior.Amount,
		Comment:       prior.Comment,
		NewBalance:    newBalance,
		Replayed:      true,
	}, nil
}

// publishCompleted emits the transfer.completed event without blocking the caller.
// The transfer is already committed, so a broker failure is only logged.
func (s *TransferEngine) publishCompleted(record *TransactionRecord, sender, receiver *Account) {
	if s.publisher == nil {
		return
	}
	s.events.Add(1)
	go func() {
		defer s.events.Done()
		ctx, cancel := context.WithTimeout(context.Background(), ledgerWriteTimeout)
		defer cancel()
		if err := s.publisher.PublishTransferCompleted(ctx, record, sender, receiver); err != nil {
			s.logger.WithError(err).WithField("transaction_id", record.ID).
				Warn("failed to publish transfer completed event")
		}
	}()
}

// Drain waits for in-flight event publications to finish, or for ctx to end.
// Call it after the HTTP server has stopped and before closing the publisher.
func (s *TransferEngine) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.events.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publications still in flight: %w", ctx.Err())
	}
}

func (s *TransferEngine) observe(start time.Time, err error) {
	if s.recorder == nil {
		return
	}
	s.recorder.ObserveTransfer(OutcomeOf(err), time.Since(start).Seconds())
}

// OutcomeOf returns the stable outcome label for a transfer error:
// "success", a business error code, or "internal_error".
func OutcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	if kind, ok := KindOf(err); ok {
		return string(kind)
	}
	return "internal_error"
}

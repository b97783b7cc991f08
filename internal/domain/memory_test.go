package domain_test

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Gamenter95/wewa/internal/domain"
)

// memoryStore is an in-memory Account Store, Token Registry, Ledger and
// TransactionManager. Transactions are serialized by txMu and buffer their
// writes until commit, so a failed transaction leaves no trace.
type memoryStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	accounts map[uuid.UUID]domain.Account
	tokens   map[string]domain.GatewayToken
	records  []domain.TransactionRecord

	failUpdate map[uuid.UUID]bool
	lookupErr  error
}

type memoryTx struct {
	balances map[uuid.UUID]decimal.Decimal
	records  []domain.TransactionRecord
}

type memoryTxKey struct{}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		accounts:   make(map[uuid.UUID]domain.Account),
		tokens:     make(map[string]domain.GatewayToken),
		failUpdate: make(map[uuid.UUID]bool),
	}
}

func (m *memoryStore) addAccount(phone, balance string) domain.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc := domain.Account{
		ID:          uuid.New(),
		PhoneNumber: phone,
		Balance:     decimal.RequireFromString(balance),
	}
	m.accounts[acc.ID] = acc
	return acc
}

func (m *memoryStore) addToken(token string, owner uuid.UUID, active, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = domain.GatewayToken{
		ID:             uuid.New(),
		Token:          token,
		AccountID:      owner,
		IsActive:       active,
		GatewayEnabled: enabled,
	}
}

func (m *memoryStore) balance(id uuid.UUID) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[id].Balance
}

func (m *memoryStore) total() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := decimal.Zero
	for _, acc := range m.accounts {
		sum = sum.Add(acc.Balance)
	}
	return sum
}

func (m *memoryStore) ledger() []domain.TransactionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.TransactionRecord, len(m.records))
	copy(out, m.records)
	return out
}

func (m *memoryStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	acc, ok := m.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return &acc, nil
}

func (m *memoryStore) GetByPhoneNumber(ctx context.Context, phone string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	for _, acc := range m.accounts {
		if acc.PhoneNumber == phone {
			acc := acc
			return &acc, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (m *memoryStore) Lock(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	tx, ok := ctx.Value(memoryTxKey{}).(*memoryTx)
	if !ok {
		return nil, errors.New("lock outside transaction")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	if b, ok := tx.balances[id]; ok {
		acc.Balance = b
	}
	return &acc, nil
}

func (m *memoryStore) UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	tx, ok := ctx.Value(memoryTxKey{}).(*memoryTx)
	if !ok {
		return errors.New("update outside transaction")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdate[id] {
		return errors.New("connection reset by peer")
	}
	if balance.IsNegative() {
		return errors.New("balance check constraint violated")
	}
	tx.balances[id] = balance
	return nil
}

func (m *memoryStore) GetByToken(ctx context.Context, token string) (*domain.GatewayToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[token]
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	return &tok, nil
}

func (m *memoryStore) Append(ctx context.Context, record *domain.TransactionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, inTx := ctx.Value(memoryTxKey{}).(*memoryTx)
	if record.IdempotencyKey != nil {
		pending := m.records
		if inTx {
			pending = append(append([]domain.TransactionRecord{}, m.records...), tx.records...)
		}
		for _, r := range pending {
			if r.FromAccountID == record.FromAccountID && r.IdempotencyKey != nil && *r.IdempotencyKey == *record.IdempotencyKey {
				return domain.ErrDuplicateIdempotencyKey
			}
		}
	}

	if inTx {
		tx.records = append(tx.records, *record)
		return nil
	}
	m.records = append(m.records, *record)
	return nil
}

func (m *memoryStore) GetByIdempotencyKey(ctx context.Context, senderID uuid.UUID, key string) (*domain.TransactionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.FromAccountID == senderID && r.IdempotencyKey != nil && *r.IdempotencyKey == key {
			r := r
			return &r, nil
		}
	}
	return nil, nil
}

func (m *memoryStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	tx := &memoryTx{balances: make(map[uuid.UUID]decimal.Decimal)}
	if err := fn(context.WithValue(ctx, memoryTxKey{}, tx)); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, b := range tx.balances {
		acc := m.accounts[id]
		acc.Balance = b
		m.accounts[id] = acc
	}
	m.records = append(m.records, tx.records...)
	return nil
}

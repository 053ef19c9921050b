package balancelog

import (
	"context"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"bankledger/internal/domain/account"
	"bankledger/internal/domain/payment"
	"bankledger/internal/domain/transaction"
)

func day(m time.Month, d int) civil.Date {
	return civil.Date{Year: 2024, Month: m, Day: d}
}

func floatPtr(f float64) *float64 {
	return &f
}

func strPtr(s string) *string {
	return &s
}

// memoryLedger is an in-memory Repository keyed on (account, date).
type memoryLedger struct {
	mu      sync.Mutex
	entries map[string]map[civil.Date]*Entry

	UpsertFunc func(ctx context.Context, entry *Entry) error

	latestCalls [][2]civil.Date
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{entries: make(map[string]map[civil.Date]*Entry)}
}

func (m *memoryLedger) put(e *Entry) {
	if m.entries[e.AccountID] == nil {
		m.entries[e.AccountID] = make(map[civil.Date]*Entry)
	}
	m.entries[e.AccountID][e.Date] = e
}

func (m *memoryLedger) Upsert(ctx context.Context, entry *Entry) error {
	if m.UpsertFunc != nil {
		if err := m.UpsertFunc(ctx, entry); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(entry)
	return nil
}

func (m *memoryLedger) ListByDateRange(ctx context.Context, accountID string, start, end civil.Date) ([]*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Entry
	for d, e := range m.entries[accountID] {
		if !d.Before(start) && !d.After(end) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *memoryLedger) LatestInRange(ctx context.Context, accountID string, start, end civil.Date) (*Entry, error) {
	m.mu.Lock()
	m.latestCalls = append(m.latestCalls, [2]civil.Date{start, end})
	m.mu.Unlock()

	entries, _ := m.ListByDateRange(ctx, accountID, start, end)
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[len(entries)-1], nil
}

func (m *memoryLedger) get(accountID string, d civil.Date) *Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[accountID][d]
}

func (m *memoryLedger) count(accountID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries[accountID])
}

// memoryTransactions serves List and FindByExternalIDs from a slice.
type memoryTransactions struct {
	txns       []*transaction.Transaction
	lastParams transaction.ListParams
}

func (m *memoryTransactions) List(ctx context.Context, params transaction.ListParams) ([]*transaction.Transaction, error) {
	m.lastParams = params
	var out []*transaction.Transaction
	for _, txn := range m.txns {
		if txn.TransactionDate.Before(params.StartDate) || txn.TransactionDate.After(params.EndDate) {
			continue
		}
		out = append(out, txn)
	}
	return out, nil
}

func (m *memoryTransactions) FindByExternalIDs(ctx context.Context, accountID string, externalIDs []string) ([]*transaction.Transaction, error) {
	wanted := make(map[string]bool, len(externalIDs))
	for _, id := range externalIDs {
		wanted[id] = true
	}
	var out []*transaction.Transaction
	for _, txn := range m.txns {
		if txn.AccountID == accountID && wanted[txn.ExternalID] {
			out = append(out, txn)
		}
	}
	return out, nil
}

type MockAccountService struct {
	GetAccountFunc    func(ctx context.Context, accountID string) (*account.Account, error)
	RecordBalanceFunc func(ctx context.Context, acc *account.Account, update account.BalanceUpdate) error
}

func (m *MockAccountService) GetAccount(ctx context.Context, accountID string) (*account.Account, error) {
	if m.GetAccountFunc != nil {
		return m.GetAccountFunc(ctx, accountID)
	}
	return &account.Account{ID: accountID, UserID: 7}, nil
}

func (m *MockAccountService) RecordBalance(ctx context.Context, acc *account.Account, update account.BalanceUpdate) error {
	if m.RecordBalanceFunc != nil {
		return m.RecordBalanceFunc(ctx, acc, update)
	}
	return nil
}

type MockPaymentRepository struct {
	ListByBankAccountFunc func(ctx context.Context, userID int64, bankAccountID string, start, end civil.Date) ([]*payment.Payment, error)
}

func (m *MockPaymentRepository) ListByBankAccount(ctx context.Context, userID int64, bankAccountID string, start, end civil.Date) ([]*payment.Payment, error) {
	if m.ListByBankAccountFunc != nil {
		return m.ListByBankAccountFunc(ctx, userID, bankAccountID, start, end)
	}
	return nil, nil
}

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (c *countingMetrics) Count(ctx context.Context, name string, value int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int64)
	}
	c.counts[name] += value
}

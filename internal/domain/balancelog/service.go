package balancelog

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bankledger/internal/domain/account"
	"bankledger/internal/domain/payment"
	"bankledger/internal/domain/transaction"
)

// AccountService is the part of the account service the ledger needs.
type AccountService interface {
	GetAccount(ctx context.Context, accountID string) (*account.Account, error)
	RecordBalance(ctx context.Context, acc *account.Account, update account.BalanceUpdate) error
}

// TransactionFinder resolves bank transactions by external id.
type TransactionFinder interface {
	FindByExternalIDs(ctx context.Context, accountID string, externalIDs []string) ([]*transaction.Transaction, error)
}

// Service answers balance-history queries and records observed balances.
type Service struct {
	ledger          Repository
	accounts        AccountService
	payments        payment.Repository
	transactions    TransactionFinder
	logger          zerolog.Logger
	gapFillLookback int
}

// NewService creates a new ledger service
func NewService(
	ledger Repository,
	accounts AccountService,
	payments payment.Repository,
	transactions TransactionFinder,
	logger zerolog.Logger,
	gapFillLookback int,
) *Service {
	if gapFillLookback <= 0 {
		gapFillLookback = DefaultGapFillLookback
	}
	return &Service{
		ledger:          ledger,
		accounts:        accounts,
		payments:        payments,
		transactions:    transactions,
		logger:          logger,
		gapFillLookback: gapFillLookback,
	}
}

// GetBalancesByDateRange returns the balance of every resolvable day in
// [start, end]. Days without a stored entry carry the previous known
// balance; days before any known balance are omitted. With
// excludeInternalPayments the product's own collections are added back.
func (s *Service) GetBalancesByDateRange(ctx context.Context, accountID string, start, end civil.Date, excludeInternalPayments bool) ([]DailyBalance, error) {
	if !start.IsValid() || !end.IsValid() || end.Before(start) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidRange, start, end)
	}
	if end.DaysSince(start) >= MaxRangeDays {
		return nil, fmt.Errorf("%w: %s to %s spans more than %d days", ErrInvalidRange, start, end, MaxRangeDays)
	}

	entries, err := s.ledger.ListByDateRange(ctx, accountID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}

	byDate := LatestPerDate(entries)

	anchor, ok := EarliestDate(byDate)
	if !ok {
		anchor = start
	}

	var seed *Entry
	if !ok || start.Before(anchor) {
		seed, err = s.ledger.LatestInRange(ctx, accountID, anchor.AddDays(-s.gapFillLookback), anchor.AddDays(-1))
		if err != nil {
			return nil, fmt.Errorf("failed to look up leading balance: %w", err)
		}
	}

	balances := FillRange(start, end, byDate, seed)

	if !excludeInternalPayments || len(balances) == 0 {
		return balances, nil
	}

	collections, err := s.collections(ctx, accountID, start, end)
	if err != nil {
		return nil, err
	}

	return ExcludeCollections(balances, collections), nil
}

// collections resolves the account's internal payments in range to the
// bank transactions they produced. Payments without a resolvable bank
// transaction are skipped.
func (s *Service) collections(ctx context.Context, accountID string, start, end civil.Date) ([]Collection, error) {
	acc, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	payments, err := s.payments.ListByBankAccount(ctx, acc.UserID, accountID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list internal payments: %w", err)
	}

	var externalIDs []string
	for _, p := range payments {
		if p.Collected() && p.ExternalID != nil && *p.ExternalID != "" {
			externalIDs = append(externalIDs, *p.ExternalID)
		}
	}
	if len(externalIDs) == 0 {
		return nil, nil
	}

	txns, err := s.transactions.FindByExternalIDs(ctx, accountID, externalIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve payment transactions: %w", err)
	}

	byExternalID := make(map[string]*transaction.Transaction, len(txns))
	for _, txn := range txns {
		byExternalID[txn.ExternalID] = txn
	}

	collections := make([]Collection, 0, len(externalIDs))
	for _, p := range payments {
		if !p.Collected() || p.ExternalID == nil {
			continue
		}
		txn, ok := byExternalID[*p.ExternalID]
		if !ok {
			s.logger.Debug().Str("account_id", accountID).Str("payment_id", p.ID).
				Msg("No bank transaction for payment, skipping")
			continue
		}
		collections = append(collections, Collection{
			PaymentID: p.ID,
			Date:      txn.TransactionDate,
			Amount:    p.Amount,
		})
	}

	return collections, nil
}

// RecordObservedBalance moves the account's live balance forward and
// writes the observation as that day's ledger entry.
func (s *Service) RecordObservedBalance(ctx context.Context, acc *account.Account, available, current *float64, observedAt time.Time, caller string) (*Entry, error) {
	update := account.BalanceUpdate{
		Available:  available,
		Current:    current,
		ObservedAt: observedAt,
	}
	if err := s.accounts.RecordBalance(ctx, acc, update); err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:            uuid.NewString(),
		AccountID:     acc.ID,
		UserID:        acc.UserID,
		ConnectionID:  acc.ConnectionID,
		Date:          civil.DateOf(observedAt),
		Available:     available,
		Current:       current,
		ProcessorName: acc.ProcessorName,
		Caller:        caller,
	}
	if err := s.ledger.Upsert(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to write observed balance: %w", err)
	}

	s.logger.Info().
		Str("account_id", acc.ID).
		Str("date", entry.Date.String()).
		Str("caller", caller).
		Msg("Recorded observed balance")

	return entry, nil
}

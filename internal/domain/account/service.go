package account

import (
	"context"
	"errors"
	"fmt"
)

// Service contains the business logic for account operations
type Service struct {
	repo Repository
}

// NewService creates a new account service
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetAccount retrieves an account by ID
func (s *Service) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: account ID is required", ErrInvalidInput)
	}

	acc, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	if !acc.IsActive() {
		return nil, ErrAccountNotFound
	}

	return acc, nil
}

// ListConnectionAccounts retrieves the accounts that share a bank connection
func (s *Service) ListConnectionAccounts(ctx context.Context, connectionID string) ([]*Account, error) {
	if connectionID == "" {
		return nil, fmt.Errorf("%w: connection ID is required", ErrInvalidInput)
	}

	return s.repo.ListByConnectionID(ctx, connectionID)
}

// ListBackfillCandidates returns the accounts whose ledger can be rebuilt
func (s *Service) ListBackfillCandidates(ctx context.Context) ([]*Account, error) {
	accounts, err := s.repo.ListWithBalances(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make([]*Account, 0, len(accounts))
	for _, acc := range accounts {
		if acc.IsActive() && acc.HasAnchor() && acc.LastBalanceUpdate != nil {
			candidates = append(candidates, acc)
		}
	}
	return candidates, nil
}

// RecordBalance moves the live anchor forward. Observations older than the
// stored anchor are rejected with ErrStaleBalance so a delayed webhook cannot
// roll the balance back.
func (s *Service) RecordBalance(ctx context.Context, acc *Account, update BalanceUpdate) error {
	if err := update.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if acc.LastBalanceUpdate != nil && update.ObservedAt.Before(*acc.LastBalanceUpdate) {
		return ErrStaleBalance
	}

	if err := s.repo.UpdateBalances(ctx, acc.ID, update); err != nil {
		return fmt.Errorf("failed to update balances: %w", err)
	}

	acc.Available = update.Available
	acc.Current = update.Current
	observedAt := update.ObservedAt
	acc.LastBalanceUpdate = &observedAt

	return nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bankledger/internal/domain/account"
)

const accountColumns = `id, user_id, connection_id, external_id, display_name, available, current,
	last_balance_update, processor_name, status, created_at, updated_at`

type AccountRepository struct {
	db *DB
}

func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func scanAccount(row rowScanner) (*account.Account, error) {
	var acc account.Account
	err := row.Scan(
		&acc.ID, &acc.UserID, &acc.ConnectionID, &acc.ExternalID, &acc.DisplayName,
		&acc.Available, &acc.Current, &acc.LastBalanceUpdate, &acc.ProcessorName,
		&acc.Status, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (r *AccountRepository) listAccounts(ctx context.Context, query string, args ...any) ([]*account.Account, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*account.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, acc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	acc, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, account.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return acc, nil
}

func (r *AccountRepository) ListByConnectionID(ctx context.Context, connectionID string) ([]*account.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE connection_id = $1 AND status = 'active'
		ORDER BY created_at
	`
	return r.listAccounts(ctx, query, connectionID)
}

func (r *AccountRepository) ListWithBalances(ctx context.Context) ([]*account.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE status = 'active'
		  AND (available IS NOT NULL OR current IS NOT NULL)
		  AND last_balance_update IS NOT NULL
		ORDER BY user_id, id
	`
	return r.listAccounts(ctx, query)
}

// UpdateBalances moves the anchor only forward; an older observation
// leaves the row untouched and reports ErrStaleBalance.
func (r *AccountRepository) UpdateBalances(ctx context.Context, id string, update account.BalanceUpdate) error {
	query := `
		UPDATE accounts
		SET available = $1,
		    current = $2,
		    last_balance_update = $3,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $4
		  AND (last_balance_update IS NULL OR last_balance_update <= $3)
	`

	result, err := r.db.ExecContext(ctx, query, update.Available, update.Current, update.ObservedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update account balances: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check account: %w", err)
		}
		if !exists {
			return account.ErrAccountNotFound
		}
		return account.ErrStaleBalance
	}

	return nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"bankledger/internal/domain/balancelog"
)

const balanceLogColumns = `id, account_id, user_id, connection_id, date, available, current,
	processor_name, caller, created_at`

type BalanceLogRepository struct {
	db *DB
}

func NewBalanceLogRepository(db *DB) *BalanceLogRepository {
	return &BalanceLogRepository{db: db}
}

func scanBalanceLog(row rowScanner) (*balancelog.Entry, error) {
	var e balancelog.Entry
	var date time.Time
	err := row.Scan(
		&e.ID, &e.AccountID, &e.UserID, &e.ConnectionID, &date, &e.Available, &e.Current,
		&e.ProcessorName, &e.Caller, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Date = civil.DateOf(date)
	return &e, nil
}

// Upsert writes the day's entry. An existing row for (account, date) keeps
// its id and takes the new balances and tags.
func (r *BalanceLogRepository) Upsert(ctx context.Context, entry *balancelog.Entry) error {
	query := `
		INSERT INTO balance_logs (id, account_id, user_id, connection_id, date, available, current,
		                          processor_name, caller)
		VALUES ($1, $2, $3, $4, $5::date, $6, $7, $8, $9)
		ON CONFLICT (account_id, date) DO UPDATE SET
		    available = EXCLUDED.available,
		    current = EXCLUDED.current,
		    processor_name = EXCLUDED.processor_name,
		    caller = EXCLUDED.caller,
		    updated_at = CURRENT_TIMESTAMP
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		entry.ID, entry.AccountID, entry.UserID, entry.ConnectionID, entry.Date.String(),
		entry.Available, entry.Current, entry.ProcessorName, entry.Caller,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert balance log for %s: %w", entry.Date, err)
	}

	return nil
}

func (r *BalanceLogRepository) ListByDateRange(ctx context.Context, accountID string, start, end civil.Date) ([]*balancelog.Entry, error) {
	query := `
		SELECT ` + balanceLogColumns + `
		FROM balance_logs
		WHERE account_id = $1 AND date BETWEEN $2::date AND $3::date
		ORDER BY date, created_at
	`

	rows, err := r.db.QueryContext(ctx, query, accountID, start.String(), end.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list balance logs: %w", err)
	}
	defer rows.Close()

	var entries []*balancelog.Entry
	for rows.Next() {
		e, err := scanBalanceLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan balance log: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating balance logs: %w", err)
	}

	return entries, nil
}

func (r *BalanceLogRepository) LatestInRange(ctx context.Context, accountID string, start, end civil.Date) (*balancelog.Entry, error) {
	query := `
		SELECT ` + balanceLogColumns + `
		FROM balance_logs
		WHERE account_id = $1 AND date BETWEEN $2::date AND $3::date
		ORDER BY date DESC, created_at DESC
		LIMIT 1
	`

	e, err := scanBalanceLog(r.db.QueryRowContext(ctx, query, accountID, start.String(), end.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest balance log: %w", err)
	}

	return e, nil
}

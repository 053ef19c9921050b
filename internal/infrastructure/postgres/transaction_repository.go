package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/lib/pq"

	"bankledger/internal/domain/transaction"
)

const transactionColumns = `id, external_id, pending_external_id, account_id, user_id, amount,
	transaction_date, pending, external_name, display_name, pending_external_name,
	pending_display_name, plaid_category, plaid_category_id, address, city, state, zip_code,
	reference_number, ppd_id, payee_name, merchant_info_id, status, deleted_at, created_at, updated_at`

// insertColumnCount is the number of bound parameters per inserted row.
const insertColumnCount = 23

// maxInsertRows keeps one statement below the 65535 parameter limit.
const maxInsertRows = 1000

type TransactionRepository struct {
	db         *DB
	retries    int
	retryDelay time.Duration
}

// NewTransactionRepository creates a repository whose bulk inserts retry
// transient failures up to retries times, backing off linearly.
func NewTransactionRepository(db *DB, retries int, retryDelay time.Duration) *TransactionRepository {
	if retries < 0 {
		retries = 0
	}
	return &TransactionRepository{db: db, retries: retries, retryDelay: retryDelay}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*transaction.Transaction, error) {
	var t transaction.Transaction
	var txDate time.Time

	err := row.Scan(
		&t.ID, &t.ExternalID, &t.PendingExternalID, &t.AccountID, &t.UserID, &t.Amount,
		&txDate, &t.Pending, &t.ExternalName, &t.DisplayName, &t.PendingExternalName,
		&t.PendingDisplayName, pq.Array(&t.PlaidCategory), &t.PlaidCategoryID, &t.Address, &t.City,
		&t.State, &t.ZipCode, &t.ReferenceNumber, &t.PpdID, &t.PayeeName, &t.MerchantInfoID,
		&t.Status, &t.DeletedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.TransactionDate = civil.DateOf(txDate)
	return &t, nil
}

func scanTransactions(rows *sql.Rows) ([]*transaction.Transaction, error) {
	defer rows.Close()

	var transactions []*transaction.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*transaction.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	t, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, transaction.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return t, nil
}

func (r *TransactionRepository) List(ctx context.Context, params transaction.ListParams) ([]*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE account_id = ANY($1)
		  AND transaction_date BETWEEN $2::date AND $3::date
		  AND ($4 OR status = 'active')
		ORDER BY transaction_date, created_at
	`

	rows, err := r.db.QueryContext(ctx, query,
		pq.Array(params.AccountIDs), params.StartDate.String(), params.EndDate.String(), params.IncludeDeleted,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	return scanTransactions(rows)
}

func (r *TransactionRepository) FindByExternalIDs(ctx context.Context, accountID string, externalIDs []string) ([]*transaction.Transaction, error) {
	if len(externalIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE account_id = $1 AND external_id = ANY($2) AND status = 'active'
	`

	rows, err := r.db.QueryContext(ctx, query, accountID, pq.Array(externalIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to find transactions by external id: %w", err)
	}

	return scanTransactions(rows)
}

// BulkCreate inserts the transactions with multi-row INSERT statements.
// Deadlocks, lock timeouts and serialization failures from concurrent syncs
// are retried; the last error is returned once retries are exhausted. A
// unique violation fails at once since a retry inserts the same rows.
func (r *TransactionRepository) BulkCreate(ctx context.Context, txns []*transaction.Transaction) error {
	for start := 0; start < len(txns); start += maxInsertRows {
		end := min(start+maxInsertRows, len(txns))
		query, args := buildBulkInsert(txns[start:end])

		if err := r.execWithRetry(ctx, query, args); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("failed to bulk insert transactions: %w: %v", transaction.ErrDuplicateExternalID, err)
			}
			return fmt.Errorf("failed to bulk insert transactions: %w", err)
		}
	}
	return nil
}

func (r *TransactionRepository) execWithRetry(ctx context.Context, query string, args []any) error {
	var err error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.retryDelay * time.Duration(attempt)):
			}
		}

		if _, err = r.db.ExecContext(ctx, query, args...); err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
	}
	return err
}

func buildBulkInsert(txns []*transaction.Transaction) (string, []any) {
	var b strings.Builder
	b.WriteString(`INSERT INTO transactions (id, external_id, pending_external_id, account_id, user_id,
		amount, transaction_date, pending, external_name, display_name, pending_external_name,
		pending_display_name, plaid_category, plaid_category_id, address, city, state, zip_code,
		reference_number, ppd_id, payee_name, merchant_info_id, status) VALUES `)

	args := make([]any, 0, len(txns)*insertColumnCount)
	for i, t := range txns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := 1; c <= insertColumnCount; c++ {
			if c > 1 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", i*insertColumnCount+c)
			if c == 7 {
				b.WriteString("::date")
			}
		}
		b.WriteByte(')')

		status := t.Status
		if status == "" {
			status = transaction.StatusActive
		}

		args = append(args,
			t.ID, t.ExternalID, t.PendingExternalID, t.AccountID, t.UserID,
			t.Amount, t.TransactionDate.String(), t.Pending, t.ExternalName, t.DisplayName, t.PendingExternalName,
			t.PendingDisplayName, pq.Array(t.PlaidCategory), t.PlaidCategoryID, t.Address, t.City, t.State, t.ZipCode,
			t.ReferenceNumber, t.PpdID, t.PayeeName, t.MerchantInfoID, string(status),
		)
	}

	return b.String(), args
}

func (r *TransactionRepository) Update(ctx context.Context, id string, params transaction.UpdateParams) (*transaction.Transaction, error) {
	query := `
		UPDATE transactions
		SET external_id = $1,
		    pending_external_id = $2,
		    amount = $3,
		    transaction_date = $4::date,
		    pending = $5,
		    external_name = $6,
		    display_name = $7,
		    pending_external_name = $8,
		    pending_display_name = $9,
		    plaid_category = $10,
		    plaid_category_id = $11,
		    address = $12,
		    city = $13,
		    state = $14,
		    zip_code = $15,
		    reference_number = $16,
		    ppd_id = $17,
		    payee_name = $18,
		    merchant_info_id = $19,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $20 AND status = 'active'
		RETURNING ` + transactionColumns

	t, err := scanTransaction(r.db.QueryRowContext(ctx, query,
		params.ExternalID, params.PendingExternalID, params.Amount, params.TransactionDate.String(),
		params.Pending, params.ExternalName, params.DisplayName, params.PendingExternalName,
		params.PendingDisplayName, pq.Array(params.PlaidCategory), params.PlaidCategoryID,
		params.Address, params.City, params.State, params.ZipCode, params.ReferenceNumber,
		params.PpdID, params.PayeeName, params.MerchantInfoID, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, transaction.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}

	return t, nil
}

// BulkDelete tombstones the given transactions and returns how many rows
// changed state.
func (r *TransactionRepository) BulkDelete(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := `
		UPDATE transactions
		SET status = 'deleted', deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ANY($1) AND status = 'active'
	`

	result, err := r.db.ExecContext(ctx, query, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to delete transactions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows, nil
}

// isTransient reports whether a write failed for a reason a retry can clear.
func isTransient(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}

	switch pqErr.Code {
	case "40P01", // deadlock_detected
		"40001", // serialization_failure
		"55P03": // lock_not_available
		return true
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

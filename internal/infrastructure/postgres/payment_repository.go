package postgres

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"

	"bankledger/internal/domain/payment"
)

type PaymentRepository struct {
	db *DB
}

func NewPaymentRepository(db *DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) ListByBankAccount(ctx context.Context, userID int64, bankAccountID string, start, end civil.Date) ([]*payment.Payment, error) {
	query := `
		SELECT id, user_id, bank_account_id, amount, external_id, status, created_at
		FROM payments
		WHERE user_id = $1
		  AND bank_account_id = $2
		  AND created_at >= $3::date
		  AND created_at < ($4::date + 1)
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, userID, bankAccountID, start.String(), end.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*payment.Payment
	for rows.Next() {
		var p payment.Payment
		if err := rows.Scan(&p.ID, &p.UserID, &p.BankAccountID, &p.Amount, &p.ExternalID, &p.Status, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}

	return payments, nil
}

// Package payment models the product's own collections debited from a
// user's bank account.
package payment

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusReturned  Status = "returned"
	StatusCanceled  Status = "canceled"
)

// Payment is an internal collection. ExternalID references the bank
// transaction the collection produced on the user's account.
type Payment struct {
	ID            string    `json:"id"`
	UserID        int64     `json:"userId"`
	BankAccountID string    `json:"bankAccountId"`
	Amount        float64   `json:"amount"`
	ExternalID    *string   `json:"externalId,omitempty"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Collected reports whether the payment actually left the user's account.
func (p *Payment) Collected() bool {
	return p.Status == StatusPending || p.Status == StatusCompleted
}

// Repository defines the interface for payment data access
type Repository interface {
	// ListByBankAccount returns the payments against an account created
	// within [start, end].
	ListByBankAccount(ctx context.Context, userID int64, bankAccountID string, start, end civil.Date) ([]*Payment, error)
}

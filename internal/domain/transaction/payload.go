package transaction

import (
	"fmt"
	"math"

	"cloud.google.com/go/civil"
)

// PayloadStatus is the provider-reported settlement outcome of a payload.
type PayloadStatus string

const (
	PayloadStatusPosted   PayloadStatus = "posted"
	PayloadStatusCanceled PayloadStatus = "canceled"
	PayloadStatusReturned PayloadStatus = "returned"
)

// Payload is the canonical transaction shape produced by provider adapters.
type Payload struct {
	ExternalID            string        `json:"externalId"`
	PendingExternalID     *string       `json:"pendingExternalId,omitempty"`
	BankAccountExternalID string        `json:"bankAccountExternalId"`
	Amount                float64       `json:"amount"`
	TransactionDate       civil.Date    `json:"transactionDate"`
	Pending               bool          `json:"pending"`
	ExternalName          string        `json:"externalName"`
	Address               *string       `json:"address,omitempty"`
	City                  *string       `json:"city,omitempty"`
	State                 *string       `json:"state,omitempty"`
	ZipCode               *string       `json:"zipCode,omitempty"`
	PlaidCategory         []string      `json:"plaidCategory,omitempty"`
	PlaidCategoryID       *string       `json:"plaidCategoryId,omitempty"`
	ReferenceNumber       *string       `json:"referenceNumber,omitempty"`
	PpdID                 *string       `json:"ppdId,omitempty"`
	PayeeName             *string       `json:"payeeName,omitempty"`
	Status                PayloadStatus `json:"status,omitempty"`

	// AccountID is the local account resolved from BankAccountExternalID.
	AccountID string `json:"-"`
}

// IsCanceledOrReturned reports whether the provider withdrew the transaction.
func (p *Payload) IsCanceledOrReturned() bool {
	return p.Status == PayloadStatusCanceled || p.Status == PayloadStatusReturned
}

// Validate checks the fields the matcher and the store rely on.
func (p *Payload) Validate() error {
	if p.ExternalID == "" {
		return fmt.Errorf("%w: externalId is required", ErrInvalidPayload)
	}
	if p.BankAccountExternalID == "" {
		return fmt.Errorf("%w: bankAccountExternalId is required for %s", ErrInvalidPayload, p.ExternalID)
	}
	if !p.TransactionDate.IsValid() {
		return fmt.Errorf("%w: transactionDate is required for %s", ErrInvalidPayload, p.ExternalID)
	}
	if math.IsInf(p.Amount, 0) {
		return fmt.Errorf("%w: amount is not finite for %s", ErrInvalidPayload, p.ExternalID)
	}
	return nil
}

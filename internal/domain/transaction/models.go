package transaction

import (
	"errors"
	"time"

	"cloud.google.com/go/civil"
)

// Status is the lifecycle state of a stored transaction.
type Status string

const (
	StatusActive  Status = "active"
	StatusDeleted Status = "deleted"
)

// Domain errors
var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInvalidPayload      = errors.New("invalid transaction payload")
	ErrDuplicateExternalID = errors.New("active transaction with this external id already exists")
)

// Transaction is a bank transaction as stored locally.
// At most one active row exists per (AccountID, ExternalID).
type Transaction struct {
	ID                  string     `json:"id"`
	ExternalID          string     `json:"externalId"`
	PendingExternalID   *string    `json:"pendingExternalId,omitempty"`
	AccountID           string     `json:"accountId"`
	UserID              int64      `json:"userId"`
	Amount              float64    `json:"amount"` // negative = debit
	TransactionDate     civil.Date `json:"transactionDate"`
	Pending             bool       `json:"pending"`
	ExternalName        string     `json:"externalName"`
	DisplayName         string     `json:"displayName"`
	PendingExternalName *string    `json:"pendingExternalName,omitempty"`
	PendingDisplayName  *string    `json:"pendingDisplayName,omitempty"`
	PlaidCategory       []string   `json:"plaidCategory"`
	PlaidCategoryID     *string    `json:"plaidCategoryId,omitempty"`
	Address             *string    `json:"address,omitempty"`
	City                *string    `json:"city,omitempty"`
	State               *string    `json:"state,omitempty"`
	ZipCode             *string    `json:"zipCode,omitempty"`
	ReferenceNumber     *string    `json:"referenceNumber,omitempty"`
	PpdID               *string    `json:"ppdId,omitempty"`
	PayeeName           *string    `json:"payeeName,omitempty"`
	MerchantInfoID      *int64     `json:"merchantInfoId,omitempty"`
	Status              Status     `json:"status"`
	DeletedAt           *time.Time `json:"deletedAt,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// IsDeleted reports whether the transaction has been tombstoned.
func (t *Transaction) IsDeleted() bool {
	return t.Status == StatusDeleted
}

// ListParams scopes a transaction lookup. Deleted rows are excluded unless
// IncludeDeleted is set.
type ListParams struct {
	AccountIDs     []string
	StartDate      civil.Date
	EndDate        civil.Date
	IncludeDeleted bool
}

// UpdateParams carries the full replacement for a matched transaction.
type UpdateParams struct {
	ExternalID          string
	PendingExternalID   *string
	Amount              float64
	TransactionDate     civil.Date
	Pending             bool
	ExternalName        string
	DisplayName         string
	PendingExternalName *string
	PendingDisplayName  *string
	PlaidCategory       []string
	PlaidCategoryID     *string
	Address             *string
	City                *string
	State               *string
	ZipCode             *string
	ReferenceNumber     *string
	PpdID               *string
	PayeeName           *string
	MerchantInfoID      *int64
}
